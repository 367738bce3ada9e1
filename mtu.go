package lidnet

import "time"

const (
	minimumMTU          = 508
	defaultMTUCeiling   = 1408
	mtuConvergenceSlack = 16
)

// mtuProber implements adaptive MTU expansion: a binary search between a
// floor (known-good) and a ceiling (known-bad or untested) MTU, advancing
// the floor on ExpandMTUSuccess and contracting the ceiling on a
// failed/oversized send, honoring ExpandMTUFrequency as a minimum
// inter-probe interval.
type mtuProber struct {
	enabled   bool
	frequency time.Duration
	maxFails  int

	floor, ceiling int
	candidate      int
	lastProbe      time.Time
	failsAtCand    int
	done           bool
}

func newMTUProber(enabled bool, floor int, frequency time.Duration, maxFails int) *mtuProber {
	if floor < minimumMTU {
		floor = minimumMTU
	}
	return &mtuProber{
		enabled:   enabled,
		frequency: frequency,
		maxFails:  maxFails,
		floor:     floor,
		ceiling:   defaultMTUCeiling,
	}
}

// Current returns the largest MTU known to work; this governs
// fragmentation chunk size and ack packing.
func (p *mtuProber) Current() int { return p.floor }

// NextProbe returns a candidate MTU size to probe now, or 0 if no probe
// is due (disabled, converged, or too soon since the last probe).
func (p *mtuProber) NextProbe(now time.Time) int {
	if !p.enabled || p.done {
		return 0
	}
	if !p.lastProbe.IsZero() && now.Sub(p.lastProbe) < p.frequency {
		return 0
	}
	if p.ceiling-p.floor <= mtuConvergenceSlack {
		p.done = true
		return 0
	}
	p.candidate = p.floor + (p.ceiling-p.floor)/2
	p.lastProbe = now
	return p.candidate
}

// OnSuccess records an ExpandMTUSuccess for the given candidate size.
func (p *mtuProber) OnSuccess(size int) {
	if size != p.candidate || size <= p.floor {
		return
	}
	p.floor = size
	p.failsAtCand = 0
}

// OnFailure records a failed probe for the given candidate size. The
// connection calls it when writing the probe datagram returns an error
// (e.g. a MessageSize error from the socket); a probe that simply gets
// no ExpandMTUSuccess reply is not counted as a failure.
func (p *mtuProber) OnFailure(size int) {
	if size != p.candidate {
		return
	}
	p.ceiling = size
	p.failsAtCand++
	if p.failsAtCand >= p.maxFails {
		p.done = true
	}
}
