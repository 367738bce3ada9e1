package lidnet

// receiverChannel is the common receive-side operation interface.
// Receive is handed a fully decoded IncomingMessage (Seq and Data
// already populated) and decides whether to deliver it now, buffer it,
// or drop it, and whether the sequence number should be acknowledged.
type receiverChannel interface {
	Receive(msg *IncomingMessage) (deliver []*IncomingMessage, ack bool)
	Reset()
}

// passthroughReceiver implements the Unreliable receive side: deliver
// immediately, no dedupe, no ack.
type passthroughReceiver struct{}

func (passthroughReceiver) Receive(msg *IncomingMessage) ([]*IncomingMessage, bool) {
	return []*IncomingMessage{msg}, false
}

func (passthroughReceiver) Reset() {}

// sequencedReceiver implements UnreliableSequenced (alwaysAck=false) and
// ReliableSequenced (alwaysAck=true): accept only a message strictly
// newer than the last accepted one; ReliableSequenced additionally acks
// every arrival, including duplicates.
type sequencedReceiver struct {
	alwaysAck bool

	hasLast bool
	last    Seq
}

func newSequencedReceiver(alwaysAck bool) *sequencedReceiver {
	return &sequencedReceiver{alwaysAck: alwaysAck}
}

func (r *sequencedReceiver) Receive(msg *IncomingMessage) ([]*IncomingMessage, bool) {
	accept := !r.hasLast || RelativeSeq(msg.Seq, r.last) > 0
	if accept {
		r.last = msg.Seq
		r.hasLast = true
		return []*IncomingMessage{msg}, r.alwaysAck
	}
	return nil, r.alwaysAck
}

func (r *sequencedReceiver) Reset() {
	r.hasLast = false
	r.last = 0
}

// unorderedReceiver implements ReliableUnordered: deliver immediately,
// ack always, suppress duplicates with a bitvector sized
// NumSequenceNumbers bits (the other reliable receivers get equivalent
// dedupe for free from their window bookkeeping).
type unorderedReceiver struct {
	seen [NumSequenceNumbers / 8]byte
}

func newUnorderedReceiver() *unorderedReceiver { return &unorderedReceiver{} }

func (r *unorderedReceiver) Receive(msg *IncomingMessage) ([]*IncomingMessage, bool) {
	byteIdx, bit := msg.Seq/8, msg.Seq%8
	mask := byte(1) << bit
	if r.seen[byteIdx]&mask != 0 {
		return nil, true // duplicate: still ack, ack is idempotent on the sender
	}
	r.seen[byteIdx] |= mask
	return []*IncomingMessage{msg}, true
}

func (r *unorderedReceiver) Reset() {
	for i := range r.seen {
		r.seen[i] = 0
	}
}

// orderedEntry holds one withheld out-of-order arrival.
type orderedEntry struct {
	present bool
	seq     Seq
	msg     *IncomingMessage
}

// orderedReceiver implements ReliableOrdered: a reorder buffer of window
// size W that releases messages strictly in sequence order, buffering
// ahead-of-window arrivals until the gap fills.
type orderedReceiver struct {
	windowSize  int
	windowStart Seq
	withheld    []orderedEntry
}

func newOrderedReceiver(windowSize int) *orderedReceiver {
	return &orderedReceiver{windowSize: windowSize, withheld: make([]orderedEntry, windowSize)}
}

func (r *orderedReceiver) Receive(msg *IncomingMessage) ([]*IncomingMessage, bool) {
	rel := RelativeSeq(msg.Seq, r.windowStart)

	if rel < 0 || int(rel) >= r.windowSize {
		// Duplicate of an already-delivered message, or implausibly far
		// in the future: treat as a duplicate either way.
		return nil, true
	}

	if rel == 0 {
		deliver := []*IncomingMessage{msg}
		r.windowStart = r.windowStart.Add(1)
		for {
			idx := r.windowStart.index(r.windowSize)
			e := &r.withheld[idx]
			if e.present && e.seq == r.windowStart {
				deliver = append(deliver, e.msg)
				*e = orderedEntry{}
				r.windowStart = r.windowStart.Add(1)
				continue
			}
			break
		}
		return deliver, true
	}

	idx := msg.Seq.index(r.windowSize)
	if !r.withheld[idx].present {
		r.withheld[idx] = orderedEntry{present: true, seq: msg.Seq, msg: msg}
	}
	return nil, true
}

func (r *orderedReceiver) Reset() {
	r.windowStart = 0
	for i := range r.withheld {
		r.withheld[i] = orderedEntry{}
	}
}
