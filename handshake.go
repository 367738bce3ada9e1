package lidnet

import (
	"time"

	"github.com/relaynet/lidnet/bitbuf"
)

// ConnectionStatus is a Connection's position in the handshake/teardown
// state machine.
type ConnectionStatus uint8

const (
	StatusNone ConnectionStatus = iota
	StatusInitiatedConnect
	StatusReceivedInitiation
	StatusRespondedAwaitingApproval
	StatusRespondedConnect
	StatusConnected
	StatusDisconnecting
	StatusDisconnected
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusNone:
		return "None"
	case StatusInitiatedConnect:
		return "InitiatedConnect"
	case StatusReceivedInitiation:
		return "ReceivedInitiation"
	case StatusRespondedAwaitingApproval:
		return "RespondedAwaitingApproval"
	case StatusRespondedConnect:
		return "RespondedConnect"
	case StatusConnected:
		return "Connected"
	case StatusDisconnecting:
		return "Disconnecting"
	case StatusDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// connectPayload is the Connect message body: the initiator's nonce,
// its application identifier, and its unique peer id.
type connectPayload struct {
	Nonce         uint32
	AppIdentifier string
	PeerUID       uint64
}

func encodeConnect(b *bitbuf.BitBuffer, p connectPayload) {
	b.WriteUInt32(p.Nonce)
	b.WriteString(p.AppIdentifier)
	b.WriteUInt64(p.PeerUID)
}

func decodeConnect(b *bitbuf.BitBuffer) connectPayload {
	return connectPayload{
		Nonce:         b.ReadUInt32(),
		AppIdentifier: b.ReadString(),
		PeerUID:       b.ReadUInt64(),
	}
}

// connectResponsePayload echoes the initiator's nonce and carries the
// responder's unique peer id.
type connectResponsePayload struct {
	Nonce   uint32
	PeerUID uint64
}

func encodeConnectResponse(b *bitbuf.BitBuffer, p connectResponsePayload) {
	b.WriteUInt32(p.Nonce)
	b.WriteUInt64(p.PeerUID)
}

func decodeConnectResponse(b *bitbuf.BitBuffer) connectResponsePayload {
	return connectResponsePayload{Nonce: b.ReadUInt32(), PeerUID: b.ReadUInt64()}
}

// connectEstablishedPayload just echoes the nonce one last time so
// either side can discard retransmitted ConnectResponses once it
// arrives.
type connectEstablishedPayload struct {
	Nonce uint32
}

func encodeConnectEstablished(b *bitbuf.BitBuffer, p connectEstablishedPayload) {
	b.WriteUInt32(p.Nonce)
}

func decodeConnectEstablished(b *bitbuf.BitBuffer) connectEstablishedPayload {
	return connectEstablishedPayload{Nonce: b.ReadUInt32()}
}

// disconnectPayload carries a human-readable reason.
type disconnectPayload struct {
	Reason string
}

func encodeDisconnect(b *bitbuf.BitBuffer, p disconnectPayload) {
	b.WriteString(p.Reason)
}

func decodeDisconnect(b *bitbuf.BitBuffer) disconnectPayload {
	return disconnectPayload{Reason: b.ReadString()}
}

// pingPayload/pongPayload carry a small id so RTT can be attributed to
// the right round trip even if a stray duplicate Ping/Pong arrives late.
type pingPayload struct{ ID uint32 }
type pongPayload struct{ ID uint32 }

func encodePing(b *bitbuf.BitBuffer, p pingPayload) { b.WriteUInt32(p.ID) }
func decodePing(b *bitbuf.BitBuffer) pingPayload    { return pingPayload{ID: b.ReadUInt32()} }
func encodePong(b *bitbuf.BitBuffer, p pongPayload) { b.WriteUInt32(p.ID) }
func decodePong(b *bitbuf.BitBuffer) pongPayload    { return pongPayload{ID: b.ReadUInt32()} }

// expandMTUPayload carries the candidate size being probed, so the
// receiver can pad its ExpandMTUSuccess reply (and so a reply arriving
// for a stale candidate, after the prober has moved on, can be ignored).
type expandMTUPayload struct{ Size uint32 }

func encodeExpandMTU(b *bitbuf.BitBuffer, p expandMTUPayload) { b.WriteUInt32(p.Size) }
func decodeExpandMTU(b *bitbuf.BitBuffer) expandMTUPayload {
	return expandMTUPayload{Size: b.ReadUInt32()}
}

// handshakeRetry schedules Connect/ConnectResponse retransmission on a
// doubling backoff up to a configured attempt limit.
type handshakeRetry struct {
	baseDelay   time.Duration
	maxAttempts int
	attempts    int
	nextAt      time.Time
}

func newHandshakeRetry(base time.Duration, maxAttempts int, now time.Time) *handshakeRetry {
	return &handshakeRetry{baseDelay: base, maxAttempts: maxAttempts, nextAt: now.Add(base)}
}

// Due reports whether it's time to resend, and if so advances the
// schedule (doubling delay) and returns true. Once maxAttempts is
// exceeded it always returns false.
func (r *handshakeRetry) Due(now time.Time) bool {
	if r.attempts >= r.maxAttempts {
		return false
	}
	if now.Before(r.nextAt) {
		return false
	}
	r.attempts++
	delay := r.baseDelay << uint(r.attempts)
	r.nextAt = now.Add(delay)
	return true
}

// Exhausted reports whether the retry budget has been used up.
func (r *handshakeRetry) Exhausted() bool { return r.attempts >= r.maxAttempts }
