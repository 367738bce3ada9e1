package lidnet

import (
	"net"
	"sync"
	"time"

	"github.com/relaynet/lidnet/bitbuf"
)

// OutgoingMessage is an application payload on its way out. Its refCount
// tracks how many retransmission slots and pending sends currently
// reference it; it is returned to the pool only when that count reaches
// zero.
//
// refCount is only ever touched by the network worker goroutine, per the
// single-writer discipline — no atomics needed.
type OutgoingMessage struct {
	Type     MessageType
	Data     *bitbuf.BitBuffer
	Fragment bool

	refCount int
	sent     bool
}

func (m *OutgoingMessage) addRef() { m.refCount++ }

// release decrements the refcount and reports whether it reached zero
// (the caller, normally a MessagePool, recycles the message in that
// case). It panics if called more times than addRef, which would
// indicate the "returned to pool exactly once" invariant was violated.
func (m *OutgoingMessage) release() bool {
	if m.refCount <= 0 {
		panic("lidnet: OutgoingMessage.release: refcount already zero")
	}
	m.refCount--
	return m.refCount == 0
}

// IncomingMessage is a received application payload, or a released
// library event.
type IncomingMessage struct {
	Type        MessageType
	Data        *bitbuf.BitBuffer
	Seq         Seq
	Channel     ChannelID
	Connection  *Connection // nil for unconnected messages
	From        net.Addr
	ReceiveTime time.Time
	Fragment    bool

	// EventType is set for non-data releases (StatusChanged, Discovery,
	// ...); zero for ordinary data messages.
	EventType IncomingMessageType
	Reason    DisconnectReason
}

// MessagePool recycles OutgoingMessage and IncomingMessage values so the
// worker's hot path doesn't allocate per datagram.
type MessagePool struct {
	out sync.Pool
	in  sync.Pool

	defaultCap int
}

// NewMessagePool returns a pool whose fresh BitBuffers are pre-sized to
// defaultCapBytes.
func NewMessagePool(defaultCapBytes int) *MessagePool {
	p := &MessagePool{defaultCap: defaultCapBytes}
	p.out.New = func() interface{} { return &OutgoingMessage{Data: bitbuf.New(p.defaultCap)} }
	p.in.New = func() interface{} { return &IncomingMessage{} }
	return p
}

// NewOutgoing returns a fresh or recycled OutgoingMessage with refCount
// 1, ready for a caller to write into Data.
func (p *MessagePool) NewOutgoing(typ MessageType) *OutgoingMessage {
	m := p.out.Get().(*OutgoingMessage)
	m.Type = typ
	m.Fragment = false
	m.sent = false
	m.refCount = 1
	if m.Data == nil {
		m.Data = bitbuf.New(p.defaultCap)
	} else {
		m.Data.Reset()
	}
	return m
}

// Release drops one reference to m, returning it to the pool once the
// count reaches zero.
func (p *MessagePool) Release(m *OutgoingMessage) {
	if m.release() {
		p.out.Put(m)
	}
}

// NewIncoming returns a fresh or recycled IncomingMessage.
func (p *MessagePool) NewIncoming() *IncomingMessage {
	m := p.in.Get().(*IncomingMessage)
	*m = IncomingMessage{}
	return m
}

// Recycle returns an IncomingMessage to the pool once the application has
// finished reading it.
func (p *MessagePool) Recycle(m *IncomingMessage) {
	m.Data = nil
	m.Connection = nil
	m.From = nil
	p.in.Put(m)
}
