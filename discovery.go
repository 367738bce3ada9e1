package lidnet

import (
	"net"
	"time"

	"github.com/relaynet/lidnet/bitbuf"
)

// discoveryRequestPayload is an empty ping. It carries no AppIdentifier,
// and a discoverable Peer answers every DiscoveryRequest whatever
// application sent it.
type discoveryRequestPayload struct{}

func encodeDiscoveryRequest(*bitbuf.BitBuffer, discoveryRequestPayload) {}
func decodeDiscoveryRequest(*bitbuf.BitBuffer) discoveryRequestPayload  { return discoveryRequestPayload{} }

// discoveryResponsePayload announces this peer's identity and a short
// application-defined data blob (e.g. a server name/player count).
type discoveryResponsePayload struct {
	PeerUID uint64
	Data    []byte
}

func encodeDiscoveryResponse(b *bitbuf.BitBuffer, p discoveryResponsePayload) {
	b.WriteUInt64(p.PeerUID)
	b.WriteByteString(p.Data)
}

func decodeDiscoveryResponse(b *bitbuf.BitBuffer) discoveryResponsePayload {
	return discoveryResponsePayload{PeerUID: b.ReadUInt64(), Data: b.ReadByteString()}
}

// natPunchRequestPayload is sent by a client, over its existing
// connection to a rendezvous facilitator, asking to be introduced to
// another of the facilitator's connected peers.
type natPunchRequestPayload struct {
	TargetUID uint64
}

func encodeNatPunchRequest(b *bitbuf.BitBuffer, p natPunchRequestPayload) { b.WriteUInt64(p.TargetUID) }
func decodeNatPunchRequest(b *bitbuf.BitBuffer) natPunchRequestPayload {
	return natPunchRequestPayload{TargetUID: b.ReadUInt64()}
}

// natIntroductionPayload is what a facilitator sends to each of the two
// peers it is introducing: the other party's external address and
// unique id.
type natIntroductionPayload struct {
	PeerAddr string
	PeerUID  uint64
}

func encodeNatIntroduction(b *bitbuf.BitBuffer, p natIntroductionPayload) {
	b.WriteString(p.PeerAddr)
	b.WriteUInt64(p.PeerUID)
}

func decodeNatIntroduction(b *bitbuf.BitBuffer) natIntroductionPayload {
	return natIntroductionPayload{PeerAddr: b.ReadString(), PeerUID: b.ReadUInt64()}
}

// natConfirmPayload carries a nonce for the lightweight "are you
// reachable yet" probe exchanged directly between two introduced peers
// while their simultaneous Connect attempts are still in flight.
type natConfirmPayload struct {
	Nonce uint32
}

func encodeNatConfirm(b *bitbuf.BitBuffer, p natConfirmPayload) { b.WriteUInt32(p.Nonce) }
func decodeNatConfirm(b *bitbuf.BitBuffer) natConfirmPayload {
	return natConfirmPayload{Nonce: b.ReadUInt32()}
}

// natPunchPayload is the body of the raw, connectionless punch datagram:
// empty would be enough, since merely receiving any UDP datagram from the
// expected address is what opens/refreshes the NAT mapping. It carries
// the sender's UID; the receiving Peer does not read it.
type natPunchPayload struct {
	FromUID uint64
}

func encodeNatPunch(b *bitbuf.BitBuffer, p natPunchPayload) { b.WriteUInt64(p.FromUID) }
func decodeNatPunch(b *bitbuf.BitBuffer) natPunchPayload {
	return natPunchPayload{FromUID: b.ReadUInt64()}
}

// natPunchBurst is how many raw punch datagrams are fired at an
// introduced peer's address before attempting the real Connect; cheap
// insurance against the first one or two being dropped while the NAT
// mapping is still being created.
const natPunchBurst = 3

// SendDiscoveryRequest pings target (a concrete address) or, if target
// is empty, the configured broadcast address. Every discoverable Peer
// that receives it replies, whatever its AppIdentifier. SO_BROADCAST is
// enabled only for the duration of a broadcast send.
func (p *Peer) SendDiscoveryRequest(target string) error {
	var addr net.Addr
	var err error
	if target == "" {
		if p.config.BroadcastAddress == "" {
			return ErrInvalidChannel
		}
		_ = p.sock.SetBroadcast(true)
		defer func() { _ = p.sock.SetBroadcast(false) }()
		addr, err = net.ResolveUDPAddr("udp", p.config.BroadcastAddress)
	} else {
		addr, err = net.ResolveUDPAddr("udp", target)
	}
	if err != nil {
		return err
	}

	payload := bitbuf.New(1)
	encodeDiscoveryRequest(payload, discoveryRequestPayload{})
	buf := make([]byte, HeaderSize+payload.LengthBytes())
	encodeHeader(buf, TypeDiscoveryRequest, false, 0, uint16(payload.LengthBits()))
	copy(buf[HeaderSize:], payload.Bytes())
	return p.writeDatagram(buf, addr)
}

// SetDiscoverable toggles whether this Peer answers DiscoveryRequests
// with discoveryData. Passing nil data stops responding.
func (p *Peer) SetDiscoverable(data []byte) {
	p.mu.Lock()
	p.discoverableData = data
	p.discoverable = data != nil
	p.mu.Unlock()
}

func (p *Peer) handleDiscoveryDatagram(now time.Time, addr net.Addr, typ MessageType, payload []byte) {
	b := bitbuf.FromBytes(payload)

	switch typ {
	case TypeDiscoveryRequest:
		p.mu.RLock()
		discoverable, data := p.discoverable, p.discoverableData
		p.mu.RUnlock()
		if !discoverable {
			return
		}
		resp := bitbuf.New(8 + len(data))
		encodeDiscoveryResponse(resp, discoveryResponsePayload{PeerUID: p.uniqueID, Data: data})
		buf := make([]byte, HeaderSize+resp.LengthBytes())
		encodeHeader(buf, TypeDiscoveryResponse, false, 0, uint16(resp.LengthBits()))
		copy(buf[HeaderSize:], resp.Bytes())
		_ = p.writeDatagram(buf, addr)

	case TypeDiscoveryResponse:
		if !p.config.EnabledMessageTypes.enabled(TypeDiscoveryResponseEvent) {
			return
		}
		resp := decodeDiscoveryResponse(b)
		m := p.pool.NewIncoming()
		m.EventType = TypeDiscoveryResponseEvent
		m.From = addr
		m.ReceiveTime = now
		m.Data = bitbuf.FromBytes(resp.Data)
		p.enqueueReleased(m)

	case TypeNatIntroductionConfirmRequest:
		req := decodeNatConfirm(b)
		reply := bitbuf.New(4)
		encodeNatConfirm(reply, req)
		buf := make([]byte, HeaderSize+reply.LengthBytes())
		encodeHeader(buf, TypeNatIntroductionConfirmAck, false, 0, uint16(reply.LengthBits()))
		copy(buf[HeaderSize:], reply.Bytes())
		_ = p.writeDatagram(buf, addr)

	case TypeNatIntroductionConfirmAck:
		// Confirms the hole is open from the other side; nothing further
		// to do; the in-flight Connect attempt will complete
		// normally once both directions are punched.

	case TypeNatPunchMessage:
		// Datagram exists purely to open/refresh a NAT mapping; the
		// payload carries no actionable state for the receiver.
	}
}

// facilitateIntroduction looks up a currently connected peer by unique
// id and, if found, sends each side a NatIntroduction naming the other's
// external address.
func (p *Peer) facilitateIntroduction(requester *Connection, targetUID uint64) {
	p.mu.RLock()
	var target *Connection
	for _, c := range p.connections {
		if c != requester && c.RemoteUniqueID() == targetUID {
			target = c
			break
		}
	}
	p.mu.RUnlock()
	if target == nil {
		return
	}

	toRequester := bitbuf.New(24)
	encodeNatIntroduction(toRequester, natIntroductionPayload{PeerAddr: target.RemoteAddr().String(), PeerUID: targetUID})
	requester.sendLibrary(TypeNatIntroduction, toRequester)

	toTarget := bitbuf.New(24)
	encodeNatIntroduction(toTarget, natIntroductionPayload{PeerAddr: requester.RemoteAddr().String(), PeerUID: requester.RemoteUniqueID()})
	target.sendLibrary(TypeNatIntroduction, toTarget)
}

// beginHolePunch fires a burst of raw punch datagrams at peerAddr and
// then attempts a normal Connect; the simultaneous attempt from the
// other introduced peer is what actually gets through most NATs.
func (p *Peer) beginHolePunch(peerAddr string, peerUID uint64) {
	addr, err := net.ResolveUDPAddr("udp", peerAddr)
	if err != nil {
		return
	}

	payload := bitbuf.New(8)
	encodeNatPunch(payload, natPunchPayload{FromUID: p.uniqueID})
	buf := make([]byte, HeaderSize+payload.LengthBytes())
	encodeHeader(buf, TypeNatPunchMessage, false, 0, uint16(payload.LengthBits()))
	copy(buf[HeaderSize:], payload.Bytes())

	for i := 0; i < natPunchBurst; i++ {
		_ = p.writeDatagram(buf, addr)
	}

	if p.config.EnabledMessageTypes.enabled(TypeNatIntroductionSuccess) {
		m := p.pool.NewIncoming()
		m.EventType = TypeNatIntroductionSuccess
		m.From = addr
		m.ReceiveTime = time.Now()
		p.enqueueReleased(m)
	}

	p.mu.RLock()
	_, already := p.connections[addr.String()]
	running := p.running
	p.mu.RUnlock()
	if already || !running {
		return
	}
	_, _ = p.Connect(peerAddr)
}
