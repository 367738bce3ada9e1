package lidnet

import (
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/relaynet/lidnet/bitbuf"
)

// fragmentChannel returns the channel oversize payloads actually ride
// on: every fragment group is transported reliably and in order
// regardless of the requested delivery method (an unreliable fragment
// would almost certainly never fully arrive), reusing the requested
// channel's own sub-index so unrelated fragment streams don't serialize
// behind one another.
func fragmentChannel(requested ChannelID) ChannelID {
	return ChannelID{Method: ReliableOrdered, Sub: requested.Sub}
}

// ackEntry is one pending (channel, sequence) pair waiting to be packed
// into an Acknowledge datagram.
type ackEntry struct {
	Channel ChannelID
	Seq     Seq
}

// Stats is a snapshot of a Connection's health, safe to read from any
// goroutine (Connection.Stats takes a lock to produce it).
type Stats struct {
	Status      ConnectionStatus
	AverageRTT  time.Duration
	CurrentMTU  int
	LastReceived time.Time
}

// Connection is one peer's view of a remote endpoint: handshake state,
// the per-channel sender/receiver arrays, ack scheduling, ping/RTT,
// fragmentation, and MTU probing.
//
// Every field below the mu-guarded status block is touched only by the
// Peer's worker goroutine; mu exists solely so
// Status/Stats/RemoteAddr can be read from application goroutines
// without racing the worker.
type Connection struct {
	peer       *Peer
	remoteAddr net.Addr
	initiator  bool

	mu         sync.Mutex
	status     ConnectionStatus
	avgRTT     time.Duration
	disconnect DisconnectReason

	// Handshake.
	nonce        uint32
	retry        *handshakeRetry
	remotePeerID uint64
	pendingApprove *IncomingMessage

	// Heartbeat/keepalive.
	lastPingID     uint32
	lastPingSentAt time.Time
	lastReceived   time.Time
	timeoutDeadline time.Time

	// Channels: senders[method][sub], receivers[method][sub].
	senders   [numDeliveryMethods][]senderChannel
	receivers [numDeliveryMethods][]receiverChannel

	fragOut fragmenter
	fragIn  *fragmentAssembler

	pendingAcks []ackEntry

	mtuProber *mtuProber

	pingSeq   uint32
	pingsSent map[uint32]time.Time

	closed    chan struct{}
	closeOnce sync.Once
}

func newConnection(p *Peer, addr net.Addr, initiator bool, now time.Time) *Connection {
	c := &Connection{
		peer:         p,
		remoteAddr:   addr,
		initiator:    initiator,
		lastReceived: now,
		closed:       make(chan struct{}),
	}
	c.timeoutDeadline = now.Add(p.config.ConnectionTimeout)
	c.pingsSent = make(map[uint32]time.Time)
	c.fragIn = newFragmentAssembler(maxFragmentGroups)
	c.mtuProber = newMTUProber(p.config.AutoExpandMTU, p.config.MaximumTransmissionUnit, p.config.ExpandMTUFrequency, p.config.ExpandMTUFailAttempts)

	for method := DeliveryMethod(0); int(method) < numDeliveryMethods; method++ {
		n := method.NumSubchannels()
		c.senders[method] = make([]senderChannel, n)
		c.receivers[method] = make([]receiverChannel, n)
		for sub := 0; sub < n; sub++ {
			c.senders[method][sub] = c.newSender(method)
			c.receivers[method][sub] = c.newReceiver(method)
		}
	}

	if initiator {
		c.status = StatusInitiatedConnect
		c.nonce = rand.Uint32()
		c.retry = newHandshakeRetry(p.config.ResendHandshakeInterval, p.config.MaximumHandshakeAttempts, now)
	} else {
		// The caller (Peer, on receiving Connect) fills in c.nonce from
		// the initiator's payload and calls Accept/Reject once the
		// application has decided, or immediately if connection
		// approval events are disabled.
		c.status = StatusRespondedAwaitingApproval
	}

	return c
}

// Accept moves a responder-side connection from awaiting approval to
// RespondedConnect and sends the first ConnectResponse.
func (c *Connection) Accept(now time.Time) {
	c.mu.Lock()
	if c.status != StatusRespondedAwaitingApproval {
		c.mu.Unlock()
		return
	}
	c.status = StatusRespondedConnect
	c.mu.Unlock()

	c.retry = newHandshakeRetry(c.peer.config.ResendHandshakeInterval, c.peer.config.MaximumHandshakeAttempts, now)
	p := bitbuf.New(16)
	encodeConnectResponse(p, connectResponsePayload{Nonce: c.nonce, PeerUID: c.peer.uniqueID})
	c.sendLibrary(TypeConnectResponse, p)
}

// Reject denies a responder-side connection still awaiting approval.
func (c *Connection) Reject(reason DisconnectReason) {
	c.sendDisconnect(reason)
	c.markClosed(reason)
}

func (c *Connection) newSender(method DeliveryMethod) senderChannel {
	release := func(m *OutgoingMessage) { c.peer.pool.Release(m) }
	if method.Reliable() {
		return newReliableSender(DefaultWindowSize, c.resendDelay, release, c.onGoodRTTSample)
	}
	return newUnreliableSender(method.Sequenced(), release)
}

func (c *Connection) newReceiver(method DeliveryMethod) receiverChannel {
	switch method {
	case Unreliable:
		return passthroughReceiver{}
	case UnreliableSequenced:
		return newSequencedReceiver(false)
	case ReliableUnordered:
		return newUnorderedReceiver()
	case ReliableSequenced:
		return newSequencedReceiver(true)
	case ReliableOrdered:
		return newOrderedReceiver(DefaultWindowSize)
	default:
		panic("lidnet: unknown delivery method")
	}
}

// resendDelay computes the reliable retransmit interval: max(0.04, 2*rtt+0.01).
func (c *Connection) resendDelay() time.Duration {
	c.mu.Lock()
	rtt := c.avgRTT
	c.mu.Unlock()

	d := 2*rtt + 10*time.Millisecond
	floor := 40 * time.Millisecond
	if d < floor {
		return floor
	}
	return d
}

// onGoodRTTSample is invoked by a reliableSender when it destores a
// message that was only ever sent once and acked within 2s — a reliable
// signal the connection is alive.
func (c *Connection) onGoodRTTSample() {
	c.mu.Lock()
	c.timeoutDeadline = time.Now().Add(c.peer.config.ConnectionTimeout)
	c.mu.Unlock()
}

// Status reports the connection's current state.
func (c *Connection) Status() ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Connection) setStatus(s ConnectionStatus) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

// RemoteAddr returns the connection's remote endpoint.
func (c *Connection) RemoteAddr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteAddr
}

// rebind re-keys the connection to a new source address after a NAT port
// rebind is detected during the handshake. Only ever called
// by the worker goroutine, before the matching datagram is dispatched.
func (c *Connection) rebind(addr net.Addr) {
	c.mu.Lock()
	c.remoteAddr = addr
	c.mu.Unlock()
}

// RemoteUniqueID returns the remote peer's unique id, valid once the
// handshake has exchanged it (status >= StatusRespondedConnect).
func (c *Connection) RemoteUniqueID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remotePeerID
}

// Stats returns a snapshot safe for concurrent reads.
func (c *Connection) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Status:       c.status,
		AverageRTT:   c.avgRTT,
		CurrentMTU:   c.mtuProber.Current(),
		LastReceived: c.lastReceived,
	}
}

// Closed reports a channel closed once the connection reaches
// StatusDisconnected.
func (c *Connection) Closed() <-chan struct{} { return c.closed }

func (c *Connection) markClosed(reason DisconnectReason) {
	c.mu.Lock()
	c.status = StatusDisconnected
	c.disconnect = reason
	c.mu.Unlock()

	c.closeOnce.Do(func() { close(c.closed) })

	for method := range c.senders {
		for _, s := range c.senders[method] {
			s.Reset()
		}
	}
	c.fragIn.reset()
}

// touch records that a valid datagram was just received from the peer,
// resetting the liveness timeout.
func (c *Connection) touch(now time.Time) {
	c.mu.Lock()
	c.lastReceived = now
	c.timeoutDeadline = now.Add(c.peer.config.ConnectionTimeout)
	c.mu.Unlock()
}

// channelFor validates and returns the sender channel for ch.
func (c *Connection) channelFor(ch ChannelID) (senderChannel, error) {
	if !ch.valid() {
		return nil, ErrInvalidChannel
	}
	return c.senders[ch.Method][ch.Sub], nil
}

// Send enqueues an application payload for delivery on ch, fragmenting
// it first if it would not fit in one datagram at the connection's
// current MTU.
func (c *Connection) Send(ch ChannelID, data []byte) error {
	sender, err := c.channelFor(ch)
	if err != nil {
		return err
	}

	budget := c.mtuProber.Current() - HeaderSize
	if len(data) <= budget {
		m := c.peer.pool.NewOutgoing(UserMessageType(ch))
		m.Data.WriteBytes(data)
		sender.Enqueue(m)
		return nil
	}

	return c.sendFragmented(ch, data)
}

func (c *Connection) sendFragmented(ch ChannelID, data []byte) error {
	fragCh := fragmentChannel(ch)
	fragSender, err := c.channelFor(fragCh)
	if err != nil {
		return err
	}

	chunkSize := c.mtuProber.Current() - HeaderSize - FragmentHeaderSize
	if chunkSize < 1 {
		chunkSize = 1
	}

	groupID, chunks := c.fragOut.split(data, chunkSize)
	if len(chunks) > maxFragmentsPerGroup {
		return ErrTooManyFragments
	}

	totalBits := uint32(len(data)) * 8

	for i, chunk := range chunks {
		m := c.peer.pool.NewOutgoing(UserMessageType(fragCh))
		m.Fragment = true
		encodeFragmentHeader(m.Data, groupID, totalBits, uint32(chunkSize), uint32(i))
		m.Data.WriteBytes(chunk)
		fragSender.Enqueue(m)
	}
	return nil
}

// Disconnect moves the connection toward StatusDisconnected, flushing a
// Disconnect datagram first.
func (c *Connection) Disconnect(reason DisconnectReason) {
	c.mu.Lock()
	if c.status == StatusDisconnecting || c.status == StatusDisconnected {
		c.mu.Unlock()
		return
	}
	c.status = StatusDisconnecting
	c.disconnect = reason
	c.mu.Unlock()

	c.sendDisconnect(reason)
}

// RequestIntroduction asks this connection's remote peer — acting as a
// rendezvous facilitator — to introduce it to another of its connected
// peers identified by unique id, for NAT hole-punching.
func (c *Connection) RequestIntroduction(targetUID uint64) {
	payload := bitbuf.New(8)
	encodeNatPunchRequest(payload, natPunchRequestPayload{TargetUID: targetUID})
	c.sendLibrary(TypeNatPunchMessageRequest, payload)
}

func (c *Connection) sendDisconnect(reason DisconnectReason) {
	payload := bitbuf.New(8)
	encodeDisconnect(payload, disconnectPayload{Reason: string(reason)})
	c.sendLibrary(TypeDisconnect, payload)
}

func (c *Connection) sendLibrary(typ MessageType, payload *bitbuf.BitBuffer) {
	buf := make([]byte, HeaderSize+payload.LengthBytes())
	encodeHeader(buf, typ, false, 0, uint16(payload.LengthBits()))
	copy(buf[HeaderSize:], payload.Bytes())
	if err := c.peer.writeDatagram(buf, c.remoteAddr); err != nil {
		c.peer.logWarn("send %s to %s failed: %v", typ, c.remoteAddr, err)
	}
}

const (
	maxFragmentGroups    = 64
	maxFragmentsPerGroup = 65535
)

// rttSmoothing is the exponential moving average weight applied to each
// new RTT sample: avg_rtt = avg_rtt*(1-rttSmoothing) + rtt*rttSmoothing.
const rttSmoothing = 0.3

// Heartbeat drives one pass of everything time-based for this connection:
// handshake retransmission, ping scheduling, the liveness timeout, MTU
// probing, flushing every channel's send queue, and batching pending acks
// into Acknowledge datagrams. It reports true once the
// connection has reached StatusDisconnected and the Peer's worker should
// drop it from its table.
func (c *Connection) Heartbeat(now time.Time) (done bool) {
	status := c.Status()

	switch status {
	case StatusInitiatedConnect:
		c.driveInitiatorHandshake(now)
		return false
	case StatusRespondedAwaitingApproval:
		return false // waiting on the application to Accept/Reject
	case StatusRespondedConnect:
		c.driveResponderHandshake(now)
		return false
	case StatusDisconnected:
		return true
	}

	if status == StatusConnected && now.After(c.timeoutDeadline) {
		c.markClosed(ReasonTimedOut)
		return true
	}

	c.maybePing(now)
	c.maybeProbeMTU(now)
	c.flushChannels(now)
	c.flushAcks(now)

	if status == StatusDisconnecting {
		c.markClosed(c.disconnect)
		return true
	}

	return false
}

func (c *Connection) driveInitiatorHandshake(now time.Time) {
	if c.retry.Exhausted() {
		c.peer.logHandshakeFailure(ReasonHandshakeRetries, fmt.Errorf("no ConnectResponse from %s after %d attempts", c.remoteAddr, c.retry.attempts))
		c.markClosed(ReasonHandshakeRetries)
		return
	}
	if !c.retry.Due(now) {
		return
	}
	payload := bitbuf.New(16)
	encodeConnect(payload, connectPayload{Nonce: c.nonce, AppIdentifier: c.peer.config.AppIdentifier, PeerUID: c.peer.uniqueID})
	c.sendLibrary(TypeConnect, payload)
}

func (c *Connection) driveResponderHandshake(now time.Time) {
	if c.retry.Exhausted() {
		c.peer.logHandshakeFailure(ReasonHandshakeRetries, fmt.Errorf("no ConnectEstablished from %s after %d attempts", c.remoteAddr, c.retry.attempts))
		c.markClosed(ReasonHandshakeRetries)
		return
	}
	if !c.retry.Due(now) {
		return
	}
	payload := bitbuf.New(16)
	encodeConnectResponse(payload, connectResponsePayload{Nonce: c.nonce, PeerUID: c.peer.uniqueID})
	c.sendLibrary(TypeConnectResponse, payload)
}

func (c *Connection) maybePing(now time.Time) {
	if c.lastPingSentAt.IsZero() || now.Sub(c.lastPingSentAt) >= c.peer.config.PingInterval {
		c.lastPingSentAt = now
		id := c.pingSeq
		c.pingSeq++
		c.pingsSent[id] = now
		if len(c.pingsSent) > 32 {
			// Bound the map against a peer that never replies; drop an
			// arbitrary entry (Go map iteration order) rather than
			// tracking insertion order.
			for k := range c.pingsSent {
				delete(c.pingsSent, k)
				break
			}
		}
		payload := bitbuf.New(4)
		encodePing(payload, pingPayload{ID: id})
		c.sendLibrary(TypePing, payload)
	}
}

func (c *Connection) maybeProbeMTU(now time.Time) {
	size := c.mtuProber.NextProbe(now)
	if size == 0 {
		return
	}
	payload := bitbuf.New(4)
	encodeExpandMTU(payload, expandMTUPayload{Size: uint32(size)})
	buf := make([]byte, HeaderSize+payload.LengthBytes())
	encodeHeader(buf, TypeExpandMTURequest, false, 0, uint16(payload.LengthBits()))
	copy(buf[HeaderSize:], payload.Bytes())
	if len(buf) < size {
		buf = append(buf, make([]byte, size-len(buf))...)
	}
	if err := c.peer.writeDatagram(buf, c.remoteAddr); err != nil {
		c.mtuProber.OnFailure(size)
	}
}

func (c *Connection) flushChannels(now time.Time) {
	for method := DeliveryMethod(0); int(method) < numDeliveryMethods; method++ {
		for sub, sender := range c.senders[method] {
			ch := ChannelID{Method: method, Sub: uint8(sub)}
			for _, ps := range sender.SendQueued(now) {
				c.transmit(ch, ps)
			}
		}
	}
}

func (c *Connection) transmit(ch ChannelID, ps PendingSend) {
	typ := UserMessageType(ch)
	buf := make([]byte, HeaderSize+ps.Message.Data.LengthBytes())
	encodeHeader(buf, typ, ps.Fragment, ps.Seq, uint16(ps.Message.Data.LengthBits()))
	copy(buf[HeaderSize:], ps.Message.Data.Bytes())
	if err := c.peer.writeDatagram(buf, c.remoteAddr); err != nil {
		c.peer.logWarn("send data to %s failed: %v", c.remoteAddr, err)
	}
}

// queueAck schedules (ch, seq) to be included in the next Acknowledge
// batch.
func (c *Connection) queueAck(ch ChannelID, seq Seq) {
	c.pendingAcks = append(c.pendingAcks, ackEntry{Channel: ch, Seq: seq})
}

// flushAcks packs every pending ack into as few Acknowledge datagrams as
// fit within the current MTU.
func (c *Connection) flushAcks(now time.Time) {
	if len(c.pendingAcks) == 0 {
		return
	}
	budget := c.mtuProber.Current() - HeaderSize
	perDatagram := budget / AckEntrySize
	if perDatagram < 1 {
		perDatagram = 1
	}

	pending := c.pendingAcks
	c.pendingAcks = nil

	for len(pending) > 0 {
		n := len(pending)
		if n > perDatagram {
			n = perDatagram
		}
		batch := pending[:n]
		pending = pending[n:]

		payload := bitbuf.New(n * AckEntrySize)
		raw := make([]byte, AckEntrySize)
		for _, e := range batch {
			encodeAckEntry(raw, e.Channel, e.Seq)
			payload.WriteBytes(raw)
		}
		c.sendLibrary(TypeAcknowledge, payload)
	}
}

// HandleDatagram decodes and dispatches every message concatenated into
// one datagram already routed to this connection by the Peer. It reports
// whether the connection should be dropped from the Peer's table
// immediately (a Disconnect was received or processing this datagram
// closed it).
func (c *Connection) HandleDatagram(now time.Time, buf []byte) bool {
	if len(buf) < HeaderSize {
		c.peer.logProtocolError("header", fmt.Errorf("datagram from %s shorter than the %d-byte header (%d bytes)", c.remoteAddr, HeaderSize, len(buf)))
		return false
	}
	c.touch(now)

	drop := false
	walkMessages(buf, func(typ MessageType, fragment bool, seq Seq, payload []byte) {
		if drop {
			return
		}
		if c.handleMessage(now, typ, fragment, seq, bitbuf.FromBytes(payload)) {
			drop = true
		}
	}, func(typ MessageType, wanted, available int) {
		c.peer.logProtocolError("truncated", fmt.Errorf("%s from %s declares %d payload bytes but only %d remain, dropping tail", typ, c.remoteAddr, wanted, available))
	})
	return drop
}

// handleMessage dispatches one already-framed message: either a library
// control message or a user payload handed to its channel's receiver.
func (c *Connection) handleMessage(now time.Time, typ MessageType, fragment bool, seq Seq, payload *bitbuf.BitBuffer) bool {
	if typ.IsLibrary() {
		return c.handleLibrary(now, typ, payload)
	}

	ch := typ.Channel()
	if !ch.valid() {
		c.peer.logProtocolError("channel", fmt.Errorf("%s from %s names an invalid channel", typ, c.remoteAddr))
		return false
	}

	im := c.peer.pool.NewIncoming()
	im.Type = typ
	im.Seq = seq
	im.Channel = ch
	im.Connection = c
	im.From = c.remoteAddr
	im.ReceiveTime = now
	im.Fragment = fragment
	im.Data = payload

	recv := c.receivers[ch.Method][ch.Sub]
	delivered, ack := recv.Receive(im)
	if ack {
		c.queueAck(ch, seq)
	}
	for _, d := range delivered {
		c.deliverOrReassemble(d)
	}
	return false
}

func (c *Connection) deliverOrReassemble(im *IncomingMessage) {
	if !im.Fragment {
		c.peer.enqueueReleased(im)
		return
	}

	groupID, totalBits, chunkSize, chunkNumber := decodeFragmentHeader(im.Data)
	chunk := im.Data.ReadBytes(im.Data.BitsAvailable() / 8)

	numChunks := 0
	if chunkSize > 0 {
		totalBytes := uint32((totalBits + 7) / 8)
		numChunks = int((totalBytes + chunkSize - 1) / chunkSize)
	}

	full, done := c.fragIn.addChunk(im.ReceiveTime, groupID, totalBits, numChunks, int(chunkNumber), chunk)
	channel := im.Channel
	receiveTime := im.ReceiveTime
	c.peer.pool.Recycle(im)
	if !done {
		return
	}

	reassembled := c.peer.pool.NewIncoming()
	reassembled.Type = UserMessageType(channel)
	reassembled.Channel = channel
	reassembled.Connection = c
	reassembled.From = c.remoteAddr
	reassembled.ReceiveTime = receiveTime
	reassembled.Data = bitbuf.FromBytes(full)
	c.peer.enqueueReleased(reassembled)
}

// handleLibrary processes a control-plane message. Returns true if the
// connection should be removed from the Peer's table as a result.
func (c *Connection) handleLibrary(now time.Time, typ MessageType, payload *bitbuf.BitBuffer) bool {
	switch typ {
	case TypeConnect:
		// A retransmitted Connect for a connection we already accepted;
		// resend whatever handshake message we're currently waiting to
		// have acknowledged so a dropped reply doesn't stall the peer.
		if c.Status() == StatusRespondedConnect {
			p := bitbuf.New(16)
			encodeConnectResponse(p, connectResponsePayload{Nonce: c.nonce, PeerUID: c.peer.uniqueID})
			c.sendLibrary(TypeConnectResponse, p)
		}
		return false

	case TypeConnectResponse:
		if c.Status() != StatusInitiatedConnect {
			return false
		}
		resp := decodeConnectResponse(payload)
		if resp.Nonce != c.nonce {
			return false
		}
		c.mu.Lock()
		c.remotePeerID = resp.PeerUID
		c.status = StatusConnected
		c.mu.Unlock()
		c.peer.forgetNonce(c.nonce)

		p := bitbuf.New(4)
		encodeConnectEstablished(p, connectEstablishedPayload{Nonce: c.nonce})
		c.sendLibrary(TypeConnectEstablished, p)
		c.peer.notifyStatusChanged(c)
		return false

	case TypeConnectEstablished:
		if c.Status() != StatusRespondedConnect {
			return false
		}
		est := decodeConnectEstablished(payload)
		if est.Nonce != c.nonce {
			return false
		}
		c.setStatus(StatusConnected)
		c.peer.notifyStatusChanged(c)
		return false

	case TypeDisconnect:
		d := decodeDisconnect(payload)
		reason := DisconnectReason(d.Reason)
		if reason == "" {
			reason = ReasonRemoteDisconnected
		}
		c.markClosed(reason)
		c.peer.notifyStatusChanged(c)
		return true

	case TypePing:
		p := decodePing(payload)
		reply := bitbuf.New(4)
		encodePong(reply, pongPayload{ID: p.ID})
		c.sendLibrary(TypePong, reply)
		return false

	case TypePong:
		p := decodePong(payload)
		if sentAt, ok := c.pingsSent[p.ID]; ok {
			delete(c.pingsSent, p.ID)
			sample := now.Sub(sentAt)
			c.mu.Lock()
			if c.avgRTT == 0 {
				c.avgRTT = sample
			} else {
				c.avgRTT = time.Duration((1-rttSmoothing)*float64(c.avgRTT) + rttSmoothing*float64(sample))
			}
			c.mu.Unlock()
		}
		return false

	case TypeExpandMTURequest:
		req := decodeExpandMTU(payload)
		reply := bitbuf.New(4)
		encodeExpandMTU(reply, expandMTUPayload{Size: req.Size})
		buf := make([]byte, HeaderSize+reply.LengthBytes())
		encodeHeader(buf, TypeExpandMTUSuccess, false, 0, uint16(reply.LengthBits()))
		copy(buf[HeaderSize:], reply.Bytes())
		if len(buf) < int(req.Size) {
			buf = append(buf, make([]byte, int(req.Size)-len(buf))...)
		}
		if err := c.peer.writeDatagram(buf, c.remoteAddr); err != nil {
			c.peer.logWarn("send ExpandMTUSuccess to %s failed: %v", c.remoteAddr, err)
		}
		return false

	case TypeExpandMTUSuccess:
		resp := decodeExpandMTU(payload)
		c.mtuProber.OnSuccess(int(resp.Size))
		return false

	case TypeNatPunchMessageRequest:
		req := decodeNatPunchRequest(payload)
		c.peer.facilitateIntroduction(c, req.TargetUID)
		return false

	case TypeNatIntroduction:
		intro := decodeNatIntroduction(payload)
		c.peer.beginHolePunch(intro.PeerAddr, intro.PeerUID)
		return false

	case TypeAcknowledge:
		raw := payload.Bytes()
		for i := 0; i+AckEntrySize <= len(raw); i += AckEntrySize {
			ch, seq := decodeAckEntry(raw[i:])
			if ch.valid() {
				c.senders[ch.Method][ch.Sub].ReceiveAck(now, seq)
			}
		}
		return false

	default:
		return false
	}
}
