package lidnet

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/relaynet/lidnet/bitbuf"
)

// heartbeatInterval is how often the worker drives Connection.Heartbeat
// for every connection. It is well below PingInterval and
// ConnectionTimeout so both are enforced with reasonable precision.
const heartbeatInterval = 50 * time.Millisecond

// minHeartbeatRate and baseHeartbeatRate bound the per-second heartbeat
// budget: max(minHeartbeatRate, baseHeartbeatRate - num_connections), so
// the pacing tightens per-connection as the peer accumulates more of them
// instead of staying fixed.
const (
	minHeartbeatRate  = 250
	baseHeartbeatRate = 1250
)

func heartbeatRate(numConnections int) rate.Limit {
	r := baseHeartbeatRate - float64(numConnections)
	return rate.Limit(math.Max(minHeartbeatRate, r))
}

// Peer is a lidnet endpoint: it owns the UDP socket, every Connection to
// a remote endpoint, and the single worker goroutine that is the only
// mutator of connection/channel state.
//
// Application goroutines only ever reach into a Peer/Connection through
// the small set of exported methods below, all of which are either
// lock-protected reads or handoffs onto a queue the worker later drains.
type Peer struct {
	config *Configuration
	pool   *MessagePool

	mu          sync.RWMutex
	running     bool
	uniqueID    uint64
	sock        socket
	connections map[string]*Connection
	nonceIndex  map[uint32]*Connection

	discoverable     bool
	discoverableData []byte

	released chan *IncomingMessage

	limiter *rate.Limiter

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPeer validates cfg and returns a Peer ready to Start.
func NewPeer(cfg *Configuration) (*Peer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Peer{
		config:      cfg,
		pool:        NewMessagePool(cfg.DefaultOutgoingMessageCapacity),
		connections: make(map[string]*Connection),
		nonceIndex:  make(map[uint32]*Connection),
		released:    make(chan *IncomingMessage, 256),
		limiter:     rate.NewLimiter(heartbeatRate(0), 128),
		uniqueID:    rand.Uint64(),
	}, nil
}

// Start binds the socket and launches the worker goroutine. A bind
// failure is returned directly to the caller.
func (p *Peer) Start() error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrPeerAlreadyRun
	}
	sock, err := newUDPSocket(p.config)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	p.sock = sock
	p.running = true
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.mu.Unlock()

	p.config.logger().WithField("addr", sock.LocalAddr()).Info("lidnet: peer started")

	p.wg.Add(1)
	go p.run(ctx)
	return nil
}

// Shutdown disconnects every connection, stops the worker goroutine and
// closes the socket. It blocks until the goroutine has exited.
func (p *Peer) Shutdown(reason DisconnectReason) {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	for _, c := range p.connections {
		c.Disconnect(reason)
	}
	cancel := p.cancel
	sock := p.sock
	p.mu.Unlock()

	cancel()
	if sock != nil {
		sock.Close()
	}
	p.wg.Wait()
}

// run is the single network worker goroutine: it alternates between
// reading a datagram (bounded by a deadline at the next heartbeat time)
// and driving a heartbeat pass, so every mutation of connection/channel
// state happens on one goroutine with no locking required on the hot
// path. A read that times out just falls through to the heartbeat
// check below instead of being treated as an error.
func (p *Peer) run(ctx context.Context) {
	defer p.wg.Done()
	buf := make([]byte, 65536)
	nextHeartbeat := time.Now().Add(heartbeatInterval)
	for {
		if ctx.Err() != nil {
			return
		}

		wait := time.Until(nextHeartbeat)
		if wait < 0 {
			wait = 0
		}
		_ = p.sock.SetReadDeadline(time.Now().Add(wait))

		n, addr, err := p.sock.ReadFrom(buf)
		now := time.Now()
		switch {
		case err == nil && n > 0:
			cp := make([]byte, n)
			copy(cp, buf[:n])
			p.handleDatagram(now, addr, cp)
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			if ne, ok := err.(net.Error); !ok || !ne.Timeout() {
				p.config.logger().WithError(err).Warn("lidnet: read error")
			}
		}

		if !now.Before(nextHeartbeat) {
			p.runHeartbeat(now)
			nextHeartbeat = now.Add(heartbeatInterval)
		}
	}
}

func (p *Peer) runHeartbeat(now time.Time) {
	p.mu.RLock()
	conns := make([]*Connection, 0, len(p.connections))
	for _, c := range p.connections {
		conns = append(conns, c)
	}
	p.mu.RUnlock()

	p.limiter.SetLimit(heartbeatRate(len(conns)))

	for _, c := range conns {
		_ = p.limiter.WaitN(context.Background(), 1)
		if c.Heartbeat(now) {
			p.removeConnection(c)
		}
	}
}

func (p *Peer) removeConnection(c *Connection) {
	p.mu.Lock()
	if existing, ok := p.connections[c.RemoteAddr().String()]; ok && existing == c {
		delete(p.connections, c.RemoteAddr().String())
	}
	p.mu.Unlock()
}

func (p *Peer) forgetNonce(nonce uint32) {
	p.mu.Lock()
	delete(p.nonceIndex, nonce)
	p.mu.Unlock()
}

// writeDatagram sends buf to addr, first dropping it with probability
// SimulatedLoss. SimulatedMinimumLatency, SimulatedRandomLatency and
// SimulatedDuplicatesChance are not applied.
func (p *Peer) writeDatagram(buf []byte, addr net.Addr) error {
	if p.config.SimulatedLoss > 0 && rand.Float64() < p.config.SimulatedLoss {
		return nil
	}
	_, err := p.sock.WriteTo(buf, addr)
	return err
}

func (p *Peer) logWarn(format string, args ...interface{}) {
	p.config.logger().Warnf(format, args...)
}

// logProtocolError logs a malformed/unexpected datagram via ProtocolError
// before it is dropped, so drops are visible instead of silent.
func (p *Peer) logProtocolError(kind string, cause error) {
	p.config.logger().WithError(&ProtocolError{Kind: kind, Err: cause}).Warn("lidnet: dropping malformed datagram")
}

// logHandshakeFailure logs a handshake-path failure via handshakeError,
// which attaches a stack trace through pkg/errors for the cold,
// rarely-hit failure paths (exhausted retries, identifier mismatch,
// server full).
func (p *Peer) logHandshakeFailure(reason DisconnectReason, cause error) {
	p.config.logger().WithError(handshakeError(reason, cause)).Warn("lidnet: handshake failed")
}

// enqueueReleased hands a fully processed message to the application via
// ReadMessage, dropping it if the queue is saturated and the application
// isn't draining it.
func (p *Peer) enqueueReleased(m *IncomingMessage) {
	select {
	case p.released <- m:
	default:
		p.config.logger().Warn("lidnet: released message queue full, dropping message")
		p.pool.Recycle(m)
	}
}

func (p *Peer) notifyStatusChanged(c *Connection) {
	if !p.config.EnabledMessageTypes.enabled(TypeStatusChanged) {
		return
	}
	m := p.pool.NewIncoming()
	m.EventType = TypeStatusChanged
	m.Connection = c
	m.From = c.RemoteAddr()
	c.mu.Lock()
	m.Reason = c.disconnect
	c.mu.Unlock()
	m.ReceiveTime = time.Now()
	p.enqueueReleased(m)
}

// ReadMessage blocks up to timeout for the next released message. A
// non-positive timeout blocks indefinitely.
func (p *Peer) ReadMessage(timeout time.Duration) (*IncomingMessage, error) {
	if timeout <= 0 {
		m, ok := <-p.released
		if !ok {
			return nil, ErrPeerNotRunning
		}
		return m, nil
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case m, ok := <-p.released:
		if !ok {
			return nil, ErrPeerNotRunning
		}
		return m, nil
	case <-t.C:
		return nil, ErrTimeout
	}
}

// ReleaseMessage returns m to the pool once the application is done with
// it.
func (p *Peer) ReleaseMessage(m *IncomingMessage) { p.pool.Recycle(m) }

// Connect initiates a handshake to remoteAddr and returns the new
// Connection immediately in StatusInitiatedConnect; the caller observes
// StatusConnected either by polling Stats() or via a StatusChanged
// release.
func (p *Peer) Connect(remoteAddr string) (*Connection, error) {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil, ErrPeerNotRunning
	}
	if len(p.connections) >= p.config.MaximumConnections {
		p.mu.Unlock()
		return nil, ErrMaxConnections
	}
	p.mu.Unlock()

	addr, err := net.ResolveUDPAddr("udp", remoteAddr)
	if err != nil {
		return nil, errors.Wrap(err, "lidnet: resolve remote address")
	}

	now := time.Now()
	c := newConnection(p, addr, true, now)

	p.mu.Lock()
	p.connections[addr.String()] = c
	p.nonceIndex[c.nonce] = c
	p.mu.Unlock()

	payload := bitbuf.New(16)
	encodeConnect(payload, connectPayload{Nonce: c.nonce, AppIdentifier: p.config.AppIdentifier, PeerUID: p.uniqueID})
	c.sendLibrary(TypeConnect, payload)
	return c, nil
}

// Connections returns a snapshot of every currently tracked connection.
func (p *Peer) Connections() []*Connection {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Connection, 0, len(p.connections))
	for _, c := range p.connections {
		out = append(out, c)
	}
	return out
}

// LocalAddr returns the bound socket address, valid once Start has
// succeeded.
func (p *Peer) LocalAddr() net.Addr {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.sock == nil {
		return nil
	}
	return p.sock.LocalAddr()
}

func (p *Peer) handleDatagram(now time.Time, addr net.Addr, buf []byte) {
	if len(buf) < HeaderSize {
		p.logProtocolError("header", fmt.Errorf("datagram from %s shorter than the %d-byte header (%d bytes)", addr, HeaderSize, len(buf)))
		return
	}

	key := addr.String()
	p.mu.RLock()
	c := p.connections[key]
	p.mu.RUnlock()

	if c != nil {
		if c.HandleDatagram(now, buf) {
			p.removeConnection(c)
		}
		return
	}

	walkMessages(buf, func(typ MessageType, _ bool, _ Seq, payload []byte) {
		p.handleUnconnectedMessage(now, addr, typ, payload)
	}, func(typ MessageType, wanted, available int) {
		p.logProtocolError("truncated", fmt.Errorf("%s from %s declares %d payload bytes but only %d remain, dropping tail", typ, addr, wanted, available))
	})
}

// handleUnconnectedMessage dispatches one message out of a datagram from
// an address with no Connection yet: a Connect, a ConnectResponse
// arriving at a rebound port, discovery/NAT traffic, or an unconnected
// user message.
func (p *Peer) handleUnconnectedMessage(now time.Time, addr net.Addr, typ MessageType, payload []byte) {
	switch {
	case typ == TypeConnect:
		p.handleIncomingConnect(now, addr, payload)

	case typ == TypeConnectResponse:
		p.handlePortRebind(now, addr, payload)

	case typ == TypeDiscoveryRequest, typ == TypeDiscoveryResponse,
		typ == TypeNatIntroductionConfirmRequest,
		typ == TypeNatIntroductionConfirmAck, typ == TypeNatPunchMessage:
		p.handleDiscoveryDatagram(now, addr, typ, payload)

	case typ == TypeUnconnectedUserMessage:
		if p.config.EnabledMessageTypes.enabled(TypeUnconnectedData) {
			m := p.pool.NewIncoming()
			m.EventType = TypeUnconnectedData
			m.From = addr
			m.ReceiveTime = now
			m.Data = bitbuf.FromBytes(payload)
			p.enqueueReleased(m)
		}

	default:
		// Datagram for a connection we no longer know about (e.g. after
		// a restart, or one that timed out on our side while the peer
		// kept sending); drop silently rather than logging noise for
		// every straggler.
	}
}

func (p *Peer) handleIncomingConnect(now time.Time, addr net.Addr, payload []byte) {
	p.mu.RLock()
	running := p.running
	count := len(p.connections)
	p.mu.RUnlock()
	if !running {
		return
	}

	req := decodeConnect(bitbuf.FromBytes(payload))

	if req.AppIdentifier != p.config.AppIdentifier {
		p.logHandshakeFailure(ReasonAppIdentMismatch, fmt.Errorf("remote %q, local %q", req.AppIdentifier, p.config.AppIdentifier))
		p.sendRawDisconnect(addr, ReasonAppIdentMismatch)
		return
	}
	if count >= p.config.MaximumConnections {
		p.logHandshakeFailure(ReasonServerFull, fmt.Errorf("%d/%d connections in use", count, p.config.MaximumConnections))
		p.sendRawDisconnect(addr, ReasonServerFull)
		return
	}

	c := newConnection(p, addr, false, now)
	c.nonce = req.Nonce
	c.remotePeerID = req.PeerUID

	p.mu.Lock()
	p.connections[addr.String()] = c
	p.mu.Unlock()

	if p.config.EnabledMessageTypes.enabled(TypeConnectionApproval) {
		m := p.pool.NewIncoming()
		m.EventType = TypeConnectionApproval
		m.Connection = c
		m.From = addr
		m.ReceiveTime = now
		p.enqueueReleased(m)
		return
	}

	c.Accept(now)
}

// sendRawDisconnect replies to a Connect that will never get a
// Connection object (app-id mismatch, server full) with a bare
// Disconnect datagram carrying the reason.
func (p *Peer) sendRawDisconnect(addr net.Addr, reason DisconnectReason) {
	payload := bitbuf.New(16)
	encodeDisconnect(payload, disconnectPayload{Reason: string(reason)})
	buf := make([]byte, HeaderSize+payload.LengthBytes())
	encodeHeader(buf, TypeDisconnect, false, 0, uint16(payload.LengthBits()))
	copy(buf[HeaderSize:], payload.Bytes())
	_ = p.writeDatagram(buf, addr)
}

// handlePortRebind matches a ConnectResponse arriving from an address we
// don't yet recognise against a pending initiator-side handshake by
// nonce, and re-keys that Connection to the new address.
func (p *Peer) handlePortRebind(now time.Time, addr net.Addr, payload []byte) {
	resp := decodeConnectResponse(bitbuf.FromBytes(payload))

	p.mu.Lock()
	c, ok := p.nonceIndex[resp.Nonce]
	if !ok {
		p.mu.Unlock()
		return
	}
	oldKey := c.RemoteAddr().String()
	delete(p.connections, oldKey)
	c.rebind(addr)
	p.connections[addr.String()] = c
	p.mu.Unlock()

	c.touch(now)
	if c.handleMessage(now, TypeConnectResponse, false, 0, bitbuf.FromBytes(payload)) {
		p.removeConnection(c)
	}
}
