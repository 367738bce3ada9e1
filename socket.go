package lidnet

import (
	"net"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// socket is the platform-independent surface a Peer needs from the
// underlying transport: datagram I/O plus the broadcast toggle used by
// SendDiscoveryRequest's broadcast form. Split out so tests
// can substitute an in-memory pair without touching real UDP sockets.
//
// SetReadDeadline lets the worker's single loop interleave datagram
// receipt with heartbeat ticks without a second goroutine: ReadFrom is
// given a deadline at the next heartbeat time and returns a timeout
// error when nothing arrives before then.
type socket interface {
	ReadFrom(buf []byte) (n int, addr net.Addr, err error)
	WriteTo(buf []byte, addr net.Addr) (n int, err error)
	LocalAddr() net.Addr
	SetBroadcast(enabled bool) error
	SetReadBuffer(bytes int) error
	SetWriteBuffer(bytes int) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// udpSocket wraps a *net.UDPConn and, on Linux, additionally configures
// the don't-fragment bit so MTU probing measures genuine
// path MTU rather than being masked by IP-layer fragmentation.
type udpSocket struct {
	conn *net.UDPConn
	ipv4 *ipv4.PacketConn
	ipv6 *ipv6.PacketConn
}

// newUDPSocket binds a UDP socket per Configuration; a bind failure is
// propagated to the caller of Peer.Start.
func newUDPSocket(cfg *Configuration) (*udpSocket, error) {
	addr := &net.UDPAddr{Port: cfg.Port}
	if cfg.LocalAddress != "" {
		ip := net.ParseIP(cfg.LocalAddress)
		if ip == nil {
			return nil, errors.Errorf("lidnet: invalid LocalAddress %q", cfg.LocalAddress)
		}
		addr.IP = ip
	}

	network := "udp4"
	if cfg.DualStack || (addr.IP != nil && addr.IP.To4() == nil) {
		network = "udp"
	}

	conn, err := net.ListenUDP(network, addr)
	if err != nil {
		return nil, errors.Wrap(err, "lidnet: socket bind failed")
	}

	s := &udpSocket{conn: conn}
	if cfg.ReceiveBufferSize > 0 {
		_ = conn.SetReadBuffer(cfg.ReceiveBufferSize)
	}
	if cfg.SendBufferSize > 0 {
		_ = conn.SetWriteBuffer(cfg.SendBufferSize)
	}

	if localIsIPv4(conn) {
		s.ipv4 = ipv4.NewPacketConn(conn)
	} else {
		s.ipv6 = ipv6.NewPacketConn(conn)
	}
	enableDontFragment(s)

	return s, nil
}

func localIsIPv4(conn *net.UDPConn) bool {
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	return ok && addr.IP.To4() != nil
}

func (s *udpSocket) ReadFrom(buf []byte) (int, net.Addr, error) { return s.conn.ReadFrom(buf) }
func (s *udpSocket) WriteTo(buf []byte, addr net.Addr) (int, error) {
	return s.conn.WriteTo(buf, addr)
}
func (s *udpSocket) LocalAddr() net.Addr { return s.conn.LocalAddr() }
func (s *udpSocket) SetReadBuffer(n int) error  { return s.conn.SetReadBuffer(n) }
func (s *udpSocket) SetWriteBuffer(n int) error { return s.conn.SetWriteBuffer(n) }
func (s *udpSocket) SetReadDeadline(t time.Time) error { return s.conn.SetReadDeadline(t) }
func (s *udpSocket) Close() error               { return s.conn.Close() }
