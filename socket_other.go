//go:build !linux

package lidnet

// SetBroadcast is a no-op outside Linux; the generic net.UDPConn
// doesn't expose SO_BROADCAST control and non-Linux targets aren't a
// deployment target for this library.
func (s *udpSocket) SetBroadcast(enabled bool) error { return nil }

// enableDontFragment is a no-op outside Linux; path MTU probing falls
// back to relying on oversize sends simply failing at the socket layer
// or timing out without an ExpandMTUSuccess.
func enableDontFragment(s *udpSocket) {}
