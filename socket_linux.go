//go:build linux

package lidnet

import (
	"golang.org/x/sys/unix"
)

// SetBroadcast toggles SO_BROADCAST so SendDiscoveryRequest("") can
// target the subnet broadcast address.
func (s *udpSocket) SetBroadcast(enabled bool) error {
	raw, err := s.conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, boolToInt(enabled))
	})
	if err != nil {
		return err
	}
	return sockErr
}

// enableDontFragment sets IP_MTU_DISCOVER/IPV6_MTU_DISCOVER so outbound
// datagrams carry the don't-fragment bit, which is what makes
// oversized-send failures a meaningful MTU probe signal
// instead of being silently reassembled by an intermediate router.
func enableDontFragment(s *udpSocket) {
	if s.ipv4 != nil {
		raw, err := s.conn.SyscallConn()
		if err != nil {
			return
		}
		_ = raw.Control(func(fd uintptr) {
			_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_MTU_DISCOVER, unix.IP_PMTUDISC_DO)
		})
		return
	}
	if s.ipv6 != nil {
		raw, err := s.conn.SyscallConn()
		if err != nil {
			return
		}
		_ = raw.Control(func(fd uintptr) {
			_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_MTU_DISCOVER, unix.IPV6_PMTUDISC_DO)
		})
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
