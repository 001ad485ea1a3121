//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package rendezvous

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// reuseAddrConfig sets SO_REUSEADDR, and SO_REUSEPORT when asked, on UDP
// sockets so a fixed discovery source port can be rebound right away.
func reuseAddrConfig(reusePort bool) net.ListenConfig {
	return net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			if network != "udp4" && network != "udp" {
				return nil
			}
			var opErr error
			err := c.Control(func(fd uintptr) {
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
					opErr = err
					return
				}
				if reusePort {
					// best effort; SO_REUSEADDR alone is enough to rebind
					_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
				}
			})
			if err != nil {
				return err
			}
			return opErr
		},
	}
}
