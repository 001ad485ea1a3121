//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package rendezvous

import "net"

// reuseAddrConfig uses the platform defaults where the unix socket options
// are not available.
func reuseAddrConfig(bool) net.ListenConfig {
	return net.ListenConfig{}
}
