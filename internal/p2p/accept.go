package p2p

import (
	"errors"
	"net"
	"time"
)

func (n *Network) acceptLoop() {
	for {
		conn, err := n.cfg.Transport.Accept()
		if err != nil {
			if n.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			n.logf("accept error: %v", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if _, err := n.attachPeer(conn, conn.RemoteAddr(), true); err != nil {
			n.Logf("inbound from %s rejected: %v", conn.RemoteAddr(), err)
		}
	}
}
