package p2p

import (
	"context"
	"errors"
	"net"
	"strconv"

	"p2p-mesh/internal/netx"
	"p2p-mesh/internal/rendezvous"
)

// Connect asks the node at (ip, port) to open a TCP link back to us. It
// sends one discovery datagram carrying our TCP listen port and returns;
// the link shows up later as an inbound peer with a connect event.
func (n *Network) Connect(ip string, port int) error {
	tcpPort := n.announcePort()
	if tcpPort == 0 {
		return ErrNoListenPort
	}

	ctx, cancel := context.WithTimeout(n.ctx, n.cfg.DialTimeout)
	defer cancel()

	target := net.JoinHostPort(ip, strconv.Itoa(port))
	if err := rendezvous.Send(ctx, n.cfg.DiscoverySourcePort, target, uint16(tcpPort)); err != nil {
		n.logf("discovery to %s failed: %v", target, err)
		return err
	}
	n.Logf("discovery sent to %s announcing tcp port %d", target, tcpPort)
	return nil
}

func (n *Network) announcePort() int {
	if addr := n.ListenAddr(); addr != "" {
		if p, err := netx.Port(addr); err == nil {
			return p
		}
	}
	if n.cfg.Port > 0 && n.cfg.Port <= 0xffff {
		return n.cfg.Port
	}
	return 0
}

// connectBack dials a requester off the discovery loop, so an
// unreachable one does not hold up later datagrams.
func (n *Network) connectBack(addr string) {
	if _, err := n.ConnectTo(n.ctx, netx.Addr(addr)); err != nil {
		n.logf("connect back to %s failed: %v", addr, err)
	}
}

// discoveryLoop turns each datagram into a connection_request event and an
// outbound TCP link to the sender.
func (n *Network) discoveryLoop(l *rendezvous.Listener) {
	for {
		req, err := l.Next()
		if err != nil {
			if n.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			if errors.Is(err, rendezvous.ErrBadDatagram) {
				n.metrics.DiscoveryDropped.Inc()
				n.logf("discovery: %v", err)
				continue
			}
			n.logf("discovery receive error: %v", err)
			continue
		}

		addr := req.Addr()
		if n.seen != nil && n.seen.Seen(addr) {
			n.metrics.DiscoveryDropped.Inc()
			n.Logf("discovery: repeat request from %s ignored", addr)
			continue
		}
		n.metrics.DiscoveryReceived.Inc()

		n.enqueue(dispatchMsg{kind: msgConnectionRequest, addr: addr})
		go n.connectBack(addr)
	}
}
