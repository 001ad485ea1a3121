package p2p

import (
	"context"

	"p2p-mesh/internal/netx"
)

// ConnectTo dials addr over TCP and registers the resulting peer. This is
// the outbound half of a link; the remote side sees an inbound peer.
func (n *Network) ConnectTo(ctx context.Context, addr netx.Addr) (*Peer, error) {
	ctx, cancel := context.WithTimeout(ctx, n.cfg.DialTimeout)
	defer cancel()

	conn, err := n.cfg.Transport.Dial(ctx, addr)
	if err != nil {
		n.Logf("dial %s failed: %v", addr, err)
		return nil, err
	}
	return n.attachPeer(conn, addr, false)
}

// attachPeer registers a fresh link, announces it with a connect event and
// starts its reader. The connect event is queued before any frame from
// this peer can be.
func (n *Network) attachPeer(conn netx.Conn, addr netx.Addr, inbound bool) (*Peer, error) {
	p := newPeer(n, conn, addr, inbound)
	if !n.addPeer(p) {
		_ = conn.Close()
		return nil, ErrClosed
	}

	n.Logf("connected to %s inbound=%v", addr, inbound)
	n.enqueue(dispatchMsg{kind: msgConnect, peer: p})
	go p.readLoop()
	return p, nil
}
