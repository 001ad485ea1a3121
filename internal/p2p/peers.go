package p2p

import (
	"fmt"
	"sort"

	"go.uber.org/multierr"
)

func direction(inbound bool) string {
	if inbound {
		return "inbound"
	}
	return "outbound"
}

func (n *Network) addPeer(p *Peer) bool {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return false
	}
	n.peers[p.id] = p
	n.mu.Unlock()

	n.metrics.Peers.Inc()
	n.metrics.PeersConnected.WithLabelValues(direction(p.inbound)).Inc()
	if n.cfg.Book != nil {
		if err := n.cfg.Book.NoteConnected(p.Address(), p.inbound); err != nil {
			n.logf("peer book: %v", err)
		}
	}
	return true
}

// removePeer drops p from the registry and closes it. It reports whether p
// was still registered.
func (n *Network) removePeer(p *Peer) bool {
	n.mu.Lock()
	cur, ok := n.peers[p.id]
	if ok && cur == p {
		delete(n.peers, p.id)
	}
	n.mu.Unlock()

	_ = p.Close()
	if !ok {
		return false
	}

	n.metrics.Peers.Dec()
	if n.cfg.Book != nil {
		if err := n.cfg.Book.NoteDisconnected(p.Address()); err != nil {
			n.logf("peer book: %v", err)
		}
	}
	return true
}

func (n *Network) prunePeer(p *Peer, cause error) {
	if n.removePeer(p) {
		n.metrics.PeersPruned.Inc()
		n.logf("pruned %s: %v", p.addr, cause)
	}
}

// Emit broadcasts one packet to every registered peer. Peers whose write
// fails are removed before Emit returns; their errors are combined into
// the result.
func (n *Network) Emit(event, data string) error {
	frame, err := encodeUser(event, data)
	if err != nil {
		return err
	}

	var errs error
	for _, p := range n.Peers() {
		if err := p.writeFrame(frame); err != nil {
			errs = multierr.Append(errs, err)
			n.prunePeer(p, err)
		}
	}
	return errs
}

// EmitTo sends one packet to the peer with the given ID, pruning it if
// the write fails.
func (n *Network) EmitTo(id, event, data string) error {
	p, ok := n.Peer(id)
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownPeer, id)
	}
	frame, err := encodeUser(event, data)
	if err != nil {
		return err
	}
	if err := p.writeFrame(frame); err != nil {
		n.prunePeer(p, err)
		return err
	}
	return nil
}

// Peer returns the live peer with the given ID.
func (n *Network) Peer(id string) (*Peer, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	p, ok := n.peers[id]
	return p, ok
}

// Peers returns a snapshot of the registry ordered by address.
func (n *Network) Peers() []*Peer {
	n.mu.RLock()
	out := make([]*Peer, 0, len(n.peers))
	for _, p := range n.peers {
		out = append(out, p)
	}
	n.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].addr == out[j].addr {
			return out[i].id < out[j].id
		}
		return out[i].addr < out[j].addr
	})
	return out
}

// PeerCount returns the current number of connected peers.
func (n *Network) PeerCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.peers)
}
