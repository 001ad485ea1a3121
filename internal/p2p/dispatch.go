package p2p

import (
	"sync"

	"p2p-mesh/internal/wire"
)

type dispatchKind int

const (
	msgPacket dispatchKind = iota
	msgConnect
	msgDisconnect
	msgConnectionRequest
)

func (k dispatchKind) String() string {
	switch k {
	case msgPacket:
		return "packet"
	case msgConnect:
		return EventConnect
	case msgDisconnect:
		return EventDisconnect
	case msgConnectionRequest:
		return EventConnectionRequest
	}
	return "unknown"
}

// dispatchMsg is one unit of work for the dispatcher goroutine.
type dispatchMsg struct {
	kind   dispatchKind
	peer   *Peer       // packet, connect, disconnect
	packet wire.Packet // packet
	addr   string      // connection_request
}

// mailbox is an unbounded FIFO. push never blocks, so handlers running on
// the dispatcher can themselves cause new messages.
type mailbox struct {
	mu     sync.Mutex
	queue  []dispatchMsg
	closed bool
	signal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{}, 1)}
}

func (m *mailbox) push(msg dispatchMsg) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.queue = append(m.queue, msg)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
	return true
}

// take removes and returns everything queued so far.
func (m *mailbox) take() []dispatchMsg {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.queue
	m.queue = nil
	return out
}

func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.queue = nil
	m.mu.Unlock()
}

func (n *Network) enqueue(msg dispatchMsg) {
	if !n.mbox.push(msg) {
		return
	}
	n.metrics.DispatchQueued.Inc()
}

// dispatchLoop runs every handler, one at a time, in receipt order.
func (n *Network) dispatchLoop() {
	n.dispatchG.Store(goid())
	defer close(n.dispatchDone)
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-n.mbox.signal:
		}

		for _, msg := range n.mbox.take() {
			if n.ctx.Err() != nil {
				return
			}
			n.metrics.DispatchQueued.Dec()
			n.dispatch(msg)
		}
	}
}

func (n *Network) dispatch(msg dispatchMsg) {
	var (
		name  string
		found bool
		err   error
	)

	switch msg.kind {
	case msgPacket:
		name = msg.packet.Event
		found, err = msg.peer.Trigger(name, msg.packet.Data)
	case msgConnect, msgDisconnect:
		name = msg.kind.String()
		found, err = n.events.Trigger(name, msg.peer)
	case msgConnectionRequest:
		name = EventConnectionRequest
		found, err = n.events.Trigger(name, msg.addr)
	}

	if !found {
		n.Logf("no handler for %q", name)
		return
	}
	if err != nil {
		n.metrics.HandlerErrors.Inc()
		n.logf("handler %q failed: %v", name, err)
	}
}
