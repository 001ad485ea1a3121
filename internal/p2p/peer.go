package p2p

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"p2p-mesh/internal/events"
	"p2p-mesh/internal/netx"
	"p2p-mesh/internal/wire"
)

// Peer is one live TCP link plus its own event scope.
type Peer struct {
	id      string
	addr    netx.Addr
	inbound bool

	conn   netx.Conn
	writer *wire.Writer

	events *events.Bus
	net    *Network // back-reference for fallback dispatch; the registry owns the peer

	once sync.Once
}

func newPeer(n *Network, conn netx.Conn, addr netx.Addr, inbound bool) *Peer {
	return &Peer{
		id:      uuid.NewString(),
		addr:    addr,
		inbound: inbound,
		conn:    conn,
		writer:  wire.NewWriter(conn),
		events:  events.NewBus(),
		net:     n,
	}
}

func (p *Peer) ID() string      { return p.id }
func (p *Peer) Address() string { return string(p.addr) }

// Inbound reports whether the remote side initiated the link.
func (p *Peer) Inbound() bool { return p.inbound }

func (p *Peer) String() string { return fmt.Sprintf("Peer <%s>", p.addr) }

// On binds name on this peer only.
func (p *Peer) On(name string) *events.Event {
	return p.events.Bind(name)
}

// Trigger dispatches to this peer's own bus first and falls back to the
// network's bus when the name is not bound locally.
func (p *Peer) Trigger(name string, payload any) (bool, error) {
	if ok, err := p.events.Trigger(name, payload); ok {
		return true, err
	}
	return p.net.events.Trigger(name, payload)
}

// Emit writes one packet to the peer. A failed write means the link is
// gone: the peer is closed and its reader reports the disconnect.
func (p *Peer) Emit(event, data string) error {
	frame, err := encodeUser(event, data)
	if err != nil {
		return err
	}
	if err := p.writeFrame(frame); err != nil {
		_ = p.Close()
		return err
	}
	return nil
}

// encodeUser frames a packet for a user event.
func encodeUser(event, data string) ([]byte, error) {
	if IsReserved(event) {
		return nil, fmt.Errorf("%w: %q", ErrReservedEvent, event)
	}
	return wire.Encode(wire.Packet{Event: event, Data: data})
}

func (p *Peer) writeFrame(frame []byte) error {
	if err := p.writer.WriteFrame(frame); err != nil {
		return fmt.Errorf("emit to %s: %w", p.addr, err)
	}
	p.net.metrics.FramesSent.Inc()
	return nil
}

// Close shuts the link down. The reader notices and reports the disconnect.
func (p *Peer) Close() error {
	var err error
	p.once.Do(func() {
		err = p.conn.Close()
	})
	return err
}

// readLoop decodes frames until the stream ends, then reports exactly one
// disconnect for this peer.
func (p *Peer) readLoop() {
	n := p.net
	r := wire.NewReader(p.conn, n.cfg.MaxFrameSize)

	defer func() {
		n.removePeer(p)
		n.enqueue(dispatchMsg{kind: msgDisconnect, peer: p})
	}()

	for {
		if n.cfg.ReadTimeout > 0 {
			_ = p.conn.SetReadDeadline(time.Now().Add(n.cfg.ReadTimeout))
		}

		pkt, err := r.ReadPacket()
		switch {
		case err == nil:
		case wire.IsFrameError(err):
			n.metrics.FramesMalformed.Inc()
			n.logf("dropping frame from %s: %v", p.addr, err)
			continue
		case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
			n.Logf("peer %s closed", p.addr)
			return
		default:
			n.Logf("read from %s failed: %v", p.addr, err)
			return
		}

		if IsReserved(pkt.Event) {
			n.metrics.FramesMalformed.Inc()
			n.logf("dropping reserved event %q from %s", pkt.Event, p.addr)
			continue
		}

		n.metrics.FramesReceived.Inc()
		n.enqueue(dispatchMsg{kind: msgPacket, peer: p, packet: pkt})
	}
}
