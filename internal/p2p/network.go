package p2p

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"p2p-mesh/internal/events"
	"p2p-mesh/internal/metrics"
	"p2p-mesh/internal/netx"
	"p2p-mesh/internal/rendezvous"
)

// Network coordinates the local node: it listens for TCP links and
// discovery datagrams, holds the peer registry and the global event bus.
type Network struct {
	cfg     Config
	id      string
	events  *events.Bus
	metrics *metrics.Metrics

	mu         sync.RWMutex
	peers      map[string]*Peer
	serving    bool
	closed     bool
	listenAddr netx.Addr
	discovery  *rendezvous.Listener

	seen *seenCache // nil when DiscoveryDedupeTTL is 0

	mbox         *mailbox
	dispatchDone chan struct{}
	dispatchG    atomic.Uint64 // goroutine running dispatchLoop

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewNetwork creates an idle network and starts its dispatcher. Handlers
// should be bound before Serve.
func NewNetwork(cfg Config) *Network {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	n := &Network{
		cfg:          cfg,
		id:           uuid.NewString(),
		events:       events.NewBus(),
		metrics:      cfg.Metrics,
		peers:        make(map[string]*Peer),
		mbox:         newMailbox(),
		dispatchDone: make(chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
	}
	if cfg.DiscoveryDedupeTTL > 0 {
		n.seen = newSeenCache(cfg.DiscoveryDedupeTTL)
	}
	go n.dispatchLoop()
	return n
}

// ID returns this node's random identifier.
func (n *Network) ID() string { return n.id }

// Metrics returns the collectors this network updates.
func (n *Network) Metrics() *metrics.Metrics { return n.metrics }

// ListenAddr returns the TCP listen address, empty before Serve.
func (n *Network) ListenAddr() netx.Addr {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.listenAddr
}

// DiscoveryAddr returns the UDP discovery address, nil before Serve.
func (n *Network) DiscoveryAddr() *net.UDPAddr {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.discovery == nil {
		return nil
	}
	return n.discovery.Addr()
}

// On binds name on the network-wide bus.
func (n *Network) On(name string) *events.Event {
	return n.events.Bind(name)
}

// Events exposes the network-wide bus.
func (n *Network) Events() *events.Bus { return n.events }

// Serve binds the requested listeners and starts the accept and discovery
// loops. Bind failures are returned; otherwise Serve returns immediately.
func (n *Network) Serve(tcp, udp bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrClosed
	}
	if n.serving {
		return ErrAlreadyServing
	}

	port := n.cfg.Port
	if tcp {
		addr, err := n.cfg.Transport.Listen(net.JoinHostPort(n.cfg.BindIP, strconv.Itoa(port)))
		if err != nil {
			return fmt.Errorf("tcp listen: %w", err)
		}
		n.listenAddr = addr
		if port == 0 {
			if port, err = netx.Port(addr); err != nil {
				_ = n.cfg.Transport.Close()
				return fmt.Errorf("tcp listen: %w", err)
			}
		}
	}

	var disc *rendezvous.Listener
	if udp {
		l, err := rendezvous.Listen(net.JoinHostPort(n.cfg.BindIP, strconv.Itoa(port)))
		if err != nil {
			if tcp {
				_ = n.cfg.Transport.Close()
				n.listenAddr = ""
			}
			return fmt.Errorf("udp listen: %w", err)
		}
		disc = l
		n.discovery = l
	}

	n.serving = true
	if tcp {
		n.logf("listening on tcp %s", n.listenAddr)
		go n.acceptLoop()
	}
	if disc != nil {
		n.logf("listening on udp %s", disc.Addr())
		go n.discoveryLoop(disc)
	}
	return nil
}

// Close stops both loops, drops every peer and stops the dispatcher. It
// returns once a handler already running has finished, unless Close was
// called from that handler. Disconnect handlers do not run for peers
// dropped here.
func (n *Network) Close() error {
	var errs error
	n.closeOnce.Do(func() {
		n.mu.Lock()
		n.closed = true
		peers := make([]*Peer, 0, len(n.peers))
		for _, p := range n.peers {
			peers = append(peers, p)
		}
		n.peers = make(map[string]*Peer)
		disc := n.discovery
		serving := n.serving
		n.mu.Unlock()

		n.cancel()
		n.mbox.close()

		if serving {
			errs = multierr.Append(errs, n.cfg.Transport.Close())
		}
		if disc != nil {
			errs = multierr.Append(errs, disc.Close())
		}
		for _, p := range peers {
			_ = p.Close()
		}
		n.metrics.Peers.Set(0)
		n.metrics.DispatchQueued.Set(0)
	})
	if goid() != n.dispatchG.Load() {
		<-n.dispatchDone
	}
	return errs
}
