package p2p

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"p2p-mesh/internal/events"
	"p2p-mesh/internal/netx"
)

type netTestOpt func(*Config)

// WithLogger lets you override the logger (default is io.Discard).
func WithLogger(l *log.Logger) netTestOpt {
	return func(cfg *Config) { cfg.Logger = l }
}

// WithDedupe enables the discovery dedupe window.
func WithDedupe(ttl time.Duration) netTestOpt {
	return func(cfg *Config) { cfg.DiscoveryDedupeTTL = ttl }
}

// WithSourcePort fixes the discovery source port.
func WithSourcePort(port int) netTestOpt {
	return func(cfg *Config) { cfg.DiscoverySourcePort = port }
}

// WithTransport overrides the stream transport.
func WithTransport(tr netx.Transport) netTestOpt {
	return func(cfg *Config) { cfg.Transport = tr }
}

// WithBook sets the peer book.
func WithBook(b PeerBook) netTestOpt {
	return func(cfg *Config) { cfg.Book = b }
}

func newTestConfig(opts ...netTestOpt) Config {
	cfg := Config{
		BindIP:      "127.0.0.1",
		DialTimeout: 2 * time.Second,
		Logger:      log.New(io.Discard, "", log.LstdFlags),
		Debug:       true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// newTestNetwork builds a network bound to an ephemeral localhost port, runs
// setup (to bind handlers) before serving, and closes it on cleanup.
func newTestNetwork(t *testing.T, setup func(n *Network), opts ...netTestOpt) *Network {
	t.Helper()

	n := NewNetwork(newTestConfig(opts...))
	t.Cleanup(func() { _ = n.Close() })
	if setup != nil {
		setup(n)
	}
	require.NoError(t, n.Serve(true, true))
	return n
}

// freeUDPPort returns a localhost UDP port nothing is bound to.
func freeUDPPort(t *testing.T) int {
	t.Helper()
	c, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	port := c.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, c.Close())
	return port
}

func waitPeers(t *testing.T, n *Network, want int, timeout time.Duration) {
	t.Helper()
	require.Eventually(t, func() bool { return n.PeerCount() == want }, timeout, 10*time.Millisecond,
		"timed out waiting for peers: node=%s want=%d", n.ID()[:8], want)
}

func link(t *testing.T, from, to *Network) *Peer {
	t.Helper()
	p, err := from.ConnectTo(context.Background(), to.ListenAddr())
	require.NoError(t, err)
	return p
}

// recorder collects handler payloads.
type recorder struct {
	ch chan any
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan any, 256)}
}

func (r *recorder) handler() events.Handler {
	return func(payload any) error {
		r.ch <- payload
		return nil
	}
}

func (r *recorder) next(t *testing.T, timeout time.Duration) any {
	t.Helper()
	select {
	case v := <-r.ch:
		return v
	case <-time.After(timeout):
		t.Fatalf("no event within %s", timeout)
		return nil
	}
}

func (r *recorder) none(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case v := <-r.ch:
		t.Fatalf("unexpected event: %v", v)
	case <-time.After(wait):
	}
}

// failingConn accepts no writes and blocks reads until closed.
type failingConn struct {
	once   sync.Once
	closed chan struct{}
}

func newFailingConn() *failingConn {
	return &failingConn{closed: make(chan struct{})}
}

func (c *failingConn) Read([]byte) (int, error) {
	<-c.closed
	return 0, net.ErrClosed
}

func (c *failingConn) Write([]byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func (c *failingConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *failingConn) RemoteAddr() netx.Addr            { return "10.9.9.9:1" }
func (c *failingConn) SetReadDeadline(time.Time) error { return nil }

// stallTransport hangs dials to one address until the context ends.
type stallTransport struct {
	netx.Transport
	stall netx.Addr
}

func (s *stallTransport) Dial(ctx context.Context, addr netx.Addr) (netx.Conn, error) {
	if addr == s.stall {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.Transport.Dial(ctx, addr)
}

// memBook is an in-memory PeerBook.
type memBook struct {
	mu          sync.Mutex
	connects    map[string]int
	disconnects map[string]int
}

func newMemBook() *memBook {
	return &memBook{connects: map[string]int{}, disconnects: map[string]int{}}
}

func (b *memBook) NoteConnected(addr string, _ bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connects[addr]++
	return nil
}

func (b *memBook) NoteDisconnected(addr string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disconnects[addr]++
	return nil
}

func (b *memBook) counts(addr string) (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connects[addr], b.disconnects[addr]
}
