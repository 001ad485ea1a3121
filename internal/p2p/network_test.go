package p2p

import (
	"errors"
	"net"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"p2p-mesh/internal/netx"
	"p2p-mesh/internal/rendezvous"
	"p2p-mesh/internal/wire"
)

func TestDiscoveryFormsBidirectionalLink(t *testing.T) {
	aConnects := newRecorder()
	bConnects := newRecorder()
	bRequests := newRecorder()

	a := newTestNetwork(t, func(n *Network) {
		n.On(EventConnect).Handle(aConnects.handler())
	})
	b := newTestNetwork(t, func(n *Network) {
		n.On(EventConnect).Handle(bConnects.handler())
		n.On(EventConnectionRequest).Handle(bRequests.handler())
	})

	require.NoError(t, a.Connect("127.0.0.1", b.DiscoveryAddr().Port))

	waitPeers(t, a, 1, 3*time.Second)
	waitPeers(t, b, 1, 3*time.Second)

	aPort, err := netx.Port(a.ListenAddr())
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:"+strconv.Itoa(aPort), bRequests.next(t, time.Second))

	fromA := aConnects.next(t, time.Second).(*Peer)
	fromB := bConnects.next(t, time.Second).(*Peer)
	assert.True(t, fromA.Inbound(), "A accepted the connect-back")
	assert.False(t, fromB.Inbound(), "B dialed A")
	assert.Equal(t, string(a.ListenAddr()), fromB.Address())
}

func TestPingScenario(t *testing.T) {
	pings := newRecorder()
	b := newTestNetwork(t, func(n *Network) {
		n.On(EventConnect).Handle(PeerHandler(func(p *Peer) error {
			p.On("ping").Handle(pings.handler())
			return nil
		}))
	})
	a := newTestNetwork(t, nil)

	p := link(t, a, b)
	require.NoError(t, p.Emit("ping", "42"))

	assert.Equal(t, "42", pings.next(t, 2*time.Second))
	pings.none(t, 100*time.Millisecond)
}

func TestUnknownEventKeepsConnection(t *testing.T) {
	got := newRecorder()
	b := newTestNetwork(t, func(n *Network) {
		n.On("print").Handle(got.handler())
	})
	a := newTestNetwork(t, nil)

	p := link(t, a, b)
	require.NoError(t, p.Emit("unknown", "x"))
	require.NoError(t, p.Emit("print", "after"))

	assert.Equal(t, "after", got.next(t, 2*time.Second))
	assert.Equal(t, 1, b.PeerCount())
	assert.Equal(t, 1, a.PeerCount())
}

func TestLocalHandlerOverridesGlobal(t *testing.T) {
	global := newRecorder()
	local := newRecorder()

	b := newTestNetwork(t, func(n *Network) {
		n.On("chat").Handle(global.handler())
		first := true
		n.On(EventConnect).Handle(PeerHandler(func(p *Peer) error {
			if first {
				p.On("chat").Handle(local.handler())
				first = false
			}
			return nil
		}))
	})
	a1 := newTestNetwork(t, nil)
	a2 := newTestNetwork(t, nil)

	p1 := link(t, a1, b)
	waitPeers(t, b, 1, 2*time.Second)
	p2 := link(t, a2, b)
	waitPeers(t, b, 2, 2*time.Second)

	require.NoError(t, p1.Emit("chat", "one"))
	assert.Equal(t, "one", local.next(t, 2*time.Second))
	global.none(t, 50*time.Millisecond)

	require.NoError(t, p2.Emit("chat", "two"))
	assert.Equal(t, "two", global.next(t, 2*time.Second))
	local.none(t, 50*time.Millisecond)
}

func TestDisconnectExactlyOnce(t *testing.T) {
	gone := newRecorder()
	b := newTestNetwork(t, func(n *Network) {
		n.On(EventDisconnect).Handle(gone.handler())
	})
	a := newTestNetwork(t, nil)

	p := link(t, a, b)
	waitPeers(t, b, 1, 2*time.Second)
	remote := b.Peers()[0]

	require.NoError(t, p.Close())

	assert.Same(t, remote, gone.next(t, 2*time.Second))
	gone.none(t, 100*time.Millisecond)
	assert.Equal(t, 0, b.PeerCount())
	waitPeers(t, a, 0, 2*time.Second)
}

func TestBroadcastPrunesFailedPeer(t *testing.T) {
	got := newRecorder()
	b := newTestNetwork(t, func(n *Network) {
		n.On("news").Handle(got.handler())
	})
	a := newTestNetwork(t, nil)

	live := link(t, a, b)
	dead, err := a.attachPeer(newFailingConn(), "10.9.9.9:1", true)
	require.NoError(t, err)
	require.Equal(t, 2, a.PeerCount())

	err = a.Emit("news", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken pipe")

	_, ok := a.Peer(dead.ID())
	assert.False(t, ok, "failed peer must be pruned by the time Emit returns")
	_, ok = a.Peer(live.ID())
	assert.True(t, ok, "healthy peer must stay")
	assert.Equal(t, "hello", got.next(t, 2*time.Second))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Metrics().PeersPruned))

	require.NoError(t, a.Emit("news", "again"))
	assert.Equal(t, "again", got.next(t, 2*time.Second))
}

func TestEmitTo(t *testing.T) {
	got := newRecorder()
	b := newTestNetwork(t, func(n *Network) {
		n.On("direct").Handle(got.handler())
	})
	a := newTestNetwork(t, nil)
	p := link(t, a, b)

	require.NoError(t, a.EmitTo(p.ID(), "direct", "d"))
	assert.Equal(t, "d", got.next(t, 2*time.Second))

	assert.ErrorIs(t, a.EmitTo("nope", "direct", "d"), ErrUnknownPeer)

	dead, err := a.attachPeer(newFailingConn(), "10.9.9.9:1", true)
	require.NoError(t, err)
	assert.Error(t, a.EmitTo(dead.ID(), "direct", "d"))
	_, ok := a.Peer(dead.ID())
	assert.False(t, ok)
}

func TestPeerEmitFailureDropsPeer(t *testing.T) {
	gone := newRecorder()
	a := newTestNetwork(t, func(n *Network) {
		n.On(EventDisconnect).Handle(gone.handler())
	})

	dead, err := a.attachPeer(newFailingConn(), "10.9.9.9:1", false)
	require.NoError(t, err)

	err = dead.Emit("x", "y")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken pipe")

	assert.Same(t, dead, gone.next(t, 2*time.Second))
	gone.none(t, 100*time.Millisecond)
	waitPeers(t, a, 0, time.Second)
}

func TestReservedEventsStayLocal(t *testing.T) {
	a := newTestNetwork(t, nil)
	assert.ErrorIs(t, a.Emit(EventConnect, "x"), ErrReservedEvent)

	gone := newRecorder()
	pings := newRecorder()
	b := newTestNetwork(t, func(n *Network) {
		n.On(EventDisconnect).Handle(gone.handler())
		n.On("ping").Handle(pings.handler())
	})
	p := link(t, a, b)
	assert.ErrorIs(t, p.Emit(EventDisconnect, "x"), ErrReservedEvent)

	raw, err := net.Dial("tcp", string(b.ListenAddr()))
	require.NoError(t, err)
	defer raw.Close()

	spoof, err := wire.Encode(wire.Packet{Event: EventDisconnect, Data: "spoofed"})
	require.NoError(t, err)
	ping, err := wire.Encode(wire.Packet{Event: "ping", Data: "1"})
	require.NoError(t, err)
	_, err = raw.Write(append(spoof, ping...))
	require.NoError(t, err)

	assert.Equal(t, "1", pings.next(t, 2*time.Second))
	gone.none(t, 50*time.Millisecond)
}

func TestMalformedFrameKeepsConnection(t *testing.T) {
	pings := newRecorder()
	b := newTestNetwork(t, func(n *Network) {
		n.On("ping").Handle(pings.handler())
	})

	raw, err := net.Dial("tcp", string(b.ListenAddr()))
	require.NoError(t, err)
	defer raw.Close()

	ping, err := wire.Encode(wire.Packet{Event: "ping", Data: "ok"})
	require.NoError(t, err)
	_, err = raw.Write([]byte("{not json\x04"))
	require.NoError(t, err)
	_, err = raw.Write(ping)
	require.NoError(t, err)

	assert.Equal(t, "ok", pings.next(t, 2*time.Second))
	assert.Equal(t, 1, b.PeerCount())
	assert.Equal(t, 1.0, testutil.ToFloat64(b.Metrics().FramesMalformed))
}

func TestHandlerFailureDoesNotStopDispatch(t *testing.T) {
	got := newRecorder()
	b := newTestNetwork(t, func(n *Network) {
		n.On("boom").Handle(func(any) error { return errors.New("boom") })
		n.On("panic").Handle(func(any) error { panic("kaput") })
		n.On("ok").Handle(got.handler())
	})
	a := newTestNetwork(t, nil)
	p := link(t, a, b)

	require.NoError(t, p.Emit("boom", ""))
	require.NoError(t, p.Emit("panic", ""))
	require.NoError(t, p.Emit("ok", "still here"))

	assert.Equal(t, "still here", got.next(t, 2*time.Second))
	assert.Equal(t, 2.0, testutil.ToFloat64(b.Metrics().HandlerErrors))
}

func TestHandlerCanConnect(t *testing.T) {
	c := newTestNetwork(t, nil)

	b := newTestNetwork(t, func(n *Network) {
		n.On("introduce").Handle(DataHandler(func(addr string) error {
			_, err := n.ConnectTo(n.ctx, netx.Addr(addr))
			return err
		}))
	})
	a := newTestNetwork(t, nil)

	p := link(t, a, b)
	require.NoError(t, p.Emit("introduce", string(c.ListenAddr())))

	waitPeers(t, b, 2, 3*time.Second)
	waitPeers(t, c, 1, 3*time.Second)
}

func TestServeErrors(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()
	port := busy.Addr().(*net.TCPAddr).Port

	cfg := newTestConfig()
	cfg.Port = port
	n := NewNetwork(cfg)
	defer n.Close()
	err = n.Serve(true, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tcp listen")

	ok := newTestNetwork(t, nil)
	assert.ErrorIs(t, ok.Serve(true, true), ErrAlreadyServing)

	require.NoError(t, ok.Close())
	require.NoError(t, ok.Close())
	assert.ErrorIs(t, ok.Serve(true, true), ErrClosed)
}

func TestConnectNeedsTCPPort(t *testing.T) {
	n := NewNetwork(newTestConfig())
	t.Cleanup(func() { _ = n.Close() })
	require.NoError(t, n.Serve(false, true))
	assert.Empty(t, n.ListenAddr())

	assert.ErrorIs(t, n.Connect("127.0.0.1", 9), ErrNoListenPort)
}

func TestDiscoveryDedupe(t *testing.T) {
	requests := newRecorder()
	a := newTestNetwork(t, nil)
	b := newTestNetwork(t, func(n *Network) {
		n.On(EventConnectionRequest).Handle(requests.handler())
	}, WithDedupe(time.Minute))

	port := b.DiscoveryAddr().Port
	require.NoError(t, a.Connect("127.0.0.1", port))
	requests.next(t, 2*time.Second)
	require.NoError(t, a.Connect("127.0.0.1", port))

	requests.none(t, 200*time.Millisecond)
	assert.Equal(t, 1, b.PeerCount())
}

func TestBadDatagramIgnored(t *testing.T) {
	b := newTestNetwork(t, nil)

	raw, err := net.DialUDP("udp4", nil, b.DiscoveryAddr())
	require.NoError(t, err)
	defer raw.Close()
	_, err = raw.Write([]byte("connect"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(b.Metrics().DiscoveryDropped) == 1
	}, 2*time.Second, 10*time.Millisecond)

	a := newTestNetwork(t, nil)
	require.NoError(t, a.Connect("127.0.0.1", b.DiscoveryAddr().Port))
	waitPeers(t, b, 1, 3*time.Second)
}

func TestPeerBookSeesLifecycle(t *testing.T) {
	book := newMemBook()
	gone := newRecorder()
	a := newTestNetwork(t, func(n *Network) {
		n.On(EventDisconnect).Handle(gone.handler())
	}, WithBook(book))
	b := newTestNetwork(t, nil)

	p := link(t, a, b)
	conn, _ := book.counts(p.Address())
	assert.Equal(t, 1, conn)

	require.NoError(t, b.Close())
	gone.next(t, 2*time.Second)

	conn, disc := book.counts(p.Address())
	assert.Equal(t, 1, conn)
	assert.Equal(t, 1, disc)
}

func TestCloseDropsPeers(t *testing.T) {
	a := newTestNetwork(t, nil)
	b := newTestNetwork(t, nil)
	link(t, a, b)
	waitPeers(t, b, 1, 2*time.Second)

	require.NoError(t, a.Close())
	assert.Equal(t, 0, a.PeerCount())
	waitPeers(t, b, 0, 2*time.Second)

	_, err := a.ConnectTo(a.ctx, b.ListenAddr())
	assert.Error(t, err)
}

func TestConnectFromFixedSourcePort(t *testing.T) {
	requests := newRecorder()
	a := newTestNetwork(t, nil, WithSourcePort(freeUDPPort(t)))
	b := newTestNetwork(t, func(n *Network) {
		n.On(EventConnectionRequest).Handle(requests.handler())
	})

	require.NoError(t, a.Connect("127.0.0.1", b.DiscoveryAddr().Port))
	waitPeers(t, a, 1, 3*time.Second)
	waitPeers(t, b, 1, 3*time.Second)
	requests.next(t, time.Second)

	// a second request reuses the same source port
	c := newTestNetwork(t, func(n *Network) {
		n.On(EventConnectionRequest).Handle(requests.handler())
	})
	require.NoError(t, a.Connect("127.0.0.1", c.DiscoveryAddr().Port))
	waitPeers(t, c, 1, 3*time.Second)
	waitPeers(t, a, 2, 3*time.Second)
}

func TestCloseWaitsForRunningHandler(t *testing.T) {
	started := make(chan struct{})
	var finished atomic.Bool
	b := newTestNetwork(t, func(n *Network) {
		n.On("slow").Handle(func(any) error {
			close(started)
			time.Sleep(300 * time.Millisecond)
			finished.Store(true)
			return nil
		})
	})
	a := newTestNetwork(t, nil)
	p := link(t, a, b)
	require.NoError(t, p.Emit("slow", ""))

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never ran")
	}
	require.NoError(t, b.Close())
	assert.True(t, finished.Load(), "Close returned while a handler was running")
}

func TestCloseFromHandler(t *testing.T) {
	closed := make(chan error, 1)
	b := newTestNetwork(t, func(n *Network) {
		n.On("shutdown").Handle(func(any) error {
			closed <- n.Close()
			return nil
		})
	})
	a := newTestNetwork(t, nil)
	p := link(t, a, b)
	require.NoError(t, p.Emit("shutdown", ""))

	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close deadlocked inside a handler")
	}
	require.NoError(t, b.Close())
	assert.Equal(t, 0, b.PeerCount())
}

func TestSlowConnectBackDoesNotBlockDiscovery(t *testing.T) {
	tr := &stallTransport{Transport: netx.NewTCPTransport(), stall: "127.0.0.1:1"}
	b := newTestNetwork(t, nil, WithTransport(tr), func(cfg *Config) {
		cfg.DialTimeout = 5 * time.Second
	})

	raw, err := net.DialUDP("udp4", nil, b.DiscoveryAddr())
	require.NoError(t, err)
	defer raw.Close()
	_, err = raw.Write(rendezvous.EncodePort(1))
	require.NoError(t, err)

	a := newTestNetwork(t, nil)
	require.NoError(t, a.Connect("127.0.0.1", b.DiscoveryAddr().Port))
	waitPeers(t, a, 1, time.Second)
}
