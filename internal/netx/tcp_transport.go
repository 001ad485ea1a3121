package netx

import (
	"context"
	"net"
	"sync"
)

type tcpTransport struct {
	mu       sync.Mutex
	listener net.Listener
	dialer   net.Dialer
}

func NewTCPTransport() Transport {
	return &tcpTransport{}
}

func (t *tcpTransport) Listen(bindAddr string) (Addr, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return "", err
	}
	t.listener = l
	return Addr(l.Addr().String()), nil
}

func (t *tcpTransport) Accept() (Conn, error) {
	t.mu.Lock()
	l := t.listener
	t.mu.Unlock()

	if l == nil {
		return nil, net.ErrClosed
	}
	c, err := l.Accept()
	if err != nil {
		return nil, err
	}
	return &tcpConn{Conn: c}, nil
}

func (t *tcpTransport) Dial(ctx context.Context, addr Addr) (Conn, error) {
	c, err := t.dialer.DialContext(ctx, "tcp", string(addr))
	if err != nil {
		return nil, err
	}
	return &tcpConn{Conn: c}, nil
}

// Close stops the listener. Established conns are unaffected.
func (t *tcpTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener != nil {
		err := t.listener.Close()
		t.listener = nil
		return err
	}
	return nil
}

type tcpConn struct {
	net.Conn
}

func (c *tcpConn) RemoteAddr() Addr {
	return Addr(c.Conn.RemoteAddr().String())
}

// Port extracts the numeric port from a listen address such as
// "0.0.0.0:5000" or "[::]:5000".
func Port(a Addr) (int, error) {
	_, p, err := net.SplitHostPort(string(a))
	if err != nil {
		return 0, err
	}
	return net.LookupPort("tcp", p)
}
