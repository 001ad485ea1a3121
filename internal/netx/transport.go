package netx

import (
	"context"
	"io"
	"time"
)

type Addr string

// Conn is one established stream link.
type Conn interface {
	io.ReadWriteCloser
	RemoteAddr() Addr
	SetReadDeadline(t time.Time) error
}

// Transport listens for and dials stream links.
type Transport interface {
	Listen(bindAddr string) (listenAddr Addr, err error)
	Accept() (Conn, error)
	Dial(ctx context.Context, addr Addr) (Conn, error)
	Close() error
}
