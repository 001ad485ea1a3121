package bootstrap

import (
	"context"

	"p2p-mesh/internal/netx"
)

// Book lists addresses worth redialing, most recent first.
// storage/peerbolt implements it.
type Book interface {
	Dialable(limit int) ([]string, error)
}

type BookSource struct {
	Book  Book
	Limit int
}

func (s BookSource) Name() string { return "peerbook" }

func (s BookSource) Discover(ctx context.Context) ([]netx.Addr, error) {
	addrs, err := s.Book.Dialable(s.Limit)
	if err != nil {
		return nil, err
	}
	out := make([]netx.Addr, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, netx.Addr(a))
	}
	return out, nil
}
