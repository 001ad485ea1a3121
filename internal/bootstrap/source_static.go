package bootstrap

import (
	"context"
	"strings"

	"p2p-mesh/internal/netx"
)

type StaticSource struct {
	Addrs []netx.Addr
	Label string
}

// ParseStatic splits a comma-separated host:port list.
func ParseStatic(list string) StaticSource {
	var s StaticSource
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			s.Addrs = append(s.Addrs, netx.Addr(part))
		}
	}
	return s
}

func (s StaticSource) Name() string {
	if s.Label != "" {
		return s.Label
	}
	return "static"
}

func (s StaticSource) Discover(ctx context.Context) ([]netx.Addr, error) {
	return append([]netx.Addr(nil), s.Addrs...), nil
}
