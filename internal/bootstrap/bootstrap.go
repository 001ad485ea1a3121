// Package bootstrap dials an initial set of peers gathered from several
// sources when a node starts.
package bootstrap

import (
	"context"
	"math/rand"
	"time"

	"p2p-mesh/internal/netx"
	"p2p-mesh/internal/p2p"
)

type Config struct {
	MaxConnectPerRound int
	PerAddrTimeout     time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxConnectPerRound: 12,
		PerAddrTimeout:     2 * time.Second,
	}
}

// RunOnce gathers candidates from sources and dials them, skipping
// addresses already linked. It returns the number of links it opened.
func RunOnce(ctx context.Context, n *p2p.Network, cfg Config, sources ...PeerSource) int {
	if cfg.PerAddrTimeout <= 0 {
		cfg.PerAddrTimeout = DefaultConfig().PerAddrTimeout
	}
	if cfg.MaxConnectPerRound <= 0 {
		cfg.MaxConnectPerRound = DefaultConfig().MaxConnectPerRound
	}

	cands := make([]netx.Addr, 0, 64)

	for _, s := range sources {
		addrs, err := s.Discover(ctx)
		if err != nil {
			n.Logf("[bootstrap] %s discover error: %v", s.Name(), err)
			continue
		}
		cands = append(cands, addrs...)
	}

	// Shuffle to avoid everyone hitting the same bootstrap in the same order.
	rand.Shuffle(len(cands), func(i, j int) { cands[i], cands[j] = cands[j], cands[i] })

	seen := make(map[string]struct{}, len(cands))
	for _, p := range n.Peers() {
		seen[p.Address()] = struct{}{}
	}

	connected := 0
	for _, a := range cands {
		if connected >= cfg.MaxConnectPerRound || ctx.Err() != nil {
			break
		}
		key := string(a)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		dctx, cancel := context.WithTimeout(ctx, cfg.PerAddrTimeout)
		_, err := n.ConnectTo(dctx, a)
		cancel()
		if err != nil {
			n.Logf("[bootstrap] dial %s: %v", a, err)
			continue
		}
		connected++
	}
	return connected
}
