package p2p

import (
	"sync"
	"time"
)

// seenCache remembers keys for a TTL. Discovery uses it to collapse bursts
// of datagrams from one sender into a single connect-back.
type seenCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	items map[string]time.Time
}

func newSeenCache(ttl time.Duration) *seenCache {
	return &seenCache{
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]time.Time),
	}
}

// Seen returns true if key was recorded within the TTL. Otherwise it
// records key and returns false.
func (s *seenCache) Seen(key string) bool {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, t := range s.items {
		if now.Sub(t) > s.ttl {
			delete(s.items, k)
		}
	}

	if _, ok := s.items[key]; ok {
		return true
	}
	s.items[key] = now
	return false
}
