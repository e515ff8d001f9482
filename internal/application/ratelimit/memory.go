package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps a sliding log of hit times per key in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	hits map[string][]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{hits: make(map[string][]time.Time)}
}

func (s *MemoryStore) Hit(_ context.Context, key string, p Policy, now time.Time) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := prune(s.hits[key], now.Add(-p.Window))
	if len(log) >= p.Max {
		s.hits[key] = log
		return Decision{Allowed: false, RetryAfter: log[0].Add(p.Window).Sub(now)}, nil
	}
	log = append(log, now)
	s.hits[key] = log
	return Decision{Allowed: true, Remaining: p.Max - len(log)}, nil
}

// Sweep drops keys with no hits newer than maxWindow. Returns the number dropped.
func (s *MemoryStore) Sweep(now time.Time, maxWindow time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, log := range s.hits {
		if len(log) == 0 || !log[len(log)-1].After(now.Add(-maxWindow)) {
			delete(s.hits, k)
			n++
		}
	}
	return n
}

// prune drops hits at or before cutoff. log is sorted oldest first.
func prune(log []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(log) && !log[i].After(cutoff) {
		i++
	}
	return log[i:]
}
