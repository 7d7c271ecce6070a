package countstore

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"
)

// MemCountStore keeps counters in process memory. Buckets are never expired, which is fine for a
// single daemon lifetime but not for long-running deployments with many members; use redis there.
type MemCountStore struct {
	Clock clockwork.Clock

	mu     sync.Mutex
	counts map[string]int
}

var _ CountStore = (*MemCountStore)(nil)

func NewMemCountStore(clk clockwork.Clock) *MemCountStore {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &MemCountStore{
		Clock:  clk,
		counts: make(map[string]int),
	}
}

func (s *MemCountStore) GetCount(ctx context.Context, name, val, period string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[periodBucket(name, val, period, s.Clock.Now())], nil
}

func (s *MemCountStore) Increment(ctx context.Context, name, val string) error {
	now := s.Clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range []string{PeriodTotal, PeriodDay, PeriodHour} {
		s.counts[periodBucket(name, val, p, now)]++
	}
	return nil
}
