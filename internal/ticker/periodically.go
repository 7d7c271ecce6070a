package ticker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Periodically runs the provided task function at the specified interval until the context is done or an error occurs.
//
// Runs never overlap: ticks which arrive while the task is still executing are dropped.
func Periodically(ctx context.Context, clk clockwork.Clock, interval time.Duration, task func(context.Context) error) error {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	ticker := clk.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			if err := task(ctx); err != nil {
				return fmt.Errorf("periodic task failed: %w", err)
			}
		}
	}
}

// Exclusive wraps a task so that concurrent callers skip, rather than queue behind, a run which is
// already in progress. The returned bool reports whether the task ran.
type Exclusive struct {
	mu sync.Mutex
}

func (x *Exclusive) Do(ctx context.Context, task func(context.Context) error) (bool, error) {
	if !x.mu.TryLock() {
		return false, nil
	}
	defer x.mu.Unlock()
	return true, task(ctx)
}
