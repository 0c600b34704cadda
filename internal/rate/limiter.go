package rate

import (
	"context"
	"sync"
	"time"

	"github.com/alphabot-ai/nodebird/internal/clock"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is the time left in the current window.
	RetryAfter time.Duration
}

// Limiter enforces a fixed window of at most limit calls per key.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

type MemoryLimiter struct {
	mu    sync.Mutex
	clock clock.Clock
	store map[string]*bucket
}

type bucket struct {
	count   int
	resetAt time.Time
	window  time.Duration
}

func NewMemory(clk clock.Clock) *MemoryLimiter {
	if clk == nil {
		clk = clock.Real()
	}
	return &MemoryLimiter{clock: clk, store: make(map[string]*bucket)}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	b, ok := m.store[key]
	if !ok || !now.Before(b.resetAt) || b.window != window {
		b = &bucket{count: 0, resetAt: now.Add(window), window: window}
		m.store[key] = b
	}

	d := Decision{Limit: limit, RetryAfter: b.resetAt.Sub(now)}
	if b.count >= limit {
		return d, nil
	}

	b.count++
	d.Allowed = true
	d.Remaining = limit - b.count
	return d, nil
}

// Sweep drops buckets whose window has ended.
func (m *MemoryLimiter) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	removed := 0
	for k, b := range m.store {
		if !now.Before(b.resetAt) {
			delete(m.store, k)
			removed++
		}
	}
	return removed
}

// StartJanitor sweeps expired buckets every interval until ctx is done.
func (m *MemoryLimiter) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				m.Sweep()
			}
		}
	}()
}
