package rate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alphabot-ai/nodebird/internal/clock"
)

// RedisLimiter shares fixed windows across gateway replicas. Each window is
// a counter key that expires with the window.
type RedisLimiter struct {
	rdb    redis.Cmdable
	prefix string
	clock  clock.Clock
}

type RedisOption func(*RedisLimiter)

func WithPrefix(prefix string) RedisOption {
	return func(l *RedisLimiter) { l.prefix = strings.Trim(prefix, ":") }
}

func NewRedis(rdb redis.Cmdable, clk clock.Clock, opts ...RedisOption) *RedisLimiter {
	if clk == nil {
		clk = clock.Real()
	}
	l := &RedisLimiter{rdb: rdb, prefix: "nodebird:rl", clock: clk}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	now := l.clock.Now()
	slot := now.UnixNano() / int64(window)
	resetAt := time.Unix(0, (slot+1)*int64(window))
	counterKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, slot)

	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, counterKey)
	pipe.PExpire(ctx, counterKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("redis rate window: %w", err)
	}

	count := int(incr.Val())
	d := Decision{Limit: limit, RetryAfter: resetAt.Sub(now)}
	if count > limit {
		return d, nil
	}
	d.Allowed = true
	d.Remaining = limit - count
	return d, nil
}
