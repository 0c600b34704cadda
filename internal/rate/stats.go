package rate

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Event describes one limiter decision for statistics.
type Event struct {
	Route   string
	Key     string
	Allowed bool
	At      time.Time
}

type Stats interface {
	Record(ctx context.Context, ev Event) error
}

// RedisStats keeps allowed/denied counters: a cumulative total, one hash per
// minute and one per route.
type RedisStats struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisStats(rdb redis.Cmdable, prefix string, ttl time.Duration) *RedisStats {
	if prefix == "" {
		prefix = "nodebird:rl:stats"
	}
	return &RedisStats{rdb: rdb, prefix: strings.Trim(prefix, ":"), ttl: ttl}
}

func (s *RedisStats) Record(ctx context.Context, ev Event) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := "denied"
	if ev.Allowed {
		field = "allowed"
	}

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)

	bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
	pipe.HIncrBy(ctx, bucketKey, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, bucketKey, s.ttl)
	}
	if route := strings.TrimSpace(ev.Route); route != "" {
		pipe.HIncrBy(ctx, s.prefix+":route", route+":"+field, 1)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Totals returns the cumulative allowed and denied counts.
func (s *RedisStats) Totals(ctx context.Context) (allowed, denied int64, err error) {
	vals, err := s.rdb.HMGet(ctx, s.prefix+":total", "allowed", "denied").Result()
	if err != nil {
		return 0, 0, err
	}
	return toInt64(vals[0]), toInt64(vals[1]), nil
}

func toInt64(v any) int64 {
	str, ok := v.(string)
	if !ok {
		return 0
	}
	n, _ := strconv.ParseInt(str, 10, 64)
	return n
}
