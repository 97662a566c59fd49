package metrics

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/remindkit/pkg/logger"
)

// HashClient is the subset of *redis.Client the sink uses.
type HashClient interface {
	HIncrBy(ctx context.Context, key, field string, incr int64) *redis.IntCmd
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

// RedisSink stores counters and gauges as fields of one Redis hash so every
// replica reports into the same numbers.
//
// When Redis fails the sink logs a warning, writes to an in-process
// MemorySink instead and stays on it for the cooldown before trying Redis
// again. Snapshot merges both.
type RedisSink struct {
	client   HashClient
	key      string
	cooldown time.Duration
	log      *slog.Logger
	local    *MemorySink
	now      func() time.Time

	mu            sync.Mutex
	degradedUntil time.Time
}

// RedisOption configures a RedisSink.
type RedisOption func(*RedisSink)

// WithHashKey sets the Redis hash holding all values, metrics:counters by default.
func WithHashKey(key string) RedisOption {
	return func(s *RedisSink) {
		if key != "" {
			s.key = key
		}
	}
}

// WithCooldown sets how long the sink stays on its in-process fallback after
// a Redis error before trying Redis again.
func WithCooldown(d time.Duration) RedisOption {
	return func(s *RedisSink) {
		if d > 0 {
			s.cooldown = d
		}
	}
}

// WithLogger sets the logger used to report Redis failures.
func WithLogger(l *slog.Logger) RedisOption {
	return func(s *RedisSink) {
		if l != nil {
			s.log = l
		}
	}
}

// NewRedisSink creates a sink writing to one Redis hash. Values shared by
// several workers add up there.
func NewRedisSink(client HashClient, opts ...RedisOption) *RedisSink {
	s := &RedisSink{
		client:   client,
		key:      "metrics:counters",
		cooldown: time.Minute,
		log:      slog.Default(),
		local:    NewMemorySink(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("metrics"))
	return s
}

// IncrementCounter runs HINCRBY on the hash.
func (s *RedisSink) IncrementCounter(ctx context.Context, name string, amount int64) {
	if amount == 0 {
		return
	}
	if s.usable() {
		err := s.client.HIncrBy(ctx, s.key, name, amount).Err()
		if err == nil {
			return
		}
		s.degrade(ctx, name, err)
	}
	s.local.IncrementCounter(ctx, name, amount)
}

// SetGauge runs HSET on the hash.
func (s *RedisSink) SetGauge(ctx context.Context, name string, value float64) {
	if s.usable() {
		err := s.client.HSet(ctx, s.key, name, strconv.FormatFloat(value, 'f', -1, 64)).Err()
		if err == nil {
			return
		}
		s.degrade(ctx, name, err)
	}
	s.local.SetGauge(ctx, name, value)
}

func (s *RedisSink) RecordLatency(ctx context.Context, latency time.Duration) {
	for name, n := range latencyIncrements(latency) {
		s.IncrementCounter(ctx, name, n)
	}
}

// Snapshot sums counters from Redis and the local fallback. For gauges the
// Redis value wins when both exist.
func (s *RedisSink) Snapshot(ctx context.Context) Snapshot {
	counters, gauges := s.local.values()

	if s.usable() {
		values, err := s.client.HGetAll(ctx, s.key).Result()
		if err != nil {
			s.log.WarnContext(ctx, "failed to read redis metrics", logger.Error(err))
		}
		for field, raw := range values {
			if field != WorkerUptimeSeconds {
				if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
					counters[field] += n
					continue
				}
			}
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				gauges[field] = f
			}
		}
	}
	return newSnapshot(s.now().UTC(), counters, gauges)
}

func (s *RedisSink) usable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.now().Before(s.degradedUntil)
}

func (s *RedisSink) degrade(ctx context.Context, name string, err error) {
	s.mu.Lock()
	s.degradedUntil = s.now().Add(s.cooldown)
	s.mu.Unlock()

	s.log.WarnContext(ctx, "redis metrics unavailable, using local fallback",
		slog.String("metric", name),
		logger.Error(err))
}
