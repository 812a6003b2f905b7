package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SkynetNext/prof-agent/internal/circuitbreaker"
	"github.com/SkynetNext/prof-agent/internal/config"
	"github.com/SkynetNext/prof-agent/internal/metrics"
	"github.com/SkynetNext/prof-agent/internal/retry"
	"github.com/redis/go-redis/v9"
)

// ErrBreakerOpen is returned when the circuit breaker is rejecting writes.
// The pool treats it like any other sink error: bytes stay buffered.
var ErrBreakerOpen = errors.New("sink: redis circuit breaker open")

// RedisSink appends flushed buffers as chunks to a Redis Stream. A chunk
// is all-or-nothing: success consumes the whole buffer, failure consumes
// none of it, so the pool never splits a chunk across stream entries.
//
// A circuit breaker guards the stream so a dead Redis degrades to fast
// local failure instead of a blocking-dial stall on every flush.
type RedisSink struct {
	rdb     *redis.Client
	stream  string
	maxLen  int64
	timeout time.Duration
	breaker *circuitbreaker.Breaker
}

// NewRedisSink connects to Redis and verifies the connection with retry.
func NewRedisSink(ctx context.Context, cfg *config.RedisSinkConfig) (*RedisSink, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	err := retry.Do(ctx, retry.Config{MaxRetries: cfg.MaxRetries, RetryDelay: cfg.RetryDelay}, func() error {
		return rdb.Ping(ctx).Err()
	})
	if err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisSink{
		rdb:     rdb,
		stream:  cfg.Stream,
		maxLen:  cfg.MaxStreamLen,
		timeout: cfg.WriteTimeout,
		breaker: circuitbreaker.NewBreaker(cfg.BreakerMaxFailures, cfg.BreakerTimeout),
	}, nil
}

// Write appends p as one stream entry. Returns (len(p), nil) on success
// and (0, err) on failure; there is no partial case for this sink.
func (s *RedisSink) Write(p []byte) (int, error) {
	if !s.breaker.Allow() {
		metrics.SinkBreakerRejected.Inc()
		return 0, ErrBreakerOpen
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	err := s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]interface{}{"chunk": p},
	}).Err()
	if err != nil {
		s.breaker.RecordFailure()
		metrics.SinkBreakerState.Set(float64(s.breaker.State()))
		return 0, fmt.Errorf("failed to append to stream %s: %w", s.stream, err)
	}

	s.breaker.RecordSuccess()
	metrics.SinkBreakerState.Set(float64(s.breaker.State()))
	return len(p), nil
}

// Sync is a no-op; XAdd is durable once acknowledged.
func (s *RedisSink) Sync() error {
	return nil
}

// Close closes the Redis connection.
func (s *RedisSink) Close() error {
	return s.rdb.Close()
}

// BreakerState returns the sink breaker state for monitoring.
func (s *RedisSink) BreakerState() circuitbreaker.State {
	return s.breaker.State()
}
