package sampler

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SkynetNext/prof-agent/internal/buffer"
	"github.com/SkynetNext/prof-agent/internal/config"
	"github.com/SkynetNext/prof-agent/internal/logger"
	"github.com/SkynetNext/prof-agent/internal/metrics"
	"github.com/SkynetNext/prof-agent/internal/profbuf"
	"github.com/SkynetNext/prof-agent/internal/ratelimit"
	"github.com/SkynetNext/prof-agent/internal/record"
	"github.com/SkynetNext/prof-agent/internal/sink"
	"go.uber.org/zap"
)

// countersEvery is how many stack samples pass between runtime counter
// snapshots (ReadMemStats is too expensive to take per sample)
const countersEvery = 100

// Sampler periodically captures runtime samples, encodes them and pushes
// them through the buffer pool. It is a pure producer: when the pool is
// saturated the sample is dropped and counted, never waited for.
type Sampler struct {
	pool     *profbuf.Pool
	sink     sink.Sink
	limiter  *ratelimit.Limiter
	maxDepth int

	intervalNs int64 // atomic, sampling period in nanoseconds
	reloadChan chan struct{}

	samples uint64 // samples since the last counters snapshot

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopChan chan struct{}
}

// New creates a sampler producing into pool and flushing to s.
func New(pool *profbuf.Pool, s sink.Sink, cfg *config.SamplerConfig) *Sampler {
	return &Sampler{
		pool:       pool,
		sink:       s,
		limiter:    ratelimit.NewLimiter(int64(cfg.RateLimit)),
		maxDepth:   cfg.MaxStackDepth,
		intervalNs: int64(time.Second) / int64(cfg.Hz),
		reloadChan: make(chan struct{}, 1),
		stopChan:   make(chan struct{}),
	}
}

// Start launches the sampling goroutine.
func (s *Sampler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()

	logger.L.Info("sampler started",
		zap.Duration("interval", time.Duration(atomic.LoadInt64(&s.intervalNs))),
		zap.Int("max_stack_depth", s.maxDepth),
	)
}

// Stop halts sampling and waits for the sampling goroutine to exit.
// The pool may still hold committed data; draining it is the caller's job.
func (s *Sampler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
}

// Reload applies hot-reloadable sampler settings. Idempotent: reapplying
// the current settings does not disturb the sampling cadence.
func (s *Sampler) Reload(cfg *config.SamplerConfig) {
	s.limiter.SetLimit(int64(cfg.RateLimit))

	newInterval := int64(time.Second) / int64(cfg.Hz)
	if atomic.SwapInt64(&s.intervalNs, newInterval) == newInterval {
		return
	}

	// Nudge the run loop to pick up the new interval
	select {
	case s.reloadChan <- struct{}{}:
	default:
	}
}

func (s *Sampler) run(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(atomic.LoadInt64(&s.intervalNs)))
	defer ticker.Stop()

	pcs := make([]uintptr, s.maxDepth)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-s.reloadChan:
			ticker.Reset(time.Duration(atomic.LoadInt64(&s.intervalNs)))
		case <-ticker.C:
			s.capture(pcs)
		}
	}
}

// capture takes one sample and commits it through the pool.
func (s *Sampler) capture(pcs []uintptr) {
	if !s.limiter.Allow() {
		metrics.IncSampleDropped("rate_limited")
		return
	}

	start := time.Now()

	scratch := buffer.Get()
	defer buffer.Put(scratch)

	n := runtime.Callers(2, pcs)
	scratch = record.AppendStack(scratch, start.UnixNano(), pcs[:n])

	s.samples++
	if s.samples%countersEvery == 0 {
		scratch = record.AppendCounters(scratch, start.UnixNano(), snapshotCounters())
	}

	h, ok := s.pool.Reserve(s.sink)
	if !ok {
		// Pool saturated or shut down; drop, never wait
		metrics.IncSampleDropped("pool_saturated")
		return
	}
	if err := h.Append(scratch); err != nil {
		// Commit the empty handle so the slot is recycled, but the
		// sample itself was dropped, not captured
		metrics.IncSampleDropped("record_too_large")
		s.pool.Commit(s.sink, h)
		return
	}
	s.pool.Commit(s.sink, h)

	metrics.SamplesCaptured.Inc()
	metrics.SampleEncodeLatency.Observe(time.Since(start).Seconds())
}

// snapshotCounters reads runtime counters for a counters record.
func snapshotCounters() record.Counters {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return record.Counters{
		NumGoroutine: uint32(runtime.NumGoroutine()),
		HeapAlloc:    ms.HeapAlloc,
		HeapSys:      ms.HeapSys,
		PauseTotalNs: ms.PauseTotalNs,
	}
}
