package ratelimit

import (
	"sync/atomic"
	"time"
)

// Limiter caps the number of samples admitted per one-second window.
// It protects the buffer pool from a misconfigured or runaway sampler:
// excess samples are rejected and counted instead of flooding the pool.
//
// Allow is lock-free; window rotation races may admit a handful of extra
// samples around the window boundary, which is acceptable for a safety cap.
type Limiter struct {
	perSecond   int64
	windowStart int64 // Unix nanoseconds of the current window (atomic)
	count       int64 // Samples admitted in the current window (atomic)
}

// NewLimiter creates a limiter admitting at most perSecond samples per second.
func NewLimiter(perSecond int64) *Limiter {
	return &Limiter{
		perSecond:   perSecond,
		windowStart: time.Now().UnixNano(),
	}
}

// Allow checks if another sample is admitted in the current window.
func (l *Limiter) Allow() bool {
	now := time.Now().UnixNano()
	start := atomic.LoadInt64(&l.windowStart)
	if now-start >= int64(time.Second) {
		if atomic.CompareAndSwapInt64(&l.windowStart, start, now) {
			atomic.StoreInt64(&l.count, 0)
		}
	}
	return atomic.AddInt64(&l.count, 1) <= atomic.LoadInt64(&l.perSecond)
}

// SetLimit updates the per-second budget (used by config hot reload).
func (l *Limiter) SetLimit(perSecond int64) {
	atomic.StoreInt64(&l.perSecond, perSecond)
}

// Current returns the number of samples admitted in the current window.
func (l *Limiter) Current() int64 {
	return atomic.LoadInt64(&l.count)
}

// Max returns the per-second budget.
func (l *Limiter) Max() int64 {
	return atomic.LoadInt64(&l.perSecond)
}
