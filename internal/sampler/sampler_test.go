package sampler

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/SkynetNext/prof-agent/internal/config"
	"github.com/SkynetNext/prof-agent/internal/logger"
	"github.com/SkynetNext/prof-agent/internal/metrics"
	"github.com/SkynetNext/prof-agent/internal/profbuf"
	"github.com/SkynetNext/prof-agent/internal/record"
)

func TestMain(m *testing.M) {
	if err := logger.Init("error"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// memorySink collects flushed chunks for decoding.
type memorySink struct {
	mu   sync.Mutex
	data []byte
}

func (s *memorySink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append(s.data, p...)
	return len(p), nil
}

func (s *memorySink) Sync() error  { return nil }
func (s *memorySink) Close() error { return nil }

func (s *memorySink) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.data...)
}

func testConfig(hz int) *config.SamplerConfig {
	return &config.SamplerConfig{
		Hz:            hz,
		MaxStackDepth: 32,
		RateLimit:     10 * hz,
	}
}

func TestSampler_ProducesDecodableRecords(t *testing.T) {
	pool, err := profbuf.New(8, 8192)
	if err != nil {
		t.Fatal(err)
	}
	sink := &memorySink{}

	s := New(pool, sink, testConfig(500))
	s.Start(context.Background())
	time.Sleep(200 * time.Millisecond)
	s.Stop()

	pool.Shutdown(sink)

	buf := sink.Bytes()
	if len(buf) == 0 {
		t.Fatal("Expected sampler to produce data")
	}

	count := 0
	for len(buf) > 0 {
		rec, rest, err := record.Decode(buf)
		if err != nil {
			t.Fatalf("Record %d failed to decode: %v", count, err)
		}
		if rec.Type != record.TypeStack && rec.Type != record.TypeCounters {
			t.Errorf("Record %d has unexpected type %d", count, rec.Type)
		}
		if rec.Type == record.TypeStack && len(rec.PCs) == 0 {
			t.Errorf("Record %d is a stack sample with no frames", count)
		}
		buf = rest
		count++
	}

	if count == 0 {
		t.Error("Expected at least one decodable record")
	}
}

func TestSampler_RateLimitDrops(t *testing.T) {
	pool, err := profbuf.New(8, 8192)
	if err != nil {
		t.Fatal(err)
	}
	sink := &memorySink{}

	s := New(pool, sink, &config.SamplerConfig{
		Hz:            1000,
		MaxStackDepth: 16,
		RateLimit:     1, // everything past the first sample per second is dropped
	})

	pcs := make([]uintptr, s.maxDepth)
	for i := 0; i < 10; i++ {
		s.capture(pcs)
	}

	pool.Shutdown(sink)

	// Only the first sample fits the budget
	buf := sink.Bytes()
	count := 0
	for len(buf) > 0 {
		_, rest, err := record.Decode(buf)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		buf = rest
		count++
	}
	if count != 1 {
		t.Errorf("Expected exactly 1 record past the rate limit, got %d", count)
	}
}

func TestSampler_OversizedRecordDroppedNotCaptured(t *testing.T) {
	// Slots far smaller than any stack record, so every append is rejected
	pool, err := profbuf.New(2, 4)
	if err != nil {
		t.Fatal(err)
	}
	sink := &memorySink{}
	s := New(pool, sink, testConfig(100))

	capturedBefore := testutil.ToFloat64(metrics.SamplesCaptured)
	droppedBefore := testutil.ToFloat64(metrics.SamplesDropped.WithLabelValues("record_too_large"))

	pcs := make([]uintptr, s.maxDepth)
	s.capture(pcs)

	if got := testutil.ToFloat64(metrics.SamplesCaptured); got != capturedBefore {
		t.Errorf("Expected dropped sample not to count as captured, counter moved from %v to %v", capturedBefore, got)
	}
	if got := testutil.ToFloat64(metrics.SamplesDropped.WithLabelValues("record_too_large")); got != droppedBefore+1 {
		t.Errorf("Expected one record_too_large drop, counter moved from %v to %v", droppedBefore, got)
	}

	// The slot was still recycled and nothing reached the sink
	if st := pool.Stats(); st.Unused != 2 {
		t.Errorf("Expected slot recycled after rejected append, got %+v", st)
	}
	if len(sink.Bytes()) != 0 {
		t.Errorf("Expected empty sink, got %d bytes", len(sink.Bytes()))
	}
}

func TestSampler_Reload(t *testing.T) {
	pool, err := profbuf.New(4, 8192)
	if err != nil {
		t.Fatal(err)
	}
	s := New(pool, &memorySink{}, testConfig(100))

	s.Reload(&config.SamplerConfig{Hz: 10, MaxStackDepth: 32, RateLimit: 10})

	if got := time.Duration(s.intervalNs); got != 100*time.Millisecond {
		t.Errorf("Expected interval=100ms after reload, got %v", got)
	}
	if s.limiter.Max() != 10 {
		t.Errorf("Expected rate limit=10 after reload, got %d", s.limiter.Max())
	}
}

func TestSampler_StopIsIdempotent(t *testing.T) {
	pool, err := profbuf.New(4, 8192)
	if err != nil {
		t.Fatal(err)
	}
	s := New(pool, &memorySink{}, testConfig(100))
	s.Start(context.Background())

	s.Stop()
	s.Stop()
}
