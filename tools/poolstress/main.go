package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SkynetNext/prof-agent/internal/profbuf"
	"github.com/SkynetNext/prof-agent/internal/record"
)

var (
	bufferCount = flag.Int("buffer-count", 32, "Number of pool slots")
	bufferSize  = flag.Int("buffer-size", 8192, "Per-slot capacity in bytes")
	producers   = flag.Int("producers", 8, "Number of concurrent producers")
	duration    = flag.Duration("duration", 10*time.Second, "Test duration")
	stackDepth  = flag.Int("stack-depth", 32, "Frames per synthetic sample")
	out         = flag.String("out", "", "Sink file path (empty = discard)")
	slowSink    = flag.Duration("slow-sink", 0, "Artificial sink latency per write")
)

type stats struct {
	committed uint64
	dropped   uint64
	bytes     uint64
}

var st stats

// discardSink counts bytes and optionally sleeps, to model a slow fd.
type discardSink struct {
	delay time.Duration
}

func (d *discardSink) Write(p []byte) (int, error) {
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	atomic.AddUint64(&st.bytes, uint64(len(p)))
	return len(p), nil
}

func main() {
	flag.Parse()

	fmt.Printf("=== Buffer Pool Stress ===\n")
	fmt.Printf("Slots: %d x %d bytes, producers: %d, duration: %v\n\n",
		*bufferCount, *bufferSize, *producers, *duration)

	pool, err := profbuf.New(*bufferCount, *bufferSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pool: %v\n", err)
		os.Exit(1)
	}

	var sink io.Writer = &discardSink{delay: *slowSink}
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			fmt.Fprintf(os.Stderr, "sink: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		sink = f
	}

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < *producers; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			produce(ctx, pool, sink, seed)
		}(int64(i))
	}
	wg.Wait()

	pool.Shutdown(sink)
	elapsed := time.Since(start)

	committed := atomic.LoadUint64(&st.committed)
	dropped := atomic.LoadUint64(&st.dropped)
	bytes := atomic.LoadUint64(&st.bytes)

	fmt.Printf("committed: %d (%.0f/s)\n", committed, float64(committed)/elapsed.Seconds())
	fmt.Printf("dropped:   %d (%.2f%%)\n", dropped,
		100*float64(dropped)/float64(committed+dropped+1))
	fmt.Printf("flushed:   %d bytes (%.1f MB/s)\n", bytes,
		float64(bytes)/elapsed.Seconds()/(1<<20))
}

func produce(ctx context.Context, pool *profbuf.Pool, sink io.Writer, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	pcs := make([]uintptr, *stackDepth)

	for ctx.Err() == nil {
		depth := 1 + rng.Intn(*stackDepth)
		for i := 0; i < depth; i++ {
			pcs[i] = uintptr(rng.Uint64())
		}
		rec := record.AppendStack(nil, time.Now().UnixNano(), pcs[:depth])

		h, ok := pool.Reserve(sink)
		if !ok {
			atomic.AddUint64(&st.dropped, 1)
			continue
		}
		if err := h.Append(rec); err != nil {
			atomic.AddUint64(&st.dropped, 1)
		} else {
			atomic.AddUint64(&st.committed, 1)
		}
		pool.Commit(sink, h)
	}
}
