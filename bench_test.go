package main

import (
	"io"
	"testing"
	"time"

	"github.com/SkynetNext/prof-agent/internal/profbuf"
	"github.com/SkynetNext/prof-agent/internal/record"
)

func BenchmarkPool_ReserveCommit(b *testing.B) {
	pool, err := profbuf.New(32, 8192)
	if err != nil {
		b.Fatal(err)
	}

	pcs := []uintptr{0x401000, 0x402000, 0x403000, 0x404000}
	rec := record.AppendStack(nil, time.Now().UnixNano(), pcs)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			h, ok := pool.Reserve(io.Discard)
			if !ok {
				continue
			}
			h.Append(rec)
			pool.Commit(io.Discard, h)
		}
	})
}

func BenchmarkRecord_AppendStack(b *testing.B) {
	pcs := make([]uintptr, 32)
	for i := range pcs {
		pcs[i] = uintptr(0x400000 + i)
	}

	buf := make([]byte, 0, record.StackRecordSize(len(pcs)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf = record.AppendStack(buf[:0], int64(i), pcs)
	}
}
