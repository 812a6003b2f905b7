package record

import (
	"errors"
	"testing"
)

func TestStackRecord_RoundTrip(t *testing.T) {
	pcs := []uintptr{0x401000, 0x402abc, 0x7fff0001}
	buf := AppendStack(nil, 1234567890, pcs)

	if len(buf) != StackRecordSize(len(pcs)) {
		t.Errorf("Expected encoded size %d, got %d", StackRecordSize(len(pcs)), len(buf))
	}

	rec, rest, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(rest) != 0 {
		t.Errorf("Expected no trailing bytes, got %d", len(rest))
	}
	if rec.Type != TypeStack {
		t.Errorf("Expected type=%d, got %d", TypeStack, rec.Type)
	}
	if rec.TimestampNs != 1234567890 {
		t.Errorf("Expected timestamp=1234567890, got %d", rec.TimestampNs)
	}
	if len(rec.PCs) != len(pcs) {
		t.Fatalf("Expected %d PCs, got %d", len(pcs), len(rec.PCs))
	}
	for i, pc := range pcs {
		if rec.PCs[i] != uint64(pc) {
			t.Errorf("PC %d: expected %#x, got %#x", i, pc, rec.PCs[i])
		}
	}
}

func TestCountersRecord_RoundTrip(t *testing.T) {
	c := Counters{
		NumGoroutine: 42,
		HeapAlloc:    1 << 20,
		HeapSys:      1 << 22,
		PauseTotalNs: 987654,
	}
	buf := AppendCounters(nil, 99, c)

	rec, _, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if rec.Type != TypeCounters {
		t.Errorf("Expected type=%d, got %d", TypeCounters, rec.Type)
	}
	if rec.NumGoroutine != c.NumGoroutine || rec.HeapAlloc != c.HeapAlloc ||
		rec.HeapSys != c.HeapSys || rec.PauseTotalNs != c.PauseTotalNs {
		t.Errorf("Counters mismatch: got %+v", rec)
	}
}

func TestDecode_Stream(t *testing.T) {
	// Two records back to back, the way they land in a slot
	buf := AppendStack(nil, 1, []uintptr{0x1})
	buf = AppendCounters(buf, 2, Counters{NumGoroutine: 7})

	first, rest, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode first failed: %v", err)
	}
	if first.Type != TypeStack {
		t.Errorf("Expected first record to be a stack sample, got type %d", first.Type)
	}

	second, rest, err := Decode(rest)
	if err != nil {
		t.Fatalf("Decode second failed: %v", err)
	}
	if second.Type != TypeCounters || second.NumGoroutine != 7 {
		t.Errorf("Expected counters record with 7 goroutines, got %+v", second)
	}
	if len(rest) != 0 {
		t.Errorf("Expected stream consumed, %d bytes left", len(rest))
	}
}

func TestDecode_Truncated(t *testing.T) {
	buf := AppendStack(nil, 1, []uintptr{0x1, 0x2})

	for cut := 0; cut < len(buf); cut++ {
		if _, _, err := Decode(buf[:cut]); !errors.Is(err, ErrShortRecord) {
			t.Errorf("Expected ErrShortRecord at cut=%d, got %v", cut, err)
		}
	}
}
