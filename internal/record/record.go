package record

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Record types
const (
	// TypeStack is a stack sample: a sequence of program counters,
	// innermost frame first
	TypeStack uint32 = 1

	// TypeCounters is a runtime counters snapshot
	TypeCounters uint32 = 2
)

// HeaderSize is the size of the record header (16 bytes: Length + Type + TimestampNs)
const HeaderSize = 4 + 4 + 8

// countersBodySize is the fixed body size of a counters record
// (NumGoroutine + HeapAlloc + HeapSys + PauseTotalNs)
const countersBodySize = 4 + 8 + 8 + 8

var (
	// ErrShortRecord indicates a truncated header or body
	ErrShortRecord = errors.New("record: truncated record")
)

// Record Header Structure (16 bytes, Little Endian):
//
//	Offset  Size  Type    Description
//	0-3     4     uint32  length - record body length (excluding header)
//	4-7     4     uint32  type - record type (TypeStack / TypeCounters)
//	8-15    8     int64   timestamp_ns - capture time, Unix nanoseconds
//
// Stack record body:
//	[NumPCs (4 bytes)] + [PC (8 bytes)] * NumPCs
//
// Counters record body:
//	[NumGoroutine (4 bytes)] + [HeapAlloc (8 bytes)] + [HeapSys (8 bytes)] + [PauseTotalNs (8 bytes)]

// Record is a decoded sample record
type Record struct {
	Type        uint32
	TimestampNs int64

	// Stack sample fields (TypeStack)
	PCs []uint64

	// Runtime counter fields (TypeCounters)
	NumGoroutine uint32
	HeapAlloc    uint64
	HeapSys      uint64
	PauseTotalNs uint64
}

// Counters is a runtime counters snapshot for encoding
type Counters struct {
	NumGoroutine uint32
	HeapAlloc    uint64
	HeapSys      uint64
	PauseTotalNs uint64
}

// StackRecordSize returns the encoded size of a stack record with depth PCs.
func StackRecordSize(depth int) int {
	return HeaderSize + 4 + 8*depth
}

// AppendStack appends an encoded stack sample record to dst and returns
// the extended slice.
func AppendStack(dst []byte, timestampNs int64, pcs []uintptr) []byte {
	bodyLen := 4 + 8*len(pcs)
	dst = appendHeader(dst, uint32(bodyLen), TypeStack, timestampNs)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(pcs)))
	for _, pc := range pcs {
		dst = binary.LittleEndian.AppendUint64(dst, uint64(pc))
	}
	return dst
}

// AppendCounters appends an encoded runtime counters record to dst and
// returns the extended slice.
func AppendCounters(dst []byte, timestampNs int64, c Counters) []byte {
	dst = appendHeader(dst, countersBodySize, TypeCounters, timestampNs)
	dst = binary.LittleEndian.AppendUint32(dst, c.NumGoroutine)
	dst = binary.LittleEndian.AppendUint64(dst, c.HeapAlloc)
	dst = binary.LittleEndian.AppendUint64(dst, c.HeapSys)
	dst = binary.LittleEndian.AppendUint64(dst, c.PauseTotalNs)
	return dst
}

func appendHeader(dst []byte, bodyLen, typ uint32, timestampNs int64) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, bodyLen)
	dst = binary.LittleEndian.AppendUint32(dst, typ)
	dst = binary.LittleEndian.AppendUint64(dst, uint64(timestampNs))
	return dst
}

// Decode decodes the first record in buf and returns it together with the
// remaining bytes. Used by stream readers and tests.
func Decode(buf []byte) (*Record, []byte, error) {
	if len(buf) < HeaderSize {
		return nil, buf, ErrShortRecord
	}

	bodyLen := binary.LittleEndian.Uint32(buf[0:4])
	typ := binary.LittleEndian.Uint32(buf[4:8])
	ts := int64(binary.LittleEndian.Uint64(buf[8:16]))

	if len(buf) < HeaderSize+int(bodyLen) {
		return nil, buf, ErrShortRecord
	}
	body := buf[HeaderSize : HeaderSize+int(bodyLen)]
	rest := buf[HeaderSize+int(bodyLen):]

	rec := &Record{Type: typ, TimestampNs: ts}

	switch typ {
	case TypeStack:
		if len(body) < 4 {
			return nil, buf, ErrShortRecord
		}
		n := binary.LittleEndian.Uint32(body[0:4])
		if len(body) < 4+8*int(n) {
			return nil, buf, ErrShortRecord
		}
		rec.PCs = make([]uint64, n)
		for i := range rec.PCs {
			rec.PCs[i] = binary.LittleEndian.Uint64(body[4+8*i:])
		}
	case TypeCounters:
		if len(body) < countersBodySize {
			return nil, buf, ErrShortRecord
		}
		rec.NumGoroutine = binary.LittleEndian.Uint32(body[0:4])
		rec.HeapAlloc = binary.LittleEndian.Uint64(body[4:12])
		rec.HeapSys = binary.LittleEndian.Uint64(body[12:20])
		rec.PauseTotalNs = binary.LittleEndian.Uint64(body[20:28])
	default:
		return nil, buf, fmt.Errorf("record: unknown record type %d", typ)
	}

	return rec, rest, nil
}
