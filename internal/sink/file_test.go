package sink

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileSink_WriteAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.out")

	s, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("NewFileSink failed: %v", err)
	}

	for _, chunk := range []string{"HELLO", "WORLD"} {
		n, err := s.Write([]byte(chunk))
		if err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if n != len(chunk) {
			t.Errorf("Expected %d bytes written, got %d", len(chunk), n)
		}
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "HELLOWORLD" {
		t.Errorf("Expected file to contain %q, got %q", "HELLOWORLD", string(data))
	}
}

func TestFileSink_ReopensAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.out")

	s, err := NewFileSink(path)
	if err != nil {
		t.Fatal(err)
	}
	s.Write([]byte("FIRST"))
	s.Close()

	// A restarted agent must append, not truncate
	s, err = NewFileSink(path)
	if err != nil {
		t.Fatal(err)
	}
	s.Write([]byte("SECOND"))
	s.Close()

	data, _ := os.ReadFile(path)
	if string(data) != "FIRSTSECOND" {
		t.Errorf("Expected appended contents, got %q", string(data))
	}
}

func TestNewFileSink_BadPath(t *testing.T) {
	if _, err := NewFileSink(filepath.Join(t.TempDir(), "missing", "samples.out")); err == nil {
		t.Error("Expected error for unwritable path")
	}
}
