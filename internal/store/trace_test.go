package store

import (
	"errors"
	"testing"
	"time"
)

func TestTraceRoundTrip(t *testing.T) {
	dir := t.TempDir()

	tw, err := NewTraceWriter(dir, "run-1")
	if err != nil {
		t.Fatalf("NewTraceWriter failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		entry := TraceEntry{
			Trial:         i,
			Backend:       "cpu",
			Workers:       i + 1,
			GroupsPerTask: 16,
			Elapsed:       time.Duration(i+1) * time.Millisecond,
			Timestamp:     time.Now(),
		}
		if err := tw.Write(entry); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	entries, err := ReadTrace(dir, "run-1")
	if err != nil {
		t.Fatalf("ReadTrace failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[2].Workers != 3 || entries[2].Elapsed != 3*time.Millisecond {
		t.Errorf("last entry = %+v", entries[2])
	}

	if _, err := ReadTrace(dir, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
