package record

import (
	"testing"
	"time"
)

func TestStampUpdatedAdvancingClock(t *testing.T) {
	prev := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := prev.Add(5 * time.Second)
	if got := StampUpdated(prev, now); !got.Equal(now) {
		t.Fatalf("got %v, want %v", got, now)
	}
}

func TestStampUpdatedStalledClock(t *testing.T) {
	prev := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, now := range []time.Time{prev, prev.Add(-time.Second)} {
		got := StampUpdated(prev, now)
		if !got.After(prev) {
			t.Fatalf("stamp %v not strictly after prev %v", got, prev)
		}
		if got.Sub(prev) != time.Microsecond {
			t.Fatalf("expected prev+1µs, got %v", got.Sub(prev))
		}
	}
}

func TestStampUpdatedSequenceIsMonotonic(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	prev := now
	for i := 0; i < 5; i++ {
		next := StampUpdated(prev, now)
		if !next.After(prev) {
			t.Fatalf("iteration %d: %v not after %v", i, next, prev)
		}
		prev = next
	}
}
