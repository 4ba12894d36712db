package system

import (
	"testing"
	"time"
)

// TestClockNowUTC ensures the clock returns UTC timestamps.
func TestClockNowUTC(t *testing.T) {
	t.Parallel()

	clk := New()
	before := time.Now().UTC().Add(-time.Second)
	got := clk.Now()
	after := time.Now().UTC().Add(time.Second)

	if got.Location() != time.UTC {
		t.Fatalf("expected UTC location, got %v", got.Location())
	}
	if got.Before(before) || got.After(after) {
		t.Fatalf("expected %v to be between %v and %v", got, before, after)
	}
}

// TestManualClockSteps checks each reading advances by the configured step.
func TestManualClockSteps(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	clk := NewManual(start, time.Second)
	if got := clk.Now(); !got.Equal(start) {
		t.Fatalf("first reading = %v, want %v", got, start)
	}
	if got := clk.Now(); !got.Equal(start.Add(time.Second)) {
		t.Fatalf("second reading = %v", got)
	}
	clk.Advance(time.Minute)
	if got := clk.Now(); !got.Equal(start.Add(2*time.Second + time.Minute)) {
		t.Fatalf("after advance = %v", got)
	}
}
