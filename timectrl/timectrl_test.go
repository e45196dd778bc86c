package timectrl

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestTimeControllerSetTime(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(NewManualClock(start), time.Second, RealTime)

	newNow := start.Add(42 * time.Second)
	tc.SetTime(newNow)

	if got := tc.Now(); !got.Equal(newNow) {
		t.Fatalf("Now() = %v, want %v", got, newNow)
	}
}

func TestTimeControllerAcceleratedAdvancesByTick(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(NewManualClock(start), 5*time.Millisecond, Accelerated)

	var calls atomic.Int32
	tc.AddListener(func(time.Time) { calls.Add(1) })

	done := tc.Start(context.Background(), 15*time.Millisecond)
	<-done

	expected := start.Add(15 * time.Millisecond)
	if got := tc.Now(); !got.Equal(expected) {
		t.Fatalf("Now() = %v, want %v", got, expected)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("listener calls = %d, want 3", got)
	}
}

func TestTimeControllerRealTimeUsesClock(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	clock := NewManualClock(start)
	tc := NewTimeController(clock, time.Millisecond, RealTime)

	later := start.Add(time.Hour)
	clock.Set(later)

	stamps := make(chan time.Time, 1)
	tc.AddListener(func(now time.Time) {
		select {
		case stamps <- now:
		default:
		}
	})

	<-tc.Start(context.Background(), time.Millisecond)

	select {
	case got := <-stamps:
		if !got.Equal(later) {
			t.Fatalf("tick stamp = %v, want %v", got, later)
		}
	default:
		t.Fatalf("listener was never called")
	}
}

func TestTimeControllerStopsOnCancel(t *testing.T) {
	tc := NewTimeController(nil, time.Millisecond, RealTime)
	var calls atomic.Int32
	tc.AddListener(func(time.Time) { calls.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := tc.Start(ctx, 0)
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("controller did not stop after cancel")
	}

	after := calls.Load()
	time.Sleep(5 * time.Millisecond)
	if got := calls.Load(); got != after {
		t.Fatalf("listener called after stop: %d -> %d", after, got)
	}
}

func TestManualClockAdvance(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start)
	if got := c.Advance(2 * time.Second); !got.Equal(start.Add(2 * time.Second)) {
		t.Fatalf("Advance() = %v", got)
	}
	if got := c.Now(); !got.Equal(start.Add(2 * time.Second)) {
		t.Fatalf("Now() = %v", got)
	}
}
