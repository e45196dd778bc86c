package timectrl

import (
	"context"
	"sync"
	"time"
)

// Clock is the source of wall-clock time for the planner engines. Tests swap
// in a ManualClock so timestamps and retention windows are deterministic.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

// Now returns time.Now().
func (RealClock) Now() time.Time { return time.Now() }

// ManualClock is a Clock that only moves when told to.
type ManualClock struct {
	mu  sync.RWMutex
	now time.Time
}

// NewManualClock returns a clock frozen at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current manual time.
func (c *ManualClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Set moves the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d and returns the new time.
func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Mode describes how the TimeController stamps ticks.
type Mode int

const (
	// RealTime stamps each tick with the clock's current time.
	RealTime Mode = iota
	// Accelerated stamps ticks by adding Tick to the previous stamp, so a
	// run is reproducible regardless of scheduling jitter.
	Accelerated
)

// TimeController fires registered listeners once per Tick until its context
// is cancelled or the requested duration elapses.
type TimeController struct {
	mu    sync.RWMutex
	Tick  time.Duration
	Mode  Mode
	clock Clock

	currentTime time.Time
	listeners   []func(time.Time)
}

// NewTimeController constructs a controller. A nil clock uses RealClock.
func NewTimeController(clock Clock, tick time.Duration, mode Mode) *TimeController {
	if clock == nil {
		clock = RealClock{}
	}
	return &TimeController{
		Tick:        tick,
		Mode:        mode,
		clock:       clock,
		currentTime: clock.Now(),
	}
}

// Now returns the stamp of the most recent tick, or the construction time
// before the first tick.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// SetTime overrides the current stamp.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	tc.currentTime = t
	tc.mu.Unlock()
}

// AddListener registers a callback invoked on every tick.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	if fn == nil {
		return
	}
	tc.mu.Lock()
	tc.listeners = append(tc.listeners, fn)
	tc.mu.Unlock()
}

// Start runs the controller in a separate goroutine. A zero duration runs
// until ctx is cancelled. The returned channel is closed once the loop has
// exited and no listener is still executing.
func (tc *TimeController) Start(ctx context.Context, duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		ticker := time.NewTicker(tc.Tick)
		defer ticker.Stop()

		elapsed := time.Duration(0)
		for {
			if duration > 0 && elapsed >= duration {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			elapsed += tc.Tick

			tc.mu.Lock()
			switch tc.Mode {
			case Accelerated:
				tc.currentTime = tc.currentTime.Add(tc.Tick)
			default:
				tc.currentTime = tc.clock.Now()
			}
			now := tc.currentTime
			listeners := make([]func(time.Time), len(tc.listeners))
			copy(listeners, tc.listeners)
			tc.mu.Unlock()

			// A cancel that raced the tick wins.
			if ctx.Err() != nil {
				return
			}
			for _, fn := range listeners {
				fn(now)
			}
		}
	}()
	return done
}
