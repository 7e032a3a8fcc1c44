package timectrl

import (
	"context"
	"slices"
	"sync"
	"time"
)

// Mode describes how the TimeController advances mission time.
type Mode int

const (
	// RealTime paces each step with wall-clock time.
	RealTime Mode = iota
	// Accelerated steps as quickly as listeners allow.
	Accelerated
)

func (m Mode) String() string {
	if m == RealTime {
		return "real-time"
	}
	return "accelerated"
}

// TimeController drives mission time forward in fixed ticks and notifies
// registered listeners after every step. Listeners run synchronously on the
// controller goroutine in registration order.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	currentTime time.Time
	listeners   []func(time.Time)
}

// NewTimeController constructs a controller positioned at start.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the current mission time.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// SetTime moves the controller to t without notifying listeners.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	tc.currentTime = t
	tc.mu.Unlock()
}

// AddListener registers a callback invoked on every step.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.mu.Lock()
	tc.listeners = append(tc.listeners, fn)
	tc.mu.Unlock()
}

// Step advances mission time by one tick and notifies listeners.
func (tc *TimeController) Step() time.Time {
	tc.mu.Lock()
	tc.currentTime = tc.currentTime.Add(tc.Tick)
	now := tc.currentTime
	listeners := slices.Clone(tc.listeners)
	tc.mu.Unlock()

	for _, fn := range listeners {
		fn(now)
	}
	return now
}

// Run notifies listeners at the current time, then steps until mission time
// reaches end or ctx is cancelled. The final step is clamped so the last
// notification happens exactly at end.
func (tc *TimeController) Run(ctx context.Context, end time.Time) error {
	if tc.Tick <= 0 {
		return nil
	}

	var ticker *time.Ticker
	if tc.Mode == RealTime {
		ticker = time.NewTicker(tc.Tick)
		defer ticker.Stop()
	}

	tc.notify(tc.Now())
	for tc.Now().Before(end) {
		if ticker != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		if remaining := end.Sub(tc.Now()); remaining < tc.Tick {
			tc.SetTime(end)
			tc.notify(end)
			break
		}
		tc.Step()
	}
	return nil
}

func (tc *TimeController) notify(now time.Time) {
	tc.mu.RLock()
	listeners := slices.Clone(tc.listeners)
	tc.mu.RUnlock()
	for _, fn := range listeners {
		fn(now)
	}
}
