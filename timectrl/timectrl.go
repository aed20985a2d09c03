package timectrl

import (
	"context"
	"sync"
	"time"
)

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime advances one tick per tick of wall-clock time.
	RealTime Mode = iota
	// Accelerated advances as quickly as the listeners allow while still
	// stepping by Tick.
	Accelerated
)

// ParseMode returns RealTime when realtime is set and Accelerated otherwise.
func ParseMode(realtime bool) Mode {
	if realtime {
		return RealTime
	}
	return Accelerated
}

// TimeController drives simulation time and notifies registered listeners.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	// currentTime tracks the current simulation time. It is updated
	// as the controller advances time.
	currentTime time.Time
	ticks       int64

	listeners []func(time.Time)
}

// NewTimeController constructs a controller.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the current simulation time.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// Elapsed returns the simulated time since StartTime.
func (tc *TimeController) Elapsed() time.Duration {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime.Sub(tc.StartTime)
}

// Ticks returns how many ticks have been delivered.
func (tc *TimeController) Ticks() int64 {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.ticks
}

// AddListener registers a callback invoked on every tick with the new
// simulation time. Listeners run on the controller goroutine in
// registration order.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

// Start runs the controller for the specified simulated duration in a
// separate goroutine. A non-positive duration runs until ctx is cancelled.
// It returns a channel that is closed when the controller finishes.
func (tc *TimeController) Start(ctx context.Context, duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		tc.mu.Lock()
		simTime := tc.StartTime
		tc.currentTime = simTime
		tc.ticks = 0
		listeners := append(([]func(time.Time))(nil), tc.listeners...)
		tc.mu.Unlock()

		var wait <-chan time.Time
		if tc.Mode == RealTime {
			ticker := time.NewTicker(tc.Tick)
			defer ticker.Stop()
			wait = ticker.C
		}

		elapsed := time.Duration(0)
		for {
			if duration > 0 && elapsed >= duration {
				return
			}
			if wait != nil {
				select {
				case <-ctx.Done():
					return
				case <-wait:
				}
			} else if ctx.Err() != nil {
				return
			}

			simTime = simTime.Add(tc.Tick)
			elapsed += tc.Tick

			tc.mu.Lock()
			tc.currentTime = simTime
			tc.ticks++
			tc.mu.Unlock()

			for _, fn := range listeners {
				fn(simTime)
			}
		}
	}()
	return done
}
