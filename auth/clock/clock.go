// Package clock provides an injectable wall-clock source for the authenticator.
//
// The authentication state machine never calls time.Now directly: every
// schedule decision (token creation, refresh-due, request-timeout) reads
// through a Clock so that tests can drive the state machine tick-by-tick
// against a fully deterministic timeline.
package clock

import (
	"sync"
	"time"
)

// Clock provides time operations (injectable for testing).
type Clock interface {
	// Now returns the current time. An implementation that can fail to
	// read the underlying time source should still return its best
	// effort; callers detect failure via NowUnix's ok result.
	Now() time.Time
}

// FailableClock is implemented by clocks that can simulate a read failure,
// mirroring the original transport's get_time() returning INDEFINITE_TIME.
// Production clocks never fail; only test doubles implement this.
type FailableClock interface {
	Clock
	// Failing reports whether the next read should be treated as a
	// clock-read failure.
	Failing() bool
}

// Real implements Clock using actual system time.
type Real struct{}

// Now returns the current system time.
func (Real) Now() time.Time {
	return time.Now()
}

// Mock implements Clock with manual time control (tests only).
type Mock struct {
	mu      sync.Mutex
	current time.Time
	fail    bool
}

// NewMock creates a new mock clock starting at the given time.
func NewMock(start time.Time) *Mock {
	return &Mock{current: start}
}

// Now returns the mock current time.
func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Advance manually advances the mock clock by duration d.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.current.Add(d)
}

// SetFailing forces every NowUnix read (see NowUnix) to report failure
// until SetFailing(false) is called, simulating the underlying time
// source being unavailable.
func (m *Mock) SetFailing(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = fail
}

// Failing reports whether reads are currently forced to fail.
func (m *Mock) Failing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fail
}

// NowUnix reads seconds-since-epoch from c, returning ok=false if c is a
// FailableClock currently simulating a read failure.
func NowUnix(c Clock) (seconds int64, ok bool) {
	if fc, isFailable := c.(FailableClock); isFailable && fc.Failing() {
		return 0, false
	}
	return c.Now().Unix(), true
}
