package cbs

import (
	"errors"
	"sync"
	"time"

	"github.com/iotcore/amqp-cbs-auth/auth/clock"
)

// CircuitState represents the state of the dispatch circuit breaker.
type CircuitState int

const (
	// StateClosed means dispatch attempts pass through normally.
	StateClosed CircuitState = iota
	// StateOpen means dispatch fails fast without touching the Client.
	StateOpen
	// StateHalfOpen means one dispatch attempt is allowed to probe.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateOpen:
		return "Open"
	case StateHalfOpen:
		return "Half-Open"
	default:
		return "Unknown"
	}
}

// ErrCircuitOpen is returned when the breaker is open.
var ErrCircuitOpen = errors.New("cbs: dispatch circuit breaker is open")

// Default breaker tuning for callers that enable it without specifying
// their own thresholds.
const (
	DefaultFailureThreshold = 5
	DefaultResetTimeout     = 10 * time.Second
)

// BreakerPolicy configures CircuitBreaker. A zero-value policy disables
// the breaker (every dispatch attempt passes through).
type BreakerPolicy struct {
	Enabled          bool
	FailureThreshold int
	ResetTimeout     time.Duration
	OnStateChange    func(from, to CircuitState)
}

// CircuitBreaker guards synchronous CBS dispatch attempts, with one
// deliberate departure from the usual pattern: callbacks fire
// synchronously on the calling goroutine rather than via "go fn()",
// because the authenticator's single-threaded cooperative contract
// forbids the core from ever spawning a goroutine of its own.
type CircuitBreaker struct {
	mu sync.Mutex

	state       CircuitState
	failures    int
	lastFailure time.Time

	threshold int
	timeout   time.Duration
	enabled   bool
	clock     clock.Clock

	onStateChange func(from, to CircuitState)
}

// NewCircuitBreaker creates a breaker from policy, using c to read time.
func NewCircuitBreaker(policy BreakerPolicy, c clock.Clock) *CircuitBreaker {
	if c == nil {
		c = clock.Real{}
	}
	if policy.FailureThreshold <= 0 {
		policy.FailureThreshold = DefaultFailureThreshold
	}
	if policy.ResetTimeout <= 0 {
		policy.ResetTimeout = DefaultResetTimeout
	}
	return &CircuitBreaker{
		state:         StateClosed,
		threshold:     policy.FailureThreshold,
		timeout:       policy.ResetTimeout,
		enabled:       policy.Enabled,
		clock:         c,
		onStateChange: policy.OnStateChange,
	}
}

// Execute runs fn if the breaker permits it, and records the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.enabled {
		return fn()
	}

	if err := cb.checkState(); err != nil {
		return err
	}

	err := fn()
	cb.updateState(err)
	return err
}

func (cb *CircuitBreaker) checkState() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.clock.Now().Sub(cb.lastFailure) > cb.timeout {
			cb.transitionLocked(StateHalfOpen)
			return nil
		}
		return ErrCircuitOpen
	}
	return nil
}

func (cb *CircuitBreaker) transitionLocked(newState CircuitState) {
	if cb.state == newState {
		return
	}
	oldState := cb.state
	cb.state = newState
	if cb.onStateChange != nil {
		cb.onStateChange(oldState, newState)
	}
}

func (cb *CircuitBreaker) updateState(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		if cb.state == StateHalfOpen {
			cb.transitionLocked(StateClosed)
		}
		cb.failures = 0
		return
	}

	if errors.Is(err, ErrCircuitOpen) {
		return
	}

	cb.failures++
	cb.lastFailure = cb.clock.Now()

	if cb.state == StateHalfOpen {
		cb.transitionLocked(StateOpen)
		return
	}
	if cb.state == StateClosed && cb.threshold > 0 && cb.failures >= cb.threshold {
		cb.transitionLocked(StateOpen)
	}
}

// State returns the current state (thread-safe, though this package is
// only ever driven from one goroutine in practice).
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
