package cbs

import "errors"

// ErrAlreadyInFlight is returned by TryAcquire when a CBS operation is
// already outstanding. Seeing this error indicates a bug in the calling
// state machine, not a transient condition: the authenticator's own
// status guards (Authenticating/Deauthenticating) should prevent a
// second dispatch from ever being attempted.
var ErrAlreadyInFlight = errors.New("cbs: operation already in flight")

// inFlightGuard enforces at most one CBS operation outstanding per
// authenticator, the way a bounded worker pool caps concurrent
// executions, but sized permanently to one permit and non-blocking: a
// do_work tick must never suspend waiting for a slot.
type inFlightGuard struct {
	sem chan struct{}
}

func newInFlightGuard() *inFlightGuard {
	return &inFlightGuard{sem: make(chan struct{}, 1)}
}

// TryAcquire claims the single slot or fails immediately.
func (g *inFlightGuard) TryAcquire() error {
	select {
	case g.sem <- struct{}{}:
		return nil
	default:
		return ErrAlreadyInFlight
	}
}

// Release frees the slot. Safe to call even if nothing was acquired (a
// no-op in that case), so completion paths can call it unconditionally.
func (g *inFlightGuard) Release() {
	select {
	case <-g.sem:
	default:
	}
}

// Busy reports whether the slot is currently held.
func (g *inFlightGuard) Busy() bool {
	return len(g.sem) == 1
}
