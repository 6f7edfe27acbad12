package cbs

import (
	"errors"
	"testing"
)

func TestInFlightGuard_SingleSlot(t *testing.T) {
	g := newInFlightGuard()

	if err := g.TryAcquire(); err != nil {
		t.Fatalf("first TryAcquire() error = %v", err)
	}
	if !g.Busy() {
		t.Error("Busy() = false after acquire, want true")
	}

	if err := g.TryAcquire(); !errors.Is(err, ErrAlreadyInFlight) {
		t.Errorf("second TryAcquire() error = %v, want ErrAlreadyInFlight", err)
	}

	g.Release()
	if g.Busy() {
		t.Error("Busy() = true after release, want false")
	}

	if err := g.TryAcquire(); err != nil {
		t.Errorf("TryAcquire after release error = %v", err)
	}
}

func TestInFlightGuard_ReleaseWithoutAcquireIsNoop(t *testing.T) {
	g := newInFlightGuard()
	g.Release()
	if g.Busy() {
		t.Error("Busy() = true after no-op release, want false")
	}
}
