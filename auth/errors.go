package auth

import "errors"

// Sentinel errors surfaced by the facade. Wrap with fmt.Errorf("%w: ...")
// where additional context helps a caller without changing the sentinel's
// identity for errors.Is checks.
var (
	// ErrInvalidArgument is returned for null handles, missing config
	// fields, and illegal option names - reported synchronously, no
	// state change.
	ErrInvalidArgument = errors.New("auth: invalid argument")

	// ErrInvalidState is returned when an operation is called from a
	// status in which it is not legal (e.g. DoWork on StatusNone).
	ErrInvalidState = errors.New("auth: invalid state for operation")

	// ErrCredentialConflict is returned by Create when both a device key
	// and a device SAS token are supplied. An X.509 pair alongside either
	// of them is not a conflict; the credential priority picks one.
	ErrCredentialConflict = errors.New("auth: exactly one credential source is required")

	// ErrResourceExhausted is returned when allocation or token
	// construction fails.
	ErrResourceExhausted = errors.New("auth: resource exhausted")

	// ErrCBSDispatch is returned when a synchronous submission to the
	// CBS bridge fails.
	ErrCBSDispatch = errors.New("auth: cbs dispatch failed")

	// ErrClockUnavailable is returned when the configured clock cannot
	// be read.
	ErrClockUnavailable = errors.New("auth: clock unavailable")
)
