package cbs

import "errors"

// ErrDispatch wraps any synchronous failure to submit a put_token or
// delete_token request - an in-flight conflict, a breaker trip, or a
// Client-level submission error.
var ErrDispatch = errors.New("cbs: dispatch failed")
