// Client is the external CBS collaborator's interface. The wire-level
// client (the component that actually owns an AMQP connection and $cbs
// management link) is out of scope for this file - a concrete,
// AMQP-backed implementation lives in transport/amqpcbs; tests use a
// fake that completes synchronously or on command.
package cbs

import "context"

// Result is the outcome of a CBS put_token or delete_token operation, as
// reported by the peer. Only Result influences the authenticator's state
// transitions; the numeric status code and description are logged.
type Result int

const (
	// ResultOK indicates the CBS peer accepted the operation.
	ResultOK Result = iota
	// ResultError indicates a protocol-level failure. Any outcome other
	// than an explicit accept is treated as ResultError.
	ResultError
)

// String implements fmt.Stringer.
func (r Result) String() string {
	if r == ResultOK {
		return "OK"
	}
	return "Error"
}

// TokenType is the CBS token type string, passed verbatim to both put and
// delete. Only one is currently defined.
const TokenType = "servicebus.windows.net:sastoken"

// PutTokenRequest describes a token installation request.
type PutTokenRequest struct {
	CorrelationID string
	TokenType     string
	Audience      string
	Token         string
}

// DeleteTokenRequest describes a token revocation request.
type DeleteTokenRequest struct {
	CorrelationID string
	Audience      string
	TokenType     string
}

// PutTokenComplete is invoked exactly once when a put_token operation
// finishes, successfully or not.
type PutTokenComplete func(result Result, statusCode int, statusDescription string)

// DeleteTokenComplete is invoked exactly once when a delete_token
// operation finishes, successfully or not.
type DeleteTokenComplete func(result Result, statusCode int, statusDescription string)

// Client is the external CBS collaborator's asynchronous surface: submit
// now, complete later via the supplied callback. Implementations must not
// block inside PutToken/DeleteToken; submission failures are returned
// synchronously, everything else is reported through the callback.
type Client interface {
	PutToken(ctx context.Context, req PutTokenRequest, onComplete PutTokenComplete) error
	DeleteToken(ctx context.Context, req DeleteTokenRequest, onComplete DeleteTokenComplete) error
}

// Poller is optionally implemented by a Client that needs to be pumped
// for completions to be delivered - mirroring how the real uAMQP CBS
// instance is driven by the enclosing connection's do_work loop. Bridge
// calls DoWork once per Poll, on the caller's goroutine, so that any
// completions it triggers land synchronously within the authenticator's
// own DoWork tick.
type Poller interface {
	DoWork(ctx context.Context) error
}
