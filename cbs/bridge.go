package cbs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Bridge submits put_token/delete_token against a Client, demultiplexes
// completions back to whoever dispatched them, and enforces that at most
// one operation is outstanding at a time (P5). It is the "CBS bridge"
// component of the authenticator: the state machine and token lifecycle
// never talk to a Client directly.
type Bridge struct {
	mu sync.Mutex

	client  Client
	guard   *inFlightGuard
	breaker *CircuitBreaker
	ids     *callIDManager
	logger  *slog.Logger

	pendingID string
}

// NewBridge wraps client with the in-flight guard and circuit breaker.
// logger may be nil, in which case bridge activity is not logged.
func NewBridge(client Client, breaker *CircuitBreaker, logger *slog.Logger) *Bridge {
	if breaker == nil {
		breaker = NewCircuitBreaker(BreakerPolicy{}, nil)
	}
	return &Bridge{
		client:  client,
		guard:   newInFlightGuard(),
		breaker: breaker,
		ids:     newCallIDManager(),
		logger:  logger,
	}
}

// PutToken dispatches a put_token request. onComplete is invoked exactly
// once, either synchronously-later via Poll or (for fakes used in tests)
// immediately. A synchronous error here means dispatch itself failed and
// onComplete will never fire for this request.
func (b *Bridge) PutToken(ctx context.Context, audience, token string, onComplete PutTokenComplete) error {
	if err := b.guard.TryAcquire(); err != nil {
		return fmt.Errorf("%w: %v", ErrDispatch, err)
	}

	correlationID, seq := b.ids.Next()
	b.mu.Lock()
	b.pendingID = correlationID
	b.mu.Unlock()

	req := PutTokenRequest{
		CorrelationID: correlationID,
		TokenType:     TokenType,
		Audience:      audience,
		Token:         token,
	}

	wrapped := func(result Result, statusCode int, statusDescription string) {
		stale := b.completeLocked(correlationID)
		if b.logger != nil {
			b.logger.Debug("put_token complete", "seq", seq, "correlation_id", correlationID,
				"result", result.String(), "status_code", statusCode, "status_description", statusDescription)
		}
		if stale {
			return
		}
		onComplete(result, statusCode, statusDescription)
	}

	err := b.breaker.Execute(func() error {
		return b.client.PutToken(ctx, req, wrapped)
	})
	if err != nil {
		b.guard.Release()
		b.clearPending(correlationID)
		return fmt.Errorf("%w: %v", ErrDispatch, err)
	}
	if b.logger != nil {
		b.logger.Debug("put_token dispatched", "seq", seq, "correlation_id", correlationID, "audience", audience)
	}
	return nil
}

// DeleteToken dispatches a delete_token request; same contract as
// PutToken.
func (b *Bridge) DeleteToken(ctx context.Context, audience string, onComplete DeleteTokenComplete) error {
	if err := b.guard.TryAcquire(); err != nil {
		return fmt.Errorf("%w: %v", ErrDispatch, err)
	}

	correlationID, seq := b.ids.Next()
	b.mu.Lock()
	b.pendingID = correlationID
	b.mu.Unlock()

	req := DeleteTokenRequest{
		CorrelationID: correlationID,
		Audience:      audience,
		TokenType:     TokenType,
	}

	wrapped := func(result Result, statusCode int, statusDescription string) {
		stale := b.completeLocked(correlationID)
		if b.logger != nil {
			b.logger.Debug("delete_token complete", "seq", seq, "correlation_id", correlationID,
				"result", result.String(), "status_code", statusCode, "status_description", statusDescription)
		}
		if stale {
			return
		}
		onComplete(result, statusCode, statusDescription)
	}

	err := b.breaker.Execute(func() error {
		return b.client.DeleteToken(ctx, req, wrapped)
	})
	if err != nil {
		b.guard.Release()
		b.clearPending(correlationID)
		return fmt.Errorf("%w: %v", ErrDispatch, err)
	}
	if b.logger != nil {
		b.logger.Debug("delete_token dispatched", "seq", seq, "correlation_id", correlationID, "audience", audience)
	}
	return nil
}

// Poll pumps the underlying Client for completions, if it implements
// Poller. Called once per authenticator DoWork tick.
func (b *Bridge) Poll(ctx context.Context) error {
	if poller, ok := b.client.(Poller); ok {
		return poller.DoWork(ctx)
	}
	return nil
}

// InFlight reports whether a CBS operation is currently outstanding.
func (b *Bridge) InFlight() bool {
	return b.guard.Busy()
}

// completeLocked releases the in-flight slot and reports whether
// correlationID no longer matches the pending dispatch - a stale or
// duplicate completion the caller must not forward to onComplete, since
// doing so would re-enter the state machine for an operation it no
// longer considers outstanding.
func (b *Bridge) completeLocked(correlationID string) bool {
	b.mu.Lock()
	stale := b.pendingID != correlationID
	b.pendingID = ""
	b.mu.Unlock()
	b.guard.Release()
	if stale && b.logger != nil {
		b.logger.Warn("dropping completion for unexpected correlation id", "correlation_id", correlationID)
	}
	return stale
}

func (b *Bridge) clearPending(correlationID string) {
	b.mu.Lock()
	if b.pendingID == correlationID {
		b.pendingID = ""
	}
	b.mu.Unlock()
}

// defaultPollTimeout is an upper bound on how long a concrete Client
// implementation's DoWork is expected to take. Nothing references it:
// transport/amqpcbs bounds each DoWork receive with its own 50ms
// deadline.
const defaultPollTimeout = 5 * time.Second
