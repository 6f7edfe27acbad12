// Package amqpcbs is a concrete cbs.Client backed by a real AMQP
// connection's "$cbs" management link, the way Azure Service Bus and
// Event Hub clients negotiate claims (grounded on
// other_examples/dapr-dapr__cbs.go's NegotiateClaim). It owns the
// connection, session, sender and receiver to that node; the
// authenticator and cbs.Bridge never see an AMQP type.
package amqpcbs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Azure/go-amqp"

	"github.com/iotcore/amqp-cbs-auth/cbs"
)

const (
	cbsAddress           = "$cbs"
	cbsOperationKey      = "operation"
	cbsOperationPutToken = "put-token"
	cbsOperationDelete   = "delete-token"
	cbsTokenTypeKey      = "type"
	cbsAudienceKey       = "name"
	cbsExpirationKey     = "expiration"
	cbsStatusCodeKey     = "status-code"
	cbsStatusDescKey     = "status-description"
)

// Dialer abstracts amqp.Dial for tests; the zero value uses the real
// package function.
type Dialer func(ctx context.Context, addr string, opts *amqp.ConnOptions) (*amqp.Conn, error)

// Client negotiates CBS claims over a single AMQP connection's $cbs
// link. Not safe for concurrent PutToken/DeleteToken calls - the owning
// cbs.Bridge already serialises dispatch via its in-flight guard.
type Client struct {
	addr   string
	dial   Dialer
	connOp *amqp.ConnOptions

	mu       sync.Mutex
	conn     *amqp.Conn
	session  *amqp.Session
	sender   *amqp.Sender
	receiver *amqp.Receiver

	pending map[string]pendingOp

	maxDialAttempts int
	initialBackoff  time.Duration
	maxBackoff      time.Duration
}

type pendingOp struct {
	put    cbs.PutTokenComplete
	delete cbs.DeleteTokenComplete
}

// Option configures a Client at construction.
type Option func(*Client)

// WithConnOptions sets the amqp.ConnOptions used on (re)dial, e.g. SASL
// credentials or TLS config.
func WithConnOptions(opts *amqp.ConnOptions) Option {
	return func(c *Client) { c.connOp = opts }
}

// WithDialer overrides the dial function; tests use this to avoid a real
// network connection.
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dial = d }
}

// NewClient returns a Client that dials addr (an amqps:// IoT Hub
// endpoint) lazily, on the first PutToken/DeleteToken call.
func NewClient(addr string, opts ...Option) *Client {
	c := &Client{
		addr:            addr,
		dial:            amqp.Dial,
		pending:         make(map[string]pendingOp),
		maxDialAttempts: 3,
		initialBackoff:  200 * time.Millisecond,
		maxBackoff:      5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PutToken implements cbs.Client.
func (c *Client) PutToken(ctx context.Context, req cbs.PutTokenRequest, onComplete cbs.PutTokenComplete) error {
	if err := c.ensureLink(ctx); err != nil {
		return fmt.Errorf("amqpcbs: acquire link: %w", err)
	}

	// The $cbs responder echoes our message-id back as its correlation-id;
	// DoWork matches the response to this pending op on that value.
	msg := &amqp.Message{
		Properties: &amqp.MessageProperties{
			MessageID: req.CorrelationID,
		},
		Value: req.Token,
		ApplicationProperties: map[string]any{
			cbsOperationKey: cbsOperationPutToken,
			cbsTokenTypeKey: req.TokenType,
			cbsAudienceKey:  req.Audience,
		},
	}

	c.mu.Lock()
	c.pending[req.CorrelationID] = pendingOp{put: onComplete}
	c.mu.Unlock()

	if err := c.sender.Send(ctx, msg, nil); err != nil {
		c.mu.Lock()
		delete(c.pending, req.CorrelationID)
		c.mu.Unlock()
		return fmt.Errorf("amqpcbs: send put-token: %w", err)
	}
	return nil
}

// DeleteToken implements cbs.Client.
func (c *Client) DeleteToken(ctx context.Context, req cbs.DeleteTokenRequest, onComplete cbs.DeleteTokenComplete) error {
	if err := c.ensureLink(ctx); err != nil {
		return fmt.Errorf("amqpcbs: acquire link: %w", err)
	}

	msg := &amqp.Message{
		Properties: &amqp.MessageProperties{
			MessageID: req.CorrelationID,
		},
		ApplicationProperties: map[string]any{
			cbsOperationKey: cbsOperationDelete,
			cbsTokenTypeKey: req.TokenType,
			cbsAudienceKey:  req.Audience,
		},
	}

	c.mu.Lock()
	c.pending[req.CorrelationID] = pendingOp{delete: onComplete}
	c.mu.Unlock()

	if err := c.sender.Send(ctx, msg, nil); err != nil {
		c.mu.Lock()
		delete(c.pending, req.CorrelationID)
		c.mu.Unlock()
		return fmt.Errorf("amqpcbs: send delete-token: %w", err)
	}
	return nil
}

// DoWork implements cbs.Poller: it receives at most one response from
// the $cbs receiver, without blocking past a short per-tick deadline,
// and dispatches it to the matching pending completion.
func (c *Client) DoWork(ctx context.Context) error {
	c.mu.Lock()
	receiver := c.receiver
	c.mu.Unlock()
	if receiver == nil {
		return nil
	}

	tickCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	msg, err := receiver.Receive(tickCtx, nil)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return fmt.Errorf("amqpcbs: receive: %w", err)
	}
	receiver.AcceptMessage(context.Background(), msg)

	correlationID := ""
	if msg.Properties != nil {
		if id, ok := msg.Properties.CorrelationID.(string); ok {
			correlationID = id
		}
	}

	c.mu.Lock()
	op, found := c.pending[correlationID]
	delete(c.pending, correlationID)
	c.mu.Unlock()
	if !found {
		return nil
	}

	statusCode, statusDesc := statusOf(msg)
	result := cbs.ResultError
	if statusCode >= 200 && statusCode < 300 {
		result = cbs.ResultOK
	}

	switch {
	case op.put != nil:
		op.put(result, statusCode, statusDesc)
	case op.delete != nil:
		op.delete(result, statusCode, statusDesc)
	}
	return nil
}

func statusOf(msg *amqp.Message) (int, string) {
	code := 0
	desc := ""
	if msg.ApplicationProperties == nil {
		return code, desc
	}
	if v, ok := msg.ApplicationProperties[cbsStatusCodeKey]; ok {
		switch n := v.(type) {
		case int32:
			code = int(n)
		case int:
			code = n
		case string:
			if parsed, err := strconv.Atoi(n); err == nil {
				code = parsed
			}
		}
	}
	if v, ok := msg.ApplicationProperties[cbsStatusDescKey].(string); ok {
		desc = v
	}
	return code, desc
}

// ensureLink dials and attaches the $cbs sender/receiver if not already
// established, retrying dial/attach with exponential backoff. This
// retries link acquisition only - it never retries a
// put_token/delete_token that was already sent.
func (c *Client) ensureLink(ctx context.Context) error {
	c.mu.Lock()
	ready := c.sender != nil && c.receiver != nil
	c.mu.Unlock()
	if ready {
		return nil
	}

	var lastErr error
	backoff := c.initialBackoff
	for attempt := 1; attempt <= c.maxDialAttempts; attempt++ {
		if err := c.dialAndAttach(ctx); err != nil {
			lastErr = err
			if !isRetryableDialError(err) || attempt == c.maxDialAttempts {
				return lastErr
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > c.maxBackoff {
				backoff = c.maxBackoff
			}
			continue
		}
		return nil
	}
	return lastErr
}

func (c *Client) dialAndAttach(ctx context.Context) error {
	conn, err := c.dial(ctx, c.addr, c.connOp)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	session, err := conn.NewSession(ctx, nil)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("new session: %w", err)
	}

	sender, err := session.NewSender(ctx, cbsAddress, nil)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("new sender: %w", err)
	}

	receiver, err := session.NewReceiver(ctx, cbsAddress, nil)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("new receiver: %w", err)
	}

	c.mu.Lock()
	c.conn, c.session, c.sender, c.receiver = conn, session, sender, receiver
	c.mu.Unlock()
	return nil
}

// Close releases the underlying AMQP connection.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.conn, c.session, c.sender, c.receiver = nil, nil, nil, nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// isRetryableDialError decides whether a link-acquisition failure is
// worth another dial attempt, scoped to transport-level dial/attach
// errors only.
func isRetryableDialError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "i/o timeout") ||
		strings.Contains(msg, "network is unreachable") ||
		strings.Contains(msg, "no route to host") ||
		strings.Contains(msg, "broken pipe")
}
