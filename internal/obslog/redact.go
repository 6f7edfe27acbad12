// Package obslog supplies the logging ambient stack: a slog.Handler
// wrapper that redacts device credential material before it reaches any
// sink, and a size-bounded rotating file sink for the CLI driver.
package obslog

import (
	"context"
	"log/slog"
	"strings"
)

// sensitiveKeys are the attribute keys (matched case-insensitively, by
// substring) whose values this handler replaces with a redaction marker.
// Extended from a generic credential-logging set with the device
// authentication material this module actually handles.
var sensitiveKeys = map[string]struct{}{
	"password":    {},
	"pass":        {},
	"secret":      {},
	"token":       {},
	"key":         {},
	"hash":        {},
	"auth":        {},
	"ticket":      {},
	"cred":        {},
	"devicekey":   {},
	"sastoken":    {},
	"certificate": {},
	"privatekey":  {},
}

// RedactingHandler wraps another slog.Handler and strips sensitive
// key/value pairs from every record before it reaches next.
type RedactingHandler struct {
	next slog.Handler
}

// NewRedactingHandler wraps next.
func NewRedactingHandler(next slog.Handler) *RedactingHandler {
	return &RedactingHandler{next: next}
}

// Enabled implements slog.Handler.
func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	var attrs []slog.Attr
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, redactAttr(a))
		return true
	})

	newRecord := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	newRecord.AddAttrs(attrs...)
	return h.next.Handle(ctx, newRecord)
}

// WithAttrs implements slog.Handler.
func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = redactAttr(a)
	}
	return &RedactingHandler{next: h.next.WithAttrs(redacted)}
}

// WithGroup implements slog.Handler.
func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{next: h.next.WithGroup(name)}
}

func redactAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		redacted := make([]any, len(group))
		for i, attr := range group {
			redacted[i] = redactAttr(attr)
		}
		return slog.Group(a.Key, redacted...)
	}

	lowerKey := strings.ToLower(a.Key)
	for sensitive := range sensitiveKeys {
		if strings.Contains(lowerKey, sensitive) {
			return slog.String(a.Key, "[REDACTED]")
		}
	}
	return a
}
