package obslog

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	base := slog.NewTextHandler(buf, &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	})
	return slog.New(NewRedactingHandler(base))
}

func TestRedactingHandler_RedactsSensitiveKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	logger.Info("authenticating",
		"device_id", "thermostat-42",
		"device_key", "supersecretkey==",
		"sas_token", "SharedAccessSignature sr=foo&sig=bar&se=1",
	)

	out := buf.String()
	if !strings.Contains(out, "thermostat-42") {
		t.Errorf("log output should contain non-sensitive device_id, got: %s", out)
	}
	if strings.Contains(out, "supersecretkey==") {
		t.Errorf("log output leaked device_key: %s", out)
	}
	if strings.Contains(out, "sr=foo") {
		t.Errorf("log output leaked sas_token: %s", out)
	}
	if !strings.Contains(out, "REDACTED") {
		t.Errorf("log output should contain a redaction marker, got: %s", out)
	}
}

func TestRedactingHandler_WithAttrsRedacts(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf).With("certificate", "-----BEGIN CERTIFICATE-----fake-----END CERTIFICATE-----")

	logger.Info("started")

	out := buf.String()
	if strings.Contains(out, "BEGIN CERTIFICATE") {
		t.Errorf("log output leaked certificate via With: %s", out)
	}
	if !strings.Contains(out, "REDACTED") {
		t.Errorf("expected redaction marker, got: %s", out)
	}
}

func TestRedactingHandler_PassesThroughNonSensitive(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	logger.Info("status changed", "old", "Started", "new", "Authenticating")

	out := buf.String()
	if !strings.Contains(out, "Authenticating") {
		t.Errorf("non-sensitive value should pass through unredacted, got: %s", out)
	}
}
