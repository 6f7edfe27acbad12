package auth

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/iotcore/amqp-cbs-auth/auth/clock"
	"github.com/iotcore/amqp-cbs-auth/sastoken"
)

// Default CBS schedule parameters. The refresh interval must always be
// strictly less than the lifetime; Validate enforces this whether the
// caller overrides the defaults or not.
const (
	DefaultSASTokenLifetime    = 3600 * time.Second
	DefaultSASTokenRefreshTime = 2700 * time.Second
	DefaultCBSRequestTimeout   = 30 * time.Second
)

// Config holds the configuration accepted by Create.
type Config struct {
	// DeviceID and HostFQDN are required and non-empty.
	DeviceID string
	HostFQDN string

	// Exactly one credential source must resolve: DeviceSASToken takes
	// priority over DeviceKey, which takes priority over the X509 pair.
	DeviceKey       string
	DeviceSASToken  string
	X509Certificate string
	X509PrivateKey  string

	// Schedule overrides; zero means "use the package default".
	SASTokenLifetime    time.Duration
	SASTokenRefreshTime time.Duration
	CBSRequestTimeout   time.Duration

	// Clock is the injectable wall-clock source; nil means clock.Real{}.
	Clock clock.Clock

	// Signer constructs SAS tokens for DeviceKey credentials; nil means
	// sastoken.HMACSigner{}.
	Signer sastoken.Signer

	// Logger receives structured status/dispatch logging; nil disables
	// logging.
	Logger *slog.Logger
}

// Validate checks that config names a legal combination of fields,
// without touching the credential-priority decision (that belongs to
// Create, since it also needs to build the concrete credential value).
func (c *Config) Validate() error {
	if c.DeviceID == "" {
		return fmt.Errorf("%w: device_id is required", ErrInvalidArgument)
	}
	if c.HostFQDN == "" {
		return fmt.Errorf("%w: host_fqdn is required", ErrInvalidArgument)
	}
	if c.DeviceKey != "" && c.DeviceSASToken != "" {
		return fmt.Errorf("%w: device_key and device_sas_token", ErrCredentialConflict)
	}
	hasX509 := c.X509Certificate != "" && c.X509PrivateKey != ""
	if c.DeviceKey == "" && c.DeviceSASToken == "" && !hasX509 {
		return fmt.Errorf("%w: no credential source configured", ErrInvalidArgument)
	}

	lifetime := c.SASTokenLifetime
	if lifetime == 0 {
		lifetime = DefaultSASTokenLifetime
	}
	refresh := c.SASTokenRefreshTime
	if refresh == 0 {
		refresh = DefaultSASTokenRefreshTime
	}
	if refresh >= lifetime {
		return fmt.Errorf("%w: sas_token_refresh_time must be strictly less than sas_token_lifetime", ErrInvalidArgument)
	}
	return nil
}
