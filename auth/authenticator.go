// Package auth implements the CBS authentication state machine and token
// lifecycle controller for a single IoT device session: selecting the
// credential-to-CBS operation, computing refresh/timeout schedules
// against an injectable clock, serialising CBS completions into state
// transitions, and guaranteeing every session reaches a terminal Idle or
// Failed status with its resources released exactly once.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────┐
//	│  Authenticator     facade: create/start/do_work/stop     │
//	├──────────────────────────────────────────────────────────┤
//	│  status.go         state machine choke point              │
//	├──────────────────────────────────────────────────────────┤
//	│  token.go          audience, SAS construction, schedules   │
//	├──────────────────────────────────────────────────────────┤
//	│  cbs.Bridge        put_token/delete_token dispatch+demux   │
//	└──────────────────────────────────────────────────────────┘
//
// The authenticator is single-threaded cooperative: DoWork is the only
// entry point that advances time-driven state, it never blocks, and
// every observer callback fires synchronously, before the call that
// triggered it returns.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/iotcore/amqp-cbs-auth/auth/clock"
	"github.com/iotcore/amqp-cbs-auth/cbs"
	"github.com/iotcore/amqp-cbs-auth/sastoken"
)

// Authenticator is the one live entity per device session. Zero value is
// not usable; construct with Create.
type Authenticator struct {
	deviceID string
	hostFQDN string
	cred     credential

	status Status

	onStatusChanged    StatusChangedFunc
	onStatusChangedCtx any

	onStopCompleted    StopCompletedFunc
	onStopCompletedCtx any

	bridge *cbs.Bridge

	sasTokenLifetimeMs  int64
	sasTokenRefreshMs   int64
	cbsRequestTimeoutMs int64
	sasTokenKeyName     string

	currentSASTokenCreateTimeS int64
	currentSASTokenPutTimeS    int64

	clock  clock.Clock
	signer sastoken.Signer
	logger *slog.Logger
}

// StopCompletedFunc is invoked exactly once when a Stop-initiated delete
// completes, or never if Stop needed no CBS work.
type StopCompletedFunc func(result cbs.Result, ctx any)

// Create validates config and returns a new Authenticator in StatusNone,
// or an error with no partial state retained.
func Create(config Config) (*Authenticator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	a := &Authenticator{
		deviceID: config.DeviceID,
		hostFQDN: config.HostFQDN,
		status:   StatusNone,
	}

	switch {
	case config.DeviceSASToken != "":
		a.cred = deviceSASTokenCredential{token: config.DeviceSASToken}
		a.sasTokenKeyName = ""
	case config.DeviceKey != "":
		a.cred = deviceKeyCredential{key: config.DeviceKey}
		a.sasTokenKeyName = ""
	default:
		a.cred = x509Credential{certificate: config.X509Certificate, privateKey: config.X509PrivateKey}
	}

	lifetime := config.SASTokenLifetime
	if lifetime == 0 {
		lifetime = DefaultSASTokenLifetime
	}
	refresh := config.SASTokenRefreshTime
	if refresh == 0 {
		refresh = DefaultSASTokenRefreshTime
	}
	timeout := config.CBSRequestTimeout
	if timeout == 0 {
		timeout = DefaultCBSRequestTimeout
	}
	a.sasTokenLifetimeMs = lifetime.Milliseconds()
	a.sasTokenRefreshMs = refresh.Milliseconds()
	a.cbsRequestTimeoutMs = timeout.Milliseconds()

	a.clock = config.Clock
	if a.clock == nil {
		a.clock = clock.Real{}
	}
	a.signer = config.Signer
	if a.signer == nil {
		a.signer = sastoken.HMACSigner{}
	}
	a.logger = config.Logger

	return a, nil
}

// GetCredentialType returns the credential variant this authenticator was
// constructed with. Fails only if a is nil.
func (a *Authenticator) GetCredentialType() (CredentialType, error) {
	if a == nil {
		return CredentialNone, fmt.Errorf("%w: nil authenticator", ErrInvalidArgument)
	}
	return a.cred.credentialType(), nil
}

// Start prepares the authenticator to authenticate a device: it stores
// the CBS bridge to use and the status-change observer, and transitions
// to StatusStarted. For DeviceKey/DeviceSasToken credentials bridge must
// be non-nil; X.509 credentials never touch CBS, so bridge may be nil.
func (a *Authenticator) Start(bridge *cbs.Bridge, onStatusChanged StatusChangedFunc, ctx any) error {
	if a == nil {
		return fmt.Errorf("%w: nil authenticator", ErrInvalidArgument)
	}

	credType := a.cred.credentialType()
	if (credType == CredentialDeviceKey || credType == CredentialDeviceSASToken) && bridge == nil {
		return fmt.Errorf("%w: cbs bridge required for credential type %s", ErrInvalidArgument, credType)
	}

	a.bridge = bridge
	a.onStatusChanged = onStatusChanged
	a.onStatusChangedCtx = ctx
	a.transitionTo(StatusStarted)
	return nil
}

// DoWork is the driver tick. It must return quickly and never blocks.
func (a *Authenticator) DoWork(ctx context.Context) error {
	if a == nil {
		return fmt.Errorf("%w: nil authenticator", ErrInvalidArgument)
	}

	if a.status == StatusNone || a.status == StatusIdle {
		return fmt.Errorf("%w: do_work requires start first (status=%s)", ErrInvalidState, a.status)
	}

	if a.bridge != nil {
		if err := a.bridge.Poll(ctx); err != nil && a.logger != nil {
			a.logger.Warn("cbs bridge poll failed", "device_id", a.deviceID, "error", err)
		}
	}

	if a.status == StatusAuthenticated {
		if a.cred.credentialType() == CredentialDeviceKey && a.refreshDue() {
			a.transitionTo(StatusRefreshing)
		}
	}

	switch a.status {
	case StatusStarted, StatusRefreshing:
		return a.authenticateDevice(ctx)
	case StatusAuthenticating:
		return a.checkAuthenticationTimeout()
	default:
		// Authenticated (no refresh due), Failed, FailedTimeout,
		// Deauthenticating: nothing to do this tick. A tick that finds
		// nothing to do is not an error.
		return nil
	}
}

// Stop de-authenticates without destroying the authenticator. Stopping
// from Failed or FailedTimeout drops straight to Idle synchronously,
// since there is no live CBS session to tear down.
func (a *Authenticator) Stop(onStopCompleted StopCompletedFunc, ctx any) error {
	if a == nil {
		return fmt.Errorf("%w: nil authenticator", ErrInvalidArgument)
	}
	if a.cred.credentialType() == CredentialX509 {
		return fmt.Errorf("%w: nothing to revoke for X.509 credentials", ErrInvalidState)
	}

	switch a.status {
	case StatusFailed, StatusFailedTimeout:
		a.transitionTo(StatusIdle)
		a.onStatusChanged = nil
		a.onStatusChangedCtx = nil
		return nil
	case StatusAuthenticated, StatusAuthenticating:
		// proceed below
	default:
		return fmt.Errorf("%w: stop invalid from status %s", ErrInvalidState, a.status)
	}

	a.onStopCompleted = onStopCompleted
	a.onStopCompletedCtx = ctx
	a.transitionTo(StatusDeauthenticating)

	audience := a.audience()
	err := a.bridge.DeleteToken(context.Background(), audience, a.onDeleteTokenComplete)
	if err != nil {
		a.onStopCompleted = nil
		a.onStopCompletedCtx = nil
		a.transitionTo(StatusFailed)
		return fmt.Errorf("%w: %v", ErrCBSDispatch, err)
	}
	return nil
}

// SetOption applies a named configuration option. Recognised names:
// "sas_token_lifetime", "sas_token_refresh_time", "cbs_request_timeout"
// (all time.Duration values).
func (a *Authenticator) SetOption(name string, value any) error {
	if a == nil {
		return fmt.Errorf("%w: nil authenticator", ErrInvalidArgument)
	}
	if name == "" {
		return fmt.Errorf("%w: empty option name", ErrInvalidArgument)
	}

	d, ok := value.(time.Duration)
	if !ok {
		return fmt.Errorf("%w: option %q requires a time.Duration value", ErrInvalidArgument, name)
	}

	switch name {
	case "sas_token_lifetime":
		if d.Milliseconds() <= a.sasTokenRefreshMs {
			return fmt.Errorf("%w: sas_token_lifetime must exceed sas_token_refresh_time", ErrInvalidArgument)
		}
		a.sasTokenLifetimeMs = d.Milliseconds()
	case "sas_token_refresh_time":
		if d.Milliseconds() >= a.sasTokenLifetimeMs {
			return fmt.Errorf("%w: sas_token_refresh_time must be less than sas_token_lifetime", ErrInvalidArgument)
		}
		a.sasTokenRefreshMs = d.Milliseconds()
	case "cbs_request_timeout":
		a.cbsRequestTimeoutMs = d.Milliseconds()
	default:
		return fmt.Errorf("%w: unknown option %q", ErrInvalidArgument, name)
	}
	return nil
}

// Destroy releases the authenticator's owned credential material. If a
// CBS operation is outstanding the caller is responsible for having
// quiesced it first; Destroy does not wait.
func (a *Authenticator) Destroy() {
	if a == nil {
		return
	}
	a.cred = x509Credential{}
	a.onStatusChanged = nil
	a.onStatusChangedCtx = nil
	a.onStopCompleted = nil
	a.onStopCompletedCtx = nil
	a.bridge = nil
}
