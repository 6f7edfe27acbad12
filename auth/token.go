package auth

import (
	"context"
	"fmt"

	"github.com/iotcore/amqp-cbs-auth/auth/clock"
	"github.com/iotcore/amqp-cbs-auth/cbs"
)

// audience builds the CBS resource string this device's token or
// delete_token targets. It is rebuilt from hostFQDN/deviceID on every
// call rather than cached, matching the source's create_devices_path,
// which is invoked fresh at each call site instead of memoizing the
// result on the instance.
func (a *Authenticator) audience() string {
	return a.hostFQDN + "/devices/" + a.deviceID
}

// refreshDue reports whether a DeviceKey-authenticated session's SAS
// token has crossed its refresh threshold. Only DeviceKey sessions
// refresh: a caller-supplied DeviceSasToken is never rotated by this
// package, and X.509 never reaches this path at all. A clock read
// failure is treated as due, forcing a refresh attempt rather than
// silently running on a token nobody can confirm is still valid.
func (a *Authenticator) refreshDue() bool {
	nowS, ok := a.nowUnix()
	if !ok {
		return true
	}
	elapsedMs := (nowS - a.currentSASTokenPutTimeS) * 1000
	return elapsedMs >= a.sasTokenRefreshMs
}

// authenticationTimedOut reports whether the current Authenticating
// attempt has run longer than cbsRequestTimeoutMs. A clock failure is
// treated as timed out for the same fail-safe reason refreshDue treats
// it as due: an authenticator that cannot read the clock must not sit
// in Authenticating forever waiting for a completion that may never
// come.
func (a *Authenticator) authenticationTimedOut() bool {
	nowS, ok := a.nowUnix()
	if !ok {
		return true
	}
	elapsedMs := (nowS - a.currentSASTokenCreateTimeS) * 1000
	return elapsedMs >= a.cbsRequestTimeoutMs
}

func (a *Authenticator) nowUnix() (int64, bool) {
	return clock.NowUnix(a.clock)
}

// authenticateDevice dispatches the put_token request appropriate to
// the configured credential and moves to Authenticating. X.509 sessions
// never do any CBS work at all: an X.509 session is authenticated by
// the transport layer's TLS handshake, so this function just declares
// it Authenticated immediately instead of building or sending a token.
//
// A token construction failure (currentToken) leaves status untouched
// and returns an error - there is nothing wrong with the session, only
// with this attempt, so it is left to be retried on the next tick. Only
// a failure past that point (clock unavailable, or the CBS dispatch
// itself) is serious enough to move the session to Failed.
func (a *Authenticator) authenticateDevice(ctx context.Context) error {
	if a.cred.credentialType() == CredentialX509 {
		a.transitionTo(StatusAuthenticated)
		return nil
	}

	nowS, ok := a.nowUnix()
	if !ok {
		a.transitionTo(StatusFailed)
		return fmt.Errorf("%w: clock unavailable", ErrClockUnavailable)
	}

	token, err := a.currentToken(nowS)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrResourceExhausted, err)
	}

	audience := a.audience()
	a.currentSASTokenCreateTimeS = nowS
	a.currentSASTokenPutTimeS = nowS

	a.transitionTo(StatusAuthenticating)
	err = a.bridge.PutToken(ctx, audience, token, a.onPutTokenComplete)
	if err != nil {
		a.transitionTo(StatusFailed)
		return fmt.Errorf("%w: %v", ErrCBSDispatch, err)
	}
	return nil
}

// currentToken returns the bearer string to install: a DeviceKey
// session signs a fresh token good for sasTokenLifetimeMs, a
// DeviceSasToken session installs the caller-supplied token verbatim
// and is never refreshed by this package.
func (a *Authenticator) currentToken(nowS int64) (string, error) {
	switch cred := a.cred.(type) {
	case deviceKeyCredential:
		expiry := nowS + a.sasTokenLifetimeMs/1000
		return a.signer.Sign(cred.key, a.audience(), a.sasTokenKeyName, expiry)
	case deviceSASTokenCredential:
		return cred.token, nil
	default:
		return "", fmt.Errorf("%w: no CBS-bearing credential", ErrInvalidState)
	}
}

// checkAuthenticationTimeout evaluates the Authenticating-state timeout
// predicate; it never dispatches anything itself, it only watches the
// clock for a put_token that never completes.
func (a *Authenticator) checkAuthenticationTimeout() error {
	if a.authenticationTimedOut() {
		a.transitionTo(StatusFailedTimeout)
	}
	return nil
}

// onPutTokenComplete is the callback handed to the CBS bridge for a
// put_token dispatched from authenticateDevice. It fires synchronously,
// inside the Bridge.Poll call DoWork makes, so by the time DoWork
// returns the authenticator has already reacted to the completion.
func (a *Authenticator) onPutTokenComplete(result cbs.Result, statusCode int, statusDescription string) {
	if a.status != StatusAuthenticating {
		if a.logger != nil {
			a.logger.Warn("put_token completion outside Authenticating", "device_id", a.deviceID, "status", a.status.String())
		}
		return
	}

	if result != cbs.ResultOK {
		if a.logger != nil {
			a.logger.Warn("put_token rejected", "device_id", a.deviceID, "status_code", statusCode, "status_description", statusDescription)
		}
		a.transitionTo(StatusFailed)
		return
	}

	a.transitionTo(StatusAuthenticated)
}

// onDeleteTokenComplete is the callback handed to the CBS bridge for a
// delete_token dispatched from Stop. The stop-completed observer is
// always invoked, win or lose, before the status-changed observer fires
// for the terminal transition - mirroring the source's ordering, which
// tears down the stop observer first so a caller reacting to the status
// change never sees a stale pending-stop callback. A rejected
// delete_token leaves the session in Failed rather than Idle: the peer
// never confirmed the token was revoked, so the session cannot be
// considered cleanly deauthenticated.
func (a *Authenticator) onDeleteTokenComplete(result cbs.Result, statusCode int, statusDescription string) {
	onStopCompleted := a.onStopCompleted
	onStopCompletedCtx := a.onStopCompletedCtx
	a.onStopCompleted = nil
	a.onStopCompletedCtx = nil

	if onStopCompleted != nil {
		onStopCompleted(result, onStopCompletedCtx)
	}

	newStatus := StatusIdle
	if result != cbs.ResultOK {
		if a.logger != nil {
			a.logger.Warn("delete_token rejected", "device_id", a.deviceID, "status_code", statusCode, "status_description", statusDescription)
		}
		newStatus = StatusFailed
	} else {
		a.currentSASTokenCreateTimeS = 0
		a.currentSASTokenPutTimeS = 0
	}

	a.transitionTo(newStatus)
}
