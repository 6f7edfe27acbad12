package auth

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotcore/amqp-cbs-auth/auth/clock"
	"github.com/iotcore/amqp-cbs-auth/cbs"
)

// fakeCBSClient is a cbs.Client test double. PutToken/DeleteToken record
// the bridge's wrapped completion so the test controls exactly when (and
// whether) it fires.
type fakeCBSClient struct {
	putErr    error
	deleteErr error

	lastPutReq    cbs.PutTokenRequest
	lastPut       cbs.PutTokenComplete
	lastDeleteReq cbs.DeleteTokenRequest
	lastDelete    cbs.DeleteTokenComplete
}

func (f *fakeCBSClient) PutToken(_ context.Context, req cbs.PutTokenRequest, onComplete cbs.PutTokenComplete) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.lastPutReq = req
	f.lastPut = onComplete
	return nil
}

func (f *fakeCBSClient) DeleteToken(_ context.Context, req cbs.DeleteTokenRequest, onComplete cbs.DeleteTokenComplete) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.lastDeleteReq = req
	f.lastDelete = onComplete
	return nil
}

func newTestAuthenticator(t *testing.T, configure func(*Config)) (*Authenticator, *fakeCBSClient, *clock.Mock) {
	t.Helper()
	mockClock := clock.NewMock(time.Unix(1_700_000_000, 0))
	cfg := Config{
		DeviceID:            "device-1",
		HostFQDN:            "myhub.azure-devices.net",
		DeviceKey:           "dGVzdGtleQ==",
		SASTokenLifetime:    1 * time.Hour,
		SASTokenRefreshTime: 45 * time.Minute,
		CBSRequestTimeout:   30 * time.Second,
		Clock:               mockClock,
	}
	if configure != nil {
		configure(&cfg)
	}
	a, err := Create(cfg)
	require.NoError(t, err)

	client := &fakeCBSClient{}
	bridge := cbs.NewBridge(client, nil, nil)

	var lastOld, lastNew Status
	err = a.Start(bridge, func(_ any, old, new Status) { lastOld, lastNew = old, new }, nil)
	require.NoError(t, err)
	_ = lastOld
	_ = lastNew

	return a, client, mockClock
}

func TestCreate_ValidatesArguments(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"missing device id", Config{HostFQDN: "h", DeviceKey: "k"}},
		{"missing host fqdn", Config{DeviceID: "d", DeviceKey: "k"}},
		{"conflicting credentials", Config{DeviceID: "d", HostFQDN: "h", DeviceKey: "k", DeviceSASToken: "t"}},
		{"no credential", Config{DeviceID: "d", HostFQDN: "h"}},
		{"refresh not less than lifetime", Config{
			DeviceID: "d", HostFQDN: "h", DeviceKey: "k",
			SASTokenLifetime: time.Minute, SASTokenRefreshTime: time.Minute,
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Create(tc.cfg)
			assert.Error(t, err)
		})
	}
}

func TestCreate_CredentialPriority(t *testing.T) {
	a, err := Create(Config{
		DeviceID: "d", HostFQDN: "h",
		DeviceSASToken: "SharedAccessSignature sr=x&sig=y&se=1",
		DeviceKey:      "",
	})
	require.NoError(t, err)
	credType, err := a.GetCredentialType()
	require.NoError(t, err)
	assert.Equal(t, CredentialDeviceSASToken, credType)
}

func TestHappyPath_DeviceKey(t *testing.T) {
	a, client, _ := newTestAuthenticator(t, nil)

	err := a.DoWork(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusAuthenticating, a.status)
	require.NotNil(t, client.lastPut)
	assert.Contains(t, client.lastPutReq.Audience, "myhub.azure-devices.net/devices/device-1")

	client.lastPut(cbs.ResultOK, 200, "Accepted")
	assert.Equal(t, StatusAuthenticated, a.status)
}

func TestHappyPath_DeviceSasToken(t *testing.T) {
	a, client, _ := newTestAuthenticator(t, func(c *Config) {
		c.DeviceKey = ""
		c.DeviceSASToken = "SharedAccessSignature sr=foo&sig=bar&se=123"
	})

	err := a.DoWork(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusAuthenticating, a.status)
	assert.Equal(t, "SharedAccessSignature sr=foo&sig=bar&se=123", client.lastPutReq.Token)

	client.lastPut(cbs.ResultOK, 200, "Accepted")
	assert.Equal(t, StatusAuthenticated, a.status)
}

func TestRefresh_DeviceKey(t *testing.T) {
	a, client, mockClock := newTestAuthenticator(t, nil)

	require.NoError(t, a.DoWork(context.Background()))
	client.lastPut(cbs.ResultOK, 200, "Accepted")
	require.Equal(t, StatusAuthenticated, a.status)

	mockClock.Advance(46 * time.Minute)
	require.NoError(t, a.DoWork(context.Background()))
	assert.Equal(t, StatusAuthenticating, a.status)

	client.lastPut(cbs.ResultOK, 200, "Accepted")
	assert.Equal(t, StatusAuthenticated, a.status)
}

func TestTimeout_Authenticating(t *testing.T) {
	a, client, mockClock := newTestAuthenticator(t, nil)

	require.NoError(t, a.DoWork(context.Background()))
	require.Equal(t, StatusAuthenticating, a.status)
	require.NotNil(t, client.lastPut)

	mockClock.Advance(31 * time.Second)
	require.NoError(t, a.DoWork(context.Background()))
	assert.Equal(t, StatusFailedTimeout, a.status)
}

// failingSigner always returns an error, simulating a SAS token
// construction failure distinct from a clock or dispatch failure.
type failingSigner struct{}

func (failingSigner) Sign(string, string, string, int64) (string, error) {
	return "", errSignFailed
}

var errSignFailed = fmt.Errorf("signing unavailable")

func TestAuthenticateDevice_ConstructionFailure_LeavesStatusUnchanged(t *testing.T) {
	a, client, _ := newTestAuthenticator(t, func(c *Config) {
		c.Signer = failingSigner{}
	})
	require.Equal(t, StatusStarted, a.status)

	err := a.DoWork(context.Background())
	assert.Error(t, err)
	assert.Equal(t, StatusStarted, a.status, "a token construction failure must not change status")
	assert.Nil(t, client.lastPut, "no put_token should be dispatched when the token could not be built")
}

func TestClockFailure_ForcesFailedOnAuthenticate(t *testing.T) {
	a, _, mockClock := newTestAuthenticator(t, nil)
	mockClock.SetFailing(true)

	err := a.DoWork(context.Background())
	assert.Error(t, err)
	assert.Equal(t, StatusFailed, a.status)
}

func TestStop_Happy(t *testing.T) {
	a, client, _ := newTestAuthenticator(t, nil)
	require.NoError(t, a.DoWork(context.Background()))
	client.lastPut(cbs.ResultOK, 200, "Accepted")
	require.Equal(t, StatusAuthenticated, a.status)

	var gotResult cbs.Result
	var called bool
	err := a.Stop(func(result cbs.Result, _ any) { gotResult = result; called = true }, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusDeauthenticating, a.status)
	require.NotNil(t, client.lastDelete)

	client.lastDelete(cbs.ResultOK, 200, "Accepted")
	assert.True(t, called)
	assert.Equal(t, cbs.ResultOK, gotResult)
	assert.Equal(t, StatusIdle, a.status)
}

func TestStop_RejectedDeleteToken_GoesToFailed(t *testing.T) {
	a, client, _ := newTestAuthenticator(t, nil)
	require.NoError(t, a.DoWork(context.Background()))
	client.lastPut(cbs.ResultOK, 200, "Accepted")
	require.Equal(t, StatusAuthenticated, a.status)

	var gotResult cbs.Result
	var called bool
	err := a.Stop(func(result cbs.Result, _ any) { gotResult = result; called = true }, nil)
	require.NoError(t, err)
	require.NotNil(t, client.lastDelete)

	client.lastDelete(cbs.ResultError, 500, "Internal Server Error")
	assert.True(t, called)
	assert.Equal(t, cbs.ResultError, gotResult)
	assert.Equal(t, StatusFailed, a.status)
}

func TestStop_FromFailedTimeout(t *testing.T) {
	a, client, mockClock := newTestAuthenticator(t, nil)
	require.NoError(t, a.DoWork(context.Background()))
	mockClock.Advance(31 * time.Second)
	require.NoError(t, a.DoWork(context.Background()))
	require.Equal(t, StatusFailedTimeout, a.status)

	err := a.Stop(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, a.status)
	assert.Nil(t, client.lastDelete)
}

func TestSetOption_RejectsWrongType(t *testing.T) {
	a, _, _ := newTestAuthenticator(t, nil)
	err := a.SetOption("sas_token_lifetime", "not a duration")
	assert.Error(t, err)
}

func TestSetOption_AppliesValidDuration(t *testing.T) {
	a, _, _ := newTestAuthenticator(t, nil)
	err := a.SetOption("cbs_request_timeout", 5*time.Second)
	require.NoError(t, err)
	assert.EqualValues(t, 5000, a.cbsRequestTimeoutMs)
}

func TestDestroy_ClearsCredential(t *testing.T) {
	a, _, _ := newTestAuthenticator(t, nil)
	a.Destroy()
	credType, err := a.GetCredentialType()
	require.NoError(t, err)
	assert.Equal(t, CredentialX509, credType)
}
