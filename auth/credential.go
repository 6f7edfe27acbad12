package auth

// CredentialType identifies which variant of Credential an Authenticator
// was constructed with. The variant is fixed for the lifetime of the
// record (spec invariant): Create chooses it once and nothing afterwards
// may change it.
type CredentialType int

const (
	// CredentialNone indicates no credential was configured; Create
	// never succeeds with this type, it exists only as a zero value.
	CredentialNone CredentialType = iota
	// CredentialDeviceKey authenticates using a shared device key; the
	// authenticator constructs and refreshes its own SAS tokens.
	CredentialDeviceKey
	// CredentialDeviceSASToken authenticates using a caller-supplied SAS
	// token, forwarded verbatim; never self-refreshed.
	CredentialDeviceSASToken
	// CredentialX509 authenticates via TLS client certificate; bypasses
	// CBS entirely.
	CredentialX509
)

// String implements fmt.Stringer for log output.
func (t CredentialType) String() string {
	switch t {
	case CredentialNone:
		return "None"
	case CredentialDeviceKey:
		return "DeviceKey"
	case CredentialDeviceSASToken:
		return "DeviceSasToken"
	case CredentialX509:
		return "X509"
	default:
		return "Unknown"
	}
}

// credential is the tagged union over {None, DeviceKey, DeviceSasToken,
// X509}, replacing the C union-with-tag. Each concrete type below
// implements credentialType, making the dispatch in authenticateDevice
// and Stop exhaustive and compiler-checkable.
type credential interface {
	credentialType() CredentialType
}

// deviceKeyCredential holds a shared device key; the authenticator signs
// its own SAS tokens against it.
type deviceKeyCredential struct {
	key string
}

func (deviceKeyCredential) credentialType() CredentialType { return CredentialDeviceKey }

// deviceSASTokenCredential holds a pre-signed SAS token supplied by the
// caller. It is never regenerated; the embedding application is
// responsible for recreating the authenticator with a fresh token.
type deviceSASTokenCredential struct {
	token string
}

func (deviceSASTokenCredential) credentialType() CredentialType { return CredentialDeviceSASToken }

// x509Credential holds a TLS client certificate and private key. It never
// touches the CBS bridge.
type x509Credential struct {
	certificate string
	privateKey  string
}

func (x509Credential) credentialType() CredentialType { return CredentialX509 }
