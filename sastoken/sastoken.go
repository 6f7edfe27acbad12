// Package sastoken constructs the signed bearer strings CBS installs for
// Device Key credentials. It is a concrete default for the SAS token
// construction primitive the authenticator treats as an external
// collaborator: any signer satisfying Signer works, this one follows the
// SharedAccessSignature format Azure Service Bus and IoT Hub both use.
package sastoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
)

// Signer constructs a signed token string for the given resource
// (audience), key name, and expiry (unix seconds).
type Signer interface {
	Sign(key, audience, keyName string, expiry int64) (string, error)
}

// HMACSigner signs with HMAC-SHA256 over "<url-encoded audience>\n<expiry>",
// matching the SharedAccessSignature scheme:
//
//	SharedAccessSignature sr=<urlencoded audience>&sig=<urlencoded sig>&se=<expiry>[&skn=<keyName>]
type HMACSigner struct{}

// Sign implements Signer. key is the base64-encoded shared device key, as
// issued by IoT Hub device provisioning.
func (HMACSigner) Sign(key, audience, keyName string, expiry int64) (string, error) {
	if key == "" {
		return "", fmt.Errorf("sastoken: empty key")
	}
	if audience == "" {
		return "", fmt.Errorf("sastoken: empty audience")
	}

	decodedKey, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return "", fmt.Errorf("sastoken: decode key: %w", err)
	}

	encodedAudience := url.QueryEscape(audience)
	toSign := fmt.Sprintf("%s\n%d", encodedAudience, expiry)

	mac := hmac.New(sha256.New, decodedKey)
	if _, err := mac.Write([]byte(toSign)); err != nil {
		return "", fmt.Errorf("sastoken: sign: %w", err)
	}
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	token := fmt.Sprintf("SharedAccessSignature sr=%s&sig=%s&se=%d",
		encodedAudience, url.QueryEscape(signature), expiry)
	if keyName != "" {
		token += "&skn=" + url.QueryEscape(keyName)
	}
	return token, nil
}
