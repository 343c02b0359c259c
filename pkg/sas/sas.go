// Package sas derives per-device keys from enrollment group keys and builds
// the time-bound shared-access-signature tokens the provisioning service
// accepts as a connection password.
package sas

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/edgekit-io/fleetprov/pkg/errs"
)

const policyName = "registration"

// DeriveDeviceKey computes the per-device key for an enrollment group:
// HMAC-SHA256 over the registration id normalized to lowercase, keyed by the
// base64-decoded group key. Pure and deterministic, no I/O.
func DeriveDeviceKey(registrationID string, groupKeyB64 string) (string, error) {
	groupKey, err := base64.StdEncoding.DecodeString(groupKeyB64)
	if err != nil {
		return "", fmt.Errorf("%w: group key is not valid base64: %s", errs.ErrInvalidAttestation, err)
	}

	mac := hmac.New(sha256.New, groupKey)
	mac.Write([]byte(strings.ToLower(registrationID)))

	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// Token is a single-use shared access signature. The signature must never be
// logged; use Redacted for anything that ends up in a log line.
type Token struct {
	// ResourceURI is the percent-encoded registration resource. The encoded
	// form is what was signed over and what goes on the wire.
	ResourceURI string
	// SignatureB64 is the base64 HMAC-SHA256 digest, not yet percent encoded.
	SignatureB64 string
	// Expiry is the expiration instant in Unix seconds.
	Expiry int64
}

// GenerateToken builds a token over idScope/registrations/registrationID
// expiring ttl from now. The resource URI is percent-encoded exactly once
// and that encoded form is both the signing input and the sr= output value;
// registration ids are required to be lowercase upstream, so no case folding
// happens here.
func GenerateToken(idScope string, registrationID string, deviceKeyB64 string, ttl time.Duration) (*Token, error) {
	deviceKey, err := base64.StdEncoding.DecodeString(deviceKeyB64)
	if err != nil {
		return nil, fmt.Errorf("%w: device key is not valid base64: %s", errs.ErrInvalidAttestation, err)
	}

	if ttl <= 0 {
		return nil, fmt.Errorf("%w: token ttl must be positive", errs.ErrInvalidAttestation)
	}

	resourceURI := url.QueryEscape(idScope + "/registrations/" + registrationID)
	expiry := time.Now().Add(ttl).Unix()

	stringToSign := fmt.Sprintf("%s\n%d", resourceURI, expiry)
	mac := hmac.New(sha256.New, deviceKey)
	mac.Write([]byte(stringToSign))

	return &Token{
		ResourceURI:  resourceURI,
		SignatureB64: base64.StdEncoding.EncodeToString(mac.Sum(nil)),
		Expiry:       expiry,
	}, nil
}

// String assembles the wire form of the token.
func (t *Token) String() string {
	return fmt.Sprintf("SharedAccessSignature sr=%s&sig=%s&se=%d&skn=%s",
		t.ResourceURI, url.QueryEscape(t.SignatureB64), t.Expiry, policyName)
}

// Redacted is the loggable form of the token, with the signature elided.
func (t *Token) Redacted() string {
	return fmt.Sprintf("SharedAccessSignature sr=%s&sig=***&se=%d&skn=%s", t.ResourceURI, t.Expiry, policyName)
}
