// Package credentials models how a device proves its identity to the
// provisioning service, and what it simultaneously requests. Exactly one
// variant is active per registration attempt.
package credentials

import (
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/edgekit-io/fleetprov/pkg/errs"
	"github.com/edgekit-io/fleetprov/pkg/helpers"
)

// Attestation is the common surface of all credential variants. Validate
// fails fast and never touches the network.
type Attestation interface {
	RegistrationID() string
	Validate() error
}

// CertificateRequester is implemented by the variants that additionally ask
// the service to issue a new certificate during the exchange.
type CertificateRequester interface {
	CSRDerBase64() (string, error)
}

// TLSAuthenticator is implemented by the variants that authenticate through
// a TLS client certificate instead of a SAS token.
type TLSAuthenticator interface {
	TLSIdentity() (tls.Certificate, error)
}

func validateRegistrationID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: registration id is empty", errs.ErrInvalidAttestation)
	}

	if id != strings.ToLower(id) {
		return fmt.Errorf("%w: registration id '%s' must be lowercase", errs.ErrInvalidAttestation, id)
	}

	return nil
}

func validateBase64Secret(name string, s Secret) error {
	return s.WithBytes(func(secret []byte) error {
		if _, err := base64.StdEncoding.DecodeString(string(secret)); err != nil {
			return fmt.Errorf("%w: %s is not valid base64: %s", errs.ErrInvalidAttestation, name, err)
		}
		return nil
	})
}

// SymmetricKey attests through an individual enrollment shared secret.
type SymmetricKey struct {
	ID           string
	PrimaryKey   Secret
	SecondaryKey Secret
}

func (a *SymmetricKey) RegistrationID() string { return a.ID }

func (a *SymmetricKey) Validate() error {
	if err := validateRegistrationID(a.ID); err != nil {
		return err
	}

	if a.PrimaryKey.Empty() {
		return fmt.Errorf("%w: primary key is missing", errs.ErrInvalidAttestation)
	}

	if err := validateBase64Secret("primary key", a.PrimaryKey); err != nil {
		return err
	}

	if !a.SecondaryKey.Empty() {
		if err := validateBase64Secret("secondary key", a.SecondaryKey); err != nil {
			return err
		}
	}

	return nil
}

// X509Certificate attests through an existing TLS client certificate.
type X509Certificate struct {
	ID       string
	CertPEM  string
	ChainPEM string
	KeyPEM   Secret
}

func (a *X509Certificate) RegistrationID() string { return a.ID }

func (a *X509Certificate) Validate() error {
	if err := validateRegistrationID(a.ID); err != nil {
		return err
	}

	if a.CertPEM == "" {
		return fmt.Errorf("%w: client certificate is missing", errs.ErrInvalidAttestation)
	}

	if _, err := helpers.ParseCertificate(a.CertPEM); err != nil {
		return fmt.Errorf("%w: could not parse client certificate: %s", errs.ErrInvalidAttestation, err)
	}

	if a.KeyPEM.Empty() {
		return fmt.Errorf("%w: client certificate key is missing", errs.ErrInvalidAttestation)
	}

	return nil
}

func (a *X509Certificate) TLSIdentity() (identity tls.Certificate, err error) {
	bundle := a.CertPEM
	if a.ChainPEM != "" {
		bundle = bundle + "\n" + a.ChainPEM
	}

	keyErr := a.KeyPEM.WithBytes(func(key []byte) error {
		identity, err = helpers.LoadTLSClientIdentity(bundle, string(key))
		return err
	})
	if keyErr != nil {
		return tls.Certificate{}, keyErr
	}

	return identity, nil
}

// X509CSRWithGroupKey attests through an enrollment group key while asking
// the service to issue the device its first certificate. KeyPEM is the
// private key the CSR was generated over; the engine never sends it, the
// caller keeps it to pair with the issued chain.
type X509CSRWithGroupKey struct {
	ID          string
	CSRPEM      string
	KeyPEM      Secret
	GroupKeyB64 Secret
}

func (a *X509CSRWithGroupKey) RegistrationID() string { return a.ID }

func (a *X509CSRWithGroupKey) Validate() error {
	if err := validateRegistrationID(a.ID); err != nil {
		return err
	}

	if a.GroupKeyB64.Empty() {
		return fmt.Errorf("%w: group key is missing", errs.ErrInvalidAttestation)
	}

	if err := validateBase64Secret("group key", a.GroupKeyB64); err != nil {
		return err
	}

	return validateCSRMaterial(a.CSRPEM, a.KeyPEM)
}

func (a *X509CSRWithGroupKey) CSRDerBase64() (string, error) {
	return helpers.CSRPEMToBase64DER(a.CSRPEM)
}

// X509CSRWithClientCert attests through an existing client certificate while
// asking the service to issue a replacement certificate. KeyPEM is the
// private key paired with AuthCertPEM and is presented during the TLS
// handshake.
type X509CSRWithClientCert struct {
	ID           string
	AuthCertPEM  string
	AuthChainPEM string
	CSRPEM       string
	KeyPEM       Secret
}

func (a *X509CSRWithClientCert) RegistrationID() string { return a.ID }

func (a *X509CSRWithClientCert) Validate() error {
	if err := validateRegistrationID(a.ID); err != nil {
		return err
	}

	if a.AuthCertPEM == "" {
		return fmt.Errorf("%w: client certificate is missing", errs.ErrInvalidAttestation)
	}

	if _, err := helpers.ParseCertificate(a.AuthCertPEM); err != nil {
		return fmt.Errorf("%w: could not parse client certificate: %s", errs.ErrInvalidAttestation, err)
	}

	if a.KeyPEM.Empty() {
		return fmt.Errorf("%w: client certificate key is missing", errs.ErrInvalidAttestation)
	}

	if a.CSRPEM == "" {
		return fmt.Errorf("%w: certificate signing request is missing", errs.ErrInvalidAttestation)
	}

	if _, err := helpers.CSRPEMToBase64DER(a.CSRPEM); err != nil {
		return fmt.Errorf("%w: could not parse certificate signing request: %s", errs.ErrInvalidAttestation, err)
	}

	return nil
}

func (a *X509CSRWithClientCert) TLSIdentity() (identity tls.Certificate, err error) {
	bundle := a.AuthCertPEM
	if a.AuthChainPEM != "" {
		bundle = bundle + "\n" + a.AuthChainPEM
	}

	keyErr := a.KeyPEM.WithBytes(func(key []byte) error {
		identity, err = helpers.LoadTLSClientIdentity(bundle, string(key))
		return err
	})
	if keyErr != nil {
		return tls.Certificate{}, keyErr
	}

	return identity, nil
}

func (a *X509CSRWithClientCert) CSRDerBase64() (string, error) {
	return helpers.CSRPEMToBase64DER(a.CSRPEM)
}

func validateCSRMaterial(csrPEM string, keyPEM Secret) error {
	if csrPEM == "" {
		return fmt.Errorf("%w: certificate signing request is missing", errs.ErrInvalidAttestation)
	}

	if _, err := helpers.CSRPEMToBase64DER(csrPEM); err != nil {
		return fmt.Errorf("%w: could not parse certificate signing request: %s", errs.ErrInvalidAttestation, err)
	}

	if keyPEM.Empty() {
		return fmt.Errorf("%w: certificate signing request key is missing", errs.ErrInvalidAttestation)
	}

	return nil
}
