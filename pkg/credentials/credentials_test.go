package credentials

import (
	"crypto"
	"crypto/x509"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgekit-io/fleetprov/pkg/errs"
	"github.com/edgekit-io/fleetprov/pkg/helpers"
)

const testKeyB64 = "dGVzdC1rZXktbWF0ZXJpYWw="

func testClientCert(t *testing.T) (certPEM string, keyPEM string) {
	t.Helper()
	certPEM, keyPEM, err := helpers.GenerateSelfSignedClientCertificate("device-001", 1, x509.ECDSA, 256)
	if err != nil {
		t.Fatalf("could not generate client certificate: %s", err)
	}
	return certPEM, keyPEM
}

func testCSR(t *testing.T) (csrPEM string, keyPEM string) {
	t.Helper()
	csrPEM, keyPEM, err := helpers.GenerateCSR("device-001", x509.ECDSA, 256, crypto.SHA256)
	if err != nil {
		t.Fatalf("could not generate CSR: %s", err)
	}
	return csrPEM, keyPEM
}

func TestSymmetricKeyValidate(t *testing.T) {
	attestation := &SymmetricKey{ID: "device-001", PrimaryKey: Secret(testKeyB64)}
	assert.NoError(t, attestation.Validate())
	assert.Equal(t, "device-001", attestation.RegistrationID())

	attestation = &SymmetricKey{ID: "device-001", PrimaryKey: Secret(testKeyB64), SecondaryKey: Secret(testKeyB64)}
	assert.NoError(t, attestation.Validate())
}

func TestSymmetricKeyValidateRejections(t *testing.T) {
	err := (&SymmetricKey{ID: "", PrimaryKey: Secret(testKeyB64)}).Validate()
	assert.ErrorIs(t, err, errs.ErrInvalidAttestation)

	err = (&SymmetricKey{ID: "Device-001", PrimaryKey: Secret(testKeyB64)}).Validate()
	assert.ErrorIs(t, err, errs.ErrInvalidAttestation)

	err = (&SymmetricKey{ID: "device-001"}).Validate()
	assert.ErrorIs(t, err, errs.ErrInvalidAttestation)

	err = (&SymmetricKey{ID: "device-001", PrimaryKey: Secret("not!!base64")}).Validate()
	assert.ErrorIs(t, err, errs.ErrInvalidAttestation)

	err = (&SymmetricKey{ID: "device-001", PrimaryKey: Secret(testKeyB64), SecondaryKey: Secret("not!!base64")}).Validate()
	assert.ErrorIs(t, err, errs.ErrInvalidAttestation)
}

func TestX509CertificateValidateAndIdentity(t *testing.T) {
	certPEM, keyPEM := testClientCert(t)

	attestation := &X509Certificate{ID: "device-001", CertPEM: certPEM, KeyPEM: Secret(keyPEM)}
	require.NoError(t, attestation.Validate())

	identity, err := attestation.TLSIdentity()
	require.NoError(t, err)
	require.NotNil(t, identity.Leaf)
	assert.Equal(t, "device-001", identity.Leaf.Subject.CommonName)
	assert.NotNil(t, identity.PrivateKey)
}

func TestX509CertificateValidateRejections(t *testing.T) {
	certPEM, keyPEM := testClientCert(t)

	err := (&X509Certificate{ID: "device-001", KeyPEM: Secret(keyPEM)}).Validate()
	assert.ErrorIs(t, err, errs.ErrInvalidAttestation)

	err = (&X509Certificate{ID: "device-001", CertPEM: "garbage", KeyPEM: Secret(keyPEM)}).Validate()
	assert.ErrorIs(t, err, errs.ErrInvalidAttestation)

	err = (&X509Certificate{ID: "device-001", CertPEM: certPEM}).Validate()
	assert.ErrorIs(t, err, errs.ErrInvalidAttestation)
}

func TestX509CertificateIdentityWithMismatchedKey(t *testing.T) {
	certPEM, _ := testClientCert(t)
	_, otherKeyPEM := testClientCert(t)

	attestation := &X509Certificate{ID: "device-001", CertPEM: certPEM, KeyPEM: Secret(otherKeyPEM)}
	_, err := attestation.TLSIdentity()
	assert.Error(t, err)
}

func TestX509CSRWithGroupKeyValidate(t *testing.T) {
	csrPEM, keyPEM := testCSR(t)

	attestation := &X509CSRWithGroupKey{
		ID:          "device-001",
		CSRPEM:      csrPEM,
		KeyPEM:      Secret(keyPEM),
		GroupKeyB64: Secret(testKeyB64),
	}
	require.NoError(t, attestation.Validate())

	csrB64, err := attestation.CSRDerBase64()
	require.NoError(t, err)

	der, err := base64.StdEncoding.DecodeString(csrB64)
	require.NoError(t, err)
	csr, err := x509.ParseCertificateRequest(der)
	require.NoError(t, err)
	assert.Equal(t, "device-001", csr.Subject.CommonName)
}

func TestX509CSRWithGroupKeyValidateRejections(t *testing.T) {
	csrPEM, keyPEM := testCSR(t)

	err := (&X509CSRWithGroupKey{ID: "device-001", CSRPEM: csrPEM, KeyPEM: Secret(keyPEM)}).Validate()
	assert.ErrorIs(t, err, errs.ErrInvalidAttestation)

	err = (&X509CSRWithGroupKey{ID: "device-001", CSRPEM: csrPEM, KeyPEM: Secret(keyPEM), GroupKeyB64: Secret("not!!base64")}).Validate()
	assert.ErrorIs(t, err, errs.ErrInvalidAttestation)

	err = (&X509CSRWithGroupKey{ID: "device-001", KeyPEM: Secret(keyPEM), GroupKeyB64: Secret(testKeyB64)}).Validate()
	assert.ErrorIs(t, err, errs.ErrInvalidAttestation)

	err = (&X509CSRWithGroupKey{ID: "device-001", CSRPEM: "garbage", KeyPEM: Secret(keyPEM), GroupKeyB64: Secret(testKeyB64)}).Validate()
	assert.ErrorIs(t, err, errs.ErrInvalidAttestation)

	err = (&X509CSRWithGroupKey{ID: "device-001", CSRPEM: csrPEM, GroupKeyB64: Secret(testKeyB64)}).Validate()
	assert.ErrorIs(t, err, errs.ErrInvalidAttestation)
}

func TestX509CSRWithClientCertValidateAndAccessors(t *testing.T) {
	certPEM, keyPEM := testClientCert(t)
	csrPEM, _ := testCSR(t)

	attestation := &X509CSRWithClientCert{
		ID:          "device-001",
		AuthCertPEM: certPEM,
		CSRPEM:      csrPEM,
		KeyPEM:      Secret(keyPEM),
	}
	require.NoError(t, attestation.Validate())

	identity, err := attestation.TLSIdentity()
	require.NoError(t, err)
	assert.NotNil(t, identity.Leaf)

	csrB64, err := attestation.CSRDerBase64()
	require.NoError(t, err)
	assert.NotEmpty(t, csrB64)
}

func TestX509CSRWithClientCertValidateRejections(t *testing.T) {
	certPEM, keyPEM := testClientCert(t)
	csrPEM, _ := testCSR(t)

	err := (&X509CSRWithClientCert{ID: "device-001", CSRPEM: csrPEM, KeyPEM: Secret(keyPEM)}).Validate()
	assert.ErrorIs(t, err, errs.ErrInvalidAttestation)

	err = (&X509CSRWithClientCert{ID: "device-001", AuthCertPEM: certPEM, KeyPEM: Secret(keyPEM)}).Validate()
	assert.ErrorIs(t, err, errs.ErrInvalidAttestation)

	err = (&X509CSRWithClientCert{ID: "device-001", AuthCertPEM: certPEM, CSRPEM: "garbage", KeyPEM: Secret(keyPEM)}).Validate()
	assert.ErrorIs(t, err, errs.ErrInvalidAttestation)

	err = (&X509CSRWithClientCert{ID: "device-001", AuthCertPEM: certPEM, CSRPEM: csrPEM}).Validate()
	assert.ErrorIs(t, err, errs.ErrInvalidAttestation)
}
