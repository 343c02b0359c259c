package helpers

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCSR(t *testing.T) {
	// Case 1: RSA key
	csrPEM, keyPEM, err := GenerateCSR("device-001", x509.RSA, 2048, crypto.SHA256)
	require.NoError(t, err)

	block, _ := pem.Decode([]byte(csrPEM))
	require.NotNil(t, block)
	assert.Equal(t, "CERTIFICATE REQUEST", block.Type)

	csr, err := x509.ParseCertificateRequest(block.Bytes)
	require.NoError(t, err)
	assert.Equal(t, "device-001", csr.Subject.CommonName)
	assert.Equal(t, x509.SHA256WithRSA, csr.SignatureAlgorithm)
	assert.NoError(t, csr.CheckSignature())

	key, err := ParsePrivateKey([]byte(keyPEM))
	require.NoError(t, err)
	rsaKey, ok := key.(*rsa.PrivateKey)
	require.True(t, ok)
	assert.Equal(t, &rsaKey.PublicKey, csr.PublicKey)

	// Case 2: ECDSA key
	csrPEM, keyPEM, err = GenerateCSR("device-002", x509.ECDSA, 256, crypto.SHA256)
	require.NoError(t, err)

	block, _ = pem.Decode([]byte(csrPEM))
	require.NotNil(t, block)
	csr, err = x509.ParseCertificateRequest(block.Bytes)
	require.NoError(t, err)
	assert.Equal(t, x509.ECDSAWithSHA256, csr.SignatureAlgorithm)
	assert.NoError(t, csr.CheckSignature())

	key, err = ParsePrivateKey([]byte(keyPEM))
	require.NoError(t, err)
	_, ok = key.(*ecdsa.PrivateKey)
	assert.True(t, ok)
}

func TestGenerateCSRRejectsUnsupportedCombinations(t *testing.T) {
	_, _, err := GenerateCSR("device-001", x509.Ed25519, 256, crypto.SHA256)
	assert.Error(t, err)

	_, _, err = GenerateCSR("device-001", x509.RSA, 2048, crypto.MD5)
	assert.Error(t, err)

	_, _, err = GenerateCSR("device-001", x509.ECDSA, 123, crypto.SHA256)
	assert.Error(t, err)
}

func TestGenerateSelfSignedClientCertificate(t *testing.T) {
	certPEM, keyPEM, err := GenerateSelfSignedClientCertificate("device-001", 30, x509.ECDSA, 256)
	require.NoError(t, err)

	cert, err := ParseCertificate(certPEM)
	require.NoError(t, err)

	assert.Equal(t, "device-001", cert.Subject.CommonName)
	assert.False(t, cert.IsCA)
	assert.Contains(t, cert.ExtKeyUsage, x509.ExtKeyUsageClientAuth)
	assert.Equal(t, x509.KeyUsageDigitalSignature|x509.KeyUsageKeyEncipherment, cert.KeyUsage)

	// self signed, so the certificate verifies its own signature
	assert.NoError(t, cert.CheckSignature(cert.SignatureAlgorithm, cert.RawTBSCertificate, cert.Signature))

	key, err := ParsePrivateKey([]byte(keyPEM))
	require.NoError(t, err)
	ecKey, ok := key.(*ecdsa.PrivateKey)
	require.True(t, ok)
	assert.True(t, ecKey.PublicKey.Equal(cert.PublicKey))
}

func TestCSRPEMToBase64DER(t *testing.T) {
	csrPEM, _, err := GenerateCSR("device-001", x509.ECDSA, 256, crypto.SHA256)
	require.NoError(t, err)

	b64, err := CSRPEMToBase64DER(csrPEM)
	require.NoError(t, err)
	assert.NotContains(t, b64, "\n")
	assert.False(t, strings.Contains(b64, "BEGIN"))

	der, err := base64.StdEncoding.DecodeString(b64)
	require.NoError(t, err)
	_, err = x509.ParseCertificateRequest(der)
	assert.NoError(t, err)
}

func TestCSRPEMToBase64DERRejectsNonCSRInput(t *testing.T) {
	_, err := CSRPEMToBase64DER("garbage")
	assert.Error(t, err)

	certPEM, _, err := GenerateSelfSignedClientCertificate("device-001", 1, x509.ECDSA, 256)
	require.NoError(t, err)
	_, err = CSRPEMToBase64DER(certPEM)
	assert.Error(t, err)
}
