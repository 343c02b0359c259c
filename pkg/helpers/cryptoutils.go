package helpers

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

const pemTypeCertificateRequest = "CERTIFICATE REQUEST"

func GenerateRSAKey(bits int) (*rsa.PrivateKey, error) {
	privkey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, err
	}

	return privkey, nil
}

func GenerateECDSAKey(curve elliptic.Curve) (*ecdsa.PrivateKey, error) {
	privkey, err := ecdsa.GenerateKey(curve, rand.Reader)
	if err != nil {
		return nil, err
	}

	return privkey, nil
}

func generateKey(keyAlg x509.PublicKeyAlgorithm, keySize int) (crypto.Signer, error) {
	switch keyAlg {
	case x509.RSA:
		return GenerateRSAKey(keySize)
	case x509.ECDSA:
		curve, err := ecdsaCurveForSize(keySize)
		if err != nil {
			return nil, err
		}
		return GenerateECDSAKey(curve)
	default:
		return nil, fmt.Errorf("unsupported key algorithm '%s'", keyAlg)
	}
}

func ecdsaCurveForSize(keySize int) (elliptic.Curve, error) {
	switch keySize {
	case 224:
		return elliptic.P224(), nil
	case 256:
		return elliptic.P256(), nil
	case 384:
		return elliptic.P384(), nil
	case 521:
		return elliptic.P521(), nil
	default:
		return nil, fmt.Errorf("unsupported ECDSA key size %d", keySize)
	}
}

func signatureAlgorithm(keyAlg x509.PublicKeyAlgorithm, sigHash crypto.Hash) (x509.SignatureAlgorithm, error) {
	switch keyAlg {
	case x509.RSA:
		switch sigHash {
		case crypto.SHA256:
			return x509.SHA256WithRSA, nil
		case crypto.SHA384:
			return x509.SHA384WithRSA, nil
		case crypto.SHA512:
			return x509.SHA512WithRSA, nil
		}
	case x509.ECDSA:
		switch sigHash {
		case crypto.SHA256:
			return x509.ECDSAWithSHA256, nil
		case crypto.SHA384:
			return x509.ECDSAWithSHA384, nil
		case crypto.SHA512:
			return x509.ECDSAWithSHA512, nil
		}
	}

	return x509.UnknownSignatureAlgorithm, fmt.Errorf("unsupported signature combination '%s' with '%s'", keyAlg, sigHash)
}

// GenerateCSR creates a fresh key pair and a certificate signing request
// with subject CN=commonName. Both outputs are PEM encoded; the private key
// uses PKCS#8.
func GenerateCSR(commonName string, keyAlg x509.PublicKeyAlgorithm, keySize int, sigHash crypto.Hash) (string, string, error) {
	sigAlg, err := signatureAlgorithm(keyAlg, sigHash)
	if err != nil {
		return "", "", err
	}

	key, err := generateKey(keyAlg, keySize)
	if err != nil {
		return "", "", err
	}

	template := x509.CertificateRequest{
		Subject: pkix.Name{
			CommonName: commonName,
		},
		SignatureAlgorithm: sigAlg,
	}

	csrBytes, err := x509.CreateCertificateRequest(rand.Reader, &template, key)
	if err != nil {
		return "", "", err
	}

	csrPEM := pem.EncodeToMemory(&pem.Block{Type: pemTypeCertificateRequest, Bytes: csrBytes})
	keyPEM, err := PrivateKeyToPEM(key)
	if err != nil {
		return "", "", err
	}

	return string(csrPEM), keyPEM, nil
}

// GenerateSelfSignedClientCertificate creates a leaf certificate suited for
// TLS client authentication, valid from now for validityDays.
func GenerateSelfSignedClientCertificate(commonName string, validityDays int, keyAlg x509.PublicKeyAlgorithm, keySize int) (string, string, error) {
	key, err := generateKey(keyAlg, keySize)
	if err != nil {
		return "", "", err
	}

	sn, _ := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 160))
	template := x509.Certificate{
		SerialNumber: sn,
		Subject: pkix.Name{
			CommonName: commonName,
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().AddDate(0, 0, validityDays),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		SubjectKeyId:          []byte(uuid.NewString()),
		IsCA:                  false,
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, key.Public(), key)
	if err != nil {
		return "", "", err
	}

	cert, err := x509.ParseCertificate(derBytes)
	if err != nil {
		return "", "", err
	}

	keyPEM, err := PrivateKeyToPEM(key)
	if err != nil {
		return "", "", err
	}

	return CertificateToPEM(cert), keyPEM, nil
}

// CSRPEMToBase64DER strips the PEM envelope from a certificate signing
// request and returns its DER bytes as a single base64 string with no
// embedded newlines, which is the form the registration payload requires.
func CSRPEMToBase64DER(csrPEM string) (string, error) {
	block, _ := pem.Decode([]byte(csrPEM))
	if block == nil {
		return "", fmt.Errorf("no PEM block found")
	}

	if block.Type != pemTypeCertificateRequest {
		return "", fmt.Errorf("expected a %s PEM block, got '%s'", pemTypeCertificateRequest, block.Type)
	}

	return base64.StdEncoding.EncodeToString(block.Bytes), nil
}
