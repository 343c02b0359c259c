package helpers

import (
	"crypto/tls"
	"fmt"
	"os"
)

// LoadTLSClientIdentity turns a PEM certificate bundle and a PEM private key
// into a TLS client identity. Only the first certificate of the bundle is
// used; intermediates in the same bundle are ignored here. The key is
// re-encoded to PKCS#8 and the pair is re-materialized through X509KeyPair,
// which both validates that certificate and key match and yields an identity
// usable across repeated handshakes.
func LoadTLSClientIdentity(certChainPEM string, keyPEM string) (tls.Certificate, error) {
	certs, err := ParseCertificateChain(certChainPEM)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("could not parse certificate bundle: %w", err)
	}

	leaf := certs[0]

	key, err := ParsePrivateKey([]byte(keyPEM))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("could not parse private key: %w", err)
	}

	normalizedKeyPEM, err := PrivateKeyToPEM(key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("could not re-encode private key: %w", err)
	}

	identity, err := tls.X509KeyPair([]byte(CertificateToPEM(leaf)), []byte(normalizedKeyPEM))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("certificate and key do not form a usable identity: %w", err)
	}

	identity.Leaf = leaf
	return identity, nil
}

func ReadTLSClientIdentityFromFiles(certChainPath string, keyPath string) (tls.Certificate, error) {
	certBytes, err := os.ReadFile(certChainPath)
	if err != nil {
		return tls.Certificate{}, err
	}

	keyBytes, err := os.ReadFile(keyPath)
	if err != nil {
		return tls.Certificate{}, err
	}

	return LoadTLSClientIdentity(string(certBytes), string(keyBytes))
}
