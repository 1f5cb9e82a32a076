package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
)

// rsaKeyBits is the modulus size of generated service-server key pairs.
const rsaKeyBits = 2048

// GenerateKeyPair creates an RSA key pair for the service-server identity.
// The public key is returned in PKIX DER form, suitable for the credential
// store; the private key in PKCS#8 DER form, suitable for the 0600 key file.
func GenerateKeyPair() (publicKey, privateKey []byte, err error) {
	key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate RSA key pair: %w", err)
	}

	publicKey, err = x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode public key: %w", err)
	}
	privateKey, err = x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode private key: %w", err)
	}
	return publicKey, privateKey, nil
}

// WrapRSA encrypts data with a PKIX DER encoded RSA public key. Used for
// the single asymmetric hop of the protocol: wrapping a session key to a
// client device that holds no password.
func WrapRSA(publicKey, data []byte) ([]byte, error) {
	parsed, err := x509.ParsePKIXPublicKey(publicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	rsaKey, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is %T, not RSA", parsed)
	}
	wrapped, err := rsa.EncryptPKCS1v15(rand.Reader, rsaKey, data)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap with public key: %w", err)
	}
	return wrapped, nil
}

// UnwrapRSA decrypts data with a PKCS#8 DER encoded RSA private key. The
// server itself never unwraps; this is the client-side counterpart of
// WrapRSA and lives here so both ends share one implementation.
func UnwrapRSA(privateKey, data []byte) ([]byte, error) {
	parsed, err := x509.ParsePKCS8PrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is %T, not RSA", parsed)
	}
	unwrapped, err := rsa.DecryptPKCS1v15(rand.Reader, rsaKey, data)
	if err != nil {
		return nil, ErrDecrypt
	}
	return unwrapped, nil
}
