package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
)

// VerifyTokenLength is the size of the random token echoed back during the
// encryption handshake.
const VerifyTokenLength = 4

// LoginKeyPair is the RSA key a proxy instance presents to clients during
// online-mode login. PublicDER is the PKIX encoding sent in
// ENCRYPTION_REQUEST and hashed into the server-id digest.
type LoginKeyPair struct {
	Private   *rsa.PrivateKey
	PublicDER []byte
}

// GenerateLoginKeyPair creates an RSA key of the configured size.
func GenerateLoginKeyPair(bits int) (*LoginKeyPair, error) {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generating RSA-%d key: %w", bits, err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("encoding public key: %w", err)
	}
	return &LoginKeyPair{Private: key, PublicDER: der}, nil
}

// Decrypt decrypts a PKCS1v15 blob (shared secret or verify token) from an
// ENCRYPTION_RESPONSE.
func (kp *LoginKeyPair) Decrypt(blob []byte) ([]byte, error) {
	out, err := rsa.DecryptPKCS1v15(nil, kp.Private, blob)
	if err != nil {
		return nil, fmt.Errorf("RSA decrypt: %w", err)
	}
	return out, nil
}

// NewVerifyToken returns a fresh random verify token.
func NewVerifyToken() ([]byte, error) {
	token := make([]byte, VerifyTokenLength)
	if _, err := rand.Read(token); err != nil {
		return nil, fmt.Errorf("generating verify token: %w", err)
	}
	return token, nil
}

// NewSharedSecret returns a fresh 16-byte AES key.
func NewSharedSecret() ([]byte, error) {
	secret := make([]byte, 16)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generating shared secret: %w", err)
	}
	return secret, nil
}
