package encryption

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// KeyImportError is returned when a public key cannot be imported.
type KeyImportError struct {
	Reason string
	Err    error
}

func (e *KeyImportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to import public key: %s: %v", e.Reason, e.Err)
	}
	return "failed to import public key: " + e.Reason
}

func (e *KeyImportError) Unwrap() error { return e.Err }

// EncryptionError is returned when the RSA-OAEP operation fails.
type EncryptionError struct {
	Err error
}

func (e *EncryptionError) Error() string {
	return fmt.Sprintf("encryption failed: %v", e.Err)
}

func (e *EncryptionError) Unwrap() error { return e.Err }

// PublicKey is an imported RSA-OAEP (SHA-256) key. It can only encrypt.
type PublicKey struct {
	key *rsa.PublicKey
}

// Size returns the modulus size in bytes.
func (k *PublicKey) Size() int {
	return k.key.Size()
}

// MaxPlaintextSize returns the longest plaintext, in bytes, the key can encrypt.
func (k *PublicKey) MaxPlaintextSize() int {
	return k.key.Size() - 2*sha256.Size - 2
}

// ImportPublicKey decodes a Base64 encoded SubjectPublicKeyInfo and imports it as
// an RSA-OAEP encryption key.
func ImportPublicKey(base64SPKI string) (*PublicKey, error) {
	trimmed := strings.TrimSpace(base64SPKI)
	if trimmed == "" {
		return nil, &KeyImportError{Reason: "empty key"}
	}

	der, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		return nil, &KeyImportError{Reason: "invalid base64", Err: err}
	}

	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, &KeyImportError{Reason: "invalid SPKI", Err: err}
	}

	rsaKey, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, &KeyImportError{Reason: fmt.Sprintf("unsupported key algorithm %T", parsed)}
	}

	return &PublicKey{key: rsaKey}, nil
}

// Encrypt encrypts the UTF-8 bytes of plaintext with RSA-OAEP (SHA-256) and
// returns the Base64 encoded ciphertext. Each call uses fresh randomness.
func Encrypt(key *PublicKey, plaintext string) (string, error) {
	if key == nil || key.key == nil {
		return "", &EncryptionError{Err: errors.New("no public key imported")}
	}

	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, key.key, []byte(plaintext), nil)
	if err != nil {
		return "", &EncryptionError{Err: err}
	}

	return base64.StdEncoding.EncodeToString(ciphertext), nil
}
