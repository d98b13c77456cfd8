package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/benmeehan/meterctl/pkg/file"
)

const (
	keySize       = 32
	nonceSize     = 12
	minSecretSize = 16
)

// hkdfInfo binds derived keys to their purpose.
var hkdfInfo = []byte("meterctl credential store v1")

// EncryptionManagerInterface defines encryption and decryption methods.
type EncryptionManagerInterface interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// EncryptionManager implements AES-GCM encryption of data at rest.
type EncryptionManager struct {
	fileClient file.FileOperations
	aesgcm     cipher.AEAD
}

// NewEncryptionManager creates a new EncryptionManager instance.
func NewEncryptionManager(fileClient file.FileOperations) *EncryptionManager {
	return &EncryptionManager{fileClient: fileClient}
}

// Initialize reads the secret from keyPath and derives the AES key from it.
func (a *EncryptionManager) Initialize(keyPath string) error {
	secret, err := a.fileClient.ReadFileRaw(keyPath)
	if err != nil {
		return fmt.Errorf("failed to read key file: %w", err)
	}
	return a.InitializeWithSecret(secret)
}

// InitializeOrCreate behaves like Initialize, generating a random key file
// at keyPath first when none exists.
func (a *EncryptionManager) InitializeOrCreate(keyPath string) error {
	exists, err := a.fileClient.IsFileExists(keyPath)
	if err != nil {
		return fmt.Errorf("failed to stat key file: %w", err)
	}
	if !exists {
		secret := make([]byte, keySize)
		if _, err := rand.Read(secret); err != nil {
			return fmt.Errorf("failed to generate key: %w", err)
		}
		if err := a.fileClient.WriteFileAtomic(keyPath, secret, 0600); err != nil {
			return fmt.Errorf("failed to write key file: %w", err)
		}
	}
	return a.Initialize(keyPath)
}

// InitializeWithSecret derives the AES-256 key from secret with HKDF-SHA256.
func (a *EncryptionManager) InitializeWithSecret(secret []byte) error {
	if len(secret) < minSecretSize {
		return fmt.Errorf("key material too short: got %d bytes, want at least %d", len(secret), minSecretSize)
	}

	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, hkdfInfo), key); err != nil {
		return fmt.Errorf("failed to derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("failed to create AES cipher block: %w", err)
	}

	a.aesgcm, err = cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("failed to create AES-GCM: %w", err)
	}
	return nil
}

// Encrypt encrypts plaintext using AES-GCM. The nonce is prepended to the output.
func (a *EncryptionManager) Encrypt(plaintext []byte) ([]byte, error) {
	if a.aesgcm == nil {
		return nil, errors.New("encryption manager not initialized")
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return a.aesgcm.Seal(nonce[:], nonce[:], plaintext, nil), nil
}

// Decrypt decrypts ciphertext produced by Encrypt.
func (a *EncryptionManager) Decrypt(ciphertext []byte) ([]byte, error) {
	if a.aesgcm == nil {
		return nil, errors.New("encryption manager not initialized")
	}
	if len(ciphertext) < nonceSize {
		return nil, errors.New("ciphertext too short: must include nonce and encrypted data")
	}

	plaintext, err := a.aesgcm.Open(nil, ciphertext[:nonceSize], ciphertext[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}
