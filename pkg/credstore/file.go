package credstore

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/benmeehan/meterctl/internal/models"
	"github.com/benmeehan/meterctl/pkg/encryption"
	"github.com/benmeehan/meterctl/pkg/file"
)

// tokenData is the on-disk layout, keyed by the fixed storage keys.
type tokenData struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// FileStore persists the credential pair in a single encrypted file.
type FileStore struct {
	path              string
	fileOps           file.FileOperations
	encryptionManager encryption.EncryptionManagerInterface
	mu                sync.RWMutex
}

// NewFileStore creates a FileStore backed by path.
func NewFileStore(path string, fileOps file.FileOperations, encryptionManager encryption.EncryptionManagerInterface) *FileStore {
	return &FileStore{
		path:              path,
		fileOps:           fileOps,
		encryptionManager: encryptionManager,
	}
}

// Get reads the pair from disk. A missing or empty file yields an empty pair.
func (s *FileStore) Get() (models.TokenPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := s.fileOps.ReadFileRaw(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return models.TokenPair{}, nil
		}
		return models.TokenPair{}, fmt.Errorf("failed to read credentials: %w", err)
	}
	if len(data) == 0 {
		return models.TokenPair{}, nil
	}

	decrypted, err := s.encryptionManager.Decrypt(data)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("failed to decrypt credentials: %w", err)
	}

	var tokens tokenData
	if err := json.Unmarshal(decrypted, &tokens); err != nil {
		return models.TokenPair{}, fmt.Errorf("failed to parse credentials: %w", err)
	}

	return models.TokenPair{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken}, nil
}

// Set encrypts the pair and replaces the file in one rename.
func (s *FileStore) Set(pair models.TokenPair) error {
	data, err := json.Marshal(tokenData{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
	if err != nil {
		return fmt.Errorf("failed to serialize credentials: %w", err)
	}

	encrypted, err := s.encryptionManager.Encrypt(data)
	if err != nil {
		return fmt.Errorf("failed to encrypt credentials: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fileOps.WriteFileAtomic(s.path, encrypted, 0600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return nil
}

// Clear deletes the credentials file.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fileOps.RemoveFile(s.path); err != nil {
		return fmt.Errorf("failed to remove credentials: %w", err)
	}
	return nil
}
