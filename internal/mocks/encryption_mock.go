package mocks

import "github.com/stretchr/testify/mock"

// MockEncryptionManager is a mock implementation of the EncryptionManagerInterface
type MockEncryptionManager struct {
	mock.Mock
}

func (m *MockEncryptionManager) Encrypt(plaintext []byte) ([]byte, error) {
	args := m.Called(plaintext)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *MockEncryptionManager) Decrypt(ciphertext []byte) ([]byte, error) {
	args := m.Called(ciphertext)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}
