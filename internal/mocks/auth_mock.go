package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/benmeehan/meterctl/internal/models"
)

// MockRefresher is a mock implementation of the Refresher interface
type MockRefresher struct {
	mock.Mock
}

func (m *MockRefresher) Refresh(ctx context.Context, pair models.TokenPair) (models.TokenPair, error) {
	args := m.Called(ctx, pair)
	return args.Get(0).(models.TokenPair), args.Error(1)
}

// MockNavigator is a mock implementation of the Navigator interface
type MockNavigator struct {
	mock.Mock
}

func (m *MockNavigator) RedirectToSignIn() {
	m.Called()
}

// MockCredentialStore is a mock implementation of the CredentialStore interface
type MockCredentialStore struct {
	mock.Mock
}

func (m *MockCredentialStore) Get() (models.TokenPair, error) {
	args := m.Called()
	return args.Get(0).(models.TokenPair), args.Error(1)
}

func (m *MockCredentialStore) Set(pair models.TokenPair) error {
	args := m.Called(pair)
	return args.Error(0)
}

func (m *MockCredentialStore) Clear() error {
	args := m.Called()
	return args.Error(0)
}
