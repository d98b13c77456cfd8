package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/benmeehan/meterctl/internal/models"
	"github.com/benmeehan/meterctl/pkg/s3"
)

// MockObjectStorage is a mock implementation of the ObjectStorageClient interface
type MockObjectStorage struct {
	mock.Mock
}

func (m *MockObjectStorage) Connect(ctx context.Context, endpoint, accessKeyID, secretAccessKey string, useSSL bool) error {
	args := m.Called(ctx, endpoint, accessKeyID, secretAccessKey, useSSL)
	return args.Error(0)
}

func (m *MockObjectStorage) Upload(ctx context.Context, bucket, object string, data []byte, contentType string, expiry time.Duration) (s3.UploadInfo, error) {
	args := m.Called(ctx, bucket, object, data, contentType, expiry)
	return args.Get(0).(s3.UploadInfo), args.Error(1)
}

// MockSink is a mock implementation of the ArtifactSink interface
type MockSink struct {
	mock.Mock
}

func (m *MockSink) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockSink) Deliver(ctx context.Context, deviceID, fileName string, data []byte) (models.Artifact, error) {
	args := m.Called(ctx, deviceID, fileName, data)
	return args.Get(0).(models.Artifact), args.Error(1)
}
