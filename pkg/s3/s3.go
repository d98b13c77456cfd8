package s3

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// DefaultRegion is used when creating buckets.
const DefaultRegion = "us-east-1"

// UploadInfo describes an uploaded object.
type UploadInfo struct {
	Bucket       string
	Object       string
	Size         int64
	PresignedURL string
}

// ObjectStorageClient uploads artifacts to S3 compatible object storage.
type ObjectStorageClient interface {
	Connect(ctx context.Context, endpoint, accessKeyID, secretAccessKey string, useSSL bool) error
	Upload(ctx context.Context, bucket, object string, data []byte, contentType string, expiry time.Duration) (UploadInfo, error)
}

// ObjectStorage holds the object storage client instance.
type ObjectStorage struct {
	Conn *minio.Client
}

// NewObjectStorage creates an unconnected ObjectStorage.
func NewObjectStorage() *ObjectStorage {
	return &ObjectStorage{}
}

// Connect establishes the object storage connection.
func (o *ObjectStorage) Connect(ctx context.Context, endpoint, accessKeyID, secretAccessKey string, useSSL bool) error {
	var err error
	o.Conn, err = minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to create minio client: %w", err)
	}

	// Check connection by listing buckets
	if _, err := o.Conn.ListBuckets(ctx); err != nil {
		return fmt.Errorf("failed to establish minio connection: %w", err)
	}
	return nil
}

// Upload stores data under bucket/object, creating the bucket when needed, and
// returns a presigned GET URL valid for expiry.
func (o *ObjectStorage) Upload(ctx context.Context, bucket, object string, data []byte, contentType string, expiry time.Duration) (UploadInfo, error) {
	if o.Conn == nil {
		return UploadInfo{}, fmt.Errorf("object storage not connected")
	}

	if err := o.Conn.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: DefaultRegion}); err != nil {
		exists, errBucketExists := o.Conn.BucketExists(ctx, bucket)
		if errBucketExists != nil || !exists {
			return UploadInfo{}, fmt.Errorf("failed to create bucket %s: %w", bucket, err)
		}
	}

	info, err := o.Conn.PutObject(ctx, bucket, object, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return UploadInfo{}, fmt.Errorf("failed to upload %s: %w", object, err)
	}

	presignedURL, err := o.Conn.PresignedGetObject(ctx, bucket, object, expiry, nil)
	if err != nil {
		return UploadInfo{}, fmt.Errorf("failed to presign %s: %w", object, err)
	}

	return UploadInfo{
		Bucket:       bucket,
		Object:       object,
		Size:         info.Size,
		PresignedURL: presignedURL.String(),
	}, nil
}
