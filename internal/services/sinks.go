package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/benmeehan/meterctl/internal/constants"
	"github.com/benmeehan/meterctl/internal/models"
	"github.com/benmeehan/meterctl/pkg/file"
	"github.com/benmeehan/meterctl/pkg/mqtt"
	"github.com/benmeehan/meterctl/pkg/s3"
)

// checkDeviceID rejects ids that would leave the sink's namespace when used
// as an object key segment or topic level.
func checkDeviceID(deviceID string) error {
	if deviceID == "" || deviceID == "." ||
		strings.ContainsAny(deviceID, `/\+#`) || strings.Contains(deviceID, "..") {
		return &ValidationError{Field: "device id", Message: fmt.Sprintf("%q cannot be used as a path segment", deviceID)}
	}
	return nil
}

// FileSink writes the document into a local directory.
type FileSink struct {
	dir        string
	fileClient file.FileOperations
}

// NewFileSink creates a FileSink writing into dir.
func NewFileSink(dir string, fileClient file.FileOperations) *FileSink {
	if dir == "" {
		dir = "."
	}
	return &FileSink{dir: dir, fileClient: fileClient}
}

// Name implements ArtifactSink.
func (s *FileSink) Name() string { return constants.SinkFile }

// Deliver writes data atomically, so a failed write never leaves a partial file.
func (s *FileSink) Deliver(_ context.Context, _ string, fileName string, data []byte) (models.Artifact, error) {
	target := filepath.Join(s.dir, filepath.Base(fileName))
	if err := s.fileClient.WriteFileAtomic(target, data, 0600); err != nil {
		return models.Artifact{}, err
	}
	return models.Artifact{Name: fileName, Sink: s.Name(), Location: target, Size: len(data)}, nil
}

// S3Sink uploads the document to object storage and returns a presigned download URL.
type S3Sink struct {
	client ObjectStorageUploader
	bucket string
	prefix string
	expiry time.Duration
}

// ObjectStorageUploader is the part of s3.ObjectStorageClient the sink needs.
type ObjectStorageUploader interface {
	Upload(ctx context.Context, bucket, object string, data []byte, contentType string, expiry time.Duration) (s3.UploadInfo, error)
}

// NewS3Sink creates an S3Sink. Objects are stored as <prefix>/<deviceID>/<fileName>.
func NewS3Sink(client ObjectStorageUploader, bucket, prefix string, expiry time.Duration) *S3Sink {
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &S3Sink{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/"), expiry: expiry}
}

// Name implements ArtifactSink.
func (s *S3Sink) Name() string { return constants.SinkS3 }

// Deliver implements ArtifactSink.
func (s *S3Sink) Deliver(ctx context.Context, deviceID, fileName string, data []byte) (models.Artifact, error) {
	if err := checkDeviceID(deviceID); err != nil {
		return models.Artifact{}, err
	}
	object := path.Join(s.prefix, deviceID, path.Base(fileName))
	info, err := s.client.Upload(ctx, s.bucket, object, data, "application/json", s.expiry)
	if err != nil {
		return models.Artifact{}, err
	}
	return models.Artifact{Name: fileName, Sink: s.Name(), Location: info.PresignedURL, Size: len(data)}, nil
}

// MQTTSink publishes the document to the provisioning topic of the device.
type MQTTSink struct {
	client      mqtt.MQTTClient
	topicPrefix string
	qos         byte
	retained    bool
	timeout     time.Duration
}

// NewMQTTSink creates an MQTTSink publishing to <topicPrefix>/<deviceID>/config.
func NewMQTTSink(client mqtt.MQTTClient, topicPrefix string, qos int, retained bool, timeout time.Duration) *MQTTSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MQTTSink{
		client:      client,
		topicPrefix: strings.TrimRight(topicPrefix, "/"),
		qos:         byte(qos),
		retained:    retained,
		timeout:     timeout,
	}
}

// Name implements ArtifactSink.
func (s *MQTTSink) Name() string { return constants.SinkMQTT }

// Topic returns the provisioning topic of deviceID.
func (s *MQTTSink) Topic(deviceID string) string {
	return fmt.Sprintf("%s/%s/config", s.topicPrefix, deviceID)
}

// Deliver implements ArtifactSink.
func (s *MQTTSink) Deliver(_ context.Context, deviceID, fileName string, data []byte) (models.Artifact, error) {
	if err := checkDeviceID(deviceID); err != nil {
		return models.Artifact{}, err
	}
	topic := s.Topic(deviceID)
	token := s.client.Publish(topic, s.qos, s.retained, data)
	if !token.WaitTimeout(s.timeout) {
		return models.Artifact{}, errors.New("timed out publishing device config")
	}
	if err := token.Error(); err != nil {
		return models.Artifact{}, fmt.Errorf("failed to publish device config: %w", err)
	}
	return models.Artifact{Name: fileName, Sink: s.Name(), Location: topic, Size: len(data)}, nil
}
