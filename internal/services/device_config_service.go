package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/benmeehan/meterctl/internal/constants"
	"github.com/benmeehan/meterctl/internal/models"
	"github.com/benmeehan/meterctl/pkg/encryption"
	"github.com/benmeehan/meterctl/pkg/httpclient"
)

// ArtifactSink delivers a finished device configuration document.
type ArtifactSink interface {
	Name() string
	Deliver(ctx context.Context, deviceID, fileName string, data []byte) (models.Artifact, error)
}

// DeviceConfigService builds device configuration documents: the Wi-Fi
// credentials entered by the user are encrypted with the device's public key
// and combined with the MQTT credentials the backend already encrypted.
type DeviceConfigService struct {
	client   Sender
	sinks    []ArtifactSink
	fileName string
	logger   zerolog.Logger
}

// NewDeviceConfigService creates a new DeviceConfigService.
func NewDeviceConfigService(client Sender, sinks []ArtifactSink, fileName string, logger zerolog.Logger) *DeviceConfigService {
	if fileName == "" {
		fileName = constants.DefaultDeviceConfigFileName
	}
	return &DeviceConfigService{
		client:   client,
		sinks:    sinks,
		fileName: fileName,
		logger:   logger,
	}
}

// ValidateWiFiInput checks the user supplied Wi-Fi credentials.
func ValidateWiFiInput(ssid, password string) error {
	if strings.TrimSpace(ssid) == "" {
		return &ValidationError{Field: "ssid", Message: "SSID is required"}
	}
	if password == "" {
		return &ValidationError{Field: "password", Message: "password is required"}
	}
	return nil
}

// FetchRecord loads the device configuration record of deviceID.
func (s *DeviceConfigService) FetchRecord(ctx context.Context, deviceID string) (*models.DeviceConfigRecord, error) {
	if deviceID == "" {
		return nil, &ValidationError{Field: "device", Message: "device id is required"}
	}

	req := httpclient.NewRequest(http.MethodGet, fmt.Sprintf(constants.DeviceConfigPath, url.PathEscape(deviceID)))
	var record models.DeviceConfigRecord
	if err := doJSON(ctx, s.client, req, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// BuildPayload imports the record's public key and encrypts the Wi-Fi
// credentials with it. Nothing is encrypted unless the import succeeds.
func BuildPayload(record *models.DeviceConfigRecord, ssid, password string) (*models.DeviceConfigPayload, error) {
	if record == nil || strings.TrimSpace(record.PublicKey) == "" {
		return nil, ErrMissingPublicKey
	}

	key, err := encryption.ImportPublicKey(record.PublicKey)
	if err != nil {
		return nil, err
	}

	encryptedSSID, err := encryption.Encrypt(key, ssid)
	if err != nil {
		return nil, err
	}
	encryptedPassword, err := encryption.Encrypt(key, password)
	if err != nil {
		return nil, err
	}

	return &models.DeviceConfigPayload{
		WifiSSID:     encryptedSSID,
		WifiPassword: encryptedPassword,
		MqttUsername: record.EncryptedMqttUsername,
		MqttPassword: record.EncryptedMqttPassword,
	}, nil
}

// Encode serializes payload as pretty-printed UTF-8 JSON.
func Encode(payload *models.DeviceConfigPayload) ([]byte, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode device config: %w", err)
	}
	return append(data, '\n'), nil
}

// Export fetches the record of deviceID, builds the document and hands it to
// every configured sink. No sink is invoked unless the whole document was built.
func (s *DeviceConfigService) Export(ctx context.Context, deviceID, ssid, password string) ([]models.Artifact, error) {
	if err := ValidateWiFiInput(ssid, password); err != nil {
		return nil, err
	}
	if len(s.sinks) == 0 {
		return nil, errors.New("no device config sink configured")
	}

	record, err := s.FetchRecord(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch device config: %w", err)
	}

	payload, err := BuildPayload(record, ssid, password)
	if err != nil {
		s.logger.Error().Err(err).Str("device_id", deviceID).Msg("Failed to build device config")
		return nil, err
	}

	data, err := Encode(payload)
	if err != nil {
		return nil, err
	}

	artifacts := make([]models.Artifact, 0, len(s.sinks))
	for _, sink := range s.sinks {
		artifact, err := sink.Deliver(ctx, deviceID, s.fileName, data)
		if err != nil {
			s.logger.Error().Err(err).Str("sink", sink.Name()).Str("device_id", deviceID).Msg("Failed to deliver device config")
			return artifacts, fmt.Errorf("failed to deliver device config via %s: %w", sink.Name(), err)
		}
		s.logger.Info().Str("sink", sink.Name()).Str("location", artifact.Location).Str("device_id", deviceID).Msg("Device config delivered")
		artifacts = append(artifacts, artifact)
	}

	return artifacts, nil
}
