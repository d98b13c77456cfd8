package service_registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/benmeehan/meterctl/internal/constants"
	"github.com/benmeehan/meterctl/internal/services"
	"github.com/benmeehan/meterctl/internal/utils"
	"github.com/benmeehan/meterctl/pkg/mqtt"
)

// InitializeSinks builds the device config sinks listed in config, in order.
// Connections opened here are released by Close.
func (sr *ServiceRegistry) InitializeSinks(ctx context.Context, config *utils.Config) ([]services.ArtifactSink, error) {
	names := utils.Dedupe(config.DeviceConfig.Sinks)
	if len(names) == 0 {
		return nil, errors.New("no device config sink configured")
	}

	sinks := make([]services.ArtifactSink, 0, len(names))
	for _, name := range names {
		var (
			sink services.ArtifactSink
			err  error
		)
		switch name {
		case constants.SinkFile:
			sink = services.NewFileSink(config.DeviceConfig.OutputDir, sr.fileClient)
		case constants.SinkS3:
			sink, err = sr.newS3Sink(ctx, config)
		case constants.SinkMQTT:
			sink, err = sr.newMQTTSink(config)
		default:
			err = fmt.Errorf("unknown sink %q", name)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to initialize %s sink: %w", name, err)
		}
		sinks = append(sinks, sink)
		sr.Logger.Debug().Str("sink", name).Msg("Sink enabled")
	}
	return sinks, nil
}

func (sr *ServiceRegistry) newS3Sink(ctx context.Context, config *utils.Config) (services.ArtifactSink, error) {
	if config.S3.Endpoint == "" || config.S3.Bucket == "" {
		return nil, errors.New("s3.endpoint and s3.bucket are required")
	}
	storage := sr.NewObjectStorage()
	if err := storage.Connect(ctx, config.S3.Endpoint, config.S3.AccessKey, config.S3.SecretKey, config.S3.UseSSL); err != nil {
		return nil, err
	}
	return services.NewS3Sink(storage, config.S3.Bucket, config.S3.Prefix, config.S3.PresignExpiry), nil
}

func (sr *ServiceRegistry) newMQTTSink(config *utils.Config) (services.ArtifactSink, error) {
	if config.MQTT.Broker == "" {
		return nil, errors.New("mqtt.broker is required")
	}

	// Client ids must be unique per broker connection.
	clientID := config.MQTT.ClientID
	if clientID == "" {
		clientID = "meterctl"
	}
	clientID = clientID + "-" + uuid.NewString()

	client, err := sr.NewMQTTClient(mqtt.Options{
		Broker:             config.MQTT.Broker,
		ClientID:           clientID,
		CACertificate:      config.MQTT.CACertificate,
		Username:           config.MQTT.Username,
		Password:           config.MQTT.Password,
		InsecureSkipVerify: config.MQTT.InsecureSkipVerify,
		ConnectTimeout:     config.MQTT.Timeout,
	})
	if err != nil {
		return nil, err
	}
	sr.closers = append(sr.closers, func() { client.Disconnect(250) })
	sr.Logger.Info().Str("client_id", clientID).Msg("Connected to MQTT broker")

	return services.NewMQTTSink(client, config.MQTT.TopicPrefix, config.MQTT.QOS, config.MQTT.Retained, config.MQTT.Timeout), nil
}
