package service_registry

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/elliotchance/orderedmap/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	http_middleware "github.com/benmeehan/meterctl/internal/middlewares/http"
	"github.com/benmeehan/meterctl/internal/registry"
	"github.com/benmeehan/meterctl/internal/services"
	"github.com/benmeehan/meterctl/internal/utils"
	"github.com/benmeehan/meterctl/pkg/credstore"
	"github.com/benmeehan/meterctl/pkg/file"
	"github.com/benmeehan/meterctl/pkg/httpclient"
	"github.com/benmeehan/meterctl/pkg/mqtt"
	"github.com/benmeehan/meterctl/pkg/s3"
)

// ServiceRegistry wires the request pipeline, the delivery sinks and the
// long-running services, and manages the lifecycle of the latter.
type ServiceRegistry struct {
	services   *orderedmap.OrderedMap[string, registry.Service]
	fileClient file.FileOperations
	store      credstore.CredentialStore
	navigator  http_middleware.Navigator
	transport  httpclient.Doer
	metrics    *prometheus.Registry
	closers    []func()
	Logger     zerolog.Logger

	// NewMQTTClient connects the client used by the MQTT sink.
	NewMQTTClient func(opts mqtt.Options) (mqtt.MQTTClient, error)
	// NewObjectStorage returns the unconnected client used by the S3 sink.
	NewObjectStorage func() s3.ObjectStorageClient
}

// NewServiceRegistry initializes a new service registry with dependencies.
// metrics may be nil when metrics are disabled.
func NewServiceRegistry(fileClient file.FileOperations, store credstore.CredentialStore, navigator http_middleware.Navigator,
	transport httpclient.Doer, metrics *prometheus.Registry, logger zerolog.Logger) *ServiceRegistry {
	sr := &ServiceRegistry{
		services:   orderedmap.NewOrderedMap[string, registry.Service](),
		fileClient: fileClient,
		store:      store,
		navigator:  navigator,
		transport:  transport,
		metrics:    metrics,
		Logger:     logger,
	}
	sr.NewMQTTClient = func(opts mqtt.Options) (mqtt.MQTTClient, error) {
		client := mqtt.NewMqttService(fileClient)
		if err := client.Initialize(opts); err != nil {
			return nil, err
		}
		return client, nil
	}
	sr.NewObjectStorage = func() s3.ObjectStorageClient {
		return s3.NewObjectStorage()
	}
	return sr
}

// RegisterService adds a new service to the registry.
func (sr *ServiceRegistry) RegisterService(name string, svc registry.Service) {
	if _, exists := sr.services.Get(name); exists {
		sr.Logger.Warn().Msgf("Service %s is already registered", name)
		return
	}
	sr.services.Set(name, svc)
	sr.Logger.Info().Msgf("Registered service: %s", name)
}

// Services returns the registered service names in registration order.
func (sr *ServiceRegistry) Services() []string {
	return sr.services.Keys()
}

// Service returns the registered service called name.
func (sr *ServiceRegistry) Service(name string) (registry.Service, bool) {
	return sr.services.Get(name)
}

// StartServices initiates all registered services in order.
// If a service fails to start, it stops already started services.
func (sr *ServiceRegistry) StartServices() error {
	var started []string

	for el := sr.services.Front(); el != nil; el = el.Next() {
		sr.Logger.Info().Msgf("Starting service: %s", el.Key)
		if err := el.Value.Start(); err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to start service: %s", el.Key)

			sr.Logger.Warn().Msg("Stopping already started services due to startup failure...")
			for i := len(started) - 1; i >= 0; i-- {
				svc, _ := sr.services.Get(started[i])
				_ = svc.Stop()
			}
			return fmt.Errorf("failed to start %s: %w", el.Key, err)
		}
		started = append(started, el.Key)
	}

	return nil
}

// StopServices stops all services in reverse order.
func (sr *ServiceRegistry) StopServices() error {
	var stopErrors []error
	for el := sr.services.Back(); el != nil; el = el.Prev() {
		if err := el.Value.Stop(); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("failed to stop %s: %w", el.Key, err))
		}
	}
	if len(stopErrors) > 0 {
		for _, e := range stopErrors {
			sr.Logger.Error().Err(e).Msg("Service stop failure")
		}
		return errors.Join(stopErrors...)
	}
	return nil
}

// Finished returns a channel closed once any started service that can stop on
// its own has done so. It returns nil, which blocks forever, when no such
// service is registered. Call it after StartServices.
func (sr *ServiceRegistry) Finished() <-chan struct{} {
	var done []<-chan struct{}
	for el := sr.services.Front(); el != nil; el = el.Next() {
		if f, ok := el.Value.(registry.Finisher); ok && f.Done() != nil {
			done = append(done, f.Done())
		}
	}

	switch len(done) {
	case 0:
		return nil
	case 1:
		return done[0]
	}

	merged := make(chan struct{})
	var once sync.Once
	for _, ch := range done {
		go func(ch <-chan struct{}) {
			<-ch
			once.Do(func() { close(merged) })
		}(ch)
	}
	return merged
}

// RegisterServices initializes and registers enabled services based on configuration.
func (sr *ServiceRegistry) RegisterServices(config *utils.Config, resources *services.ResourceService, out io.Writer) error {
	servicesInOrder := []struct {
		name        string
		enabled     bool
		constructor func() (registry.Service, error)
	}{
		{
			name:    "measurement_poller",
			enabled: len(config.Poller.SmartMeters) > 0,
			constructor: func() (registry.Service, error) {
				if config.Poller.Interval <= 0 {
					return nil, fmt.Errorf("invalid poller interval %s", config.Poller.Interval)
				}
				return services.NewMeasurementPollerService(
					resources,
					config.Poller.SmartMeters,
					config.Poller.Interval,
					config.Poller.Lookback,
					config.Poller.Workers,
					out,
					sr.Logger,
				), nil
			},
		},
	}

	var registered []string
	for _, svc := range servicesInOrder {
		if !svc.enabled {
			continue
		}
		serviceInstance, err := svc.constructor()
		if err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to create %s service", svc.name)
			return err
		}
		sr.RegisterService(svc.name, serviceInstance)
		registered = append(registered, svc.name)
	}

	sr.Logger.Info().Msgf("Registered services in order: %v", registered)
	return nil
}

// Close releases connections opened for the sinks.
func (sr *ServiceRegistry) Close() {
	for i := len(sr.closers) - 1; i >= 0; i-- {
		sr.closers[i]()
	}
	sr.closers = nil
}
