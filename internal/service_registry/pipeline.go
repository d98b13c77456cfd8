package service_registry

import (
	"fmt"

	"golang.org/x/time/rate"

	"github.com/benmeehan/meterctl/internal/constants"
	http_middleware "github.com/benmeehan/meterctl/internal/middlewares/http"
	"github.com/benmeehan/meterctl/internal/services"
	"github.com/benmeehan/meterctl/internal/utils"
	"github.com/benmeehan/meterctl/pkg/httpclient"
)

// Pipeline holds the clients every command is built from.
type Pipeline struct {
	// Auth talks to the authentication endpoints through Bare.
	Auth *services.AuthService
	// Bare sends requests without 401 recovery.
	Bare *httpclient.Client
	// Client is the authenticated pipeline.
	Client *httpclient.Client
	// Recovery is the 401 recovery installed on Client.
	Recovery *http_middleware.AuthRecovery
}

// InitializeMiddlewares builds the request transforms enabled in config, in
// the order they run. Bearer authentication always runs last.
func (sr *ServiceRegistry) InitializeMiddlewares(config *utils.Config) ([]httpclient.RequestTransform, error) {
	var transforms []httpclient.RequestTransform

	middlewaresInOrder := []struct {
		name        string
		enabled     bool
		constructor func() (httpclient.RequestTransform, error)
	}{
		{
			name:    constants.RequestIDMiddleware,
			enabled: config.Middlewares.RequestID.Enabled,
			constructor: func() (httpclient.RequestTransform, error) {
				return http_middleware.RequestID(config.Middlewares.RequestID.Header), nil
			},
		},
		{
			name:    constants.RateLimitMiddleware,
			enabled: config.Middlewares.RateLimit.Enabled,
			constructor: func() (httpclient.RequestTransform, error) {
				rps := config.Middlewares.RateLimit.RequestsPerSecond
				if rps <= 0 {
					return nil, fmt.Errorf("invalid rate limit %v", rps)
				}
				burst := config.Middlewares.RateLimit.Burst
				if burst < 1 {
					burst = 1
				}
				return http_middleware.RateLimit(rate.NewLimiter(rate.Limit(rps), burst)), nil
			},
		},
		{
			name:    constants.BearerMiddleware,
			enabled: true,
			constructor: func() (httpclient.RequestTransform, error) {
				return http_middleware.BearerAuth(sr.store), nil
			},
		},
	}

	for _, mw := range middlewaresInOrder {
		if !mw.enabled {
			continue
		}
		transform, err := mw.constructor()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize %s middleware: %w", mw.name, err)
		}
		transforms = append(transforms, transform)
		sr.Logger.Debug().Str("middleware", mw.name).Msg("Middleware enabled")
	}

	return transforms, nil
}

// InitializePipeline builds the bare client, the auth service and the
// authenticated client whose 401s are recovered by refreshing through the
// auth service.
func (sr *ServiceRegistry) InitializePipeline(config *utils.Config) (*Pipeline, error) {
	bare := httpclient.New(config.API.BaseURL, sr.transport, httpclient.WithLogger(sr.Logger))
	auth := services.NewAuthService(bare, sr.store, sr.Logger)

	transforms, err := sr.InitializeMiddlewares(config)
	if err != nil {
		return nil, err
	}

	var refreshMetrics *http_middleware.RefreshMetrics
	if sr.metrics != nil {
		refreshMetrics, err = http_middleware.NewRefreshMetrics(sr.metrics)
		if err != nil {
			return nil, err
		}
	}

	recovery := http_middleware.NewAuthRecovery(
		sr.store,
		auth,
		sr.navigator,
		sr.Logger,
		config.Security.RefreshTimeout,
		refreshMetrics,
	)

	client := httpclient.New(config.API.BaseURL, sr.transport,
		httpclient.WithRequestTransforms(transforms...),
		httpclient.WithResponseRecovery(recovery.Recover),
		httpclient.WithLogger(sr.Logger),
	)

	return &Pipeline{Auth: auth, Bare: bare, Client: client, Recovery: recovery}, nil
}
