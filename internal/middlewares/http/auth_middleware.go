package http_middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/benmeehan/meterctl/internal/models"
	"github.com/benmeehan/meterctl/pkg/credstore"
	"github.com/benmeehan/meterctl/pkg/httpclient"
	"github.com/benmeehan/meterctl/pkg/jwt"
)

// DefaultRefreshTimeout bounds a single refresh call.
const DefaultRefreshTimeout = 15 * time.Second

// Refresh outcomes reported by RefreshMetrics.
const (
	OutcomeRefreshed          = "refreshed"
	OutcomeRefreshFailed      = "refresh_failed"
	OutcomeMissingCredentials = "missing_credentials"
	OutcomeStaleToken         = "stale_token"
)

// RefreshMetrics counts how 401 responses were handled.
type RefreshMetrics struct {
	Outcomes *prometheus.CounterVec
}

// NewRefreshMetrics creates the metrics and registers them with reg.
func NewRefreshMetrics(reg prometheus.Registerer) (*RefreshMetrics, error) {
	m := &RefreshMetrics{
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meterctl",
			Subsystem: "auth",
			Name:      "unauthorized_responses_total",
			Help:      "Responses rejected with 401, by how they were handled.",
		}, []string{"outcome"}),
	}
	if err := reg.Register(m.Outcomes); err != nil {
		return nil, fmt.Errorf("failed to register refresh metrics: %w", err)
	}
	return m, nil
}

func (m *RefreshMetrics) observe(outcome string) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(outcome).Inc()
}

// AuthRecovery recovers requests rejected with 401 by refreshing the credential
// pair once and replaying the request with the new access token.
//
// Concurrent 401s carrying the same refresh token share a single refresh call.
// A 401 for a request that was sent with an access token older than the stored
// one is replayed with the stored token without refreshing again.
type AuthRecovery struct {
	store          credstore.CredentialStore
	refresher      Refresher
	navigator      Navigator
	logger         zerolog.Logger
	refreshTimeout time.Duration
	metrics        *RefreshMetrics

	group singleflight.Group
}

// NewAuthRecovery creates the recovery step. metrics may be nil.
func NewAuthRecovery(
	store credstore.CredentialStore,
	refresher Refresher,
	navigator Navigator,
	logger zerolog.Logger,
	refreshTimeout time.Duration,
	metrics *RefreshMetrics,
) *AuthRecovery {
	if refreshTimeout <= 0 {
		refreshTimeout = DefaultRefreshTimeout
	}
	return &AuthRecovery{
		store:          store,
		refresher:      refresher,
		navigator:      navigator,
		logger:         logger,
		refreshTimeout: refreshTimeout,
		metrics:        metrics,
	}
}

// Recover implements httpclient.ResponseRecovery.
func (m *AuthRecovery) Recover(
	ctx context.Context,
	req *httpclient.Request,
	resp *httpclient.Response,
	err error,
	replay httpclient.Replayer,
) (*httpclient.Response, error) {
	if err == nil || req == nil || !httpclient.IsStatus(err, http.StatusUnauthorized) {
		return resp, err
	}
	if req.Retried {
		return resp, err
	}

	pair, storeErr := m.store.Get()
	if storeErr != nil {
		m.logger.Error().Err(storeErr).Msg("Failed to read stored credentials")
	}
	if storeErr != nil || !pair.Complete() {
		m.metrics.observe(OutcomeMissingCredentials)
		m.logger.Warn().Str("url", req.URL).Msg("Request unauthorized and no credentials stored, signing out")
		m.endSession()
		return nil, ErrAuthenticationExpired
	}

	fresh := pair
	if sent := req.BearerToken(); sent != pair.AccessToken {
		m.metrics.observe(OutcomeStaleToken)
		m.logger.Debug().Str("url", req.URL).Msg("Request was sent with a superseded access token, replaying")
	} else {
		fresh, err = m.refresh(ctx, pair)
		if err != nil {
			return nil, err
		}
	}

	retry := req.Clone()
	retry.Retried = true
	retry.SetBearerToken(fresh.AccessToken)

	m.logger.Debug().Str("url", req.URL).Msg("Replaying request with refreshed credentials")
	return replay(ctx, retry)
}

// refresh performs the shared refresh for pair and returns the persisted result.
func (m *AuthRecovery) refresh(ctx context.Context, pair models.TokenPair) (models.TokenPair, error) {
	ch := m.group.DoChan(pair.RefreshToken, func() (any, error) {
		// The refresh is shared by every waiter; one caller going away must not abort it.
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.refreshTimeout)
		defer cancel()

		// A refresh that finished between reading the store and joining the
		// group already rotated the pair.
		if current, err := m.store.Get(); err == nil && current.Complete() && current.RefreshToken != pair.RefreshToken {
			return current, nil
		}

		m.logger.Info().Str("access_token", jwt.Redact(pair.AccessToken)).Msg("Access token rejected, refreshing credentials")

		fresh, err := m.refresher.Refresh(refreshCtx, pair)
		if err == nil && !fresh.Complete() {
			err = errors.New("refresh returned incomplete credentials")
		}
		if err != nil {
			m.metrics.observe(OutcomeRefreshFailed)
			message := httpclient.MessageFrom(err)
			m.logger.Error().Err(err).Msg("Failed to refresh credentials, signing out")
			m.endSession()
			return nil, &RefreshFailedError{Message: message, Err: err}
		}

		if err := m.store.Set(fresh); err != nil {
			m.metrics.observe(OutcomeRefreshFailed)
			m.logger.Error().Err(err).Msg("Failed to persist refreshed credentials, signing out")
			m.endSession()
			return nil, &RefreshFailedError{Message: "failed to store refreshed credentials", Err: err}
		}

		m.metrics.observe(OutcomeRefreshed)
		m.logger.Info().Msg("Credentials refreshed")
		return fresh, nil
	})

	select {
	case <-ctx.Done():
		return models.TokenPair{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return models.TokenPair{}, res.Err
		}
		return res.Val.(models.TokenPair), nil
	}
}

// endSession clears the stored credentials and redirects to sign-in.
func (m *AuthRecovery) endSession() {
	if err := m.store.Clear(); err != nil {
		m.logger.Error().Err(err).Msg("Failed to clear stored credentials")
	}
	m.navigator.RedirectToSignIn()
}
