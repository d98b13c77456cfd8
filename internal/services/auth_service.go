package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/benmeehan/meterctl/internal/constants"
	"github.com/benmeehan/meterctl/internal/models"
	"github.com/benmeehan/meterctl/pkg/credstore"
	"github.com/benmeehan/meterctl/pkg/httpclient"
	"github.com/benmeehan/meterctl/pkg/jwt"
)

// Sender sends requests to the backend.
type Sender interface {
	Send(ctx context.Context, req *httpclient.Request) (*httpclient.Response, error)
}

// AuthService talks to the authentication endpoints. It must be given a sender
// without 401 recovery so refresh calls are never intercepted themselves.
type AuthService struct {
	client Sender
	store  credstore.CredentialStore
	logger zerolog.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(client Sender, store credstore.CredentialStore, logger zerolog.Logger) *AuthService {
	return &AuthService{
		client: client,
		store:  store,
		logger: logger,
	}
}

// Login exchanges username and password for a credential pair and stores it.
func (s *AuthService) Login(ctx context.Context, username, password string) (models.TokenPair, error) {
	if username == "" || password == "" {
		return models.TokenPair{}, &ValidationError{Field: "username/password", Message: "username and password are required"}
	}

	req, err := httpclient.NewJSONRequest(http.MethodPost, constants.LoginPath, models.LoginRequest{
		Username: username,
		Password: password,
	})
	if err != nil {
		return models.TokenPair{}, err
	}

	pair, err := s.exchange(ctx, req)
	if err != nil {
		s.logger.Warn().Str("username", username).Err(err).Msg("Login failed")
		return models.TokenPair{}, fmt.Errorf("login failed: %w", err)
	}

	if err := s.store.Set(pair); err != nil {
		return models.TokenPair{}, fmt.Errorf("failed to store credentials: %w", err)
	}

	s.logger.Info().Str("username", username).Msg("Signed in")
	return pair, nil
}

// Refresh exchanges pair for a new credential pair. It does not store the result.
func (s *AuthService) Refresh(ctx context.Context, pair models.TokenPair) (models.TokenPair, error) {
	req, err := httpclient.NewJSONRequest(http.MethodPost, constants.RefreshPath, pair)
	if err != nil {
		return models.TokenPair{}, err
	}
	return s.exchange(ctx, req)
}

// Logout tells the backend to revoke the stored pair and clears it locally.
// Backend failures are logged, never returned.
func (s *AuthService) Logout(ctx context.Context) error {
	pair, err := s.store.Get()
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to read stored credentials before logout")
	}

	if err == nil && !pair.IsZero() {
		req, reqErr := httpclient.NewJSONRequest(http.MethodPost, constants.LogoutPath, pair)
		if reqErr == nil {
			if pair.AccessToken != "" {
				req.SetBearerToken(pair.AccessToken)
			}
			_, reqErr = s.client.Send(ctx, req)
		}
		if reqErr != nil {
			s.logger.Warn().Err(reqErr).Msg("Logout request failed, clearing local session anyway")
		}
	}

	if err := s.store.Clear(); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}

	s.logger.Info().Msg("Signed out")
	return nil
}

func (s *AuthService) exchange(ctx context.Context, req *httpclient.Request) (models.TokenPair, error) {
	resp, err := s.client.Send(ctx, req)
	if err != nil {
		return models.TokenPair{}, err
	}

	var pair models.TokenPair
	if err := resp.DecodeJSON(&pair); err != nil {
		return models.TokenPair{}, err
	}
	if !pair.Complete() {
		return models.TokenPair{}, errors.New("backend returned incomplete credentials")
	}
	if claims, err := jwt.Inspect(pair.AccessToken); err == nil && claims.HasExpiry() {
		s.logger.Debug().Dur("expires_in", claims.ExpiresIn(time.Now())).Msg("Received access token")
	}
	return pair, nil
}
