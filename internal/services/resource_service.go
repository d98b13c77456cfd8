package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/benmeehan/meterctl/internal/constants"
	"github.com/benmeehan/meterctl/internal/models"
	"github.com/benmeehan/meterctl/pkg/httpclient"
)

// ResourceService reads and writes backend resources through the authenticated pipeline.
type ResourceService struct {
	client Sender
	logger zerolog.Logger
}

// NewResourceService creates a new ResourceService.
func NewResourceService(client Sender, logger zerolog.Logger) *ResourceService {
	return &ResourceService{client: client, logger: logger}
}

// Get fetches an arbitrary backend path and returns the raw body.
func (s *ResourceService) Get(ctx context.Context, path string) (json.RawMessage, error) {
	resp, err := s.client.Send(ctx, httpclient.NewRequest(http.MethodGet, path))
	if err != nil {
		return nil, err
	}
	return json.RawMessage(resp.Body), nil
}

// ListSmartMeters returns the smart meters of the signed-in user.
func (s *ResourceService) ListSmartMeters(ctx context.Context) ([]models.SmartMeter, error) {
	var meters []models.SmartMeter
	if err := doJSON(ctx, s.client, httpclient.NewRequest(http.MethodGet, constants.SmartMetersPath), &meters); err != nil {
		return nil, fmt.Errorf("failed to list smart meters: %w", err)
	}
	return meters, nil
}

// GetSmartMeter returns the smart meter with the given id.
func (s *ResourceService) GetSmartMeter(ctx context.Context, id string) (*models.SmartMeter, error) {
	if id == "" {
		return nil, &ValidationError{Field: "id", Message: "smart meter id is required"}
	}
	var meter models.SmartMeter
	req := httpclient.NewRequest(http.MethodGet, fmt.Sprintf(constants.SmartMeterPath, url.PathEscape(id)))
	if err := doJSON(ctx, s.client, req, &meter); err != nil {
		return nil, fmt.Errorf("failed to get smart meter %s: %w", id, err)
	}
	return &meter, nil
}

// RegisterSmartMeter registers a new smart meter.
func (s *ResourceService) RegisterSmartMeter(ctx context.Context, registration models.SmartMeterRegistration) (*models.SmartMeter, error) {
	if registration.Name == "" {
		return nil, &ValidationError{Field: "name", Message: "name is required"}
	}
	req, err := httpclient.NewJSONRequest(http.MethodPost, constants.SmartMetersPath, registration)
	if err != nil {
		return nil, err
	}
	var meter models.SmartMeter
	if err := doJSON(ctx, s.client, req, &meter); err != nil {
		return nil, fmt.Errorf("failed to register smart meter: %w", err)
	}
	s.logger.Info().Str("smart_meter_id", meter.ID).Msg("Smart meter registered")
	return &meter, nil
}

// UpdateSmartMeterMetadata replaces the metadata of a smart meter.
func (s *ResourceService) UpdateSmartMeterMetadata(ctx context.Context, id string, metadata json.RawMessage) (*models.SmartMeter, error) {
	if id == "" {
		return nil, &ValidationError{Field: "id", Message: "smart meter id is required"}
	}
	if !json.Valid(metadata) {
		return nil, &ValidationError{Field: "metadata", Message: "metadata must be valid JSON"}
	}
	req, err := httpclient.NewJSONRequest(http.MethodPatch, fmt.Sprintf(constants.SmartMeterPath, url.PathEscape(id)),
		map[string]json.RawMessage{"metadata": metadata})
	if err != nil {
		return nil, err
	}
	var meter models.SmartMeter
	if err := doJSON(ctx, s.client, req, &meter); err != nil {
		return nil, fmt.Errorf("failed to update smart meter %s: %w", id, err)
	}
	return &meter, nil
}

// ListPolicies returns the data-sharing policies, optionally narrowed to one smart meter.
func (s *ResourceService) ListPolicies(ctx context.Context, smartMeterID string) ([]models.Policy, error) {
	path := constants.PoliciesPath
	if smartMeterID != "" {
		path += "?" + url.Values{"smartMeterId": {smartMeterID}}.Encode()
	}
	var policies []models.Policy
	if err := doJSON(ctx, s.client, httpclient.NewRequest(http.MethodGet, path), &policies); err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	return policies, nil
}

// CreatePolicy creates a data-sharing policy.
func (s *ResourceService) CreatePolicy(ctx context.Context, policy models.Policy) (*models.Policy, error) {
	if policy.SmartMeterID == "" {
		return nil, &ValidationError{Field: "smartMeterId", Message: "smart meter id is required"}
	}
	req, err := httpclient.NewJSONRequest(http.MethodPost, constants.PoliciesPath, policy)
	if err != nil {
		return nil, err
	}
	var created models.Policy
	if err := doJSON(ctx, s.client, req, &created); err != nil {
		return nil, fmt.Errorf("failed to create policy: %w", err)
	}
	return &created, nil
}

// ListContracts returns the contracts of the signed-in user.
func (s *ResourceService) ListContracts(ctx context.Context) ([]models.Contract, error) {
	var contracts []models.Contract
	if err := doJSON(ctx, s.client, httpclient.NewRequest(http.MethodGet, constants.ContractsPath), &contracts); err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	return contracts, nil
}

// PurchasePolicy buys policyID and returns the resulting contract.
func (s *ResourceService) PurchasePolicy(ctx context.Context, policyID string) (*models.Contract, error) {
	if policyID == "" {
		return nil, &ValidationError{Field: "policy", Message: "policy id is required"}
	}
	req, err := httpclient.NewJSONRequest(http.MethodPost, constants.ContractsPath, map[string]string{"policyId": policyID})
	if err != nil {
		return nil, err
	}
	var contract models.Contract
	if err := doJSON(ctx, s.client, req, &contract); err != nil {
		return nil, fmt.Errorf("failed to purchase policy %s: %w", policyID, err)
	}
	s.logger.Info().Str("policy_id", policyID).Str("contract_id", contract.ID).Msg("Policy purchased")
	return &contract, nil
}

// Measurements returns the time series of smartMeterID. Zero bounds are omitted.
func (s *ResourceService) Measurements(ctx context.Context, smartMeterID string, from, to time.Time) (*models.MeasurementSeries, error) {
	if smartMeterID == "" {
		return nil, &ValidationError{Field: "id", Message: "smart meter id is required"}
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return nil, &ValidationError{Field: "to", Message: "end of range is before its start"}
	}

	path := fmt.Sprintf(constants.MeasurementsPath, url.PathEscape(smartMeterID))
	query := url.Values{}
	if !from.IsZero() {
		query.Set("from", from.UTC().Format(time.RFC3339))
	}
	if !to.IsZero() {
		query.Set("to", to.UTC().Format(time.RFC3339))
	}
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var series models.MeasurementSeries
	if err := doJSON(ctx, s.client, httpclient.NewRequest(http.MethodGet, path), &series); err != nil {
		return nil, fmt.Errorf("failed to fetch measurements of %s: %w", smartMeterID, err)
	}
	if series.SmartMeterID == "" {
		series.SmartMeterID = smartMeterID
	}
	return &series, nil
}
