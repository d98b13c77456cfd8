package models

import (
	"encoding/json"
	"time"
)

// SmartMeter is a registered smart meter. Metadata is owned by the backend.
type SmartMeter struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Serial   string          `json:"serialNumber,omitempty"`
	Location string          `json:"location,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// SmartMeterRegistration is the body used to register a new smart meter.
type SmartMeterRegistration struct {
	Name     string          `json:"name"`
	Serial   string          `json:"serialNumber"`
	Location string          `json:"location,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// Policy is a data-sharing policy attached to a smart meter.
type Policy struct {
	ID           string          `json:"id"`
	SmartMeterID string          `json:"smartMeterId"`
	Name         string          `json:"name"`
	Price        float64         `json:"price"`
	Rules        json.RawMessage `json:"rules,omitempty"`
}

// Contract is a purchased policy.
type Contract struct {
	ID        string    `json:"id"`
	PolicyID  string    `json:"policyId"`
	CreatedAt time.Time `json:"createdAt"`
	Status    string    `json:"status,omitempty"`
}

// Measurement is one sample of a smart meter time series.
type Measurement struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit,omitempty"`
}

// MeasurementSeries is the time series of a single smart meter.
type MeasurementSeries struct {
	SmartMeterID string        `json:"smartMeterId"`
	Measurements []Measurement `json:"measurements"`
}
