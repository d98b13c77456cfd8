package services

import (
	"errors"
	"fmt"
)

// ErrMissingPublicKey is returned when the device config record carries no public key.
var ErrMissingPublicKey = errors.New("device config record has no public key")

// ValidationError reports missing or malformed user input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}
