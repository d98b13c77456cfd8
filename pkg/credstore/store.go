// Package credstore persists the access/refresh credential pair.
package credstore

import "github.com/benmeehan/meterctl/internal/models"

// Storage keys of the credential pair.
const (
	AccessTokenKey  = "access_token"
	RefreshTokenKey = "refresh_token"
)

// CredentialStore holds the process-wide credential pair. Set replaces both
// credentials in a single step so readers never observe a mixed pair.
type CredentialStore interface {
	Get() (models.TokenPair, error)
	Set(pair models.TokenPair) error
	Clear() error
}
