package http_middleware

import (
	"context"

	"github.com/benmeehan/meterctl/internal/models"
)

// Navigator sends the user back to the sign-in view once the session is gone.
type Navigator interface {
	RedirectToSignIn()
}

// Refresher exchanges the current credential pair for a new one.
type Refresher interface {
	Refresh(ctx context.Context, pair models.TokenPair) (models.TokenPair, error)
}
