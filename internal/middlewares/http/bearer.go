package http_middleware

import (
	"context"
	"fmt"

	"github.com/benmeehan/meterctl/pkg/credstore"
	"github.com/benmeehan/meterctl/pkg/httpclient"
)

// BearerAuth attaches the stored access token, when there is one.
func BearerAuth(store credstore.CredentialStore) httpclient.RequestTransform {
	return func(_ context.Context, req *httpclient.Request) error {
		pair, err := store.Get()
		if err != nil {
			return fmt.Errorf("failed to read credentials: %w", err)
		}
		if pair.AccessToken != "" {
			req.SetBearerToken(pair.AccessToken)
		}
		return nil
	}
}
