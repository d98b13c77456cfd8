package http_middleware

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/benmeehan/meterctl/pkg/httpclient"
)

// RateLimit blocks until limiter admits the request or ctx is done.
func RateLimit(limiter *rate.Limiter) httpclient.RequestTransform {
	return func(ctx context.Context, _ *httpclient.Request) error {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
		return nil
	}
}
