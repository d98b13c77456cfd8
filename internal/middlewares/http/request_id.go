package http_middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/benmeehan/meterctl/pkg/httpclient"
)

// DefaultRequestIDHeader is the correlation header understood by the backend.
const DefaultRequestIDHeader = "X-Request-Id"

// RequestID sets a fresh UUID in header unless the caller already set one.
// A replay keeps the id of the original request.
func RequestID(header string) httpclient.RequestTransform {
	if header == "" {
		header = DefaultRequestIDHeader
	}
	return func(_ context.Context, req *httpclient.Request) error {
		if req.Header.Get(header) == "" {
			req.Header.Set(header, uuid.NewString())
		}
		return nil
	}
}
