package services

import (
	"context"

	"github.com/benmeehan/meterctl/pkg/httpclient"
)

// doJSON sends req and decodes the response body into out. A nil out discards it.
func doJSON(ctx context.Context, client Sender, req *httpclient.Request, out any) error {
	resp, err := client.Send(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.DecodeJSON(out)
}
