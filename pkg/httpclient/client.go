package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"
)

// Doer executes a single HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RequestTransform mutates an outgoing request before it is sent.
type RequestTransform func(ctx context.Context, req *Request) error

// Replayer sends a request straight to the transport, bypassing transforms and recovery.
type Replayer func(ctx context.Context, req *Request) (*Response, error)

// ResponseRecovery inspects the outcome of a request. It may return the outcome
// unchanged or recover from it, at most by replaying the request through replay.
type ResponseRecovery func(ctx context.Context, req *Request, resp *Response, err error, replay Replayer) (*Response, error)

// Client sends requests through an explicit chain of request transforms followed
// by a single response recovery step.
type Client struct {
	baseURL    string
	transport  Doer
	transforms []RequestTransform
	recovery   ResponseRecovery
	logger     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithRequestTransforms appends request transforms, applied in order.
func WithRequestTransforms(transforms ...RequestTransform) Option {
	return func(c *Client) {
		c.transforms = append(c.transforms, transforms...)
	}
}

// WithResponseRecovery sets the response recovery step.
func WithResponseRecovery(recovery ResponseRecovery) Option {
	return func(c *Client) {
		c.recovery = recovery
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a client for baseURL on top of transport.
func New(baseURL string, transport Doer, opts ...Option) *Client {
	c := &Client{
		baseURL:   baseURL,
		transport: transport,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send applies the request transforms, issues the request and lets the response
// recovery decide on the outcome. The caller's request is never mutated.
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	r := req.Clone()
	for _, transform := range c.transforms {
		if err := transform(ctx, r); err != nil {
			return nil, fmt.Errorf("failed to prepare %s %s: %w", r.Method, r.URL, err)
		}
	}

	resp, err := c.roundTrip(ctx, r)
	if c.recovery == nil {
		return resp, err
	}
	return c.recovery(ctx, r, resp, err, c.roundTrip)
}

// Do is a convenience wrapper around Send that decodes a JSON response into out.
// A nil out discards the body.
func (c *Client) Do(ctx context.Context, req *Request, out any) error {
	resp, err := c.Send(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.DecodeJSON(out)
}

func (c *Client) roundTrip(ctx context.Context, r *Request) (*Response, error) {
	httpReq, err := r.build(ctx, c.baseURL)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("method", r.Method).
		Str("url", httpReq.URL.Path).
		Bool("retried", r.Retried).
		Msg("Sending request")

	httpResp, err := c.transport.Do(httpReq)
	if err != nil {
		c.logger.Debug().Err(err).Str("url", httpReq.URL.Path).Msg("Transport failure")
		return nil, &TransportError{Method: r.Method, URL: httpReq.URL.String(), Err: err}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &TransportError{Method: r.Method, URL: httpReq.URL.String(), Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{Request: r, Response: resp}
		if p, ok := ParseProblem(body); ok {
			statusErr.Problem = &p
		}
		c.logger.Debug().Int("status", resp.StatusCode).Str("url", httpReq.URL.Path).Msg("Request failed")
		return resp, statusErr
	}

	return resp, nil
}

// ensure *http.Client keeps satisfying Doer
var _ Doer = (*http.Client)(nil)
