package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Request captures everything needed to issue an HTTP request and to replay it
// once with different headers.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte

	// Retried is set on the replay issued after a credential refresh.
	Retried bool
}

// NewRequest creates a request without a body.
func NewRequest(method, url string) *Request {
	return &Request{
		Method: method,
		URL:    url,
		Header: make(http.Header),
	}
}

// NewJSONRequest creates a request whose body is the JSON encoding of v.
func NewJSONRequest(method, url string, v any) (*Request, error) {
	req := NewRequest(method, url)
	if v == nil {
		return req, nil
	}

	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	req.Body = body
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// Clone returns a deep copy of the request.
func (r *Request) Clone() *Request {
	c := &Request{
		Method:  r.Method,
		URL:     r.URL,
		Header:  r.Header.Clone(),
		Retried: r.Retried,
	}
	if c.Header == nil {
		c.Header = make(http.Header)
	}
	if r.Body != nil {
		c.Body = append([]byte(nil), r.Body...)
	}
	return c
}

// BearerToken returns the token carried by the Authorization header, if any.
func (r *Request) BearerToken() string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}

// SetBearerToken sets the Authorization header.
func (r *Request) SetBearerToken(token string) {
	r.Header.Set("Authorization", "Bearer "+token)
}

func (r *Request) build(ctx context.Context, baseURL string) (*http.Request, error) {
	url := r.URL
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(url, "/")
	}

	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, r.Method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range r.Header {
		httpReq.Header[k] = append([]string(nil), v...)
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	return httpReq, nil
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// DecodeJSON unmarshals the response body into v.
func (r *Response) DecodeJSON(v any) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("empty response body")
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
