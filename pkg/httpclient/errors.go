package httpclient

import (
	"errors"
	"fmt"
)

// TransportError is a network level failure: connection refused, reset, timeout.
// It is never an authentication failure.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusError is returned for responses outside the 2xx range.
type StatusError struct {
	Request  *Request
	Response *Response
	Problem  *ProblemDetails
}

// StatusCode returns the HTTP status code of the failed response.
func (e *StatusError) StatusCode() int {
	if e.Response == nil {
		return 0
	}
	return e.Response.StatusCode
}

func (e *StatusError) Error() string {
	if e.Problem != nil && e.Problem.Title != "" {
		return e.Problem.Title
	}
	return fmt.Sprintf("request failed with status code %d", e.StatusCode())
}

// IsStatus reports whether err is a *StatusError with the given status code.
func IsStatus(err error, code int) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode() == code
}

// MessageFrom returns a human readable message for err, preferring the title of
// a structured problem body and falling back to the error text.
func MessageFrom(err error) string {
	if err == nil {
		return ""
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Problem != nil && statusErr.Problem.Title != "" {
		return statusErr.Problem.Title
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) && transportErr.Err != nil {
		return transportErr.Err.Error()
	}
	return err.Error()
}
