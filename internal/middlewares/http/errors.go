package http_middleware

import "errors"

// ErrAuthenticationExpired is returned when a request was rejected with 401 and
// no usable credentials are stored. It is terminal: the caller must not retry.
var ErrAuthenticationExpired = errors.New("authentication expired: please sign in again")

// ErrAuthenticationRequired is the name the sign-in flow uses for ErrAuthenticationExpired.
var ErrAuthenticationRequired = ErrAuthenticationExpired

// RefreshFailedError is returned when the backend rejected the refresh
// credential. Message is taken from the problem body title when available.
type RefreshFailedError struct {
	Message string
	Err     error
}

func (e *RefreshFailedError) Error() string {
	return e.Message
}

func (e *RefreshFailedError) Unwrap() error {
	return e.Err
}

// IsSessionEnded reports whether err ended the session: the credentials were
// cleared and the user was sent to sign in.
func IsSessionEnded(err error) bool {
	var refreshErr *RefreshFailedError
	return errors.Is(err, ErrAuthenticationExpired) || errors.As(err, &refreshErr)
}
