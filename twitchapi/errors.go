package twitchapi

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrInvalidArgument is wrapped by errors returned when a required filter
// parameter is missing or malformed. No HTTP request is made in that case.
var ErrInvalidArgument = errors.New("invalid argument")

// AuthError reports that an access token could not be obtained: credentials are
// missing, or the token endpoint rejected the exchange. Subsequent calls keep
// failing until the credentials are fixed.
type AuthError struct {
	Reason     string
	StatusCode int // 0 when the failure happened before a response was received
	Err        error
}

func (e *AuthError) Error() string {
	msg := "twitch auth: " + e.Reason
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error { return e.Err }

// RequestError reports a transport failure or a non-2xx response from a Helix
// resource call. The client never retries; callers decide using StatusCode or
// Temporary.
type RequestError struct {
	Resource   Resource
	StatusCode int // 0 for transport failures
	Status     string
	Body       string
	RetryAfter string // raw Ratelimit-Reset/Retry-After value, not interpreted
	// RequiresUserToken is set when an elevated resource was rejected with
	// 401/403, which usually means no broadcaster token with the right scope.
	RequiresUserToken bool
	Err               error
}

func (e *RequestError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("helix %s: request failed: %v", e.Resource, e.Err)
	}
	msg := fmt.Sprintf("helix %s: %s", e.Resource, e.Status)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RequestError) Unwrap() error { return e.Err }

// Temporary reports whether retrying later may succeed (transport failures,
// 429 and 5xx).
func (e *RequestError) Temporary() bool {
	return e.StatusCode == 0 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsAuthError reports whether err (or anything it wraps) is an *AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// AsRequestError returns the *RequestError in err's chain, if any.
func AsRequestError(err error) (*RequestError, bool) {
	var re *RequestError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

func invalidArg(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidArgument}, args...)...)
}
