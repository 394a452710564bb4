package onekey

import (
	"errors"
	"fmt"
)

// ErrCsrfRejected indicates the service refused the request's CSRF token.
// The caller should invalidate its cached token and may retry once.
var ErrCsrfRejected = errors.New("csrf token rejected")

// ErrTransport indicates a network failure or a 5xx response that survived
// the client's bounded retries.
var ErrTransport = errors.New("verification service unreachable")

// APIError is a non-retryable client error from the service (4xx other
// than the CSRF rejection).
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("verification service returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("verification service returned status %d: %s", e.StatusCode, e.Body)
}
