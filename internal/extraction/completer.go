package extraction

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Completer sends one system+user prompt pair to a chat model and returns the
// text of the reply.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
	Model() string
}

// APIError is a provider error reduced to what retry decisions need.
// StatusCode is 0 when no HTTP response was received.
type APIError struct {
	Err        error
	Provider   string
	StatusCode int
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s request failed: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s API error (status %d): %v", e.Provider, e.StatusCode, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// Retryable reports whether the request may succeed if repeated.
func (e *APIError) Retryable() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	default:
		return false
	}
}

// isRetryable classifies an error from a Completer call.
func isRetryable(err error) bool {
	if errors.Is(err, ErrMalformed) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return false
}
