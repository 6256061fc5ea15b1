package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrMissingAPIKey is returned before any network I/O when a keyed runtime has no key.
var ErrMissingAPIKey = errors.New("api key is required")

// AuthError indicates authentication/authorization failures (401/403).
type AuthError struct{ *APIError }

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.APIError.Error())
}

// RateLimitError indicates 429 responses and may include a Retry-After.
type RateLimitError struct {
	*APIError
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: wait about %ds before retrying: %s", int(e.RetryAfter.Seconds()), e.APIError.Error())
	}
	return fmt.Sprintf("rate limited: %s", e.APIError.Error())
}

// ModelNotFoundError indicates the requested model is not available.
type ModelNotFoundError struct{ *APIError }

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("model not found: %s", e.APIError.Error())
}

// BadRequestError indicates a 4xx request problem (e.g., 400 validation).
type BadRequestError struct{ *APIError }

func (e *BadRequestError) Error() string { return fmt.Sprintf("bad request: %s", e.APIError.Error()) }

// QuotaExceededError indicates billing/quota problems.
type QuotaExceededError struct{ *APIError }

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %s", e.APIError.Error())
}

// ServerError indicates 5xx errors from the provider.
type ServerError struct{ *APIError }

func (e *ServerError) Error() string { return fmt.Sprintf("provider error: %s", e.APIError.Error()) }

// UnreachableError indicates the target runtime could not be connected to
// (e.g., local Ollama down).
type UnreachableError struct {
	Host string
	Err  error
}

func (e *UnreachableError) Error() string {
	if e == nil {
		return "unreachable"
	}
	if e.Host != "" {
		return fmt.Sprintf("cannot connect to %s: %v", e.Host, e.Err)
	}
	return fmt.Sprintf("cannot connect: %v", e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// TimeoutError indicates the request did not complete within the configured timeout.
type TimeoutError struct {
	Host    string
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	msg := "request timed out"
	if e.Host != "" {
		msg = fmt.Sprintf("request to %s timed out", e.Host)
	}
	if e.Timeout > 0 {
		msg = fmt.Sprintf("%s after %s", msg, e.Timeout)
	}
	return msg
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// classifyTransportErr maps an http.Client.Do failure onto TimeoutError or
// UnreachableError. Caller cancellation is returned unchanged.
func classifyTransportErr(host string, timeout time.Duration, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Host: host, Timeout: timeout, Err: err}
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return &TimeoutError{Host: host, Timeout: timeout, Err: err}
	}
	return &UnreachableError{Host: host, Err: err}
}
