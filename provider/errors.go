// ABOUTME: Shared error taxonomy for vendor provider adapters
// ABOUTME: Defines authentication, API, rate-limit, and not-supported error types
package provider

import (
	"errors"
	"fmt"
)

// ErrNotSupported signals that a provider does not implement an optional
// capability. Callers probe for capability interfaces before invoking them,
// so seeing this at runtime usually means a missing probe.
var ErrNotSupported = errors.New("operation not supported by this provider")

// AuthenticationError means credentials are bad or expired. It is fatal for
// the current run and must never be silently retried.
type AuthenticationError struct {
	Provider string
	Message  string
	Err      error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: authentication failed: %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: authentication failed: %s", e.Provider, e.Message)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// APIError is a generic transport or response failure from a vendor API.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: API error %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: API error: %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: API error: %s", e.Provider, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// RateLimitError is surfaced after an adapter has exhausted its bounded
// retry budget against 429 responses.
type RateLimitError struct {
	Provider string
	Retries  int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: rate limit exceeded after %d retries", e.Provider, e.Retries)
}

// IsAuthentication reports whether err is an authentication failure.
func IsAuthentication(err error) bool {
	var ae *AuthenticationError
	return errors.As(err, &ae)
}

// IsRateLimit reports whether err is an exhausted rate-limit retry.
func IsRateLimit(err error) bool {
	var re *RateLimitError
	return errors.As(err, &re)
}

// TestResult is the outcome of a non-destructive connectivity probe.
// TestConnection never returns an error; failures land here.
type TestResult struct {
	Success bool
	Message string
}
