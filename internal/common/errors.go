// Package common defines shared constants and sentinel errors used across
// the Macrometric client. Callers should use errors.Is to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned for input rejected locally, before any network call.
	ErrValidation = errors.New("validation error")

	// Transport errors.
	ErrOffline = errors.New("offline")
	ErrNetwork = errors.New("network error")

	// ErrAuthExpired reports that the service rejected the access credential.
	ErrAuthExpired = errors.New("authentication expired")
	// ErrSessionExpired is terminal: renewal failed or the replay was rejected
	// again, and the stored credentials were cleared.
	ErrSessionExpired = fmt.Errorf("session expired: %w", ErrAuthExpired)
	// ErrNotAuthenticated is returned when an operation needs a session and none is held.
	ErrNotAuthenticated = errors.New("not authenticated")

	ErrServer            = errors.New("server error")
	ErrNotFound          = errors.New("not found")
	ErrMalformedResponse = errors.New("malformed response")

	// ErrCacheFallback marks degraded-but-usable search results served from cache.
	ErrCacheFallback = errors.New("served from cache after a failed search")
	// ErrSearchFailed is the generic (not offline) search failure.
	ErrSearchFailed = errors.New("search failed")
)

// ValidationError describes a single rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Invalid is a shorthand for constructing a *ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ServerError is a non-2xx, non-auth response from the service.
type ServerError struct {
	Status int
	Detail string
}

func (e *ServerError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("server error: status %d", e.Status)
	}
	return fmt.Sprintf("server error: status %d: %s", e.Status, e.Detail)
}

func (e *ServerError) Is(target error) bool {
	if target == ErrServer {
		return true
	}
	return target == ErrNotFound && e.Status == 404
}
