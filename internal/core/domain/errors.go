package domain

import (
	"errors"
	"fmt"
)

// Auth errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrTokenInvalid       = errors.New("token invalid")
	ErrTokenExpired       = errors.New("token expired")
)

// Session errors.
var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session token already in use")
)

// Provider errors.
var (
	ErrNotConfigured       = errors.New("provider not configured")
	ErrNoProviderAvailable = errors.New("no provider available")
	ErrUpstreamFailure     = errors.New("upstream failure")
)

// Validation errors.
var (
	ErrValidation  = errors.New("validation failed")
	ErrMissingTask = errors.New("missing task")
)

// UpstreamError describes a failed call to a provider. Cause never contains
// the credential used for the call.
type UpstreamError struct {
	ProviderID string
	Cause      string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("provider %s: %s", e.ProviderID, e.Cause)
}

func (e *UpstreamError) Unwrap() error { return ErrUpstreamFailure }

// kinds maps every sentinel to the stable identifier exposed to callers.
var kinds = []struct {
	err  error
	kind string
}{
	{ErrInvalidCredentials, "invalid_credentials"},
	{ErrUserExists, "user_exists"},
	{ErrUserNotFound, "user_not_found"},
	{ErrTokenInvalid, "token_invalid"},
	{ErrTokenExpired, "token_expired"},
	{ErrUnauthorized, "unauthorized"},
	{ErrSessionNotFound, "unauthorized"},
	{ErrNotConfigured, "not_configured"},
	{ErrNoProviderAvailable, "no_provider_available"},
	{ErrUpstreamFailure, "upstream_failure"},
	{ErrMissingTask, "missing_task"},
	{ErrValidation, "validation_error"},
}

// KindOf returns the stable error kind for err, or "internal" when err is not
// one of the domain errors.
func KindOf(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal"
}

// ValidationError reports a missing or malformed request field.
func ValidationError(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}
