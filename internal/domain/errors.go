package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")

	ErrConnection         = errors.New("tenant unreachable")
	ErrRateLimited        = errors.New("rate limited")
	ErrNotFoundOrExpired  = errors.New("code not found or expired")
	ErrAlreadyUsed        = errors.New("code already used")
	ErrAttemptsExhausted  = errors.New("attempts exhausted")
	ErrInvalidCode        = errors.New("invalid code")
	ErrDeliveryFailed     = errors.New("delivery failed")
	ErrInvalidDestination = errors.New("invalid destination")
)

// ConnectionError is returned once every connect attempt for a tenant has failed.
type ConnectionError struct {
	Tenant   Tenant
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s after %d attempt(s): %v", e.Tenant, e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() []error { return []error{ErrConnection, e.Err} }

// RateLimitedError tells the caller which category denied the request and
// roughly when to come back.
type RateLimitedError struct {
	Category   string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many %s requests, retry in %s", e.Category, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitedError) Is(target error) bool { return target == ErrRateLimited }

// ProviderFailure records one provider's failed send.
type ProviderFailure struct {
	Provider string
	Err      error
}

// DeliveryError means every provider configured for the channel failed.
type DeliveryError struct {
	Channel  Channel
	Failures []ProviderFailure
}

func (e *DeliveryError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("no %s provider configured", e.Channel)
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Provider, f.Err))
	}
	return fmt.Sprintf("all %s providers failed (%s)", e.Channel, strings.Join(parts, "; "))
}

func (e *DeliveryError) Is(target error) bool { return target == ErrDeliveryFailed }

// VerificationError is what callers see when a code does not verify. The
// message never says which check failed; errors.Is against the reason
// sentinels still works for internal callers.
type VerificationError struct {
	Reason       error
	AttemptsLeft int
}

const genericVerificationMessage = "invalid or expired code"

func (e *VerificationError) Error() string { return genericVerificationMessage }

func (e *VerificationError) Unwrap() error { return e.Reason }
