package provider

import (
	"errors"
	"fmt"
)

// ErrorKind classifies provider failures.
type ErrorKind string

// Provider error kinds. Transient failures are retryable; the rest are not.
const (
	KindTransient   ErrorKind = "transient"    // network errors, 429, 5xx
	KindPermanent   ErrorKind = "permanent"    // 4xx other than 429, schema errors
	KindQuota       ErrorKind = "quota"        // vendor quota exhausted
	KindAuth        ErrorKind = "auth"         // invalid or expired credentials
	KindCircuitOpen ErrorKind = "circuit_open" // batcher circuit breaker open
)

// ProviderError is a typed failure from a keyword-metrics vendor.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable implements the batch.Retryable marker: only transient failures
// are worth another attempt.
func (e *ProviderError) Retryable() bool { return e.Kind == KindTransient }

// NewProviderError wraps err with a provider name and kind.
func NewProviderError(provider string, kind ErrorKind, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

// IsAuthError reports whether err is an auth-kind provider error.
func IsAuthError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == KindAuth
}

// IsQuotaError reports whether err is a quota-kind provider error.
func IsQuotaError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == KindQuota
}
