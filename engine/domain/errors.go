package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the identification pipeline.
var (
	ErrUnreadableImage          = errors.New("unreadable image")
	ErrProviderUnavailable      = errors.New("provider unavailable")
	ErrProviderTimeout          = errors.New("provider timeout")
	ErrProviderResponse         = errors.New("provider response invalid")
	ErrEmptyCatalog             = errors.New("catalog is empty")
	ErrNoIdentificationPossible = errors.New("no identification possible")
	ErrNotFound                 = errors.New("not found")
	ErrDimensionMismatch        = errors.New("embedding dimension mismatch")
	ErrInvalidRecord            = errors.New("invalid herb record")
)

// ValidationError wraps a sentinel with context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// ProviderError records which provider and operation failed. Wrapped is one
// of the provider sentinels so callers can errors.Is against the taxonomy.
type ProviderError struct {
	Provider string
	Op       string
	Wrapped  error
	Detail   string
}

func (e *ProviderError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("provider %s: %s: %s: %s", e.Provider, e.Op, e.Wrapped, e.Detail)
	}
	return fmt.Sprintf("provider %s: %s: %s", e.Provider, e.Op, e.Wrapped)
}

func (e *ProviderError) Unwrap() error { return e.Wrapped }

// NoIdentificationError is the single user-visible failure of the engine.
// Cause is the error that exhausted the last fallback stage.
type NoIdentificationError struct {
	Cause error
}

func (e *NoIdentificationError) Error() string {
	return fmt.Sprintf("%s: %v", ErrNoIdentificationPossible, e.Cause)
}

func (e *NoIdentificationError) Unwrap() []error {
	return []error{ErrNoIdentificationPossible, e.Cause}
}
