package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData is returned when a calculation has fewer bars than
	// its minimum window requires.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrMissingRequiredInput is returned when a required field of the ticker
	// snapshot or market context is absent.
	ErrMissingRequiredInput = errors.New("missing required input")

	// ErrInvariantViolation is returned when a computed result escapes its
	// documented bounds.
	ErrInvariantViolation = errors.New("invariant violation")
)

// ConfigError describes an invalid engine or service configuration value.
// Configuration errors abort a run before any scoring happens.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

// NewConfigError builds a ConfigError for the given field.
func NewConfigError(field, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
