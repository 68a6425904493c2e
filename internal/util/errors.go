package util

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrAccessDenied        = errors.New("access denied")
	ErrInsufficientContent = errors.New("course has no generated chapter content")
	ErrCooldownActive      = errors.New("test cooldown active")
	ErrGenerationFailure   = errors.New("content generation failed")
	ErrEvaluationFailure   = errors.New("test evaluation failed")
	ErrAlreadySubmitted    = errors.New("test already submitted")
	ErrNotEligible         = errors.New("test is not eligible for a certificate")
	ErrNotFound            = errors.New("resource not found")

	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailRegistered    = errors.New("email already registered")
)

// CooldownError reports when the next test can be generated.
type CooldownError struct {
	Remaining       time.Duration
	NextAvailableAt time.Time
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s: next test available at %s", ErrCooldownActive, e.NextAvailableAt.UTC().Format(time.RFC3339))
}

func (e *CooldownError) Unwrap() error {
	return ErrCooldownActive
}

// RemainingHours rounds up so a learner never sees "0 hours" while still blocked.
func (e *CooldownError) RemainingHours() int {
	return int(math.Ceil(e.Remaining.Hours()))
}

// DetailedError keeps a user-facing detail string next to a taxonomy error.
type DetailedError struct {
	Kind    error
	Details string
	Cause   error
}

func (e *DetailedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Details, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Details)
}

func (e *DetailedError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

func WithDetails(kind error, details string, cause error) error {
	return &DetailedError{Kind: kind, Details: details, Cause: cause}
}
