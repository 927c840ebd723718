package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain/assignment"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain/notification"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain/review"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain/skincase"
)

// Error kinds. Every error a service returns matches exactly one of these
// via errors.Is; the transport layer maps kinds to status codes.
var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden: insufficient permissions")
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("invalid state")
	ErrConflict          = errors.New("conflict")
	ErrValidation        = errors.New("validation failed")
	ErrDependencyFailure = errors.New("dependency failure")
	ErrRetryExhausted    = errors.New("retry limit exhausted")
)

type ValidationError struct {
	Fields []string
	cause  error
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Unwrap() error {
	return e.cause
}

func newValidationError(fields ...string) *ValidationError {
	return &ValidationError{Fields: fields}
}

// KindOf returns the kind carried by err, or nil for unclassified errors.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrValidation,
		ErrUnauthorized,
		ErrForbidden,
		ErrNotFound,
		ErrInvalidState,
		ErrConflict,
		ErrDependencyFailure,
		ErrRetryExhausted,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// IsRetryable reports whether the caller may retry the same request.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrDependencyFailure)
}

func withKind(kind, err error) error {
	return fmt.Errorf("%w: %w", kind, err)
}

// classify attaches a kind to a repository or domain error. Errors that
// already carry a kind and unknown errors pass through unchanged.
func classify(err error) error {
	if err == nil || KindOf(err) != nil {
		return err
	}

	switch {
	case errors.Is(err, skincase.ErrCaseNotFound),
		errors.Is(err, notification.ErrNotificationNotFound),
		errors.Is(err, assignment.ErrDoctorNotEligible):
		return withKind(ErrNotFound, err)

	case errors.Is(err, domain.ErrProfileNotFound):
		return withKind(ErrUnauthorized, err)

	case errors.Is(err, skincase.ErrStatusConflict),
		errors.Is(err, assignment.ErrAlreadyAssigned),
		errors.Is(err, review.ErrAlreadyReviewed):
		return withKind(ErrConflict, err)

	case errors.Is(err, skincase.ErrInvalidStatusTransition),
		errors.Is(err, skincase.ErrAlreadyProcessing),
		errors.Is(err, skincase.ErrNotEditable),
		errors.Is(err, assignment.ErrCaseNotAssignable),
		errors.Is(err, assignment.ErrNotAssigned),
		errors.Is(err, review.ErrNotReviewable):
		return withKind(ErrInvalidState, err)

	case errors.Is(err, skincase.ErrImageMissing),
		errors.Is(err, skincase.ErrInvalidImage),
		errors.Is(err, skincase.ErrNoSymptoms),
		errors.Is(err, assignment.ErrSameDoctor),
		errors.Is(err, assignment.ErrReasonRequired),
		errors.Is(err, review.ErrInvalidDecision):
		return &ValidationError{Fields: []string{err.Error()}, cause: err}
	}
	return err
}
