package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain/assignment"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain/review"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain/skincase"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err       error
		kind      error
		retryable bool
	}{
		{skincase.ErrCaseNotFound, ErrNotFound, false},
		{fmt.Errorf("loading: %w", skincase.ErrStatusConflict), ErrConflict, true},
		{assignment.ErrAlreadyAssigned, ErrConflict, true},
		{review.ErrAlreadyReviewed, ErrConflict, true},
		{skincase.ErrAlreadyProcessing, ErrInvalidState, false},
		{review.ErrNotReviewable, ErrInvalidState, false},
		{skincase.ErrImageMissing, ErrValidation, false},
		{review.ErrInvalidDecision, ErrValidation, false},
		{withKind(ErrDependencyFailure, errors.New("worker down")), ErrDependencyFailure, true},
		{withKind(ErrRetryExhausted, errors.New("worker down")), ErrRetryExhausted, false},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			got := classify(tt.err)
			if KindOf(got) != tt.kind {
				t.Errorf("expected kind %v, got %v", tt.kind, KindOf(got))
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("classification must keep the cause in the chain")
			}
			if IsRetryable(got) != tt.retryable {
				t.Errorf("expected retryable=%v", tt.retryable)
			}
		})
	}
}

func TestClassify_PassesThroughUnknownErrors(t *testing.T) {
	boom := errors.New("disk on fire")
	if got := classify(boom); got != boom || KindOf(got) != nil {
		t.Fatalf("unknown errors must pass through unchanged, got %v", got)
	}
	if classify(nil) != nil {
		t.Fatal("nil must stay nil")
	}
}
