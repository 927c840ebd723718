package review

import (
	"context"

	"github.com/google/uuid"

	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain/skincase"
)

type Repository interface {
	// Record inserts r and moves the case Reviewed → next in one transaction.
	// The case update only applies while the case is Reviewed and assigned to
	// r.DoctorID; otherwise nothing is written and skincase.ErrStatusConflict
	// is returned. A second review by the same doctor returns ErrAlreadyReviewed.
	Record(ctx context.Context, r *DoctorReview, next skincase.Status) error

	Exists(ctx context.Context, caseID, doctorID uuid.UUID) (bool, error)

	ListByCase(ctx context.Context, caseID uuid.UUID) ([]*DoctorReview, error)
}
