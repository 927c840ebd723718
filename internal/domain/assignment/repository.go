package assignment

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Assign inserts a and sets the case's doctor in one transaction, provided
	// the case is open and has no doctor. Returns ErrAlreadyAssigned when
	// either guard loses.
	Assign(ctx context.Context, a *CaseAssignment) error

	// Claim is Assign for the doctor queue: it also requires the case to be
	// Reviewed. Reports false without error when another claimer won.
	Claim(ctx context.Context, a *CaseAssignment) (bool, error)

	// Reassign moves the case from previousDoctorID to a.DoctorID, supersedes
	// the active row and inserts a. Returns ErrAlreadyAssigned when the case
	// no longer belongs to previousDoctorID.
	Reassign(ctx context.Context, previousDoctorID uuid.UUID, a *CaseAssignment) error

	// ListByCase returns the assignment history, oldest first.
	ListByCase(ctx context.Context, caseID uuid.UUID) ([]*CaseAssignment, error)
}
