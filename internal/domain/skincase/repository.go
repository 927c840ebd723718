package skincase

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the case store. Every status change goes through
// TransitionStatus or CompleteAnalysis; there is no unconditional status write.
type Repository interface {
	// Create persists a new Submitted case together with its initial symptoms.
	Create(ctx context.Context, c *Case, symptoms []string) error

	// GetByID returns a non-deleted case. Returns ErrCaseNotFound otherwise.
	GetByID(ctx context.Context, id uuid.UUID) (*Case, error)

	List(ctx context.Context, q *ListCasesQuery) (*PagedCases, error)

	// SoftDelete marks an owner's case deleted unless an analysis holds it.
	// Returns ErrAlreadyProcessing for a Processing case and ErrCaseNotFound
	// when the case does not exist, is already deleted or belongs to someone else.
	SoftDelete(ctx context.Context, id, ownerID uuid.UUID) error

	// TransitionStatus applies t only while the row is still in t.From.
	// Returns ErrStatusConflict when no row matched.
	TransitionStatus(ctx context.Context, id uuid.UUID, t Transition) error

	// CompleteAnalysis inserts p and moves the case Processing → Reviewed with
	// the denormalized prediction fields in one transaction. If the case is no
	// longer Processing nothing is written and ErrStatusConflict is returned.
	CompleteAnalysis(ctx context.Context, p *Prediction) error

	// OldestClaimable returns the oldest Reviewed case without a doctor.
	OldestClaimable(ctx context.Context) (*Case, error)

	// ListStuckProcessing returns Processing cases not touched since before.
	ListStuckProcessing(ctx context.Context, before time.Time, limit int) ([]*Case, error)

	// ListRetryable returns Submitted cases with 0 < retry_count < maxRetries.
	ListRetryable(ctx context.Context, maxRetries, limit int) ([]*Case, error)

	AddImage(ctx context.Context, f *CaseFile) error

	// LatestImage returns the newest image not marked for deletion.
	// Returns ErrImageMissing if there is none.
	LatestImage(ctx context.Context, caseID uuid.UUID) (*CaseFile, error)

	AddSymptoms(ctx context.Context, caseID uuid.UUID, codes []string) error

	GetDetails(ctx context.Context, id uuid.UUID) (*Details, error)

	ListPredictions(ctx context.Context, caseID uuid.UUID) ([]*Prediction, error)
}
