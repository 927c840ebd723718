package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain/review"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain/skincase"
)

type ReviewRepository struct {
	db *gorm.DB
}

func NewReviewRepository(db *gorm.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

func (r *ReviewRepository) Record(ctx context.Context, rv *review.DoctorReview, next skincase.Status) error {
	if !skincase.StatusReviewed.CanTransitionTo(next) {
		return skincase.ErrInvalidStatusTransition
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(rv).Error; err != nil {
			if isUniqueViolation(err) {
				return review.ErrAlreadyReviewed
			}
			return fmt.Errorf("inserting review: %w", err)
		}

		now := time.Now()
		res := tx.Model(&skincase.Case{}).Scopes(notDeleted).
			Where("id = ? AND status = ? AND assigned_doctor_id = ?", rv.CaseID, skincase.StatusReviewed, rv.DoctorID).
			Updates(map[string]any{
				"status":                next,
				"reviewed":              true,
				"reviewed_by_doctor_id": rv.DoctorID,
				"reviewed_at":           now,
				"updated_at":            now,
			})
		if res.Error != nil {
			return fmt.Errorf("updating case: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return skincase.ErrStatusConflict
		}
		return nil
	})
}

func (r *ReviewRepository) Exists(ctx context.Context, caseID, doctorID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&review.DoctorReview{}).
		Where("case_id = ? AND doctor_id = ?", caseID, doctorID).
		Count(&count).Error
	return count > 0, err
}

func (r *ReviewRepository) ListByCase(ctx context.Context, caseID uuid.UUID) ([]*review.DoctorReview, error) {
	var out []*review.DoctorReview
	err := r.db.WithContext(ctx).
		Where("case_id = ?", caseID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}
