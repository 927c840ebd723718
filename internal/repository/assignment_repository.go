package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain/assignment"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain/skincase"
)

type AssignmentRepository struct {
	db *gorm.DB
}

func NewAssignmentRepository(db *gorm.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

func (r *AssignmentRepository) Assign(ctx context.Context, a *assignment.CaseAssignment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The partial unique index on active rows is the race guard.
		if err := tx.Create(a).Error; err != nil {
			if isUniqueViolation(err) {
				return assignment.ErrAlreadyAssigned
			}
			return fmt.Errorf("inserting assignment: %w", err)
		}

		res := tx.Model(&skincase.Case{}).Scopes(notDeleted).
			Where("id = ? AND assigned_doctor_id IS NULL AND status <> ?", a.CaseID, skincase.StatusClosed).
			Updates(map[string]any{"assigned_doctor_id": a.DoctorID, "updated_at": time.Now()})
		if res.Error != nil {
			return fmt.Errorf("updating case doctor: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return assignment.ErrAlreadyAssigned
		}
		return nil
	})
}

func (r *AssignmentRepository) Claim(ctx context.Context, a *assignment.CaseAssignment) (bool, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&skincase.Case{}).Scopes(notDeleted).
			Where("id = ? AND status = ? AND assigned_doctor_id IS NULL", a.CaseID, skincase.StatusReviewed).
			Updates(map[string]any{"assigned_doctor_id": a.DoctorID, "updated_at": time.Now()})
		if res.Error != nil {
			return fmt.Errorf("claiming case: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return assignment.ErrAlreadyAssigned
		}

		if err := tx.Create(a).Error; err != nil {
			if isUniqueViolation(err) {
				return assignment.ErrAlreadyAssigned
			}
			return fmt.Errorf("inserting assignment: %w", err)
		}
		return nil
	})
	if errors.Is(err, assignment.ErrAlreadyAssigned) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *AssignmentRepository) Reassign(ctx context.Context, previousDoctorID uuid.UUID, a *assignment.CaseAssignment) error {
	now := time.Now()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&skincase.Case{}).Scopes(notDeleted).
			Where("id = ? AND assigned_doctor_id = ? AND status <> ?", a.CaseID, previousDoctorID, skincase.StatusClosed).
			Updates(map[string]any{"assigned_doctor_id": a.DoctorID, "updated_at": now})
		if res.Error != nil {
			return fmt.Errorf("updating case doctor: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return assignment.ErrAlreadyAssigned
		}

		if err := tx.Model(&assignment.CaseAssignment{}).
			Where("case_id = ? AND superseded_at IS NULL", a.CaseID).
			Update("superseded_at", now).Error; err != nil {
			return fmt.Errorf("superseding assignment: %w", err)
		}

		if err := tx.Create(a).Error; err != nil {
			if isUniqueViolation(err) {
				return assignment.ErrAlreadyAssigned
			}
			return fmt.Errorf("inserting assignment: %w", err)
		}
		return nil
	})
}

func (r *AssignmentRepository) ListByCase(ctx context.Context, caseID uuid.UUID) ([]*assignment.CaseAssignment, error) {
	var out []*assignment.CaseAssignment
	err := r.db.WithContext(ctx).
		Where("case_id = ?", caseID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}
