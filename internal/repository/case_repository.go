package repository

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain/skincase"
)

type CaseRepository struct {
	db *gorm.DB
}

func NewCaseRepository(db *gorm.DB) *CaseRepository {
	return &CaseRepository{db: db}
}

func (r *CaseRepository) cases(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&skincase.Case{}).Scopes(notDeleted)
}

func (r *CaseRepository) Create(ctx context.Context, c *skincase.Case, symptoms []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(c).Error; err != nil {
			return fmt.Errorf("inserting case: %w", err)
		}
		return insertSymptoms(tx, c.ID, symptoms)
	})
}

func (r *CaseRepository) GetByID(ctx context.Context, id uuid.UUID) (*skincase.Case, error) {
	var c skincase.Case
	if err := r.db.WithContext(ctx).Scopes(notDeleted).First(&c, "id = ?", id).Error; err != nil {
		if isNotFound(err) {
			return nil, skincase.ErrCaseNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *CaseRepository) List(ctx context.Context, q *skincase.ListCasesQuery) (*skincase.PagedCases, error) {
	filter := func(db *gorm.DB) *gorm.DB {
		if q.OwnerID != nil {
			db = db.Where("owner_id = ?", *q.OwnerID)
		}
		if q.AssignedDoctorID != nil {
			db = db.Where("assigned_doctor_id = ?", *q.AssignedDoctorID)
		}
		if q.Status != nil {
			db = db.Where("status = ?", *q.Status)
		}
		return db
	}

	var total int64
	if err := r.cases(ctx).Scopes(filter).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("counting cases: %w", err)
	}

	order := "created_at DESC"
	if q.OldestFirst {
		order = "created_at ASC"
	}

	var cases []*skincase.Case
	err := r.cases(ctx).Scopes(filter).
		Order(order).
		Offset((q.Page - 1) * q.PageSize).
		Limit(q.PageSize).
		Find(&cases).Error
	if err != nil {
		return nil, fmt.Errorf("listing cases: %w", err)
	}

	return &skincase.PagedCases{
		Cases:      cases,
		TotalCount: total,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: int(math.Ceil(float64(total) / float64(q.PageSize))),
	}, nil
}

func (r *CaseRepository) SoftDelete(ctx context.Context, id, ownerID uuid.UUID) error {
	now := time.Now()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&skincase.Case{}).Scopes(notDeleted).
			Where("id = ? AND owner_id = ? AND status <> ?", id, ownerID, skincase.StatusProcessing).
			Updates(map[string]any{"deleted_at": now, "updated_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var processing int64
			if err := tx.Model(&skincase.Case{}).Scopes(notDeleted).
				Where("id = ? AND owner_id = ? AND status = ?", id, ownerID, skincase.StatusProcessing).
				Count(&processing).Error; err != nil {
				return err
			}
			if processing > 0 {
				return skincase.ErrAlreadyProcessing
			}
			return skincase.ErrCaseNotFound
		}
		// Blobs are collected by the storage janitor.
		return tx.Model(&skincase.CaseFile{}).
			Where("case_id = ?", id).
			Update("marked_for_deletion", true).Error
	})
}

func (r *CaseRepository) TransitionStatus(ctx context.Context, id uuid.UUID, t skincase.Transition) error {
	if !t.From.CanTransitionTo(t.To) {
		return skincase.ErrInvalidStatusTransition
	}

	updates := map[string]any{}
	for k, v := range t.Set {
		updates[k] = v
	}
	updates["status"] = t.To
	updates["updated_at"] = time.Now()

	q := r.cases(ctx).Where("id = ? AND status = ?", id, t.From)
	if !t.StaleBefore.IsZero() {
		q = q.Where("updated_at < ?", t.StaleBefore)
	}

	res := q.Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("updating case status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return skincase.ErrStatusConflict
	}
	return nil
}

func (r *CaseRepository) CompleteAnalysis(ctx context.Context, p *skincase.Prediction) error {
	secondary, err := jsonColumn(p.SecondaryLabels)
	if err != nil {
		return fmt.Errorf("encoding secondary labels: %w", err)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&skincase.Case{}).Scopes(notDeleted).
			Where("id = ? AND status = ?", p.CaseID, skincase.StatusProcessing).
			Updates(map[string]any{
				"status":              skincase.StatusReviewed,
				"ai_primary_label":    p.PrimaryLabel,
				"ai_confidence":       p.Confidence,
				"ai_secondary_labels": secondary,
				"severity_score":      p.SeverityScore,
				"risk_level":          p.RiskLevel,
				"last_failure_reason": "",
				"updated_at":          time.Now(),
			})
		if res.Error != nil {
			return fmt.Errorf("updating case: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return skincase.ErrStatusConflict
		}
		if err := tx.Create(p).Error; err != nil {
			return fmt.Errorf("inserting prediction: %w", err)
		}
		return nil
	})
}

func (r *CaseRepository) OldestClaimable(ctx context.Context) (*skincase.Case, error) {
	var c skincase.Case
	err := r.db.WithContext(ctx).Scopes(notDeleted).
		Where("status = ? AND assigned_doctor_id IS NULL", skincase.StatusReviewed).
		Order("created_at ASC").
		First(&c).Error
	if err != nil {
		if isNotFound(err) {
			return nil, skincase.ErrCaseNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *CaseRepository) ListStuckProcessing(ctx context.Context, before time.Time, limit int) ([]*skincase.Case, error) {
	var out []*skincase.Case
	err := r.db.WithContext(ctx).Scopes(notDeleted).
		Where("status = ? AND updated_at < ?", skincase.StatusProcessing, before).
		Order("updated_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *CaseRepository) ListRetryable(ctx context.Context, maxRetries, limit int) ([]*skincase.Case, error) {
	var out []*skincase.Case
	err := r.db.WithContext(ctx).Scopes(notDeleted).
		Where("status = ? AND retry_count > 0 AND retry_count < ?", skincase.StatusSubmitted, maxRetries).
		Where("EXISTS (SELECT 1 FROM case_files f WHERE f.case_id = skin_cases.id AND f.marked_for_deletion = ?)", false).
		Order("updated_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *CaseRepository) AddImage(ctx context.Context, f *skincase.CaseFile) error {
	return r.db.WithContext(ctx).Create(f).Error
}

func (r *CaseRepository) LatestImage(ctx context.Context, caseID uuid.UUID) (*skincase.CaseFile, error) {
	var f skincase.CaseFile
	err := r.db.WithContext(ctx).
		Where("case_id = ? AND marked_for_deletion = ?", caseID, false).
		Order("created_at DESC").
		First(&f).Error
	if err != nil {
		if isNotFound(err) {
			return nil, skincase.ErrImageMissing
		}
		return nil, err
	}
	return &f, nil
}

func (r *CaseRepository) AddSymptoms(ctx context.Context, caseID uuid.UUID, codes []string) error {
	return insertSymptoms(r.db.WithContext(ctx), caseID, codes)
}

func (r *CaseRepository) GetDetails(ctx context.Context, id uuid.UUID) (*skincase.Details, error) {
	c, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	d := &skincase.Details{Case: c}
	db := r.db.WithContext(ctx)
	if err := db.Where("case_id = ? AND marked_for_deletion = ?", id, false).Order("created_at ASC").Find(&d.Files).Error; err != nil {
		return nil, fmt.Errorf("loading case files: %w", err)
	}
	if err := db.Where("case_id = ?", id).Order("created_at ASC").Find(&d.Symptoms).Error; err != nil {
		return nil, fmt.Errorf("loading symptoms: %w", err)
	}
	if d.Predictions, err = r.ListPredictions(ctx, id); err != nil {
		return nil, err
	}
	return d, nil
}

func (r *CaseRepository) ListPredictions(ctx context.Context, caseID uuid.UUID) ([]*skincase.Prediction, error) {
	var out []*skincase.Prediction
	if err := r.db.WithContext(ctx).Where("case_id = ?", caseID).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("loading predictions: %w", err)
	}
	return out, nil
}

func insertSymptoms(db *gorm.DB, caseID uuid.UUID, codes []string) error {
	if len(codes) == 0 {
		return nil
	}
	rows := make([]*skincase.CaseSymptom, 0, len(codes))
	for _, code := range codes {
		rows = append(rows, &skincase.CaseSymptom{CaseID: caseID, SymptomCode: code})
	}
	if err := db.Create(&rows).Error; err != nil {
		return fmt.Errorf("inserting symptoms: %w", err)
	}
	return nil
}
