package review

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain/skincase"
)

type Decision string

const (
	DecisionApproved      Decision = "approved"
	DecisionRejected      Decision = "rejected"
	DecisionNeedsMoreInfo Decision = "needs_more_info"
)

func (d Decision) IsValid() bool {
	switch d {
	case DecisionApproved, DecisionRejected, DecisionNeedsMoreInfo:
		return true
	}
	return false
}

// NextStatus is the case status after a review with this decision. A request
// for more information leaves the case with its doctor in Reviewed.
func (d Decision) NextStatus() skincase.Status {
	if d == DecisionNeedsMoreInfo {
		return skincase.StatusReviewed
	}
	return skincase.StatusClosed
}

type DoctorReview struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`

	CaseID   uuid.UUID `gorm:"column:case_id;type:uuid;not null;uniqueIndex:idx_doctor_reviews_case_doctor"`
	DoctorID uuid.UUID `gorm:"column:doctor_id;type:uuid;not null;uniqueIndex:idx_doctor_reviews_case_doctor;index"`
	Decision Decision  `gorm:"column:decision;type:varchar(20);not null"`
	Note     string    `gorm:"column:note;type:text"` // PHI
}

func (DoctorReview) TableName() string {
	return "doctor_reviews"
}

func (r *DoctorReview) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

type SubmitReviewCommand struct {
	CaseID   uuid.UUID
	Decision Decision
	Note     string
}
