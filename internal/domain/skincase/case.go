package skincase

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// State transitions:
//
//	submitted  → processing          (owner analyze, CAS)
//	processing → reviewed            (AI success)
//	processing → submitted           (AI failure, retries left)
//	processing → processing_failed   (AI failure, retries exhausted)
//	reviewed   → closed              (doctor approved / rejected)
//	reviewed   → reviewed            (doctor needs more info)
type Status string

const (
	StatusSubmitted        Status = "submitted"
	StatusProcessing       Status = "processing"
	StatusReviewed         Status = "reviewed"
	StatusClosed           Status = "closed"
	StatusProcessingFailed Status = "processing_failed"
)

var transitions = map[Status][]Status{
	StatusSubmitted:        {StatusProcessing},
	StatusProcessing:       {StatusReviewed, StatusSubmitted, StatusProcessingFailed},
	StatusReviewed:         {StatusClosed, StatusReviewed},
	StatusClosed:           {},
	StatusProcessingFailed: {},
}

func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) CanTransitionTo(next Status) bool {
	return slices.Contains(transitions[s], next)
}

func (s Status) IsTerminal() bool {
	return s == StatusClosed || s == StatusProcessingFailed
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

type Case struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time  `gorm:"autoCreateTime;index"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime;index"`
	DeletedAt *time.Time `gorm:"index"`

	OwnerID     uuid.UUID `gorm:"column:owner_id;type:uuid;not null;index"`
	Description string    `gorm:"column:description;type:text"`
	Status      Status    `gorm:"column:status;type:varchar(30);not null;default:'submitted';index"`

	AssignedDoctorID *uuid.UUID `gorm:"column:assigned_doctor_id;type:uuid;index"`

	// Denormalized copy of the latest prediction
	AIPrimaryLabel    string             `gorm:"column:ai_primary_label;type:varchar(100)"`
	AIConfidence      *float64           `gorm:"column:ai_confidence"`
	AISecondaryLabels map[string]float64 `gorm:"column:ai_secondary_labels;type:text;serializer:json"`
	SeverityScore     *float64           `gorm:"column:severity_score"`
	RiskLevel         RiskLevel          `gorm:"column:risk_level;type:varchar(10)"`

	Reviewed           bool       `gorm:"column:reviewed;default:false"`
	ReviewedByDoctorID *uuid.UUID `gorm:"column:reviewed_by_doctor_id;type:uuid"`
	ReviewedAt         *time.Time `gorm:"column:reviewed_at"`

	RetryCount        int    `gorm:"column:retry_count;not null;default:0"`
	LastFailureReason string `gorm:"column:last_failure_reason;type:text"`
}

func (Case) TableName() string {
	return "skin_cases"
}

func (c *Case) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

func (c *Case) IsOwnedBy(userID uuid.UUID) bool {
	return c.OwnerID == userID
}

func (c *Case) IsAssignedTo(doctorID uuid.UUID) bool {
	return c.AssignedDoctorID != nil && *c.AssignedDoctorID == doctorID
}

// Transition is a compare-and-swap status change. It only applies while the
// stored row still has status From; Set carries additional columns written
// in the same statement. A non-zero StaleBefore additionally requires the
// row to be untouched since then.
type Transition struct {
	From        Status
	To          Status
	Set         map[string]any
	StaleBefore time.Time
}

func NewTransition(from, to Status, set map[string]any) (Transition, error) {
	if !from.CanTransitionTo(to) {
		return Transition{}, ErrInvalidStatusTransition
	}
	return Transition{From: from, To: to, Set: set}, nil
}

// Prediction is one inference attempt. Rows are append-only.
type Prediction struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`

	CaseID       uuid.UUID `gorm:"column:case_id;type:uuid;not null;index"`
	ModelVersion string    `gorm:"column:model_version;type:varchar(50)"`

	PrimaryLabel    string             `gorm:"column:primary_label;type:varchar(100);not null"`
	Confidence      float64            `gorm:"column:confidence;not null"`
	SecondaryLabels map[string]float64 `gorm:"column:secondary_labels;type:text;serializer:json"`
	SeverityScore   float64            `gorm:"column:severity_score"`
	RiskLevel       RiskLevel          `gorm:"column:risk_level;type:varchar(10)"`
}

func (Prediction) TableName() string {
	return "case_predictions"
}

func (p *Prediction) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// CaseFile references an uploaded image by storage path only; the bytes
// live in object storage.
type CaseFile struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`

	CaseID            uuid.UUID `gorm:"column:case_id;type:uuid;not null;index"`
	StoragePath       string    `gorm:"column:storage_path;type:text;not null"`
	ContentType       string    `gorm:"column:content_type;type:varchar(50)"`
	SizeBytes         int64     `gorm:"column:size_bytes"`
	MarkedForDeletion bool      `gorm:"column:marked_for_deletion;default:false"`
}

func (CaseFile) TableName() string {
	return "case_files"
}

func (f *CaseFile) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

type CaseSymptom struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	CaseID      uuid.UUID `gorm:"column:case_id;type:uuid;not null;index"`
	SymptomCode string    `gorm:"column:symptom_code;type:varchar(100);not null"`
}

func (CaseSymptom) TableName() string {
	return "case_symptoms"
}

func (s *CaseSymptom) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

type CreateCaseCommand struct {
	OwnerID     uuid.UUID
	Description string
	Symptoms    []string
}

type AttachImageCommand struct {
	StoragePath string
	ContentType string
	SizeBytes   int64
}

type ListCasesQuery struct {
	OwnerID          *uuid.UUID
	AssignedDoctorID *uuid.UUID
	Status           *Status
	OldestFirst      bool
	Page             int
	PageSize         int
}

type PagedCases struct {
	Cases      []*Case
	TotalCount int64
	Page       int
	PageSize   int
	TotalPages int
}

// Details is the full owner-facing view of a case.
type Details struct {
	Case        *Case
	Files       []*CaseFile
	Symptoms    []*CaseSymptom
	Predictions []*Prediction
}

// ScoreConfidence derives the severity score (0-10) and risk band from a
// model confidence in [0, 1].
func ScoreConfidence(confidence float64) (float64, RiskLevel) {
	severity := confidence * 10
	switch {
	case confidence > 0.8:
		return severity, RiskHigh
	case confidence > 0.5:
		return severity, RiskMedium
	default:
		return severity, RiskLow
	}
}
