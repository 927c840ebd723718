package assignment

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Source string

const (
	SourceAdmin     Source = "admin"
	SourceSelfClaim Source = "self_claim"
	SourceReassign  Source = "reassign"
)

// CaseAssignment records who put a doctor on a case. At most one row per
// case is active (SupersededAt is nil); the partial unique index enforces it.
type CaseAssignment struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`

	CaseID     uuid.UUID `gorm:"column:case_id;type:uuid;not null;uniqueIndex:idx_case_assignments_active,where:superseded_at IS NULL"`
	DoctorID   uuid.UUID `gorm:"column:doctor_id;type:uuid;not null;index"`
	AssignedBy uuid.UUID `gorm:"column:assigned_by;type:uuid;not null"`
	Source     Source    `gorm:"column:source;type:varchar(20);not null"`
	Reason     string    `gorm:"column:reason;type:text"`

	SupersededAt *time.Time `gorm:"column:superseded_at"`
}

func (CaseAssignment) TableName() string {
	return "case_assignments"
}

func (a *CaseAssignment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

type AssignCommand struct {
	CaseID   uuid.UUID
	DoctorID uuid.UUID
	Reason   string
}
