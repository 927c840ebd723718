package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrProfileNotFound = errors.New("profile not found")

type Role string

const (
	RoleUser    Role = "user"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
	RoleSupport Role = "support"

	// RoleSystem marks audit rows written by background jobs. No profile has it.
	RoleSystem Role = "system"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleDoctor, RoleAdmin, RoleSupport:
		return true
	}
	return false
}

// ProfileStatus tracks account approval. Doctors must be approved before
// they may claim or review cases.
type ProfileStatus string

const (
	ProfileActive   ProfileStatus = "active"
	ProfilePending  ProfileStatus = "pending"
	ProfileApproved ProfileStatus = "approved"
	ProfileRejected ProfileStatus = "rejected"
)

type Profile struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time  `gorm:"autoCreateTime"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime"`
	DeletedAt *time.Time `gorm:"index"`

	Email    string        `gorm:"column:email;type:varchar(255);uniqueIndex;not null"`
	FullName string        `gorm:"column:full_name;type:varchar(200)"`
	Role     Role          `gorm:"column:role;type:varchar(30);not null;index"`
	Status   ProfileStatus `gorm:"column:status;type:varchar(30);not null;default:'active';index"`

	IsSuspended      bool   `gorm:"column:is_suspended;default:false"`
	SuspensionReason string `gorm:"column:suspension_reason;type:text"`
}

func (Profile) TableName() string {
	return "profiles"
}

func (p *Profile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// IsApprovedDoctor reports whether the profile may act on the doctor queue.
func (p *Profile) IsApprovedDoctor() bool {
	return p.Role == RoleDoctor && p.Status == ProfileApproved
}

type AuditAction string

const (
	ActionCaseCreated        AuditAction = "case_created"
	ActionCaseDeleted        AuditAction = "case_deleted"
	ActionCaseImageUploaded  AuditAction = "case_image_uploaded"
	ActionCaseSymptomsAdded  AuditAction = "case_symptoms_added"
	ActionAIAnalysisComplete AuditAction = "ai_analysis_completed"
	ActionAIAnalysisFailed   AuditAction = "ai_analysis_failed"
	ActionAIRetryExhausted   AuditAction = "ai_retry_exhausted"
	ActionCaseAssigned       AuditAction = "case_assigned"
	ActionCaseReassigned     AuditAction = "case_reassigned"
	ActionCaseClaimed        AuditAction = "case_claimed"
	ActionCaseReviewed       AuditAction = "case_reviewed"
)

// AuditLog is append-only. ActorID is nil for system actors (sweeper).
type AuditLog struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	OccurredAt time.Time `gorm:"autoCreateTime;index"`

	// Who
	ActorID   *uuid.UUID `gorm:"column:actor_id;type:uuid;index"`
	ActorRole Role       `gorm:"column:actor_role;type:varchar(30)"`

	// What
	Action      AuditAction `gorm:"column:action;type:varchar(50);not null;index"`
	TargetTable string      `gorm:"column:target_table;type:varchar(50);not null;index"`
	TargetID    string      `gorm:"column:target_id;type:varchar(50);index"`

	Metadata datatypes.JSONMap `gorm:"column:metadata"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

type TokenPair struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	TokenType   string    `json:"token_type"` // Always "Bearer"
}

// Claims is the verified identity carried by an access token. Role in the
// token is advisory; RoleGuard re-resolves the profile on every mutation.
type Claims struct {
	UserID uuid.UUID `json:"sub"`
	Email  string    `json:"email"`
	Role   Role      `json:"role"`
}
