package notification

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Kind string

const (
	KindCaseSubmitted Kind = "case_submitted"
	KindCaseAssigned  Kind = "case_assigned"
	KindCaseReviewed  Kind = "case_reviewed"
	KindAICompleted   Kind = "ai_completed"
	KindAIFailed      Kind = "ai_failed"
	KindTicketReply   Kind = "ticket_reply"
	KindSystem        Kind = "system"
)

func (k Kind) IsValid() bool {
	switch k {
	case KindCaseSubmitted, KindCaseAssigned, KindCaseReviewed,
		KindAICompleted, KindAIFailed, KindTicketReply, KindSystem:
		return true
	}
	return false
}

type Notification struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`

	UserID    uuid.UUID  `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	Kind      Kind       `gorm:"column:kind;type:varchar(30);not null" json:"kind"`
	Title     string     `gorm:"column:title;type:varchar(200);not null" json:"title"`
	Message   string     `gorm:"column:message;type:text;not null" json:"message"`
	ActionURL string     `gorm:"column:action_url;type:text" json:"action_url,omitempty"`
	IsRead    bool       `gorm:"column:is_read;default:false;index" json:"is_read"`
	ReadAt    *time.Time `gorm:"column:read_at" json:"read_at,omitempty"`
}

func (Notification) TableName() string {
	return "notifications"
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
