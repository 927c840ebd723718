package notification

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, n *Notification) error

	// ListByUser returns the user's notifications, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]*Notification, error)

	// MarkRead marks one of the user's notifications read. Returns
	// ErrNotificationNotFound when it does not exist or belongs to someone else.
	MarkRead(ctx context.Context, id, userID uuid.UUID) error
}
