package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain/notification"
	"github.com/dmehra2102/prod-golang-projects/epicheck/pkg/metrics"
)

// NotificationPublisher pushes a stored notification to connected clients.
type NotificationPublisher interface {
	Publish(ctx context.Context, n *notification.Notification) error
}

type Notice struct {
	UserID    uuid.UUID
	Kind      notification.Kind
	Title     string
	Message   string
	ActionURL string
}

type NotificationService struct {
	repo      notification.Repository
	profiles  ProfileRepository
	guard     *RoleGuard
	publisher NotificationPublisher
	metrics   *metrics.Collector
	log       *zap.Logger
	queue     chan Notice
	done      chan struct{}

	mu     sync.RWMutex
	closed bool
}

const notificationBufferSize = 5_000

// NewNotificationService starts the delivery worker. publisher may be nil.
func NewNotificationService(
	repo notification.Repository,
	profiles ProfileRepository,
	guard *RoleGuard,
	publisher NotificationPublisher,
	m *metrics.Collector,
	log *zap.Logger,
) *NotificationService {
	svc := &NotificationService{
		repo:      repo,
		profiles:  profiles,
		guard:     guard,
		publisher: publisher,
		metrics:   m,
		log:       log.Named("notifications"),
		queue:     make(chan Notice, notificationBufferSize),
		done:      make(chan struct{}),
	}
	go svc.worker()
	return svc
}

// Notify queues n for delivery. Invalid notices are logged and dropped; it
// never reports an error to the caller.
func (s *NotificationService) Notify(ctx context.Context, n Notice) {
	if !n.Kind.IsValid() {
		s.log.Warn("dropping notification with invalid kind", zap.String("kind", string(n.Kind)))
		return
	}
	if strings.TrimSpace(n.Title) == "" || strings.TrimSpace(n.Message) == "" {
		s.log.Warn("dropping notification without title or message", zap.String("kind", string(n.Kind)))
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.metrics.NotificationBufferDropped.Inc()
		s.log.Warn("notification service stopped, dropping entry",
			zap.String("kind", string(n.Kind)),
			zap.String("user_id", n.UserID.String()),
		)
		return
	}

	select {
	case s.queue <- n:
	default:
		s.metrics.NotificationBufferDropped.Inc()
		s.log.Warn("notification buffer full, dropping entry",
			zap.String("kind", string(n.Kind)),
			zap.String("user_id", n.UserID.String()),
		)
	}
}

// Shutdown stops accepting notices and waits for the queue to drain.
// Notices sent afterwards are dropped. Safe to call more than once.
func (s *NotificationService) Shutdown() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
	case <-time.After(10 * time.Second):
		s.log.Warn("notification service shutdown timed out; some notifications may be lost")
	}
}

func (s *NotificationService) worker() {
	defer close(s.done)
	for n := range s.queue {
		s.deliver(n)
	}
}

func (s *NotificationService) deliver(n Notice) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := s.profiles.GetByID(ctx, n.UserID); err != nil {
		if errors.Is(err, domain.ErrProfileNotFound) {
			s.log.Debug("skipping notification for unknown user", zap.String("user_id", n.UserID.String()))
			return
		}
		s.log.Error("failed to resolve notification recipient", zap.Error(err))
		return
	}

	row := &notification.Notification{
		UserID:    n.UserID,
		Kind:      n.Kind,
		Title:     n.Title,
		Message:   n.Message,
		ActionURL: n.ActionURL,
	}
	if err := s.repo.Create(ctx, row); err != nil {
		s.log.Error("failed to persist notification",
			zap.String("kind", string(n.Kind)),
			zap.Error(err),
		)
		return
	}
	s.metrics.NotificationsSent.WithLabelValues(string(n.Kind)).Inc()

	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, row); err != nil {
		s.log.Warn("failed to publish notification",
			zap.String("notification_id", row.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *NotificationService) ListNotifications(ctx context.Context, claims *domain.Claims, unreadOnly bool, limit int) ([]*notification.Notification, error) {
	caller, err := s.guard.Authenticate(ctx, claims)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListByUser(ctx, caller.ID, unreadOnly, limit)
}

func (s *NotificationService) MarkRead(ctx context.Context, claims *domain.Claims, id uuid.UUID) error {
	caller, err := s.guard.Authenticate(ctx, claims)
	if err != nil {
		return err
	}
	return classify(s.repo.MarkRead(ctx, id, caller.ID))
}
