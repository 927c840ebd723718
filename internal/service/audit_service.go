package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/epicheck/pkg/metrics"
)

type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
}

// AuditStream receives a copy of every persisted audit row.
type AuditStream interface {
	Publish(ctx context.Context, entry *domain.AuditLog) error
}

type AuditEntry struct {
	Actor       actor
	Action      domain.AuditAction
	TargetTable string
	TargetID    string
	Metadata    map[string]any
}

// actor identifies who caused an audited change. A nil id is the system.
type actor struct {
	id   *uuid.UUID
	role domain.Role
}

var systemActor = actor{role: domain.RoleSystem}

func actorOf(p *domain.Profile) actor {
	id := p.ID
	return actor{id: &id, role: p.Role}
}

type AuditService struct {
	repo    AuditRepository
	stream  AuditStream
	metrics *metrics.Collector
	log     *zap.Logger
	entries chan *domain.AuditLog
	done    chan struct{}

	// mu guards closed; senders hold it shared so Shutdown never closes
	// entries under an in-progress send.
	mu     sync.RWMutex
	closed bool
}

const auditBufferSize = 10_000

// NewAuditService starts the persistence worker. stream may be nil.
func NewAuditService(repo AuditRepository, stream AuditStream, m *metrics.Collector, log *zap.Logger) *AuditService {
	svc := &AuditService{
		repo:    repo,
		stream:  stream,
		metrics: m,
		log:     log.Named("audit"),
		entries: make(chan *domain.AuditLog, auditBufferSize),
		done:    make(chan struct{}),
	}
	go svc.worker()
	return svc
}

// LogAsync enqueues an audit entry for async persistence.
// If the buffer is full, the entry is dropped and a warning is emitted.
func (s *AuditService) LogAsync(ctx context.Context, entry AuditEntry) {
	al := &domain.AuditLog{
		ActorID:     entry.Actor.id,
		ActorRole:   entry.Actor.role,
		Action:      entry.Action,
		TargetTable: entry.TargetTable,
		TargetID:    entry.TargetID,
		Metadata:    entry.Metadata,
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.metrics.AuditBufferDropped.Inc()
		s.log.Warn("audit service stopped, dropping entry",
			zap.String("action", string(entry.Action)),
			zap.String("target_id", entry.TargetID),
		)
		return
	}

	select {
	case s.entries <- al:
	default:
		s.metrics.AuditBufferDropped.Inc()
		s.log.Warn("audit log buffer full, dropping entry",
			zap.String("action", string(entry.Action)),
			zap.String("target_id", entry.TargetID),
		)
	}
}

// Shutdown stops accepting entries and waits for the queue to drain.
// Entries logged afterwards are dropped. Safe to call more than once.
func (s *AuditService) Shutdown() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.entries)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
	case <-time.After(10 * time.Second):
		s.log.Warn("audit service shutdown timed out; some entries may be lost")
	}
}

func (s *AuditService) worker() {
	defer close(s.done)
	for entry := range s.entries {
		s.persist(entry)
	}
}

func (s *AuditService) persist(entry *domain.AuditLog) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.repo.Create(ctx, entry); err != nil {
		s.log.Error("failed to persist audit log",
			zap.String("action", string(entry.Action)),
			zap.Error(err),
		)
		return
	}
	s.metrics.AuditEntriesTotal.Inc()

	if s.stream == nil {
		return
	}
	if err := s.stream.Publish(ctx, entry); err != nil {
		s.log.Warn("failed to mirror audit log to stream",
			zap.String("audit_id", entry.ID.String()),
			zap.Error(err),
		)
	}
}
