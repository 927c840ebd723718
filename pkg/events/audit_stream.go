package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/config"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain"
)

// AuditStream mirrors persisted audit rows onto a Kafka topic for the
// compliance warehouse. Messages are keyed by target id so every event for
// one case lands on the same partition in order.
type AuditStream struct {
	w *kafka.Writer
}

func NewAuditStream(cfg config.KafkaConfig) *AuditStream {
	return &AuditStream{
		w: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.AuditTopic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

func (s *AuditStream) Publish(ctx context.Context, entry *domain.AuditLog) error {
	msg, err := auditMessage(entry)
	if err != nil {
		return err
	}
	if err := s.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing audit event: %w", err)
	}
	return nil
}

func (s *AuditStream) Close() error {
	return s.w.Close()
}

type auditEvent struct {
	ID          string         `json:"id"`
	OccurredAt  time.Time      `json:"occurred_at"`
	ActorID     *string        `json:"actor_id"`
	ActorRole   string         `json:"actor_role,omitempty"`
	Action      string         `json:"action"`
	TargetTable string         `json:"target_table"`
	TargetID    string         `json:"target_id"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func auditMessage(entry *domain.AuditLog) (kafka.Message, error) {
	ev := auditEvent{
		ID:          entry.ID.String(),
		OccurredAt:  entry.OccurredAt.UTC(),
		ActorRole:   string(entry.ActorRole),
		Action:      string(entry.Action),
		TargetTable: entry.TargetTable,
		TargetID:    entry.TargetID,
		Metadata:    entry.Metadata,
	}
	if entry.ActorID != nil {
		id := entry.ActorID.String()
		ev.ActorID = &id
	}

	raw, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encoding audit event: %w", err)
	}

	return kafka.Message{
		Key:   []byte(entry.TargetID),
		Value: raw,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(ev.Action)},
		},
	}, nil
}
