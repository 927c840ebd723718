package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/config"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain/notification"
)

// NotificationPublisher fans stored notifications out to the realtime
// gateway over Redis pub/sub.
type NotificationPublisher struct {
	rdb     *redis.Client
	channel string
}

func NewNotificationPublisher(ctx context.Context, cfg config.RedisConfig) (*NotificationPublisher, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &NotificationPublisher{rdb: rdb, channel: cfg.Channel}, nil
}

func (p *NotificationPublisher) Publish(ctx context.Context, n *notification.Notification) error {
	raw, err := notificationPayload(n)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, p.channel, raw).Err()
}

func (p *NotificationPublisher) Close() error {
	return p.rdb.Close()
}

type notificationEnvelope struct {
	Event        string                     `json:"event"`
	UserID       string                     `json:"user_id"`
	Notification *notification.Notification `json:"notification"`
}

func notificationPayload(n *notification.Notification) ([]byte, error) {
	raw, err := json.Marshal(notificationEnvelope{
		Event:        "notification.created",
		UserID:       n.UserID.String(),
		Notification: n,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding notification: %w", err)
	}
	return raw, nil
}
