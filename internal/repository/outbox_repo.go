package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clinicore/labflow/internal/notify"
)

type outboxRepo struct {
	conn *gorm.DB
}

func NewOutboxRepository(conn *gorm.DB) notify.Outbox {
	return &outboxRepo{conn: conn}
}

// Enqueue writes the event row through the caller's transaction, so the
// event commits or rolls back together with the result that produced it.
func (r *outboxRepo) Enqueue(ctx context.Context, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	ev := &notify.OutboxEvent{
		EventType: eventType,
		Payload:   body,
	}
	return dbFrom(ctx, r.conn).Create(ev).Error
}

func (r *outboxRepo) ListUnpublished(ctx context.Context, limit int) ([]*notify.OutboxEvent, error) {
	var events []*notify.OutboxEvent
	err := dbFrom(ctx, r.conn).
		Where("published_at IS NULL").
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *outboxRepo) MarkPublished(ctx context.Context, id uuid.UUID) error {
	return dbFrom(ctx, r.conn).
		Model(&notify.OutboxEvent{}).
		Where("id = ?", id).
		Update("published_at", time.Now()).Error
}

func (r *outboxRepo) MarkAttempted(ctx context.Context, id uuid.UUID) error {
	return dbFrom(ctx, r.conn).
		Model(&notify.OutboxEvent{}).
		Where("id = ?", id).
		Update("attempts", gorm.Expr("attempts + 1")).Error
}

func (r *outboxRepo) CountPending(ctx context.Context) (int64, error) {
	var n int64
	err := dbFrom(ctx, r.conn).
		Model(&notify.OutboxEvent{}).
		Where("published_at IS NULL").
		Count(&n).Error
	return n, err
}
