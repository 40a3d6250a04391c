// Package notify delivers critical-result alerts to the ordering clinician.
//
// Result entry never emails inline: it writes an outbox row in the same
// transaction as the result, a dispatcher relays committed rows to a durable
// RabbitMQ queue, and a consumer turns queued events into SMTP mail. A dead
// broker or mail server can therefore delay an alert but can never fail or
// roll back a result write.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventTypeCriticalResult tags outbox rows produced by critical result entry.
const EventTypeCriticalResult = "lab.result.critical"

// CriticalResultEvent is the alert payload, self-contained so the consumer
// needs no database access to render the email.
type CriticalResultEvent struct {
	ResultID    uuid.UUID `json:"result_id"`
	OrderNumber string    `json:"order_number"`

	PatientName string `json:"patient_name"`
	TestName    string `json:"test_name"`
	TestCode    string `json:"test_code"`

	Value          string `json:"value"`
	Units          string `json:"units,omitempty"`
	ReferenceRange string `json:"reference_range,omitempty"`
	Interpretation string `json:"interpretation,omitempty"`

	DoctorName  string `json:"doctor_name"`
	DoctorEmail string `json:"doctor_email"`

	OccurredAt time.Time `json:"occurred_at"`
}

// OutboxEvent is a pending notification persisted alongside the write that
// produced it.
type OutboxEvent struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`

	EventType string `gorm:"column:event_type;type:varchar(50);not null;index"`
	Payload   []byte `gorm:"column:payload;type:jsonb;not null"`

	PublishedAt *time.Time `gorm:"column:published_at;index"`
	Attempts    int        `gorm:"column:attempts;default:0"`
}

func (OutboxEvent) TableName() string {
	return "lab.outbox_events"
}

type Outbox interface {
	// Enqueue stores the event; inside a transaction it commits with the caller.
	Enqueue(ctx context.Context, eventType string, payload any) error
	ListUnpublished(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkPublished(ctx context.Context, id uuid.UUID) error
	MarkAttempted(ctx context.Context, id uuid.UUID) error
	CountPending(ctx context.Context) (int64, error)
}
