package notify

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type captureMailer struct {
	sent []capturedMail
	err  error
}

type capturedMail struct {
	to      string
	subject string
	body    string
}

func (m *captureMailer) SendHTMLEmail(to, subject, htmlBody string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, capturedMail{to: to, subject: subject, body: htmlBody})
	return nil
}

type captureAcker struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (a *captureAcker) Ack(_ uint64, _ bool) error {
	a.acked = true
	return nil
}

func (a *captureAcker) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked = true
	a.requeue = requeue
	return nil
}

func (a *captureAcker) Reject(_ uint64, requeue bool) error {
	a.nacked = true
	a.requeue = requeue
	return nil
}

func newTestConsumer(mailer Mailer) *Consumer {
	return &Consumer{
		mailer: mailer,
		breaker: gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name: "smtp-test",
		}),
		log:  zap.NewNop(),
		done: make(chan struct{}),
	}
}

func testEvent() CriticalResultEvent {
	return CriticalResultEvent{
		ResultID:       uuid.New(),
		OrderNumber:    "LAB-2026-0042",
		PatientName:    "June Osei",
		TestName:       "Serum Potassium",
		TestCode:       "K",
		Value:          "6.8",
		Units:          "mmol/L",
		ReferenceRange: "3.5-5.0",
		Interpretation: "hyperkalemia",
		DoctorName:     "Ada Okafor",
		DoctorEmail:    "dr.okafor@example.org",
		OccurredAt:     time.Now(),
	}
}

func delivery(t *testing.T, ev CriticalResultEvent, acker *captureAcker) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(ev)
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: acker, Body: body}
}

func TestConsumerHandle(t *testing.T) {
	t.Run("delivers the email and acks", func(t *testing.T) {
		mailer := &captureMailer{}
		c := newTestConsumer(mailer)
		acker := &captureAcker{}

		c.handle(delivery(t, testEvent(), acker))

		require.Len(t, mailer.sent, 1)
		mail := mailer.sent[0]
		assert.Equal(t, "dr.okafor@example.org", mail.to)
		assert.Equal(t, "CRITICAL lab result: Serum Potassium for June Osei", mail.subject)
		assert.Contains(t, mail.body, "LAB-2026-0042")
		assert.Contains(t, mail.body, "6.8 mmol/L")
		assert.Contains(t, mail.body, "Ada Okafor")
		assert.True(t, acker.acked)
		assert.False(t, acker.nacked)
	})

	t.Run("malformed payload is dropped without requeue", func(t *testing.T) {
		mailer := &captureMailer{}
		c := newTestConsumer(mailer)
		acker := &captureAcker{}

		c.handle(amqp.Delivery{Acknowledger: acker, Body: []byte("not json")})

		assert.Empty(t, mailer.sent)
		assert.True(t, acker.nacked)
		assert.False(t, acker.requeue)
	})

	t.Run("mailer failure requeues a fresh delivery", func(t *testing.T) {
		mailer := &captureMailer{err: errors.New("smtp down")}
		c := newTestConsumer(mailer)
		acker := &captureAcker{}

		c.handle(delivery(t, testEvent(), acker))

		assert.True(t, acker.nacked)
		assert.True(t, acker.requeue)
	})

	t.Run("queue is declared quorum so the broker tracks delivery counts", func(t *testing.T) {
		args := alertQueueArgs()
		assert.Equal(t, "quorum", args["x-queue-type"])
	})

	t.Run("gives up after repeated redeliveries", func(t *testing.T) {
		mailer := &captureMailer{err: errors.New("smtp down")}
		c := newTestConsumer(mailer)
		acker := &captureAcker{}

		d := delivery(t, testEvent(), acker)
		d.Redelivered = true
		d.Headers = amqp.Table{"x-delivery-count": int64(maxDeliveryAttempts)}
		c.handle(d)

		assert.True(t, acker.nacked)
		assert.False(t, acker.requeue)
	})
}
