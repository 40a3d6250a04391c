package notify

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/clinicore/labflow/pkg/metrics"
)

// Publisher pushes a serialized event onto the durable transport.
type Publisher interface {
	Publish(ctx context.Context, eventType string, body []byte) error
}

type AMQPPublisher struct {
	ch    *amqp.Channel
	queue string
}

// alertQueueArgs declares the alert queue as a quorum queue. RabbitMQ only
// tracks x-delivery-count on quorum queues, and the consumer's give-up cap
// reads that header.
func alertQueueArgs() amqp.Table {
	return amqp.Table{"x-queue-type": "quorum"}
}

func declareAlertQueue(ch *amqp.Channel, queue string) error {
	_, err := ch.QueueDeclare(queue, true, false, false, false, alertQueueArgs())
	return err
}

// NewAMQPPublisher opens a channel and declares the durable alert queue.
func NewAMQPPublisher(conn *amqp.Connection, queue string) (*AMQPPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := declareAlertQueue(ch, queue); err != nil {
		return nil, err
	}
	return &AMQPPublisher{ch: ch, queue: queue}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, eventType string, body []byte) error {
	return p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Type:         eventType,
		Body:         body,
		DeliveryMode: amqp.Persistent,
	})
}

const dispatchBatchSize = 100

// Dispatcher relays committed outbox rows to the publisher. It polls on an
// interval and can be nudged by Wake so a freshly committed critical result
// goes out without waiting for the next tick.
type Dispatcher struct {
	outbox   Outbox
	pub      Publisher
	log      *zap.Logger
	metrics  *metrics.Collector
	interval time.Duration

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

func NewDispatcher(outbox Outbox, pub Publisher, interval time.Duration, m *metrics.Collector, log *zap.Logger) *Dispatcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Dispatcher{
		outbox:   outbox,
		pub:      pub,
		log:      log,
		metrics:  m,
		interval: interval,
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (d *Dispatcher) Start() {
	go d.run()
}

// Wake asks for an immediate drain. Non-blocking; a pending wakeup is enough.
func (d *Dispatcher) Wake() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) Shutdown() {
	close(d.stop)
	select {
	case <-d.done:
	case <-time.After(10 * time.Second):
		d.log.Warn("notification dispatcher shutdown timed out")
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stop:
			// Final drain so alerts committed just before shutdown still go out.
			d.drain()
			return
		case <-d.wake:
			d.drain()
		case <-ticker.C:
			d.drain()
		}
	}
}

func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	defer d.updatePendingGauge(ctx)

	events, err := d.outbox.ListUnpublished(ctx, dispatchBatchSize)
	if err != nil {
		d.log.Error("listing unpublished alert events", zap.Error(err))
		return
	}

	for _, ev := range events {
		if err := d.pub.Publish(ctx, ev.EventType, ev.Payload); err != nil {
			d.log.Error("publishing alert event",
				zap.String("event_id", ev.ID.String()),
				zap.Int("attempts", ev.Attempts+1),
				zap.Error(err),
			)
			_ = d.outbox.MarkAttempted(ctx, ev.ID)
			// The broker is likely down; retry the whole batch next tick.
			return
		}
		if err := d.outbox.MarkPublished(ctx, ev.ID); err != nil {
			// The event will be re-published next tick; the consumer has to
			// tolerate the duplicate.
			d.log.Error("marking alert event published",
				zap.String("event_id", ev.ID.String()),
				zap.Error(err),
			)
		}
	}
}

func (d *Dispatcher) updatePendingGauge(ctx context.Context) {
	if d.metrics == nil {
		return
	}
	if n, err := d.outbox.CountPending(ctx); err == nil {
		d.metrics.OutboxPending.Set(float64(n))
	}
}
