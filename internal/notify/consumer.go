package notify

import (
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// Mailer sends a rendered alert. Implemented by SMTPMailer; faked in tests.
type Mailer interface {
	SendHTMLEmail(to, subject, htmlBody string) error
}

const maxDeliveryAttempts = 3

// Consumer drains the alert queue and emails the ordering doctor. SMTP calls
// run behind a circuit breaker so a dead mail server stops being hammered;
// messages rejected while the breaker is open are requeued.
type Consumer struct {
	ch      *amqp.Channel
	queue   string
	mailer  Mailer
	breaker *gobreaker.CircuitBreaker[struct{}]
	log     *zap.Logger
	done    chan struct{}
}

func NewConsumer(conn *amqp.Connection, queue string, mailer Mailer, log *zap.Logger) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := declareAlertQueue(ch, queue); err != nil {
		return nil, err
	}
	if err := ch.Qos(10, 0, false); err != nil {
		return nil, err
	}

	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "smtp",
		MaxRequests: 1,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Consumer{
		ch:      ch,
		queue:   queue,
		mailer:  mailer,
		breaker: breaker,
		log:     log,
		done:    make(chan struct{}),
	}, nil
}

func (c *Consumer) Start() error {
	deliveries, err := c.ch.Consume(c.queue, "labflow-notifier", false, false, false, false, nil)
	if err != nil {
		return err
	}
	go c.loop(deliveries)
	return nil
}

func (c *Consumer) Shutdown() {
	_ = c.ch.Close()
	<-c.done
}

func (c *Consumer) loop(deliveries <-chan amqp.Delivery) {
	defer close(c.done)
	for d := range deliveries {
		c.handle(d)
	}
}

func (c *Consumer) handle(d amqp.Delivery) {
	var ev CriticalResultEvent
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		c.log.Error("malformed alert payload, dropping", zap.Error(err))
		_ = d.Nack(false, false)
		return
	}

	_, err := c.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, c.mailer.SendHTMLEmail(ev.DoctorEmail, alertSubject(&ev), alertBody(&ev))
	})
	if err != nil {
		// Alert delivery is best-effort by contract: log, requeue a few
		// times, then give up. The result itself is already durable.
		requeue := !d.Redelivered || deliveryCount(d) < maxDeliveryAttempts
		c.log.Error("delivering critical result alert",
			zap.String("result_id", ev.ResultID.String()),
			zap.String("doctor_email", ev.DoctorEmail),
			zap.Bool("requeue", requeue),
			zap.Error(err),
		)
		_ = d.Nack(false, requeue)
		return
	}

	c.log.Info("critical result alert delivered",
		zap.String("result_id", ev.ResultID.String()),
		zap.String("order_number", ev.OrderNumber),
	)
	_ = d.Ack(false)
}

func deliveryCount(d amqp.Delivery) int {
	if v, ok := d.Headers["x-delivery-count"].(int64); ok {
		return int(v)
	}
	return 0
}

func alertSubject(ev *CriticalResultEvent) string {
	return fmt.Sprintf("CRITICAL lab result: %s for %s", ev.TestName, ev.PatientName)
}

func alertBody(ev *CriticalResultEvent) string {
	value := ev.Value
	if ev.Units != "" {
		value += " " + ev.Units
	}
	return fmt.Sprintf(`<h2>Critical Lab Result</h2>
<p>Dr. %s, a result you ordered requires immediate attention.</p>
<table>
  <tr><td>Order</td><td>%s</td></tr>
  <tr><td>Patient</td><td>%s</td></tr>
  <tr><td>Test</td><td>%s (%s)</td></tr>
  <tr><td>Value</td><td><strong>%s</strong></td></tr>
  <tr><td>Reference range</td><td>%s</td></tr>
  <tr><td>Interpretation</td><td>%s</td></tr>
</table>
<p>Reported at %s.</p>`,
		ev.DoctorName,
		ev.OrderNumber,
		ev.PatientName,
		ev.TestName, ev.TestCode,
		value,
		ev.ReferenceRange,
		ev.Interpretation,
		ev.OccurredAt.Format("2006-01-02 15:04 MST"),
	)
}
