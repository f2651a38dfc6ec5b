package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/cinema-booking/internal/model"
)

// AuditQueue is the durable queue the audit consumer binds to every show.
const AuditQueue = "seat.events.audit"

// AuditConsumer records every seat event published to the exchange as one
// structured log line.
type AuditConsumer struct {
	url      string
	exchange string
	log      logrus.FieldLogger
}

// NewAuditConsumer returns a consumer for the broker at url.
func NewAuditConsumer(url, exchange string, log logrus.FieldLogger) *AuditConsumer {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &AuditConsumer{url: url, exchange: exchange, log: log}
}

// Run connects, declares and binds the audit queue and consumes until ctx
// is cancelled.  Broker failures are retried with exponential backoff up
// to 30s, so Run only returns when ctx ends.
func (a *AuditConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(a.url)
		if err != nil {
			a.log.WithError(err).Warnf("audit-consumer: dial failed; retrying in %s", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = a.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.log.WithError(err).Warn("audit-consumer: consume loop ended; reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (a *AuditConsumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		a.log.WithError(err).Warn("audit-consumer: set QoS failed")
	}
	if err := declareExchange(ch, a.exchange); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(AuditQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	if err := ch.QueueBind(AuditQueue, "show.*", a.exchange, false, nil); err != nil {
		return fmt.Errorf("queue bind: %w", err)
	}
	msgs, err := ch.Consume(AuditQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := a.handle(d.Body); err != nil {
				a.log.WithError(err).Warn("audit-consumer: handle message failed")
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// handle decodes one event and logs it.
func (a *AuditConsumer) handle(body []byte) error {
	var ev model.SeatEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Type == "" || ev.ShowID == 0 {
		return errors.New("event without type or show")
	}
	fields := logrus.Fields{
		"type":     ev.Type,
		"show_id":  ev.ShowID,
		"seat_ids": ev.SeatIDs,
		"at":       ev.Timestamp.Format(time.RFC3339),
	}
	if ev.UserID != nil {
		fields["user_id"] = *ev.UserID
	}
	if ev.BookingID != nil {
		fields["booking_id"] = *ev.BookingID
	}
	if ev.Reason != "" {
		fields["reason"] = ev.Reason
	}
	a.log.WithFields(fields).Info("seat event")
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
