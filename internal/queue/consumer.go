package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/experience-booking/internal/mailer"
)

// Consumer reads booking.confirmed, mails the customer and appends one
// audit line per booking to a log file.
type Consumer struct {
	url       string
	mailer    mailer.Mailer
	auditPath string
	log       *slog.Logger

	mu sync.Mutex // serializes audit file writes
}

func NewConsumer(url string, m mailer.Mailer, auditPath string, log *slog.Logger) *Consumer {
	if auditPath == "" {
		auditPath = filepath.Join("logs", "booking.log")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{url: url, mailer: m, auditPath: auditPath, log: log}
}

// Run connects to the broker and consumes until ctx is cancelled,
// reconnecting with exponential backoff when the connection drops.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("booking consumer: dial failed", "err", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("booking consumer: consume loop ended, reconnecting", "err", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn("booking consumer: set QoS failed", "err", err)
	}
	if _, err := ch.QueueDeclare(BookingConfirmedQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(BookingConfirmedQueue, "", false, false, false, false, nil)
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
			if err := c.Handle(ctx, d.Body); err != nil {
				c.log.Error("booking consumer: handle message failed", "err", err)
				_ = d.Nack(false, false) // no requeue, avoids a hot redelivery loop
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Handle processes one message body.
func (c *Consumer) Handle(ctx context.Context, body []byte) error {
	var ev BookingConfirmedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := c.mailer.SendBookingConfirmation(sendCtx, ev.Confirmation()); err != nil {
		return fmt.Errorf("booking %d: %w", ev.BookingID, err)
	}
	if err := c.audit(ev); err != nil {
		// The mail went out; a missing audit line is not worth a redelivery.
		c.log.Error("booking consumer: write audit line", "booking_id", ev.BookingID, "err", err)
	}
	c.log.Info("booking confirmation sent", "booking_id", ev.BookingID)
	return nil
}

func (c *Consumer) audit(ev BookingConfirmedEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(c.auditPath), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	f, err := os.OpenFile(c.auditPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] Booking confirmed | booking_id=%d | experience_id=%d | experience=%q | date=%s | participants=%d | total=%d øre | email=%s\n",
		ev.ConfirmedAt, ev.BookingID, ev.ExperienceID, ev.ExperienceTitle, ev.BookingDate, ev.Participants, ev.TotalAmountOre, ev.CustomerEmail)
	_, err = f.WriteString(line)
	return err
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
