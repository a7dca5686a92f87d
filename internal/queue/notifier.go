package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/iliyamo/experience-booking/internal/mailer"
	"github.com/iliyamo/experience-booking/internal/model"
)

// EventPublisher publishes confirmation events.
type EventPublisher interface {
	PublishBookingConfirmed(ctx context.Context, ev BookingConfirmedEvent) error
}

// Notifier announces confirmed bookings. With a publisher the event goes
// to the broker and the consumer mails the customer. Without one, or when
// publishing fails, the email is sent from a background goroutine so the
// caller is never held up by SMTP.
type Notifier struct {
	publisher EventPublisher
	mailer    mailer.Mailer
	log       *slog.Logger
	now       func() time.Time

	wg sync.WaitGroup
}

// NewNotifier builds a notifier. publisher may be nil.
func NewNotifier(publisher EventPublisher, m mailer.Mailer, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{publisher: publisher, mailer: m, log: log, now: time.Now}
}

// BookingConfirmed implements the payment flow's notification hook.
func (n *Notifier) BookingConfirmed(ctx context.Context, b *model.Booking) error {
	ev := NewBookingConfirmedEvent(b, n.now())
	if n.publisher != nil {
		pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := n.publisher.PublishBookingConfirmed(pubCtx, ev)
		cancel()
		if err == nil {
			return nil
		}
		n.log.Warn("publish booking.confirmed failed, mailing inline", "booking_id", b.ID, "err", err)
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		mailCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := n.mailer.SendBookingConfirmation(mailCtx, ev.Confirmation()); err != nil {
			n.log.Error("confirmation email failed", "booking_id", ev.BookingID, "err", err)
			return
		}
		n.log.Info("booking confirmation sent", "booking_id", ev.BookingID)
	}()
	return nil
}

// Wait blocks until background emails have finished.
func (n *Notifier) Wait() { n.wg.Wait() }
