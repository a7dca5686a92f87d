// Package queue carries booking notifications over RabbitMQ: the
// publisher used by payment reconciliation, the consumer that mails the
// customer, and the notifier that falls back to mailing inline when the
// broker is unavailable.
package queue

import (
	"math"
	"time"

	"github.com/iliyamo/experience-booking/internal/mailer"
	"github.com/iliyamo/experience-booking/internal/model"
)

// BookingConfirmedQueue is the durable queue confirmed bookings are published on.
const BookingConfirmedQueue = "booking.confirmed"

// BookingConfirmedEvent is published once a booking's payment settled. It
// carries everything the consumer needs so it never queries the database.
type BookingConfirmedEvent struct {
	BookingID       uint64 `json:"booking_id"`
	ExperienceID    uint64 `json:"experience_id"`
	ExperienceTitle string `json:"experience_title"`
	BookingDate     string `json:"booking_date"`
	CustomerName    string `json:"customer_name"`
	CustomerEmail   string `json:"customer_email"`
	Participants    int    `json:"participants"`
	TotalAmountOre  int64  `json:"total_amount_ore"`
	PaymentIntentID string `json:"payment_intent_id,omitempty"`
	ConfirmedAt     string `json:"confirmed_at"`
}

// NewBookingConfirmedEvent snapshots b at confirmation time.
func NewBookingConfirmedEvent(b *model.Booking, at time.Time) BookingConfirmedEvent {
	ev := BookingConfirmedEvent{
		BookingID:       b.ID,
		ExperienceID:    b.ExperienceID,
		ExperienceTitle: b.ExperienceTitle,
		BookingDate:     model.FormatDay(b.BookingDate),
		CustomerName:    b.CustomerName,
		CustomerEmail:   b.CustomerEmail,
		Participants:    b.NumberOfParticipants,
		TotalAmountOre:  int64(math.Round(b.TotalPrice * 100)),
		ConfirmedAt:     at.UTC().Format(time.RFC3339),
	}
	if b.PaymentIntentID != nil {
		ev.PaymentIntentID = *b.PaymentIntentID
	}
	return ev
}

// Confirmation converts the event into the email the customer receives.
func (e BookingConfirmedEvent) Confirmation() mailer.Confirmation {
	date := e.BookingDate
	if d, err := model.ParseDay(e.BookingDate); err == nil {
		date = model.FormatDanishDate(d)
	}
	return mailer.Confirmation{
		BookingID: e.BookingID,
		To:        e.CustomerEmail,
		Name:      e.CustomerName,
		Title:     e.ExperienceTitle,
		Date:      date,
	}
}
