package model

import "time"

// Booking is a customer's reservation of participant slots on an
// experience for one date. Title, price and location of the experience are
// copied onto the booking when it is created so later edits to the
// experience do not rewrite history.
//
// Fields:
//
//	ID                   – primary key identifier.
//	ExperienceID         – booked experience.
//	BookingDate          – booked day (midnight UTC).
//	BookingTime          – optional start time "HH:MM".
//	NumberOfParticipants – participants held against the date's capacity.
//	TotalPrice           – amount charged in DKK.
//	Status               – pending, confirmed or cancelled.
//	ReminderSent         – set once the reminder SMS went out; never reset.
//	ReminderResponse     – customer's X/Y answer (nil until answered).
//	PaymentIntentID      – processor payment intent, stored at confirmation.
//	CheckoutSessionID    – processor checkout session, stored at checkout.
type Booking struct {
	ID                   uint64            `json:"id"`
	ExperienceID         uint64            `json:"experience_id"`
	ExperienceTitle      string            `json:"experience_title"`
	ExperienceLocation   string            `json:"experience_location"`
	ExperiencePrice      float64           `json:"experience_price"`
	BookingDate          time.Time         `json:"booking_date"`
	BookingTime          *string           `json:"booking_time,omitempty"`
	CustomerName         string            `json:"customer_name"`
	CustomerEmail        string            `json:"customer_email"`
	CustomerPhone        *string           `json:"customer_phone,omitempty"`
	NumberOfParticipants int               `json:"number_of_participants"`
	TotalPrice           float64           `json:"total_price"`
	Status               BookingStatus     `json:"status"`
	ReminderSent         bool              `json:"reminder_sent"`
	ReminderResponse     *ReminderResponse `json:"reminder_response,omitempty"`
	ReminderResponseDate *time.Time        `json:"reminder_response_date,omitempty"`
	PaymentIntentID      *string           `json:"payment_intent_id,omitempty"`
	CheckoutSessionID    *string           `json:"checkout_session_id,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// Phone returns the customer phone or "" when none was given.
func (b Booking) Phone() string {
	if b.CustomerPhone == nil {
		return ""
	}
	return *b.CustomerPhone
}

// HasResponded reports whether the customer already answered a reminder.
func (b Booking) HasResponded() bool { return b.ReminderResponse != nil }

// CapacityCeiling is the maximum number of participants per experience and date.
const CapacityCeiling = 10
