package model

import (
	"fmt"

	"github.com/iliyamo/experience-booking/internal/apperr"
)

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusConfirmed BookingStatus = "confirmed"
	StatusCancelled BookingStatus = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s BookingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

// BookingEvent is something that happened to a booking and may move it to
// another status.
type BookingEvent string

const (
	EventPaymentSucceeded BookingEvent = "payment_succeeded"
	EventPaymentRefunded  BookingEvent = "payment_refunded"
	EventCheckoutExpired  BookingEvent = "checkout_expired"
	EventCustomerDeclined BookingEvent = "customer_declined"
	EventCancelRequested  BookingEvent = "cancel_requested"
)

// transitions is the booking state machine. A missing entry means the
// event is rejected in that state. confirmed + payment_succeeded maps to
// itself so a redelivered payment event is accepted as a no-op.
var transitions = map[BookingStatus]map[BookingEvent]BookingStatus{
	StatusPending: {
		EventPaymentSucceeded: StatusConfirmed,
		EventPaymentRefunded:  StatusCancelled,
		EventCheckoutExpired:  StatusCancelled,
		EventCancelRequested:  StatusCancelled,
	},
	StatusConfirmed: {
		EventPaymentSucceeded: StatusConfirmed,
		EventPaymentRefunded:  StatusCancelled,
		EventCustomerDeclined: StatusCancelled,
		EventCancelRequested:  StatusCancelled,
	},
	StatusCancelled: {},
}

// Apply returns the status reached by applying ev in state s, or an error
// wrapping apperr.ErrInvalidTransition.
func (s BookingStatus) Apply(ev BookingEvent) (BookingStatus, error) {
	next, ok := transitions[s][ev]
	if !ok {
		return s, fmt.Errorf("%w: %s on %s booking", apperr.ErrInvalidTransition, ev, s)
	}
	return next, nil
}

// CanTransition reports whether any event moves a booking from one status
// to the other.
func CanTransition(from, to BookingStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// EventFor maps a requested target status to the event that reaches it.
// Used by callers that only know where a booking should end up.
func EventFor(target BookingStatus) (BookingEvent, bool) {
	switch target {
	case StatusConfirmed:
		return EventPaymentSucceeded, true
	case StatusCancelled:
		return EventCancelRequested, true
	}
	return "", false
}

// ReminderResponse is the customer's answer to the reminder SMS.
type ReminderResponse string

const (
	ResponseYes ReminderResponse = "yes"
	ResponseNo  ReminderResponse = "no"
)
