// Package payment talks to the payment processor: it verifies and decodes
// webhook deliveries, creates checkout sessions and remembers which
// webhook events were already processed.
package payment

// Webhook event types the booking flow reacts to.
const (
	EventCheckoutCompleted     = "checkout.session.completed"
	EventCheckoutExpired       = "checkout.session.expired"
	EventChargeRefunded        = "charge.refunded"
	EventPaymentIntentSucceeded = "payment_intent.succeeded"
	EventPaymentIntentFailed   = "payment_intent.payment_failed"
)

// PaymentStatusPaid is the checkout session payment_status of a settled payment.
const PaymentStatusPaid = "paid"

// Event is a decoded webhook delivery reduced to the fields the booking
// flow reads.
type Event struct {
	ID              string
	Type            string
	ObjectID        string // id of the session, charge or payment intent
	BookingID       string // metadata.bookingId of a checkout session
	PaymentStatus   string // checkout sessions only
	PaymentIntentID string
	Amount          int64 // minor units
}

// CheckoutRequest describes the session to open for a pending booking.
type CheckoutRequest struct {
	BookingID      uint64
	ExperienceID   uint64
	Title          string
	Description    string
	CustomerName   string
	CustomerEmail  string
	AmountMinor    int64
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
}

// CheckoutSession is the processor's answer to a checkout request.
type CheckoutSession struct {
	ID  string `json:"sessionId"`
	URL string `json:"url"`
}
