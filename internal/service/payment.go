package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/google/uuid"

	"github.com/iliyamo/experience-booking/internal/apperr"
	"github.com/iliyamo/experience-booking/internal/model"
	"github.com/iliyamo/experience-booking/internal/payment"
)

// BookingLedger is the part of the ledger payment reconciliation drives.
type BookingLedger interface {
	GetBooking(ctx context.Context, id uint64) (*model.Booking, error)
	FindByPaymentIntent(ctx context.Context, paymentIntentID string) (*model.Booking, error)
	Transition(ctx context.Context, id uint64, ev model.BookingEvent, opts TransitionOptions) (*model.Booking, bool, error)
	AttachCheckoutSession(ctx context.Context, id uint64, sessionID string) error
}

// Notifier tells the customer that a booking is confirmed.
type Notifier interface {
	BookingConfirmed(ctx context.Context, b *model.Booking) error
}

// EventDeduper short-circuits webhook redeliveries.
type EventDeduper interface {
	Claim(ctx context.Context, id string) bool
	Release(ctx context.Context, id string)
}

// CheckoutGateway opens hosted checkout sessions.
type CheckoutGateway interface {
	CreateCheckoutSession(ctx context.Context, req payment.CheckoutRequest) (payment.CheckoutSession, error)
}

// Outcome says what a webhook delivery did.
type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeNoop      Outcome = "noop"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

// PaymentService reconciles processor events with the booking ledger.
type PaymentService struct {
	ledger   BookingLedger
	notifier Notifier
	dedup    EventDeduper
	gateway  CheckoutGateway
	baseURL  string
	log      *slog.Logger
}

func NewPaymentService(ledger BookingLedger, notifier Notifier, dedup EventDeduper, gateway CheckoutGateway, baseURL string, log *slog.Logger) *PaymentService {
	if log == nil {
		log = slog.Default()
	}
	return &PaymentService{ledger: ledger, notifier: notifier, dedup: dedup, gateway: gateway, baseURL: baseURL, log: log}
}

// HandleEvent applies one webhook event. A nil error means the delivery
// can be acknowledged, including events that were dropped on purpose. An
// error asks the processor to deliver again.
func (s *PaymentService) HandleEvent(ctx context.Context, ev payment.Event) (Outcome, error) {
	log := s.log.With("event_id", ev.ID, "event_type", ev.Type)

	if s.dedup != nil && !s.dedup.Claim(ctx, ev.ID) {
		log.Info("webhook event already processed")
		return OutcomeDuplicate, nil
	}

	var (
		out Outcome
		err error
	)
	switch ev.Type {
	case payment.EventCheckoutCompleted:
		out, err = s.checkoutCompleted(ctx, log, ev)
	case payment.EventCheckoutExpired:
		out, err = s.checkoutExpired(ctx, log, ev)
	case payment.EventChargeRefunded:
		out, err = s.chargeRefunded(ctx, log, ev)
	case payment.EventPaymentIntentSucceeded:
		log.Info("payment intent succeeded", "payment_intent", ev.PaymentIntentID, "amount", ev.Amount)
		out = OutcomeIgnored
	case payment.EventPaymentIntentFailed:
		log.Warn("payment intent failed", "payment_intent", ev.PaymentIntentID, "booking_id", ev.BookingID)
		out = OutcomeIgnored
	default:
		log.Debug("unhandled webhook event type")
		out = OutcomeIgnored
	}

	if err != nil && s.dedup != nil {
		s.dedup.Release(ctx, ev.ID)
	}
	return out, err
}

func (s *PaymentService) checkoutCompleted(ctx context.Context, log *slog.Logger, ev payment.Event) (Outcome, error) {
	id, ok := parseBookingID(ev.BookingID)
	if !ok {
		log.Warn("checkout session without a usable bookingId", "session", ev.ObjectID, "booking_id", ev.BookingID)
		return OutcomeIgnored, nil
	}
	log = log.With("booking_id", id)

	b, err := s.ledger.GetBooking(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		log.Warn("checkout completed for unknown booking")
		return OutcomeIgnored, nil
	}
	if err != nil {
		return "", err
	}
	if ev.PaymentStatus != payment.PaymentStatusPaid {
		log.Info("checkout completed but not paid", "payment_status", ev.PaymentStatus)
		return OutcomeIgnored, nil
	}
	if b.Status == model.StatusConfirmed {
		log.Info("booking already confirmed")
		return OutcomeNoop, nil
	}

	b, changed, err := s.ledger.Transition(ctx, id, model.EventPaymentSucceeded, TransitionOptions{PaymentIntentID: ev.PaymentIntentID})
	if errors.Is(err, apperr.ErrInvalidTransition) {
		// Paid after the booking was cancelled: needs a manual refund.
		log.Error("payment received for a cancelled booking", "payment_intent", ev.PaymentIntentID)
		return OutcomeIgnored, nil
	}
	if err != nil {
		return "", err
	}
	if !changed {
		return OutcomeNoop, nil
	}

	if s.notifier != nil {
		if err := s.notifier.BookingConfirmed(ctx, b); err != nil {
			log.Error("confirmation notification failed", "err", err)
		}
	}
	return OutcomeConfirmed, nil
}

func (s *PaymentService) checkoutExpired(ctx context.Context, log *slog.Logger, ev payment.Event) (Outcome, error) {
	id, ok := parseBookingID(ev.BookingID)
	if !ok {
		log.Warn("expired checkout session without a usable bookingId", "session", ev.ObjectID)
		return OutcomeIgnored, nil
	}
	return s.cancel(ctx, log.With("booking_id", id), id, model.EventCheckoutExpired)
}

func (s *PaymentService) chargeRefunded(ctx context.Context, log *slog.Logger, ev payment.Event) (Outcome, error) {
	if ev.PaymentIntentID == "" {
		log.Warn("refund without payment intent", "charge", ev.ObjectID)
		return OutcomeIgnored, nil
	}
	b, err := s.ledger.FindByPaymentIntent(ctx, ev.PaymentIntentID)
	if errors.Is(err, apperr.ErrNotFound) {
		log.Warn("refund for unknown payment intent", "payment_intent", ev.PaymentIntentID)
		return OutcomeIgnored, nil
	}
	if err != nil {
		return "", err
	}
	return s.cancel(ctx, log.With("booking_id", b.ID), b.ID, model.EventPaymentRefunded)
}

func (s *PaymentService) cancel(ctx context.Context, log *slog.Logger, id uint64, ev model.BookingEvent) (Outcome, error) {
	_, changed, err := s.ledger.Transition(ctx, id, ev, TransitionOptions{})
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		log.Warn("booking not found")
		return OutcomeIgnored, nil
	case errors.Is(err, apperr.ErrInvalidTransition):
		log.Info("booking not cancellable by this event", "err", err)
		return OutcomeNoop, nil
	case err != nil:
		return "", err
	case !changed:
		return OutcomeNoop, nil
	}
	return OutcomeCancelled, nil
}

// CreateCheckout opens a checkout session for a pending booking and
// records the session id on it. The amount is the booking total in øre.
func (s *PaymentService) CreateCheckout(ctx context.Context, bookingID uint64) (payment.CheckoutSession, error) {
	if s.gateway == nil {
		return payment.CheckoutSession{}, fmt.Errorf("%w: payment gateway", apperr.ErrNotConfigured)
	}
	b, err := s.ledger.GetBooking(ctx, bookingID)
	if err != nil {
		return payment.CheckoutSession{}, err
	}
	if b.Status != model.StatusPending {
		return payment.CheckoutSession{}, fmt.Errorf("%w: booking is %s", apperr.ErrInvalidTransition, b.Status)
	}

	sess, err := s.gateway.CreateCheckoutSession(ctx, payment.CheckoutRequest{
		BookingID:      b.ID,
		ExperienceID:   b.ExperienceID,
		Title:          b.ExperienceTitle,
		Description:    fmt.Sprintf("%d deltager(e), %s", b.NumberOfParticipants, model.FormatDanishDate(b.BookingDate)),
		CustomerName:   b.CustomerName,
		CustomerEmail:  b.CustomerEmail,
		AmountMinor:    int64(math.Round(b.TotalPrice * 100)),
		SuccessURL:     s.baseURL + "/booking/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:      s.baseURL + "/booking/cancel?booking_id=" + strconv.FormatUint(b.ID, 10),
		IdempotencyKey: "checkout-" + strconv.FormatUint(b.ID, 10) + "-" + uuid.NewString(),
	})
	if err != nil {
		return payment.CheckoutSession{}, err
	}
	if err := s.ledger.AttachCheckoutSession(ctx, b.ID, sess.ID); err != nil {
		s.log.Error("store checkout session id", "booking_id", b.ID, "session", sess.ID, "err", err)
	}
	return sess, nil
}

func parseBookingID(s string) (uint64, bool) {
	id, err := strconv.ParseUint(s, 10, 64)
	return id, err == nil && id > 0
}
