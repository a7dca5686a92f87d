package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/experience-booking/internal/apperr"
	"github.com/iliyamo/experience-booking/internal/model"
	"github.com/iliyamo/experience-booking/internal/payment"
	"github.com/iliyamo/experience-booking/internal/repository"
)

type paymentFixture struct {
	svc      *PaymentService
	bookings *mockBookings
	notifier *mockNotifier
	gateway  *mockGateway
	dedup    *memDedup
}

func newPayments() paymentFixture {
	f := newLedger()
	n, g := new(mockNotifier), new(mockGateway)
	d := &memDedup{seen: map[string]bool{}}
	svc := NewPaymentService(f.svc, n, d, g, "https://shop.example", quietLog)
	return paymentFixture{svc: svc, bookings: f.bookings, notifier: n, gateway: g, dedup: d}
}

func completed(id, bookingID string) payment.Event {
	return payment.Event{
		ID: id, Type: payment.EventCheckoutCompleted, ObjectID: "cs_1",
		BookingID: bookingID, PaymentStatus: payment.PaymentStatusPaid, PaymentIntentID: "pi_123",
	}
}

func TestPayment_CheckoutCompletedConfirms(t *testing.T) {
	f := newPayments()
	f.bookings.On("GetByID", mock.Anything, uint64(41)).Return(pending(41), nil)
	f.bookings.On("UpdateStatus", mock.Anything, mock.Anything, mock.MatchedBy(func(ch repository.StatusChange) bool {
		return ch.To == model.StatusConfirmed && ch.PaymentIntentID != nil && *ch.PaymentIntentID == "pi_123"
	})).Return(nil)
	f.notifier.On("BookingConfirmed", mock.Anything, mock.AnythingOfType("*model.Booking")).Return(errors.New("smtp down"))

	out, err := f.svc.HandleEvent(context.Background(), completed("evt_1", "41"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, out)
	f.notifier.AssertExpectations(t)

	out, err = f.svc.HandleEvent(context.Background(), completed("evt_1", "41"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, out)
	f.bookings.AssertNumberOfCalls(t, "UpdateStatus", 1)
}

func TestPayment_CheckoutCompletedAlreadyConfirmed(t *testing.T) {
	f := newPayments()
	f.bookings.On("GetByID", mock.Anything, uint64(41)).Return(confirmedBooking(41), nil)

	out, err := f.svc.HandleEvent(context.Background(), completed("evt_1", "41"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, out)
	f.bookings.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
	f.notifier.AssertNotCalled(t, "BookingConfirmed", mock.Anything, mock.Anything)
}

func TestPayment_CheckoutCompletedDropped(t *testing.T) {
	f := newPayments()
	f.bookings.On("GetByID", mock.Anything, uint64(404)).Return(nil, apperr.ErrNotFound)
	f.bookings.On("GetByID", mock.Anything, uint64(41)).Return(pending(41), nil)

	out, err := f.svc.HandleEvent(context.Background(), completed("evt_a", ""))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, out)

	out, err = f.svc.HandleEvent(context.Background(), completed("evt_b", "404"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, out)

	unpaid := completed("evt_c", "41")
	unpaid.PaymentStatus = "unpaid"
	out, err = f.svc.HandleEvent(context.Background(), unpaid)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, out)
	f.bookings.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestPayment_HandlingErrorReleasesClaim(t *testing.T) {
	f := newPayments()
	f.bookings.On("GetByID", mock.Anything, uint64(41)).Return(nil, errors.New("db gone")).Once()

	_, err := f.svc.HandleEvent(context.Background(), completed("evt_1", "41"))
	require.Error(t, err)
	assert.False(t, f.dedup.seen["evt_1"])
}

func TestPayment_ChargeRefundedCancels(t *testing.T) {
	f := newPayments()
	b := confirmedBooking(41)
	intent := "pi_123"
	b.PaymentIntentID = &intent
	f.bookings.On("FindByPaymentIntent", mock.Anything, "pi_123").Return(b, nil)
	f.bookings.On("GetByID", mock.Anything, uint64(41)).Return(confirmedBooking(41), nil)
	f.bookings.On("UpdateStatus", mock.Anything, mock.Anything, repository.StatusChange{
		From: model.StatusConfirmed, To: model.StatusCancelled,
	}).Return(nil)
	f.bookings.On("FindByPaymentIntent", mock.Anything, "pi_unknown").Return(nil, apperr.ErrNotFound)

	out, err := f.svc.HandleEvent(context.Background(), payment.Event{
		ID: "evt_r", Type: payment.EventChargeRefunded, PaymentIntentID: "pi_123",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCancelled, out)

	out, err = f.svc.HandleEvent(context.Background(), payment.Event{
		ID: "evt_s", Type: payment.EventChargeRefunded, PaymentIntentID: "pi_unknown",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, out)
}

func TestPayment_CheckoutExpired(t *testing.T) {
	f := newPayments()
	f.bookings.On("GetByID", mock.Anything, uint64(41)).Return(pending(41), nil)
	f.bookings.On("GetByID", mock.Anything, uint64(42)).Return(confirmedBooking(42), nil)
	f.bookings.On("UpdateStatus", mock.Anything, mock.Anything, repository.StatusChange{
		From: model.StatusPending, To: model.StatusCancelled,
	}).Return(nil)

	out, err := f.svc.HandleEvent(context.Background(), payment.Event{ID: "e1", Type: payment.EventCheckoutExpired, BookingID: "41"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCancelled, out)

	// A paid booking is not cancelled by a stale expiry.
	out, err = f.svc.HandleEvent(context.Background(), payment.Event{ID: "e2", Type: payment.EventCheckoutExpired, BookingID: "42"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, out)
}

func TestPayment_OtherEventsAcknowledged(t *testing.T) {
	f := newPayments()
	for _, typ := range []string{payment.EventPaymentIntentSucceeded, payment.EventPaymentIntentFailed, "customer.created"} {
		out, err := f.svc.HandleEvent(context.Background(), payment.Event{ID: "evt_" + typ, Type: typ})
		require.NoError(t, err)
		assert.Equal(t, OutcomeIgnored, out)
	}
	f.bookings.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestPayment_CreateCheckout(t *testing.T) {
	f := newPayments()
	b := pending(41)
	b.TotalPrice = 899.5
	f.bookings.On("GetByID", mock.Anything, uint64(41)).Return(b, nil)
	f.gateway.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(r payment.CheckoutRequest) bool {
		return r.BookingID == 41 && r.AmountMinor == 89950 && r.CustomerEmail == "mette@example.com" &&
			r.CancelURL == "https://shop.example/booking/cancel?booking_id=41"
	})).Return(payment.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.com/c/cs_1"}, nil)
	f.bookings.On("SetCheckoutSession", mock.Anything, uint64(41), "cs_1").Return(nil)

	sess, err := f.svc.CreateCheckout(context.Background(), 41)
	require.NoError(t, err)
	assert.Equal(t, "cs_1", sess.ID)
	f.bookings.AssertExpectations(t)

	f.bookings.On("GetByID", mock.Anything, uint64(42)).Return(confirmedBooking(42), nil)
	_, err = f.svc.CreateCheckout(context.Background(), 42)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
}
