package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/experience-booking/internal/apperr"
	"github.com/iliyamo/experience-booking/internal/model"
	"github.com/iliyamo/experience-booking/internal/repository"
)

type ledgerFixture struct {
	svc      *LedgerService
	exps     *mockExperiences
	bookings *mockBookings
	cache    *recordingCache
}

func newLedger() ledgerFixture {
	exps, capacity, bookings := new(mockExperiences), new(mockCapacity), new(mockBookings)
	avail := NewAvailabilityService(exps, capacity, campaign()).
		WithClock(fixedClock(time.Date(2025, 12, 1, 8, 0, 0, 0, time.UTC)))
	cache := &recordingCache{}
	svc := NewLedgerService(bookings, exps, avail, quietLog).WithCache(cache)
	return ledgerFixture{svc: svc, exps: exps, bookings: bookings, cache: cache}
}

func validInput() BookingInput {
	return BookingInput{
		ExperienceID:         3,
		BookingDate:          "2025-12-06",
		CustomerName:         " Mette ",
		CustomerEmail:        "Mette@Example.com",
		CustomerPhone:        "12 34 56 78",
		NumberOfParticipants: 4,
		TotalPrice:           1800,
	}
}

func TestLedger_CreateBooking(t *testing.T) {
	f := newLedger()
	f.exps.On("GetByID", mock.Anything, uint64(3)).Return(activeExperience(3), nil)
	f.bookings.On("CreateWithCapacity", mock.Anything, mock.AnythingOfType("*model.Booking"), 10).
		Run(func(args mock.Arguments) {
			b := args.Get(1).(*model.Booking)
			b.ID = 41
			b.Status = model.StatusPending
		}).Return(nil)

	b, err := f.svc.CreateBooking(context.Background(), validInput())
	require.NoError(t, err)
	assert.Equal(t, uint64(41), b.ID)
	assert.Equal(t, "Mette", b.CustomerName)
	assert.Equal(t, "mette@example.com", b.CustomerEmail)
	assert.Equal(t, "+4512345678", b.Phone())
	assert.Equal(t, "Workshop i keramik", b.ExperienceTitle)
	assert.Equal(t, 450.0, b.ExperiencePrice)
	assert.Equal(t, "2025-12-06", model.FormatDay(b.BookingDate))
	assert.Equal(t, []uint64{3}, f.cache.invalidated)
}

func TestLedger_CreateBooking_Rejections(t *testing.T) {
	inactive := activeExperience(4)
	inactive.Status = model.ExperienceInactive
	single := activeExperience(5)
	single.Availability = model.AvailabilityRule{Type: model.AvailabilitySingle, Date: "2025-12-24"}

	cases := []struct {
		name string
		edit func(*BookingInput)
		want error
	}{
		{"missing email", func(in *BookingInput) { in.CustomerEmail = "" }, apperr.ErrValidation},
		{"bad email", func(in *BookingInput) { in.CustomerEmail = "not-an-email" }, apperr.ErrValidation},
		{"zero participants", func(in *BookingInput) { in.NumberOfParticipants = 0 }, apperr.ErrValidation},
		{"negative price", func(in *BookingInput) { in.TotalPrice = -1 }, apperr.ErrValidation},
		{"bad date", func(in *BookingInput) { in.BookingDate = "06-12-2025" }, apperr.ErrValidation},
		{"bad time", func(in *BookingInput) { in.BookingTime = "25:99" }, apperr.ErrValidation},
		{"unknown experience", func(in *BookingInput) { in.ExperienceID = 9 }, apperr.ErrNotFound},
		{"inactive experience", func(in *BookingInput) { in.ExperienceID = 4 }, apperr.ErrValidation},
		{"date not in rule", func(in *BookingInput) { in.ExperienceID = 5 }, apperr.ErrValidation},
		{"before campaign", func(in *BookingInput) { in.BookingDate = "2025-11-30" }, apperr.ErrValidation},
		{"after window", func(in *BookingInput) { in.BookingDate = "2026-02-01" }, apperr.ErrValidation},
		{"over ceiling", func(in *BookingInput) { in.NumberOfParticipants = 11 }, apperr.ErrCapacityExceeded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newLedger()
			f.exps.On("GetByID", mock.Anything, uint64(3)).Return(activeExperience(3), nil).Maybe()
			f.exps.On("GetByID", mock.Anything, uint64(4)).Return(inactive, nil).Maybe()
			f.exps.On("GetByID", mock.Anything, uint64(5)).Return(single, nil).Maybe()
			f.exps.On("GetByID", mock.Anything, uint64(9)).Return(nil, apperr.ErrNotFound).Maybe()

			in := validInput()
			tc.edit(&in)
			_, err := f.svc.CreateBooking(context.Background(), in)
			assert.ErrorIs(t, err, tc.want)
			f.bookings.AssertNotCalled(t, "CreateWithCapacity", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestLedger_CreateBooking_Full(t *testing.T) {
	f := newLedger()
	f.exps.On("GetByID", mock.Anything, uint64(3)).Return(activeExperience(3), nil)
	f.bookings.On("CreateWithCapacity", mock.Anything, mock.Anything, 10).Return(apperr.ErrCapacityExceeded)

	_, err := f.svc.CreateBooking(context.Background(), validInput())
	assert.ErrorIs(t, err, apperr.ErrCapacityExceeded)
	assert.Empty(t, f.cache.invalidated)
}

func pending(id uint64) *model.Booking {
	b := confirmedBooking(id)
	b.Status = model.StatusPending
	return b
}

func TestLedger_Transition_Confirm(t *testing.T) {
	f := newLedger()
	f.bookings.On("GetByID", mock.Anything, uint64(41)).Return(pending(41), nil)
	intent := "pi_123"
	f.bookings.On("UpdateStatus", mock.Anything, mock.Anything, repository.StatusChange{
		From: model.StatusPending, To: model.StatusConfirmed, PaymentIntentID: &intent,
	}).Return(nil)

	b, changed, err := f.svc.Transition(context.Background(), 41, model.EventPaymentSucceeded, TransitionOptions{PaymentIntentID: "pi_123"})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, model.StatusConfirmed, b.Status)
	require.NotNil(t, b.PaymentIntentID)
	assert.Equal(t, "pi_123", *b.PaymentIntentID)
	assert.Empty(t, f.cache.invalidated)
}

func TestLedger_Transition_RetriesStaleState(t *testing.T) {
	f := newLedger()
	f.bookings.On("GetByID", mock.Anything, uint64(41)).Return(pending(41), nil).Once()
	f.bookings.On("GetByID", mock.Anything, uint64(41)).Return(confirmedBooking(41), nil).Once()
	f.bookings.On("UpdateStatus", mock.Anything, mock.Anything, repository.StatusChange{
		From: model.StatusPending, To: model.StatusCancelled,
	}).Return(repository.ErrStaleState).Once()
	f.bookings.On("UpdateStatus", mock.Anything, mock.Anything, repository.StatusChange{
		From: model.StatusConfirmed, To: model.StatusCancelled,
	}).Return(nil).Once()

	b, changed, err := f.svc.Transition(context.Background(), 41, model.EventCancelRequested, TransitionOptions{})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, model.StatusCancelled, b.Status)
	assert.Equal(t, []uint64{3}, f.cache.invalidated)
	f.bookings.AssertExpectations(t)
}

func TestLedger_Transition_GivesUp(t *testing.T) {
	f := newLedger()
	f.bookings.On("GetByID", mock.Anything, uint64(41)).Return(pending(41), nil)
	f.bookings.On("UpdateStatus", mock.Anything, mock.Anything, mock.Anything).Return(repository.ErrStaleState)

	_, _, err := f.svc.Transition(context.Background(), 41, model.EventCancelRequested, TransitionOptions{})
	assert.ErrorIs(t, err, apperr.ErrConflict)
	f.bookings.AssertNumberOfCalls(t, "UpdateStatus", maxTransitionAttempts)
}

func TestLedger_Transition_NoopAndRejected(t *testing.T) {
	f := newLedger()
	f.bookings.On("GetByID", mock.Anything, uint64(41)).Return(confirmedBooking(41), nil)
	cancelled := confirmedBooking(42)
	cancelled.Status = model.StatusCancelled
	f.bookings.On("GetByID", mock.Anything, uint64(42)).Return(cancelled, nil)

	_, changed, err := f.svc.Transition(context.Background(), 41, model.EventPaymentSucceeded, TransitionOptions{})
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = f.svc.UpdateBookingStatus(context.Background(), 42, model.StatusConfirmed)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	_, err = f.svc.UpdateBookingStatus(context.Background(), 41, model.StatusPending)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	f.bookings.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}
