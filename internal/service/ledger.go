package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/experience-booking/internal/apperr"
	"github.com/iliyamo/experience-booking/internal/model"
	"github.com/iliyamo/experience-booking/internal/repository"
	"github.com/iliyamo/experience-booking/internal/utils"
)

// BookingStore is the persistence the ledger needs.
type BookingStore interface {
	CreateWithCapacity(ctx context.Context, b *model.Booking, ceiling int) error
	GetByID(ctx context.Context, id uint64) (*model.Booking, error)
	UpdateStatus(ctx context.Context, b *model.Booking, ch repository.StatusChange) error
	SetCheckoutSession(ctx context.Context, id uint64, sessionID string) error
	FindByPaymentIntent(ctx context.Context, paymentIntentID string) (*model.Booking, error)
}

// AvailabilityCache drops cached availability for an experience. The
// response cache in front of the availability endpoint implements it.
type AvailabilityCache interface {
	InvalidateExperience(ctx context.Context, experienceID uint64)
}

// BookingInput is the body of POST /api/bookings.
type BookingInput struct {
	ExperienceID         uint64  `json:"experienceId" validate:"required"`
	BookingDate          string  `json:"bookingDate" validate:"required,datetime=2006-01-02"`
	BookingTime          string  `json:"bookingTime" validate:"omitempty,datetime=15:04"`
	CustomerName         string  `json:"customerName" validate:"required,max=255"`
	CustomerEmail        string  `json:"customerEmail" validate:"required,email,max=255"`
	CustomerPhone        string  `json:"customerPhone" validate:"omitempty,max=32"`
	NumberOfParticipants int     `json:"numberOfParticipants" validate:"required,gt=0"`
	TotalPrice           float64 `json:"totalPrice" validate:"required,gt=0"`
}

// TransitionOptions carries data recorded together with a status change.
type TransitionOptions struct {
	PaymentIntentID string

	// Response records the customer's reminder answer with the change. A
	// booking that already holds an answer is left alone.
	Response    model.ReminderResponse
	RespondedAt time.Time
}

// maxTransitionAttempts bounds the reload-and-retry loop when another
// writer changes the booking between our read and our write.
const maxTransitionAttempts = 3

// LedgerService owns booking creation and every booking status change.
type LedgerService struct {
	bookings     BookingStore
	experiences  ExperienceReader
	availability *AvailabilityService
	cache        AvailabilityCache
	validate     *validator.Validate
	log          *slog.Logger
}

func NewLedgerService(bookings BookingStore, experiences ExperienceReader, availability *AvailabilityService, log *slog.Logger) *LedgerService {
	if log == nil {
		log = slog.Default()
	}
	return &LedgerService{
		bookings:     bookings,
		experiences:  experiences,
		availability: availability,
		validate:     validator.New(),
		log:          log,
	}
}

// WithCache registers the availability cache to invalidate whenever held
// capacity changes.
func (s *LedgerService) WithCache(c AvailabilityCache) *LedgerService {
	s.cache = c
	return s
}

// CreateBooking validates in, checks the experience and date, and stores a
// pending booking while atomically reserving its participants.
func (s *LedgerService) CreateBooking(ctx context.Context, in BookingInput) (*model.Booking, error) {
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.CustomerEmail = strings.TrimSpace(in.CustomerEmail)
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %s", apperr.ErrValidation, describeValidation(err))
	}
	day, err := model.ParseDay(in.BookingDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}

	exp, err := s.experiences.GetByID(ctx, in.ExperienceID)
	if err != nil {
		return nil, err
	}
	if !exp.IsActive() {
		return nil, fmt.Errorf("%w: experience is not open for booking", apperr.ErrValidation)
	}
	if !exp.Availability.Allows(day) || !s.availability.InWindow(day) {
		return nil, errOutsideWindow
	}
	ceiling := s.availability.Campaign().Ceiling
	if in.NumberOfParticipants > ceiling {
		return nil, apperr.ErrCapacityExceeded
	}

	b := &model.Booking{
		ExperienceID:         exp.ID,
		ExperienceTitle:      exp.Title,
		ExperienceLocation:   exp.Location,
		ExperiencePrice:      exp.Price,
		BookingDate:          day,
		CustomerName:         in.CustomerName,
		CustomerEmail:        strings.ToLower(in.CustomerEmail),
		NumberOfParticipants: in.NumberOfParticipants,
		TotalPrice:           math.Round(in.TotalPrice*100) / 100,
	}
	if in.BookingTime != "" {
		t := in.BookingTime
		b.BookingTime = &t
	}
	if phone := utils.NormalizePhone(in.CustomerPhone, s.availability.Campaign().CountryCode); phone != "" {
		b.CustomerPhone = &phone
	}

	if err := s.bookings.CreateWithCapacity(ctx, b, ceiling); err != nil {
		return nil, err
	}
	s.invalidate(ctx, b.ExperienceID)
	s.log.Info("booking created", "booking_id", b.ID, "experience_id", b.ExperienceID,
		"date", model.FormatDay(b.BookingDate), "participants", b.NumberOfParticipants)
	return b, nil
}

// GetBooking returns one booking with the current experience title.
func (s *LedgerService) GetBooking(ctx context.Context, id uint64) (*model.Booking, error) {
	return s.bookings.GetByID(ctx, id)
}

// FindByPaymentIntent resolves the booking a payment intent was recorded on.
func (s *LedgerService) FindByPaymentIntent(ctx context.Context, paymentIntentID string) (*model.Booking, error) {
	return s.bookings.FindByPaymentIntent(ctx, paymentIntentID)
}

// AttachCheckoutSession records the checkout session created for a booking.
func (s *LedgerService) AttachCheckoutSession(ctx context.Context, id uint64, sessionID string) error {
	return s.bookings.SetCheckoutSession(ctx, id, sessionID)
}

// Transition applies ev to booking id. It returns the booking as stored
// afterwards and whether the status changed. Events the current status
// rejects return apperr.ErrInvalidTransition. Events that keep the status
// (a repeated payment confirmation) succeed with changed=false.
func (s *LedgerService) Transition(ctx context.Context, id uint64, ev model.BookingEvent, opts TransitionOptions) (*model.Booking, bool, error) {
	for attempt := 1; attempt <= maxTransitionAttempts; attempt++ {
		b, err := s.bookings.GetByID(ctx, id)
		if err != nil {
			return nil, false, err
		}
		if opts.Response != "" && b.HasResponded() {
			return b, false, nil
		}
		next, err := b.Status.Apply(ev)
		if err != nil {
			return b, false, err
		}
		if next == b.Status {
			return b, false, nil
		}

		ch := repository.StatusChange{From: b.Status, To: next}
		if opts.PaymentIntentID != "" {
			pi := opts.PaymentIntentID
			ch.PaymentIntentID = &pi
		}
		if opts.Response != "" {
			resp := opts.Response
			ch.Response = &resp
			ch.RespondedAt = opts.RespondedAt
		}
		err = s.bookings.UpdateStatus(ctx, b, ch)
		if errors.Is(err, repository.ErrStaleState) {
			s.log.Debug("booking changed concurrently, retrying", "booking_id", id, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, false, err
		}

		prev := b.Status
		b.Status = next
		if ch.PaymentIntentID != nil {
			b.PaymentIntentID = ch.PaymentIntentID
		}
		if ch.Response != nil {
			at := ch.RespondedAt
			b.ReminderResponse = ch.Response
			b.ReminderResponseDate = &at
		}
		if next == model.StatusCancelled {
			s.invalidate(ctx, b.ExperienceID)
		}
		s.log.Info("booking status changed", "booking_id", id, "from", prev, "to", next, "event", ev)
		return b, true, nil
	}
	return nil, false, fmt.Errorf("%w: booking %d kept changing", apperr.ErrConflict, id)
}

// UpdateBookingStatus moves a booking to status through the state machine.
func (s *LedgerService) UpdateBookingStatus(ctx context.Context, id uint64, status model.BookingStatus) (*model.Booking, error) {
	ev, ok := model.EventFor(status)
	if !ok {
		return nil, fmt.Errorf("%w: cannot move a booking to %q", apperr.ErrInvalidTransition, status)
	}
	b, _, err := s.Transition(ctx, id, ev, TransitionOptions{})
	return b, err
}

func (s *LedgerService) invalidate(ctx context.Context, experienceID uint64) {
	if s.cache != nil {
		s.cache.InvalidateExperience(ctx, experienceID)
	}
}

// describeValidation turns validator errors into one readable line.
func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
