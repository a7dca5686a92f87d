package service

import (
	"context"
	"io"
	"log/slog"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/mock"

	"github.com/iliyamo/experience-booking/internal/model"
	"github.com/iliyamo/experience-booking/internal/payment"
	"github.com/iliyamo/experience-booking/internal/repository"
	"github.com/iliyamo/experience-booking/internal/sms"
)

var quietLog = slog.New(slog.NewTextHandler(io.Discard, nil))

type mockExperiences struct{ mock.Mock }

func (m *mockExperiences) GetByID(ctx context.Context, id uint64) (*model.Experience, error) {
	args := m.Called(ctx, id)
	e, _ := args.Get(0).(*model.Experience)
	return e, args.Error(1)
}

type mockCapacity struct{ mock.Mock }

func (m *mockCapacity) Reserved(ctx context.Context, experienceID uint64, day time.Time) (int, error) {
	args := m.Called(ctx, experienceID, day)
	return args.Int(0), args.Error(1)
}

func (m *mockCapacity) ReservedBetween(ctx context.Context, experienceID uint64, from, to time.Time) (map[string]int, error) {
	args := m.Called(ctx, experienceID, from, to)
	r, _ := args.Get(0).(map[string]int)
	return r, args.Error(1)
}

type mockBookings struct{ mock.Mock }

func (m *mockBookings) CreateWithCapacity(ctx context.Context, b *model.Booking, ceiling int) error {
	return m.Called(ctx, b, ceiling).Error(0)
}

func (m *mockBookings) GetByID(ctx context.Context, id uint64) (*model.Booking, error) {
	args := m.Called(ctx, id)
	b, _ := args.Get(0).(*model.Booking)
	return b, args.Error(1)
}

func (m *mockBookings) UpdateStatus(ctx context.Context, b *model.Booking, ch repository.StatusChange) error {
	return m.Called(ctx, b, ch).Error(0)
}

func (m *mockBookings) SetCheckoutSession(ctx context.Context, id uint64, sessionID string) error {
	return m.Called(ctx, id, sessionID).Error(0)
}

func (m *mockBookings) FindByPaymentIntent(ctx context.Context, pi string) (*model.Booking, error) {
	args := m.Called(ctx, pi)
	b, _ := args.Get(0).(*model.Booking)
	return b, args.Error(1)
}

func (m *mockBookings) ListDueReminders(ctx context.Context, day time.Time) ([]model.Booking, error) {
	args := m.Called(ctx, day)
	l, _ := args.Get(0).([]model.Booking)
	return l, args.Error(1)
}

func (m *mockBookings) MarkReminderSent(ctx context.Context, id uint64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockBookings) FindLatestConfirmedByPhone(ctx context.Context, phone string) (*model.Booking, error) {
	args := m.Called(ctx, phone)
	b, _ := args.Get(0).(*model.Booking)
	return b, args.Error(1)
}

func (m *mockBookings) SetReminderResponse(ctx context.Context, id uint64, resp model.ReminderResponse, at time.Time) (bool, error) {
	args := m.Called(ctx, id, resp, at)
	return args.Bool(0), args.Error(1)
}

type mockSender struct{ mock.Mock }

func (m *mockSender) Send(ctx context.Context, to, body string) (sms.Result, error) {
	args := m.Called(ctx, to, body)
	return args.Get(0).(sms.Result), args.Error(1)
}

// memLogs records SMS log writes.
type memLogs struct{ rows []model.SmsLog }

func (l *memLogs) Create(_ context.Context, e *model.SmsLog) error {
	e.ID = uint64(len(l.rows) + 1)
	l.rows = append(l.rows, *e)
	return nil
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) BookingConfirmed(ctx context.Context, b *model.Booking) error {
	return m.Called(ctx, b).Error(0)
}

type mockGateway struct{ mock.Mock }

func (m *mockGateway) CreateCheckoutSession(ctx context.Context, req payment.CheckoutRequest) (payment.CheckoutSession, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(payment.CheckoutSession), args.Error(1)
}

// memDedup is an in-memory EventDeduper.
type memDedup struct{ seen map[string]bool }

func (d *memDedup) Claim(_ context.Context, id string) bool {
	if d.seen[id] {
		return false
	}
	d.seen[id] = true
	return true
}

func (d *memDedup) Release(_ context.Context, id string) { delete(d.seen, id) }

type recordingCache struct{ invalidated []uint64 }

func (c *recordingCache) InvalidateExperience(_ context.Context, id uint64) {
	c.invalidated = append(c.invalidated, id)
}

func campaign() Campaign {
	loc, _ := time.LoadLocation("Europe/Copenhagen")
	return Campaign{
		Start:       time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
		Location:    loc,
		WindowDays:  60,
		Ceiling:     10,
		CountryCode: "+45",
	}
}

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func activeExperience(id uint64) *model.Experience {
	return &model.Experience{
		ID:           id,
		PartnerID:    7,
		Title:        "Workshop i keramik",
		Location:     "København",
		Price:        450,
		Availability: model.AvailabilityRule{Type: model.AvailabilityAlways},
		Status:       model.ExperienceActive,
	}
}

func confirmedBooking(id uint64) *model.Booking {
	phone := "+4512345678"
	return &model.Booking{
		ID:                   id,
		ExperienceID:         3,
		ExperienceTitle:      "Workshop i keramik",
		BookingDate:          time.Date(2025, 12, 27, 0, 0, 0, 0, time.UTC),
		CustomerName:         "Mette",
		CustomerEmail:        "mette@example.com",
		CustomerPhone:        &phone,
		NumberOfParticipants: 2,
		TotalPrice:           900,
		Status:               model.StatusConfirmed,
	}
}
