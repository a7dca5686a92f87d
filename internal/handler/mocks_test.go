package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"sort"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/experience-booking/internal/apperr"
	"github.com/iliyamo/experience-booking/internal/middleware"
	"github.com/iliyamo/experience-booking/internal/model"
	"github.com/iliyamo/experience-booking/internal/payment"
	"github.com/iliyamo/experience-booking/internal/service"
)

var quietLog = slog.New(slog.NewTextHandler(io.Discard, nil))

func newEcho() *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = middleware.ErrorHandler(quietLog)
	return e
}

// as stands in for JWTAuth in tests.
func as(partnerID uint64, role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("partner_id", partnerID)
			c.Set("role", role)
			return next(c)
		}
	}
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

// --- service mocks ---

type mockAvailability struct {
	datesFn func(ctx context.Context, id uint64) ([]service.DateAvailability, error)
}

func (m *mockAvailability) AvailableDates(ctx context.Context, id uint64) ([]service.DateAvailability, error) {
	return m.datesFn(ctx, id)
}

type mockLedger struct {
	createFn func(ctx context.Context, in service.BookingInput) (*model.Booking, error)
	getFn    func(ctx context.Context, id uint64) (*model.Booking, error)
	statusFn func(ctx context.Context, id uint64, s model.BookingStatus) (*model.Booking, error)
}

func (m *mockLedger) CreateBooking(ctx context.Context, in service.BookingInput) (*model.Booking, error) {
	return m.createFn(ctx, in)
}
func (m *mockLedger) GetBooking(ctx context.Context, id uint64) (*model.Booking, error) {
	return m.getFn(ctx, id)
}
func (m *mockLedger) UpdateBookingStatus(ctx context.Context, id uint64, s model.BookingStatus) (*model.Booking, error) {
	return m.statusFn(ctx, id, s)
}

type mockParser struct {
	parseFn func(payload []byte, sig string) (payment.Event, error)
}

func (m *mockParser) ParseWebhook(payload []byte, sig string) (payment.Event, error) {
	return m.parseFn(payload, sig)
}

type mockPayments struct {
	handleFn   func(ctx context.Context, ev payment.Event) (service.Outcome, error)
	checkoutFn func(ctx context.Context, id uint64) (payment.CheckoutSession, error)
}

func (m *mockPayments) HandleEvent(ctx context.Context, ev payment.Event) (service.Outcome, error) {
	return m.handleFn(ctx, ev)
}
func (m *mockPayments) CreateCheckout(ctx context.Context, id uint64) (payment.CheckoutSession, error) {
	return m.checkoutFn(ctx, id)
}

type mockReplies struct {
	handleFn func(ctx context.Context, in service.InboundSMS) (service.ReplyOutcome, error)
}

func (m *mockReplies) HandleInbound(ctx context.Context, in service.InboundSMS) (service.ReplyOutcome, error) {
	return m.handleFn(ctx, in)
}

type staticSignature bool

func (s staticSignature) Valid(map[string]string, string) bool { return bool(s) }

// memExperiences is an in-memory ExperienceStore.
type memExperiences struct {
	items  map[uint64]*model.Experience
	nextID uint64
}

func newMemExperiences(es ...model.Experience) *memExperiences {
	m := &memExperiences{items: map[uint64]*model.Experience{}, nextID: 100}
	for i := range es {
		e := es[i]
		m.items[e.ID] = &e
	}
	return m
}

func (m *memExperiences) GetByID(_ context.Context, id uint64) (*model.Experience, error) {
	e, ok := m.items[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memExperiences) GetForPartner(ctx context.Context, id, partnerID uint64) (*model.Experience, error) {
	e, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.PartnerID != partnerID {
		return nil, apperr.ErrForbidden
	}
	return e, nil
}

func (m *memExperiences) ListByPartner(_ context.Context, partnerID uint64) ([]model.Experience, error) {
	var out []model.Experience
	for _, e := range m.items {
		if e.PartnerID == partnerID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *memExperiences) ListActive(_ context.Context, category string) ([]model.Experience, error) {
	var out []model.Experience
	for _, e := range m.items {
		if e.IsActive() && (category == "" || e.Category == category) {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (m *memExperiences) Create(_ context.Context, e *model.Experience) error {
	m.nextID++
	e.ID = m.nextID
	e.CreatedAt = time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
	cp := *e
	m.items[e.ID] = &cp
	return nil
}

func (m *memExperiences) Update(ctx context.Context, e *model.Experience) error {
	if _, err := m.GetForPartner(ctx, e.ID, e.PartnerID); err != nil {
		return err
	}
	cp := *e
	m.items[e.ID] = &cp
	return nil
}

func (m *memExperiences) SetStatus(ctx context.Context, id, partnerID uint64, status string) error {
	if _, err := m.GetForPartner(ctx, id, partnerID); err != nil {
		return err
	}
	m.items[id].Status = status
	return nil
}

func (m *memExperiences) Delete(ctx context.Context, id, partnerID uint64) error {
	if _, err := m.GetForPartner(ctx, id, partnerID); err != nil {
		return err
	}
	delete(m.items, id)
	return nil
}

type mockBookingLister struct {
	listFn func(ctx context.Context, experienceID uint64) ([]model.Booking, error)
}

func (m *mockBookingLister) ListByExperience(ctx context.Context, id uint64) ([]model.Booking, error) {
	return m.listFn(ctx, id)
}

type mockSmsLogs struct {
	listFn func(ctx context.Context, bookingID uint64) ([]model.SmsLog, error)
}

func (m *mockSmsLogs) ListByBooking(ctx context.Context, id uint64) ([]model.SmsLog, error) {
	return m.listFn(ctx, id)
}

type recordingCache struct{ ids []uint64 }

func (r *recordingCache) InvalidateExperience(_ context.Context, id uint64) { r.ids = append(r.ids, id) }

type mockPartners struct {
	byEmailFn func(ctx context.Context, email string) (*model.Partner, error)
	byIDFn    func(ctx context.Context, id uint64) (*model.Partner, error)
}

func (m *mockPartners) GetByEmail(ctx context.Context, email string) (*model.Partner, error) {
	return m.byEmailFn(ctx, email)
}
func (m *mockPartners) GetByID(ctx context.Context, id uint64) (*model.Partner, error) {
	return m.byIDFn(ctx, id)
}

type mockReminders struct {
	runFn func(ctx context.Context) (service.ReminderSummary, error)
}

func (m *mockReminders) SendRemindersForTomorrow(ctx context.Context) (service.ReminderSummary, error) {
	return m.runFn(ctx)
}

func pendingBooking(id uint64) *model.Booking {
	return &model.Booking{
		ID:                   id,
		ExperienceID:         3,
		ExperienceTitle:      "Workshop i keramik",
		BookingDate:          time.Date(2025, 12, 20, 0, 0, 0, 0, time.UTC),
		CustomerName:         "Mette",
		CustomerEmail:        "mette@example.com",
		NumberOfParticipants: 2,
		TotalPrice:           900,
		Status:               model.StatusPending,
	}
}
