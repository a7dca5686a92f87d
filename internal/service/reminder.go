package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/iliyamo/experience-booking/internal/model"
	"github.com/iliyamo/experience-booking/internal/sms"
	"github.com/iliyamo/experience-booking/internal/utils"
)

// ReminderStore lists and flags bookings due for a reminder.
type ReminderStore interface {
	ListDueReminders(ctx context.Context, day time.Time) ([]model.Booking, error)
	MarkReminderSent(ctx context.Context, id uint64) (bool, error)
}

// SmsLogWriter appends to the SMS audit trail.
type SmsLogWriter interface {
	Create(ctx context.Context, l *model.SmsLog) error
}

// ReminderSummary is the result of one reminder sweep.
type ReminderSummary struct {
	Date   string `json:"date"`
	Total  int    `json:"total"`
	Sent   int    `json:"sent"`
	Failed int    `json:"failed"`
}

// ReminderService sends the day-before reminder SMS for confirmed bookings.
type ReminderService struct {
	bookings    ReminderStore
	sender      sms.Sender
	logs        SmsLogWriter
	location    *time.Location
	countryCode string
	now         func() time.Time
	log         *slog.Logger
}

func NewReminderService(bookings ReminderStore, sender sms.Sender, logs SmsLogWriter, campaign Campaign, log *slog.Logger) *ReminderService {
	loc := campaign.Location
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	return &ReminderService{
		bookings:    bookings,
		sender:      sender,
		logs:        logs,
		location:    loc,
		countryCode: campaign.CountryCode,
		now:         time.Now,
		log:         log,
	}
}

// WithClock replaces the clock used to decide what "tomorrow" is.
func (s *ReminderService) WithClock(now func() time.Time) *ReminderService {
	s.now = now
	return s
}

// SendRemindersForTomorrow messages every confirmed, not yet reminded
// booking dated tomorrow in the campaign timezone. A failure on one
// booking is logged and the sweep moves on; the returned error is only
// set when the due bookings could not be loaded.
func (s *ReminderService) SendRemindersForTomorrow(ctx context.Context) (ReminderSummary, error) {
	tomorrow := model.Day(s.now().In(s.location)).AddDate(0, 0, 1)
	sum := ReminderSummary{Date: model.FormatDay(tomorrow)}

	due, err := s.bookings.ListDueReminders(ctx, tomorrow)
	if err != nil {
		return sum, err
	}
	sum.Total = len(due)
	s.log.Info("reminder sweep started", "date", sum.Date, "due", sum.Total)

	for i := range due {
		if ctx.Err() != nil {
			sum.Failed += sum.Total - i
			break
		}
		if s.remind(ctx, due[i]) {
			sum.Sent++
		} else {
			sum.Failed++
		}
	}
	s.log.Info("reminder sweep finished", "date", sum.Date, "sent", sum.Sent, "failed", sum.Failed)
	return sum, ctx.Err()
}

func (s *ReminderService) remind(ctx context.Context, b model.Booking) bool {
	log := s.log.With("booking_id", b.ID)
	phone := utils.NormalizePhone(b.Phone(), s.countryCode)
	if phone == "" {
		log.Warn("booking has no usable phone number")
		return false
	}

	body := reminderMessage(b)
	res, err := s.sender.Send(ctx, phone, body)
	if err != nil {
		log.Error("reminder sms failed", "to", phone, "err", err)
		return false
	}

	id := b.ID
	entry := &model.SmsLog{
		BookingID:   &id,
		PhoneNumber: phone,
		MessageBody: body,
		Direction:   model.DirectionOutbound,
		Status:      model.SmsStatusSent,
	}
	if res.SID != "" {
		entry.ProviderMessageID = &res.SID
	}
	if err := s.logs.Create(ctx, entry); err != nil {
		log.Error("write sms log", "err", err)
	}
	if ok, err := s.bookings.MarkReminderSent(ctx, b.ID); err != nil {
		log.Error("mark reminder sent", "err", err)
	} else if !ok {
		log.Warn("reminder was already marked sent")
	}
	return true
}
