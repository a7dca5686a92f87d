package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/iliyamo/experience-booking/internal/apperr"
	"github.com/iliyamo/experience-booking/internal/model"
	"github.com/iliyamo/experience-booking/internal/sms"
	"github.com/iliyamo/experience-booking/internal/utils"
)

// ReplyStore resolves and updates the booking an SMS reply belongs to.
type ReplyStore interface {
	FindLatestConfirmedByPhone(ctx context.Context, phone string) (*model.Booking, error)
	SetReminderResponse(ctx context.Context, id uint64, resp model.ReminderResponse, at time.Time) (bool, error)
}

// BookingTransitioner changes booking status through the state machine.
type BookingTransitioner interface {
	Transition(ctx context.Context, id uint64, ev model.BookingEvent, opts TransitionOptions) (*model.Booking, bool, error)
}

// InboundSMS is one message posted by the SMS provider.
type InboundSMS struct {
	From       string
	Body       string
	MessageSID string
}

// ReplyOutcome says how an inbound message was handled.
type ReplyOutcome string

const (
	ReplyConfirmed    ReplyOutcome = "confirmed"
	ReplyCancelled    ReplyOutcome = "cancelled"
	ReplyUnrecognized ReplyOutcome = "unrecognized"
	ReplyNoBooking    ReplyOutcome = "no_booking"
	ReplyDuplicate    ReplyOutcome = "duplicate"
	ReplyIgnored      ReplyOutcome = "ignored"
)

// ReplyService handles customers' X/Y answers to the reminder SMS.
type ReplyService struct {
	bookings    ReplyStore
	ledger      BookingTransitioner
	sender      sms.Sender
	logs        SmsLogWriter
	countryCode string
	now         func() time.Time
	log         *slog.Logger
}

func NewReplyService(bookings ReplyStore, ledger BookingTransitioner, sender sms.Sender, logs SmsLogWriter, countryCode string, log *slog.Logger) *ReplyService {
	if log == nil {
		log = slog.Default()
	}
	return &ReplyService{
		bookings:    bookings,
		ledger:      ledger,
		sender:      sender,
		logs:        logs,
		countryCode: countryCode,
		now:         time.Now,
		log:         log,
	}
}

// HandleInbound records the message, resolves the sender's latest
// confirmed booking and applies the answer. The first answer wins: later
// messages for an answered booking are logged and otherwise ignored.
func (s *ReplyService) HandleInbound(ctx context.Context, in InboundSMS) (ReplyOutcome, error) {
	phone := utils.NormalizePhone(in.From, s.countryCode)
	if phone == "" {
		s.log.Warn("inbound sms without a sender number", "sid", in.MessageSID)
		return ReplyIgnored, nil
	}
	log := s.log.With("from", phone, "sid", in.MessageSID)

	inbound := &model.SmsLog{
		PhoneNumber: phone,
		MessageBody: strings.TrimSpace(in.Body),
		Direction:   model.DirectionInbound,
		Status:      model.SmsStatusReceived,
	}
	if in.MessageSID != "" {
		sid := in.MessageSID
		inbound.ProviderMessageID = &sid
	}
	if err := s.logs.Create(ctx, inbound); err != nil {
		log.Error("write inbound sms log", "err", err)
	}

	b, err := s.bookings.FindLatestConfirmedByPhone(ctx, phone)
	if errors.Is(err, apperr.ErrNotFound) {
		log.Info("no confirmed booking for sender")
		s.reply(ctx, log, phone, nil, msgBookingNotFound)
		return ReplyNoBooking, nil
	}
	if err != nil {
		return "", err
	}
	log = log.With("booking_id", b.ID)

	if b.HasResponded() {
		log.Info("booking already answered, ignoring reply")
		return ReplyDuplicate, nil
	}

	resp, ok := ParseReply(in.Body)
	if !ok {
		s.reply(ctx, log, phone, &b.ID, msgUnrecognized)
		return ReplyUnrecognized, nil
	}

	now := s.now().UTC()
	if resp == model.ResponseNo {
		// Answer and cancellation are one write: if it fails, the booking
		// stays unanswered and a resent "Y" is handled afresh.
		_, changed, err := s.ledger.Transition(ctx, b.ID, model.EventCustomerDeclined,
			TransitionOptions{Response: resp, RespondedAt: now})
		if errors.Is(err, apperr.ErrInvalidTransition) {
			log.Info("booking no longer confirmed, ignoring reply")
			return ReplyDuplicate, nil
		}
		if err != nil {
			return "", err
		}
		if !changed {
			log.Info("reply raced with another answer, ignoring")
			return ReplyDuplicate, nil
		}
		s.reply(ctx, log, phone, &b.ID, msgCancelled)
		log.Info("booking cancelled by sms reply")
		return ReplyCancelled, nil
	}

	stored, err := s.bookings.SetReminderResponse(ctx, b.ID, resp, now)
	if err != nil {
		return "", err
	}
	if !stored {
		log.Info("reply raced with another answer, ignoring")
		return ReplyDuplicate, nil
	}

	s.reply(ctx, log, phone, &b.ID, confirmedMessage(*b))
	log.Info("booking confirmed by sms reply")
	return ReplyConfirmed, nil
}

// reply sends body and logs it. Failures are logged only: the inbound
// webhook always succeeds.
func (s *ReplyService) reply(ctx context.Context, log *slog.Logger, phone string, bookingID *uint64, body string) {
	res, err := s.sender.Send(ctx, phone, body)
	if err != nil {
		log.Error("reply sms failed", "err", err)
		return
	}
	entry := &model.SmsLog{
		BookingID:   bookingID,
		PhoneNumber: phone,
		MessageBody: body,
		Direction:   model.DirectionOutbound,
		Status:      model.SmsStatusSent,
	}
	if res.SID != "" {
		entry.ProviderMessageID = &res.SID
	}
	if err := s.logs.Create(ctx, entry); err != nil {
		log.Error("write outbound sms log", "err", err)
	}
}
