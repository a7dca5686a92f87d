// Package mailer sends booking confirmation emails over SMTP.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wneessen/go-mail"

	"github.com/iliyamo/experience-booking/internal/apperr"
	"github.com/iliyamo/experience-booking/internal/config"
)

// Confirmation is the data a confirmation email is built from.
type Confirmation struct {
	BookingID uint64
	To        string
	Name      string
	Title     string
	Date      string // already formatted for the customer, e.g. "27. december 2025"
}

// Mailer delivers confirmation emails.
type Mailer interface {
	SendBookingConfirmation(ctx context.Context, c Confirmation) error
}

// New returns an SMTP mailer when a host is configured and a logging
// mailer otherwise.
func New(cfg config.MailConfig, log *slog.Logger) Mailer {
	if cfg.Enabled() {
		return NewSMTPMailer(cfg)
	}
	return &LogMailer{log: log}
}

const confirmationSubject = "Tak for din booking hos Understory"

// Compose renders the subject and plain text body of a confirmation.
func Compose(c Confirmation) (subject, body string) {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		name = "ven"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Hej %s,\n\n", name)
	b.WriteString("Tak for din booking hos Understory Marketplace.\n")
	fmt.Fprintf(&b, "Vi glæder os til at se dig til \"%s\".\n", c.Title)
	fmt.Fprintf(&b, "Dato: %s\n\n", c.Date)
	b.WriteString("Du modtager mere information i god tid før oplevelsen.\n\n")
	b.WriteString("De bedste hilsner\nTeam Understory\n")
	return confirmationSubject, b.String()
}

// SMTPMailer sends through an authenticated SMTP relay.
type SMTPMailer struct {
	cfg config.MailConfig
}

func NewSMTPMailer(cfg config.MailConfig) *SMTPMailer { return &SMTPMailer{cfg: cfg} }

func (m *SMTPMailer) SendBookingConfirmation(ctx context.Context, c Confirmation) error {
	msg, err := m.message(c)
	if err != nil {
		return err
	}
	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password))
	}
	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("%w: smtp client: %v", apperr.ErrExternalService, err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("%w: send mail: %v", apperr.ErrExternalService, err)
	}
	return nil
}

func (m *SMTPMailer) message(c Confirmation) (*mail.Msg, error) {
	subject, body := Compose(c)
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", m.cfg.From, err)
	}
	if err := msg.To(c.To); err != nil {
		return nil, fmt.Errorf("%w: invalid recipient %q", apperr.ErrValidation, c.To)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}

// LogMailer logs confirmations instead of sending them.
type LogMailer struct{ log *slog.Logger }

func (m *LogMailer) SendBookingConfirmation(_ context.Context, c Confirmation) error {
	if m.log != nil {
		m.log.Info("confirmation email not sent, SMTP is not configured", "booking_id", c.BookingID, "to", c.To)
	}
	return nil
}
