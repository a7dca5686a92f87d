// Package sms sends text messages through Twilio and verifies Twilio's
// inbound webhook signatures.
package sms

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/iliyamo/experience-booking/internal/apperr"
	"github.com/iliyamo/experience-booking/internal/config"
)

// Result identifies a message accepted by the provider.
type Result struct {
	SID    string
	Status string
}

// Sender delivers one SMS.
type Sender interface {
	Send(ctx context.Context, to, body string) (Result, error)
}

// NewSender returns a Twilio sender when credentials are configured and a
// logging sender otherwise, so local runs exercise the full flow.
func NewSender(cfg config.TwilioConfig, log *slog.Logger) Sender {
	if cfg.Enabled() {
		return NewTwilioSender(cfg)
	}
	return &LogSender{log: log}
}

// TwilioSender sends messages through the Twilio Messages API.
type TwilioSender struct {
	client *twilio.RestClient
	from   string
}

func NewTwilioSender(cfg config.TwilioConfig) *TwilioSender {
	c := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioSender{client: c, from: cfg.FromNumber}
}

func (s *TwilioSender) Send(ctx context.Context, to, body string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(body)

	resp, err := s.client.Api.CreateMessage(params)
	if err != nil {
		return Result{}, fmt.Errorf("%w: twilio: %v", apperr.ErrExternalService, err)
	}
	var r Result
	if resp.Sid != nil {
		r.SID = *resp.Sid
	}
	if resp.Status != nil {
		r.Status = *resp.Status
	}
	return r, nil
}

// LogSender writes messages to the log instead of sending them.
type LogSender struct{ log *slog.Logger }

func NewLogSender(log *slog.Logger) *LogSender { return &LogSender{log: log} }

func (s *LogSender) Send(_ context.Context, to, body string) (Result, error) {
	if s.log != nil {
		s.log.Info("sms not sent, twilio is not configured", "to", to, "body", body)
	}
	return Result{SID: "log-" + uuid.NewString(), Status: "logged"}, nil
}

// SignatureValidator checks the X-Twilio-Signature header of inbound webhooks.
type SignatureValidator struct {
	v   twclient.RequestValidator
	url string
}

// NewSignatureValidator builds a validator for webhooks posted to url.
func NewSignatureValidator(authToken, url string) *SignatureValidator {
	return &SignatureValidator{v: twclient.NewRequestValidator(authToken), url: url}
}

// Valid reports whether signature matches the posted form parameters.
func (s *SignatureValidator) Valid(params map[string]string, signature string) bool {
	if signature == "" {
		return false
	}
	return s.v.Validate(s.url, params, signature)
}
