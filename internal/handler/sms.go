package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/experience-booking/internal/service"
)

// emptyTwiML acknowledges an inbound message without a synchronous reply;
// replies go out through the REST API so they can be logged.
const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// ReplyProcessor applies an inbound SMS to the sender's booking.
type ReplyProcessor interface {
	HandleInbound(ctx context.Context, in service.InboundSMS) (service.ReplyOutcome, error)
}

// SignatureChecker validates the provider's request signature.
type SignatureChecker interface {
	Valid(params map[string]string, signature string) bool
}

type SMSHandler struct {
	Replies   ReplyProcessor
	Signature SignatureChecker // nil disables verification
	Log       *slog.Logger
}

func NewSMSHandler(r ReplyProcessor, sig SignatureChecker, log *slog.Logger) *SMSHandler {
	if log == nil {
		log = slog.Default()
	}
	return &SMSHandler{Replies: r, Signature: sig, Log: log}
}

// Inbound handles POST /api/twilio/webhook. It answers 200 no matter what
// happened so the provider never retries a delivery.
func (h *SMSHandler) Inbound(c echo.Context) error {
	form, err := c.FormParams()
	if err != nil {
		h.Log.Warn("unreadable inbound sms", "err", err)
		return h.ack(c)
	}

	if h.Signature != nil {
		params := make(map[string]string, len(form))
		for k := range form {
			params[k] = form.Get(k)
		}
		if !h.Signature.Valid(params, c.Request().Header.Get("X-Twilio-Signature")) {
			h.Log.Warn("inbound sms with invalid signature dropped", "ip", c.RealIP())
			return h.ack(c)
		}
	}

	in := service.InboundSMS{
		From:       form.Get("From"),
		Body:       form.Get("Body"),
		MessageSID: form.Get("MessageSid"),
	}
	// The provider times out after 15s; leave room to answer.
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	outcome, err := h.Replies.HandleInbound(ctx, in)
	if err != nil {
		h.Log.Error("inbound sms failed", "sid", in.MessageSID, "err", err)
		return h.ack(c)
	}
	h.Log.Info("inbound sms handled", "sid", in.MessageSID, "outcome", outcome)
	return h.ack(c)
}

func (h *SMSHandler) ack(c echo.Context) error {
	return c.Blob(http.StatusOK, echo.MIMETextXMLCharsetUTF8, []byte(emptyTwiML))
}
