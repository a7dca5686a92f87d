package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/experience-booking/internal/apperr"
	"github.com/iliyamo/experience-booking/internal/payment"
	"github.com/iliyamo/experience-booking/internal/service"
)

// maxWebhookBody caps the payload read from the processor. Stripe events
// are far below this.
const maxWebhookBody = 64 << 10

// WebhookParser authenticates and decodes a processor delivery.
type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (payment.Event, error)
}

// PaymentProcessor reconciles events and opens checkout sessions.
type PaymentProcessor interface {
	HandleEvent(ctx context.Context, ev payment.Event) (service.Outcome, error)
	CreateCheckout(ctx context.Context, bookingID uint64) (payment.CheckoutSession, error)
}

type PaymentHandler struct {
	Parser   WebhookParser
	Payments PaymentProcessor
	Log      *slog.Logger
}

func NewPaymentHandler(p WebhookParser, svc PaymentProcessor, log *slog.Logger) *PaymentHandler {
	if log == nil {
		log = slog.Default()
	}
	return &PaymentHandler{Parser: p, Payments: svc, Log: log}
}

type checkoutReq struct {
	BookingID uint64 `json:"bookingId"`
}

// CreateCheckoutSession handles POST /api/payment/create-checkout-session.
func (h *PaymentHandler) CreateCheckoutSession(c echo.Context) error {
	var req checkoutReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.BookingID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "bookingId required"})
	}
	// Checkout creation calls out to the processor.
	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	sess, err := h.Payments.CreateCheckout(ctx, req.BookingID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess)
}

// Webhook handles POST /api/payment/webhook. Every authenticated delivery
// is acknowledged, handled or not; only a failure while handling a
// recognized event answers 500 so the processor retries.
func (h *PaymentHandler) Webhook(c echo.Context) error {
	sig := c.Request().Header.Get("Stripe-Signature")
	if sig == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing Stripe-Signature header"})
	}
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return fmt.Errorf("%w: read webhook body", apperr.ErrValidation)
	}

	ev, err := h.Parser.ParseWebhook(payload, sig)
	if err != nil {
		h.Log.Warn("rejected payment webhook", "err", err)
		return err
	}

	outcome, err := h.Payments.HandleEvent(c.Request().Context(), ev)
	if err != nil {
		h.Log.Error("payment webhook failed", "event_id", ev.ID, "type", ev.Type, "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "webhook handling failed"})
	}
	h.Log.Info("payment webhook handled", "event_id", ev.ID, "type", ev.Type, "outcome", outcome)
	return c.JSON(http.StatusOK, echo.Map{"received": true})
}
