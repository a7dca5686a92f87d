package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/iliyamo/experience-booking/internal/apperr"
	"github.com/iliyamo/experience-booking/internal/config"
)

// StripeGateway implements webhook decoding and checkout creation on top
// of the Stripe SDK.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
	production    bool
	currency      string
}

// NewStripeGateway builds a gateway. Without a secret key checkout creation
// fails with apperr.ErrNotConfigured; without a webhook secret deliveries
// are decoded unverified outside production and refused in production.
func NewStripeGateway(cfg config.StripeConfig, production bool) *StripeGateway {
	g := &StripeGateway{webhookSecret: cfg.WebhookSecret, production: production, currency: cfg.Currency}
	if g.currency == "" {
		g.currency = string(stripe.CurrencyDKK)
	}
	if cfg.SecretKey != "" {
		g.api = client.New(cfg.SecretKey, nil)
	}
	return g
}

// VerifiesSignatures reports whether deliveries are checked against a secret.
func (g *StripeGateway) VerifiesSignatures() bool { return g.webhookSecret != "" }

// ParseWebhook verifies the Stripe-Signature header against the raw body
// and decodes the event.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (Event, error) {
	if signature == "" {
		return Event{}, fmt.Errorf("%w: missing Stripe-Signature header", apperr.ErrSignatureInvalid)
	}

	var ev stripe.Event
	switch {
	case g.webhookSecret != "":
		var err error
		ev, err = webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
			webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
		if err != nil {
			return Event{}, fmt.Errorf("%w: %v", apperr.ErrSignatureInvalid, err)
		}
	case g.production:
		return Event{}, fmt.Errorf("%w: STRIPE_WEBHOOK_SECRET is not set", apperr.ErrNotConfigured)
	default:
		if err := json.Unmarshal(payload, &ev); err != nil {
			return Event{}, fmt.Errorf("%w: malformed event: %v", apperr.ErrValidation, err)
		}
	}
	return decodeEvent(ev)
}

// decodeEvent pulls the fields we use out of the event's data object.
func decodeEvent(ev stripe.Event) (Event, error) {
	out := Event{ID: ev.ID, Type: string(ev.Type)}
	if ev.Data == nil || len(ev.Data.Raw) == 0 {
		return out, nil
	}

	switch out.Type {
	case EventCheckoutCompleted, EventCheckoutExpired:
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &cs); err != nil {
			return out, fmt.Errorf("%w: checkout session: %v", apperr.ErrValidation, err)
		}
		out.ObjectID = cs.ID
		out.BookingID = cs.Metadata["bookingId"]
		out.PaymentStatus = string(cs.PaymentStatus)
		out.Amount = cs.AmountTotal
		if cs.PaymentIntent != nil {
			out.PaymentIntentID = cs.PaymentIntent.ID
		}
	case EventChargeRefunded:
		var ch stripe.Charge
		if err := json.Unmarshal(ev.Data.Raw, &ch); err != nil {
			return out, fmt.Errorf("%w: charge: %v", apperr.ErrValidation, err)
		}
		out.ObjectID = ch.ID
		out.Amount = ch.AmountRefunded
		if ch.PaymentIntent != nil {
			out.PaymentIntentID = ch.PaymentIntent.ID
		}
	case EventPaymentIntentSucceeded, EventPaymentIntentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return out, fmt.Errorf("%w: payment intent: %v", apperr.ErrValidation, err)
		}
		out.ObjectID = pi.ID
		out.PaymentIntentID = pi.ID
		out.Amount = pi.Amount
		out.BookingID = pi.Metadata["bookingId"]
	}
	return out, nil
}

// CreateCheckoutSession opens a hosted card checkout for one booking.
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	if g.api == nil {
		return CheckoutSession{}, fmt.Errorf("%w: STRIPE_SECRET_KEY is not set", apperr.ErrNotConfigured)
	}
	bookingID := strconv.FormatUint(req.BookingID, 10)
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(g.currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripe.String(req.Title),
					Description: stripe.String(req.Description),
				},
				UnitAmount: stripe.Int64(req.AmountMinor),
			},
			Quantity: stripe.Int64(1),
		}},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{"bookingId": bookingID},
		},
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	params.Context = ctx
	params.AddMetadata("bookingId", bookingID)
	params.AddMetadata("experienceId", strconv.FormatUint(req.ExperienceID, 10))
	params.AddMetadata("customerName", req.CustomerName)
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("%w: create checkout session: %v", apperr.ErrExternalService, err)
	}
	return CheckoutSession{ID: s.ID, URL: s.URL}, nil
}
