package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey   string
	Currency string
	Backends *stripe.Backends
	Logger   StripeLogger
	Clock    func() time.Time

	// Sessions overrides the checkout session API, used by tests.
	Sessions stripeSessionAPI
}

// StripeProvider implements Provider using Stripe Checkout sessions in
// payment mode. The session URL doubles as the payment link.
type StripeProvider struct {
	sessions stripeSessionAPI
	currency string
	clock    func() time.Time
	logger   StripeLogger
}

// NewStripeProvider constructs a Stripe-backed Provider.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	sessions := cfg.Sessions
	if sessions == nil {
		apiKey := strings.TrimSpace(cfg.APIKey)
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		sc := client.New(apiKey, cfg.Backends)
		sessions = sc.CheckoutSessions
	}

	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "usd"
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		sessions: sessions,
		currency: currency,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreatePaymentLink creates a Stripe Checkout session for the order.
func (p *StripeProvider) CreatePaymentLink(ctx context.Context, req LinkRequest) (PaymentLink, error) {
	if p == nil {
		return PaymentLink{}, errors.New("stripe: provider is nil")
	}
	if strings.TrimSpace(req.OrderID) == "" {
		return PaymentLink{}, fmt.Errorf("%w: order id is required", ErrInvalidRequest)
	}
	if len(req.Items) == 0 {
		return PaymentLink{}, fmt.Errorf("%w: at least one line item is required", ErrInvalidRequest)
	}

	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = p.currency
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.OrderID),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if req.SuccessURL != "" {
		params.SuccessURL = stripe.String(req.SuccessURL)
	}

	metadata := map[string]string{"order_id": req.OrderID}
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	params.Metadata = metadata
	params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
		Metadata: metadata,
	}

	var total int64
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Items))
	for _, item := range req.Items {
		qty := item.Quantity
		if qty < 1 {
			qty = 1
		}
		total += item.UnitAmount * qty
		line := &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(qty),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(item.UnitAmount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
			},
		}
		if item.ProductID != "" {
			line.PriceData.ProductData.Metadata = map[string]string{
				"product_id": item.ProductID,
			}
		}
		lineItems = append(lineItems, line)
	}
	params.LineItems = lineItems

	session, err := p.sessions.New(params)
	if err != nil {
		return PaymentLink{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	intentID := ""
	if session.PaymentIntent != nil {
		intentID = session.PaymentIntent.ID
	}

	expiresAt := p.clock().Add(24 * time.Hour)
	if session.ExpiresAt != 0 {
		expiresAt = time.Unix(session.ExpiresAt, 0).UTC()
	}

	p.logger(ctx, "payments.link_created", map[string]any{
		"orderId":       req.OrderID,
		"sessionId":     session.ID,
		"paymentIntent": intentID,
		"amount":        total,
		"currency":      currency,
	})

	return PaymentLink{
		Provider:  "stripe",
		SessionID: session.ID,
		IntentID:  intentID,
		URL:       session.URL,
		Amount:    total,
		Currency:  currency,
		ExpiresAt: expiresAt,
	}, nil
}
