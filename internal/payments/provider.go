package payments

import (
	"context"
	"errors"
	"math"
	"time"
)

// ErrNotConfigured is returned when payment-link generation is requested but
// no payment provider credentials were supplied.
var ErrNotConfigured = errors.New("payments: provider not configured")

// ErrInvalidRequest indicates the link request is missing required fields.
var ErrInvalidRequest = errors.New("payments: invalid request")

// LineItem is a single order line priced for the payment provider.
// UnitAmount is in the currency's minor unit (cents for USD).
type LineItem struct {
	Name       string
	ProductID  string
	Quantity   int64
	UnitAmount int64
}

// LinkRequest describes the order a payment link should be generated for.
type LinkRequest struct {
	OrderID        string
	Currency       string
	SuccessURL     string
	IdempotencyKey string
	Items          []LineItem
	Metadata       map[string]string
}

// PaymentLink is the provider session handed back to the caller. URL is what
// gets sent to the customer.
type PaymentLink struct {
	Provider  string
	SessionID string
	IntentID  string
	URL       string
	Amount    int64
	Currency  string
	ExpiresAt time.Time
}

// Provider creates hosted payment sessions for orders.
type Provider interface {
	CreatePaymentLink(ctx context.Context, req LinkRequest) (PaymentLink, error)
}

// AmountFromPrice converts a decimal price into minor units, rounding to the
// nearest cent.
func AmountFromPrice(price float64) int64 {
	return int64(math.Round(price * 100))
}

// Disabled is the Provider used when no payment credentials are configured.
// Every call fails with ErrNotConfigured so handlers can answer uniformly.
type Disabled struct{}

// CreatePaymentLink implements Provider.
func (Disabled) CreatePaymentLink(context.Context, LinkRequest) (PaymentLink, error) {
	return PaymentLink{}, ErrNotConfigured
}
