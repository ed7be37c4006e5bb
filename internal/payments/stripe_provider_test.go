package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"
)

type stubSessionAPI struct {
	params  *stripe.CheckoutSessionParams
	session *stripe.CheckoutSession
	err     error
}

func (s *stubSessionAPI) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	s.params = params
	if s.err != nil {
		return nil, s.err
	}
	return s.session, nil
}

func fixedClock() time.Time {
	return time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)
}

func TestStripeProvider_CreatePaymentLink(t *testing.T) {
	stub := &stubSessionAPI{
		session: &stripe.CheckoutSession{
			ID:            "cs_test_1",
			URL:           "https://checkout.stripe.com/pay/cs_test_1",
			PaymentIntent: &stripe.PaymentIntent{ID: "pi_test_1"},
		},
	}
	provider, err := NewStripeProvider(StripeProviderConfig{
		Currency: "USD",
		Sessions: stub,
		Clock:    fixedClock,
	})
	if err != nil {
		t.Fatalf("NewStripeProvider error: %v", err)
	}

	link, err := provider.CreatePaymentLink(context.Background(), LinkRequest{
		OrderID:        "ord_1",
		SuccessURL:     "https://example.com/thanks",
		IdempotencyKey: "merge-retry-1",
		Items: []LineItem{
			{Name: "400W Panel", ProductID: "prod_panel", Quantity: 3, UnitAmount: 20000},
			{Name: "Inverter", ProductID: "prod_inverter", Quantity: 1, UnitAmount: 50000},
		},
	})
	if err != nil {
		t.Fatalf("CreatePaymentLink error: %v", err)
	}

	if link.SessionID != "cs_test_1" {
		t.Errorf("unexpected session id %s", link.SessionID)
	}
	if link.IntentID != "pi_test_1" {
		t.Errorf("unexpected intent id %s", link.IntentID)
	}
	if link.URL != "https://checkout.stripe.com/pay/cs_test_1" {
		t.Errorf("unexpected url %s", link.URL)
	}
	if link.Amount != 110000 {
		t.Errorf("expected total 110000, got %d", link.Amount)
	}
	if link.Currency != "usd" {
		t.Errorf("expected currency usd, got %s", link.Currency)
	}
	if want := fixedClock().Add(24 * time.Hour); !link.ExpiresAt.Equal(want) {
		t.Errorf("expected expiry %s, got %s", want, link.ExpiresAt)
	}

	params := stub.params
	if params == nil {
		t.Fatalf("expected session params to be captured")
	}
	if got := stripe.StringValue(params.ClientReferenceID); got != "ord_1" {
		t.Errorf("unexpected client reference id %s", got)
	}
	if params.Metadata["order_id"] != "ord_1" {
		t.Errorf("expected order id metadata, got %v", params.Metadata)
	}
	if len(params.LineItems) != 2 {
		t.Fatalf("expected 2 line items, got %d", len(params.LineItems))
	}
	first := params.LineItems[0]
	if got := stripe.Int64Value(first.Quantity); got != 3 {
		t.Errorf("expected quantity 3, got %d", got)
	}
	if got := stripe.Int64Value(first.PriceData.UnitAmount); got != 20000 {
		t.Errorf("expected unit amount 20000, got %d", got)
	}
	if got := stripe.StringValue(first.PriceData.ProductData.Name); got != "400W Panel" {
		t.Errorf("unexpected product name %s", got)
	}
}

func TestStripeProvider_CreatePaymentLink_Validation(t *testing.T) {
	provider, err := NewStripeProvider(StripeProviderConfig{Sessions: &stubSessionAPI{}})
	if err != nil {
		t.Fatalf("NewStripeProvider error: %v", err)
	}

	cases := []struct {
		name string
		req  LinkRequest
	}{
		{name: "missing order id", req: LinkRequest{Items: []LineItem{{Name: "Panel", Quantity: 1, UnitAmount: 100}}}},
		{name: "no items", req: LinkRequest{OrderID: "ord_1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := provider.CreatePaymentLink(context.Background(), tc.req); !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}
}

func TestStripeProvider_CreatePaymentLink_SessionError(t *testing.T) {
	stub := &stubSessionAPI{err: errors.New("stripe down")}
	provider, err := NewStripeProvider(StripeProviderConfig{Sessions: stub})
	if err != nil {
		t.Fatalf("NewStripeProvider error: %v", err)
	}

	_, err = provider.CreatePaymentLink(context.Background(), LinkRequest{
		OrderID: "ord_1",
		Items:   []LineItem{{Name: "Panel", Quantity: 1, UnitAmount: 100}},
	})
	if err == nil {
		t.Fatalf("expected error from session API")
	}
}

func TestNewStripeProvider_RequiresKey(t *testing.T) {
	if _, err := NewStripeProvider(StripeProviderConfig{}); err == nil {
		t.Fatalf("expected error without api key or stub")
	}
}

func TestDisabledProvider(t *testing.T) {
	var disabled Disabled
	if _, err := disabled.CreatePaymentLink(context.Background(), LinkRequest{OrderID: "ord_1"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestAmountFromPrice(t *testing.T) {
	cases := []struct {
		price float64
		want  int64
	}{
		{price: 200, want: 20000},
		{price: 199.99, want: 19999},
		{price: 0.015, want: 2},
		{price: 0, want: 0},
	}
	for _, tc := range cases {
		if got := AmountFromPrice(tc.price); got != tc.want {
			t.Errorf("AmountFromPrice(%v) = %d, want %d", tc.price, got, tc.want)
		}
	}
}
