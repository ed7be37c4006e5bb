package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/sunpeak-solar/api/internal/domain"
	"github.com/sunpeak-solar/api/internal/payments"
	"github.com/sunpeak-solar/api/internal/repositories/memory"
)

type stubPaymentProvider struct {
	req  payments.LinkRequest
	link payments.PaymentLink
	err  error
}

func (s *stubPaymentProvider) CreatePaymentLink(_ context.Context, req payments.LinkRequest) (payments.PaymentLink, error) {
	s.req = req
	if s.err != nil {
		return payments.PaymentLink{}, s.err
	}
	return s.link, nil
}

func newPaymentFixture(t *testing.T, provider payments.Provider) (*memory.Registry, PaymentService) {
	t.Helper()

	reg := memory.NewRegistry()
	svc, err := NewPaymentService(PaymentServiceDeps{
		Orders:     reg.Orders(),
		Provider:   provider,
		SuccessURL: "https://crm.example.com/orders/paid",
		Clock: func() time.Time {
			return time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)
		},
	})
	if err != nil {
		t.Fatalf("NewPaymentService error: %v", err)
	}
	return reg, svc
}

func seedPayableOrder(t *testing.T, reg *memory.Registry) domain.Order {
	t.Helper()

	order := domain.Order{
		ID:        "ord_1",
		ContactID: "cont_1",
		Status:    domain.OrderStatusScheduled,
		Total:     1100,
		Items: []domain.OrderItem{
			{ID: "itm_1", OrderID: "ord_1", ProductID: "prod_panel", ProductName: "400W Panel", Quantity: 3, Price: 200},
			{ID: "itm_2", OrderID: "ord_1", ProductID: "prod_inverter", ProductName: "Inverter", Quantity: 1, Price: 500},
		},
	}
	if err := reg.Orders().Insert(context.Background(), order); err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

func TestPaymentService_CreateOrderPaymentLink(t *testing.T) {
	provider := &stubPaymentProvider{
		link: payments.PaymentLink{
			Provider:  "stripe",
			SessionID: "cs_1",
			IntentID:  "pi_1",
			URL:       "https://checkout.stripe.com/pay/cs_1",
			Amount:    110000,
			Currency:  "usd",
		},
	}
	reg, svc := newPaymentFixture(t, provider)
	seedPayableOrder(t, reg)

	link, err := svc.CreateOrderPaymentLink(context.Background(), PaymentLinkCommand{OrderID: "ord_1"})
	if err != nil {
		t.Fatalf("CreateOrderPaymentLink error: %v", err)
	}

	if link.URL != "https://checkout.stripe.com/pay/cs_1" {
		t.Errorf("unexpected url %s", link.URL)
	}
	if link.Amount != 110000 {
		t.Errorf("unexpected amount %d", link.Amount)
	}

	if provider.req.OrderID != "ord_1" {
		t.Errorf("unexpected provider order id %s", provider.req.OrderID)
	}
	if provider.req.SuccessURL != "https://crm.example.com/orders/paid" {
		t.Errorf("unexpected success url %s", provider.req.SuccessURL)
	}
	if len(provider.req.Items) != 2 {
		t.Fatalf("expected 2 line items, got %d", len(provider.req.Items))
	}
	if provider.req.Items[0].UnitAmount != 20000 {
		t.Errorf("expected unit amount in cents, got %d", provider.req.Items[0].UnitAmount)
	}

	stored, err := reg.Orders().FindByID(context.Background(), "ord_1")
	if err != nil {
		t.Fatalf("reload order: %v", err)
	}
	meta, ok := stored.Metadata["payment_link"].(map[string]any)
	if !ok {
		t.Fatalf("expected payment_link metadata, got %v", stored.Metadata)
	}
	if meta["session_id"] != "cs_1" {
		t.Errorf("unexpected session id in metadata: %v", meta["session_id"])
	}
	if meta["url"] != "https://checkout.stripe.com/pay/cs_1" {
		t.Errorf("unexpected url in metadata: %v", meta["url"])
	}
}

func TestPaymentService_CreateOrderPaymentLink_OrderNotFound(t *testing.T) {
	_, svc := newPaymentFixture(t, &stubPaymentProvider{})

	if _, err := svc.CreateOrderPaymentLink(context.Background(), PaymentLinkCommand{OrderID: "ord_missing"}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestPaymentService_CreateOrderPaymentLink_InvalidOrders(t *testing.T) {
	provider := &stubPaymentProvider{}
	reg, svc := newPaymentFixture(t, provider)

	if err := reg.Orders().Insert(context.Background(), domain.Order{ID: "ord_empty", ContactID: "cont_1", Status: domain.OrderStatusProposed}); err != nil {
		t.Fatalf("seed order: %v", err)
	}
	if err := reg.Orders().Insert(context.Background(), domain.Order{
		ID: "ord_cancelled", ContactID: "cont_1", Status: domain.OrderStatusCancelled,
		Items: []domain.OrderItem{{ID: "itm_1", OrderID: "ord_cancelled", ProductID: "prod_panel", Quantity: 1, Price: 200}},
	}); err != nil {
		t.Fatalf("seed order: %v", err)
	}

	cases := []struct {
		name    string
		orderID string
	}{
		{name: "missing id", orderID: ""},
		{name: "no items", orderID: "ord_empty"},
		{name: "cancelled", orderID: "ord_cancelled"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.CreateOrderPaymentLink(context.Background(), PaymentLinkCommand{OrderID: tc.orderID}); !errors.Is(err, ErrOrderInvalidInput) {
				t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
			}
		})
	}
}

func TestPaymentService_CreateOrderPaymentLink_ProviderDisabled(t *testing.T) {
	reg, svc := newPaymentFixture(t, payments.Disabled{})
	seedPayableOrder(t, reg)

	if _, err := svc.CreateOrderPaymentLink(context.Background(), PaymentLinkCommand{OrderID: "ord_1"}); !errors.Is(err, ErrPaymentNotConfigured) {
		t.Fatalf("expected ErrPaymentNotConfigured, got %v", err)
	}

	stored, err := reg.Orders().FindByID(context.Background(), "ord_1")
	if err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if _, ok := stored.Metadata["payment_link"]; ok {
		t.Fatalf("expected no payment_link metadata on failure")
	}
}

func TestPaymentService_CreateOrderPaymentLink_ProviderFailure(t *testing.T) {
	provider := &stubPaymentProvider{err: errors.New("stripe down")}
	reg, svc := newPaymentFixture(t, provider)
	seedPayableOrder(t, reg)

	if _, err := svc.CreateOrderPaymentLink(context.Background(), PaymentLinkCommand{OrderID: "ord_1"}); !errors.Is(err, ErrPaymentFailed) {
		t.Fatalf("expected ErrPaymentFailed, got %v", err)
	}
}
