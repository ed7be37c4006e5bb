package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/sunpeak-solar/api/internal/domain"
	"github.com/sunpeak-solar/api/internal/payments"
	"github.com/sunpeak-solar/api/internal/repositories"
)

var (
	// ErrPaymentNotConfigured indicates no payment provider credentials were
	// supplied, so payment links cannot be generated.
	ErrPaymentNotConfigured = errors.New("payment: provider not configured")
	// ErrPaymentFailed wraps provider failures during link creation.
	ErrPaymentFailed = errors.New("payment: link creation failed")
)

// PaymentServiceDeps bundles the collaborators required to construct a payment service.
type PaymentServiceDeps struct {
	Orders     repositories.OrderRepository
	Provider   payments.Provider
	SuccessURL string
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	orders     repositories.OrderRepository
	provider   payments.Provider
	successURL string
	clock      func() time.Time
	logger     func(context.Context, string, map[string]any)
}

// NewPaymentService wires dependencies into a concrete PaymentService implementation.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order repository is required")
	}
	if deps.Provider == nil {
		return nil, errors.New("payment service: payment provider is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &paymentService{
		orders:     deps.Orders,
		provider:   deps.Provider,
		successURL: strings.TrimSpace(deps.SuccessURL),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateOrderPaymentLink builds a provider session from the order's lines and
// records the resulting link on the order metadata.
func (s *paymentService) CreateOrderPaymentLink(ctx context.Context, cmd PaymentLinkCommand) (OrderPaymentLink, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return OrderPaymentLink{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return OrderPaymentLink{}, mapPaymentOrderError(err)
	}
	if order.Status == domain.OrderStatusCancelled {
		return OrderPaymentLink{}, fmt.Errorf("%w: order %s is cancelled", ErrOrderInvalidInput, orderID)
	}
	if len(order.Items) == 0 {
		return OrderPaymentLink{}, fmt.Errorf("%w: order %s has no items", ErrOrderInvalidInput, orderID)
	}

	items := make([]payments.LineItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, payments.LineItem{
			Name:       item.ProductName,
			ProductID:  item.ProductID,
			Quantity:   int64(item.Quantity),
			UnitAmount: payments.AmountFromPrice(item.Price),
		})
	}

	link, err := s.provider.CreatePaymentLink(ctx, payments.LinkRequest{
		OrderID:        order.ID,
		SuccessURL:     s.successURL,
		IdempotencyKey: strings.TrimSpace(cmd.IdempotencyKey),
		Items:          items,
		Metadata:       map[string]string{"contact_id": order.ContactID},
	})
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrNotConfigured):
			return OrderPaymentLink{}, ErrPaymentNotConfigured
		case errors.Is(err, payments.ErrInvalidRequest):
			return OrderPaymentLink{}, fmt.Errorf("%w: %s", ErrOrderInvalidInput, err.Error())
		default:
			return OrderPaymentLink{}, fmt.Errorf("%w: %s", ErrPaymentFailed, err.Error())
		}
	}

	now := s.clock()
	if order.Metadata == nil {
		order.Metadata = make(map[string]any, 1)
	}
	order.Metadata["payment_link"] = map[string]any{
		"provider":   link.Provider,
		"session_id": link.SessionID,
		"intent_id":  link.IntentID,
		"url":        link.URL,
		"amount":     link.Amount,
		"currency":   link.Currency,
		"created_at": now.Format(time.RFC3339),
	}
	order.UpdatedAt = now
	if err := s.orders.Update(ctx, order); err != nil {
		return OrderPaymentLink{}, mapPaymentOrderError(err)
	}

	s.logger(ctx, "order.payment_link_created", map[string]any{
		"orderId":   order.ID,
		"sessionId": link.SessionID,
		"amount":    link.Amount,
		"actorId":   cmd.ActorID,
	})

	return OrderPaymentLink{
		OrderID:   order.ID,
		URL:       link.URL,
		SessionID: link.SessionID,
		IntentID:  link.IntentID,
		Amount:    link.Amount,
		Currency:  link.Currency,
		ExpiresAt: link.ExpiresAt,
	}, nil
}

func mapPaymentOrderError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, repoErr.Error())
	}
	return err
}
