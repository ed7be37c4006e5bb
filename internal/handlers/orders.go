package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/sunpeak-solar/api/internal/domain"
	"github.com/sunpeak-solar/api/internal/platform/auth"
	"github.com/sunpeak-solar/api/internal/platform/httpx"
	"github.com/sunpeak-solar/api/internal/services"
)

const (
	defaultOrderPageSize     = 20
	maxOrderPageSize         = 100
	maxOrderBodySize         = 64 * 1024
	paymentLinkRateLimit     = 10
	paymentLinkRateWindow    = time.Minute
	errCodeInsufficientStock = "insufficient_inventory"
)

// OrderHandlers exposes the order lifecycle endpoints, including the merge
// coordinator and payment-link generation.
type OrderHandlers struct {
	authn    *auth.Authenticator
	orders   services.OrderService
	payments services.PaymentService
	limiter  rateLimiter
	createMW []func(http.Handler) http.Handler
}

// OrderOption customises OrderHandlers construction.
type OrderOption func(*OrderHandlers)

// WithOrderCreateMiddleware wraps the order-creation route with extra
// middleware, applied after the auth check. Used for the idempotency gate:
// creation is the write whose blind retry duplicates orders.
func WithOrderCreateMiddleware(mw ...func(http.Handler) http.Handler) OrderOption {
	return func(h *OrderHandlers) {
		h.createMW = append(h.createMW, mw...)
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, payments services.PaymentService, opts ...OrderOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:    authn,
		orders:   orders,
		payments: payments,
		limiter:  newSimpleRateLimiter(paymentLinkRateLimit, paymentLinkRateWindow, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	admin := requireRoles(h.authn, auth.RoleAdmin)
	create := append([]func(http.Handler) http.Handler{admin}, h.createMW...)

	r.With(admin).Get("/", h.listOrders)
	r.With(create...).Post("/", h.createOrder)
	r.With(admin).Get("/{orderID}", h.getOrder)
	r.With(admin).Delete("/{orderID}", h.deleteOrder)
	r.With(admin).Post("/{orderID}:status", h.updateStatus)
	r.With(admin).Post("/{orderID}:payment-link", h.createPaymentLink)
}

// MergeRoutes registers the colon-suffixed merge endpoint directly on the API
// prefix. Extra middleware (idempotency) wraps the handler after the auth check.
func (h *OrderHandlers) MergeRoutes(r chi.Router, mw ...func(http.Handler) http.Handler) {
	if r == nil {
		return
	}
	admin := requireRoles(h.authn, auth.RoleAdmin)
	chain := append([]func(http.Handler) http.Handler{admin}, mw...)
	r.With(chain...).Post("/orders:merge", h.mergeOrders)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	pageSize, ok := parsePageSize(query.Get("page_size"), defaultOrderPageSize, maxOrderPageSize)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be an integer", http.StatusBadRequest))
		return
	}

	filter := services.OrderListFilter{
		ContactID: strings.TrimSpace(query.Get("contact_id")),
		Status:    parseFilterValues(query["status"]),
		Pagination: services.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	}

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

type orderItemInputPayload struct {
	ProductID   string  `json:"product_id"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
	WarehouseID string  `json:"warehouse_id"`
}

type createOrderRequest struct {
	ContactID               string                  `json:"contact_id"`
	Status                  string                  `json:"status"`
	OrderDate               string                  `json:"order_date"`
	Notes                   string                  `json:"notes"`
	Items                   []orderItemInputPayload `json:"items"`
	ExpandBundles           *bool                   `json:"expand_bundles"`
	PreserveBundleStructure *bool                   `json:"preserve_bundle_structure"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req createOrderRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	cmd := services.CreateOrderCommand{
		ContactID: strings.TrimSpace(req.ContactID),
		Status:    domain.OrderStatus(strings.TrimSpace(req.Status)),
		Notes:     req.Notes,
		ActorID:   actorFromContext(r),
	}
	if raw := strings.TrimSpace(req.OrderDate); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order_date must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		cmd.OrderDate = &ts
	}
	for _, item := range req.Items {
		cmd.Items = append(cmd.Items, services.OrderItemInput{
			ProductID:   strings.TrimSpace(item.ProductID),
			Quantity:    item.Quantity,
			Price:       item.Price,
			WarehouseID: strings.TrimSpace(item.WarehouseID),
		})
	}
	if req.ExpandBundles != nil || req.PreserveBundleStructure != nil {
		opts := services.DefaultProcessingOptions()
		if req.ExpandBundles != nil {
			opts.ExpandBundles = *req.ExpandBundles
		}
		if req.PreserveBundleStructure != nil {
			opts.PreserveBundleStructure = *req.PreserveBundleStructure
		}
		cmd.Options = &opts
	}

	order, err := h.orders.CreateOrder(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	if err := h.orders.DeleteOrder(ctx, orderID); err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req updateStatusRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	order, err := h.orders.UpdateStatus(ctx, services.OrderStatusCommand{
		OrderID:      orderID,
		TargetStatus: domain.OrderStatus(strings.TrimSpace(req.Status)),
		ActorID:      actorFromContext(r),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) createPaymentLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	actor := actorFromContext(r)
	if h.limiter != nil && !h.limiter.Allow(actor) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many payment link requests", http.StatusTooManyRequests))
		return
	}

	link, err := h.payments.CreateOrderPaymentLink(ctx, services.PaymentLinkCommand{
		OrderID:        orderID,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
		ActorID:        actor,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, paymentLinkResponse{
		OrderID:   link.OrderID,
		URL:       link.URL,
		SessionID: link.SessionID,
		IntentID:  link.IntentID,
		Amount:    link.Amount,
		Currency:  link.Currency,
		ExpiresAt: formatTime(link.ExpiresAt),
	})
}

type mergedOrderDataPayload struct {
	ContactID *string  `json:"contact_id"`
	Status    *string  `json:"status"`
	Total     *float64 `json:"total"`
	OrderDate *string  `json:"order_date"`
	Notes     *string  `json:"notes"`
}

type mergeOrdersRequest struct {
	PrimaryOrderID   string                  `json:"primary_order_id"`
	DuplicateOrderID string                  `json:"duplicate_order_id"`
	Merged           *mergedOrderDataPayload `json:"merged"`
}

type mergeOrdersResponse struct {
	Success bool         `json:"success"`
	Order   orderPayload `json:"order"`
	Message string       `json:"message"`
}

func (h *OrderHandlers) mergeOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req mergeOrdersRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	cmd := services.MergeOrdersCommand{
		PrimaryOrderID:   strings.TrimSpace(req.PrimaryOrderID),
		DuplicateOrderID: strings.TrimSpace(req.DuplicateOrderID),
		ActorID:          actorFromContext(r),
	}
	if req.Merged != nil {
		merged := &services.MergedOrderData{
			Total: req.Merged.Total,
			Notes: req.Merged.Notes,
		}
		if req.Merged.ContactID != nil {
			contactID := strings.TrimSpace(*req.Merged.ContactID)
			merged.ContactID = &contactID
		}
		if req.Merged.Status != nil {
			status := domain.OrderStatus(strings.TrimSpace(*req.Merged.Status))
			merged.Status = &status
		}
		if req.Merged.OrderDate != nil {
			ts, err := time.Parse(time.RFC3339, strings.TrimSpace(*req.Merged.OrderDate))
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "merged.order_date must be a valid RFC3339 timestamp", http.StatusBadRequest))
				return
			}
			merged.OrderDate = &ts
		}
		cmd.Merged = merged
	}

	order, err := h.orders.MergeOrders(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, mergeOrdersResponse{
		Success: true,
		Order:   buildOrderPayload(order),
		Message: "orders merged",
	})
}

func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		}
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return false
	}
	return true
}

type orderListResponse struct {
	Items         []orderPayload `json:"items"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type paymentLinkResponse struct {
	OrderID   string `json:"order_id"`
	URL       string `json:"url"`
	SessionID string `json:"session_id"`
	IntentID  string `json:"intent_id,omitempty"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

type orderPayload struct {
	ID        string             `json:"id"`
	ContactID string             `json:"contact_id"`
	Status    string             `json:"status"`
	Total     float64            `json:"total"`
	OrderDate string             `json:"order_date,omitempty"`
	Notes     string             `json:"notes,omitempty"`
	Metadata  map[string]any     `json:"metadata,omitempty"`
	Items     []orderItemPayload `json:"items"`
	CreatedAt string             `json:"created_at,omitempty"`
	UpdatedAt string             `json:"updated_at,omitempty"`
}

type orderItemPayload struct {
	ID                string  `json:"id"`
	ProductID         string  `json:"product_id"`
	ProductName       string  `json:"product_name,omitempty"`
	Quantity          int     `json:"quantity"`
	Price             float64 `json:"price"`
	WarehouseID       string  `json:"warehouse_id,omitempty"`
	IsBundleComponent bool    `json:"is_bundle_component,omitempty"`
	BundleProductID   string  `json:"bundle_product_id,omitempty"`
	BundleProductName string  `json:"bundle_product_name,omitempty"`
}

func buildOrderPayload(order domain.Order) orderPayload {
	payload := orderPayload{
		ID:        strings.TrimSpace(order.ID),
		ContactID: strings.TrimSpace(order.ContactID),
		Status:    string(order.Status),
		Total:     order.Total,
		OrderDate: formatTime(order.OrderDate),
		Notes:     order.Notes,
		Metadata:  order.Metadata,
		Items:     make([]orderItemPayload, 0, len(order.Items)),
		CreatedAt: formatTime(order.CreatedAt),
		UpdatedAt: formatTime(order.UpdatedAt),
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ID:                strings.TrimSpace(item.ID),
			ProductID:         strings.TrimSpace(item.ProductID),
			ProductName:       strings.TrimSpace(item.ProductName),
			Quantity:          item.Quantity,
			Price:             item.Price,
			WarehouseID:       strings.TrimSpace(item.WarehouseID),
			IsBundleComponent: item.IsBundleComponent,
			BundleProductID:   strings.TrimSpace(item.BundleProductID),
			BundleProductName: strings.TrimSpace(item.BundleProductName),
		})
	}
	return payload
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	var insufficient *services.InsufficientInventoryError
	switch {
	case errors.As(err, &insufficient):
		httpx.WriteError(ctx, w, httpx.NewError(errCodeInsufficientStock, "insufficient inventory to complete the order", http.StatusBadRequest).
			WithDetails(map[string]any{"details": insufficient.Details}))
	case errors.Is(err, services.ErrInventoryInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError(errCodeInsufficientStock, err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderContactNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("contact_not_found", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderWarehouseNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("warehouse_not_found", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrBundleNested):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrInventoryRowNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("inventory_not_found", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPaymentNotConfigured):
		httpx.WriteError(ctx, w, httpx.NewError("payments_not_configured", "payment provider not configured", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", "payment provider rejected the request", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
