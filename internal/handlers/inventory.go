package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/sunpeak-solar/api/internal/domain"
	"github.com/sunpeak-solar/api/internal/platform/auth"
	"github.com/sunpeak-solar/api/internal/platform/httpx"
	"github.com/sunpeak-solar/api/internal/services"
)

const (
	defaultLowStockPageSize = 50
	maxLowStockPageSize     = 200
	maxAdjustBodySize       = 4 * 1024
)

// InventoryHandlers exposes stock administration endpoints.
type InventoryHandlers struct {
	authn     *auth.Authenticator
	inventory services.InventoryService
}

// NewInventoryHandlers constructs a new InventoryHandlers instance.
func NewInventoryHandlers(authn *auth.Authenticator, inventory services.InventoryService) *InventoryHandlers {
	return &InventoryHandlers{
		authn:     authn,
		inventory: inventory,
	}
}

// Routes registers the /inventory endpoints.
func (h *InventoryHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	admin := requireRoles(h.authn, auth.RoleAdmin)

	r.With(admin).Get("/low-stock", h.listLowStock)
	r.With(admin).Post("/{inventoryID}:adjust", h.adjust)
}

func (h *InventoryHandlers) listLowStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_service_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	pageSize, ok := parsePageSize(query.Get("page_size"), defaultLowStockPageSize, maxLowStockPageSize)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be an integer", http.StatusBadRequest))
		return
	}

	page, err := h.inventory.ListLowStock(ctx, services.InventoryLowStockFilter{
		Pagination: services.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	})
	if err != nil {
		writeInventoryError(ctx, w, err)
		return
	}

	items := make([]inventoryPayload, 0, len(page.Items))
	for _, row := range page.Items {
		items = append(items, buildInventoryPayload(row))
	}
	writeJSONResponse(w, http.StatusOK, inventoryListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

type adjustInventoryRequest struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

func (h *InventoryHandlers) adjust(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_service_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}

	inventoryID := strings.TrimSpace(chi.URLParam(r, "inventoryID"))
	if inventoryID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "inventory id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxAdjustBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		}
		return
	}

	var req adjustInventoryRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	row, err := h.inventory.Adjust(ctx, services.InventoryAdjustCommand{
		InventoryID: inventoryID,
		Delta:       req.Delta,
		Reason:      strings.TrimSpace(req.Reason),
		ActorID:     actorFromContext(r),
	})
	if err != nil {
		writeInventoryError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, inventoryResponse{Inventory: buildInventoryPayload(row)})
}

type inventoryListResponse struct {
	Items         []inventoryPayload `json:"items"`
	NextPageToken string             `json:"next_page_token,omitempty"`
}

type inventoryResponse struct {
	Inventory inventoryPayload `json:"inventory"`
}

type inventoryPayload struct {
	ID          string `json:"id"`
	ProductID   string `json:"product_id"`
	WarehouseID string `json:"warehouse_id"`
	Quantity    int    `json:"quantity"`
	MinQuantity int    `json:"min_quantity"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

func buildInventoryPayload(row domain.Inventory) inventoryPayload {
	return inventoryPayload{
		ID:          strings.TrimSpace(row.ID),
		ProductID:   strings.TrimSpace(row.ProductID),
		WarehouseID: strings.TrimSpace(row.WarehouseID),
		Quantity:    row.Quantity,
		MinQuantity: row.MinQuantity,
		UpdatedAt:   formatTime(row.UpdatedAt),
	}
}

func writeInventoryError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrInventoryInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrInventoryRowNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("inventory_not_found", "inventory row not found", http.StatusNotFound))
	case errors.Is(err, services.ErrInventoryInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("inventory_error", "failed to process inventory request", http.StatusInternalServerError))
	}
}
