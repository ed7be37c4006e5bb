package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/sunpeak-solar/api/internal/domain"
	"github.com/sunpeak-solar/api/internal/services"
)

type stubInventoryService struct {
	rows        map[string][]domain.Inventory
	lowStock    domain.CursorPage[domain.Inventory]
	adjusted    []services.InventoryAdjustCommand
	adjustedRow domain.Inventory
	adjustErr   error
}

func (s *stubInventoryService) ConsumeForOrder(context.Context, []services.InventoryLine) error {
	return nil
}

func (s *stubInventoryService) RestoreForOrder(context.Context, []services.InventoryLine) error {
	return nil
}

func (s *stubInventoryService) ValidateForOrder(context.Context, []services.InventoryLine) (services.ValidationResult, error) {
	return services.ValidationResult{Valid: true}, nil
}

func (s *stubInventoryService) Adjust(_ context.Context, cmd services.InventoryAdjustCommand) (domain.Inventory, error) {
	s.adjusted = append(s.adjusted, cmd)
	if s.adjustErr != nil {
		return domain.Inventory{}, s.adjustErr
	}
	return s.adjustedRow, nil
}

func (s *stubInventoryService) ListForProduct(_ context.Context, productID string) ([]domain.Inventory, error) {
	return s.rows[productID], nil
}

func (s *stubInventoryService) ListLowStock(context.Context, services.InventoryLowStockFilter) (domain.CursorPage[domain.Inventory], error) {
	return s.lowStock, nil
}

func newInventoryRouter(inventory services.InventoryService) chi.Router {
	h := NewInventoryHandlers(nil, inventory)
	return NewRouter(WithInventoryRoutes(h.Routes))
}

func TestInventoryHandlersListLowStock(t *testing.T) {
	inventory := &stubInventoryService{
		lowStock: domain.CursorPage[domain.Inventory]{
			Items: []domain.Inventory{
				{ID: "inv_1", ProductID: "prod_panel", WarehouseID: "wh_1", Quantity: 2, MinQuantity: 5},
			},
		},
	}
	router := newInventoryRouter(inventory)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/inventory/low-stock", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var body struct {
		Items []struct {
			ID          string `json:"id"`
			Quantity    int    `json:"quantity"`
			MinQuantity int    `json:"min_quantity"`
		} `json:"items"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(body.Items) != 1 {
		t.Fatalf("expected 1 row, got %d", len(body.Items))
	}
	if body.Items[0].Quantity != 2 || body.Items[0].MinQuantity != 5 {
		t.Fatalf("unexpected row %+v", body.Items[0])
	}
}

func TestInventoryHandlersAdjust(t *testing.T) {
	inventory := &stubInventoryService{
		adjustedRow: domain.Inventory{ID: "inv_1", ProductID: "prod_panel", WarehouseID: "wh_1", Quantity: 15},
	}
	router := newInventoryRouter(inventory)

	payload := strings.NewReader(`{"delta": 5, "reason": "Cycle count correction"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/inventory/inv_1:adjust", payload)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	if len(inventory.adjusted) != 1 {
		t.Fatalf("expected one adjust call, got %d", len(inventory.adjusted))
	}
	cmd := inventory.adjusted[0]
	if cmd.InventoryID != "inv_1" || cmd.Delta != 5 || cmd.Reason != "Cycle count correction" {
		t.Fatalf("unexpected adjust command %+v", cmd)
	}

	var body struct {
		Inventory struct {
			Quantity int `json:"quantity"`
		} `json:"inventory"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Inventory.Quantity != 15 {
		t.Fatalf("expected quantity 15, got %d", body.Inventory.Quantity)
	}
}

func TestInventoryHandlersAdjustErrors(t *testing.T) {
	cases := []struct {
		name       string
		body       string
		adjustErr  error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing body",
			body:       "",
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
		{
			name:       "invalid json",
			body:       "{delta",
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
		{
			name:       "zero delta rejected by service",
			body:       `{"delta": 0, "reason": "noop"}`,
			adjustErr:  fmt.Errorf("%w: delta must be non-zero", services.ErrInventoryInvalidInput),
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
		{
			name:       "unknown row",
			body:       `{"delta": 1, "reason": "restock"}`,
			adjustErr:  fmt.Errorf("%w: inv_missing", services.ErrInventoryRowNotFound),
			wantStatus: http.StatusNotFound,
			wantCode:   "inventory_not_found",
		},
		{
			name:       "overdraw",
			body:       `{"delta": -100, "reason": "correction"}`,
			adjustErr:  fmt.Errorf("%w: inv_1", services.ErrInventoryInsufficientStock),
			wantStatus: http.StatusConflict,
			wantCode:   "insufficient_stock",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newInventoryRouter(&stubInventoryService{adjustErr: tc.adjustErr})

			req := httptest.NewRequest(http.MethodPost, "/api/v1/inventory/inv_1:adjust", strings.NewReader(tc.body))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tc.wantStatus, rr.Code, rr.Body.String())
			}
			var body map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("failed to parse response: %v", err)
			}
			if body["error"] != tc.wantCode {
				t.Fatalf("expected code %s, got %v", tc.wantCode, body["error"])
			}
		})
	}
}
