package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/sunpeak-solar/api/internal/domain"
	"github.com/sunpeak-solar/api/internal/services"
)

type stubCatalogService struct {
	products map[string]services.ProductDetail
	listPage domain.CursorPage[domain.Product]
	listErr  error
}

func (s *stubCatalogService) GetProduct(_ context.Context, productID string) (services.ProductDetail, error) {
	detail, ok := s.products[productID]
	if !ok {
		return services.ProductDetail{}, fmt.Errorf("%w: %s", services.ErrProductNotFound, productID)
	}
	return detail, nil
}

func (s *stubCatalogService) ListProducts(context.Context, services.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	return s.listPage, s.listErr
}

func (s *stubCatalogService) ResolveOrderItems(context.Context, []services.OrderItemInput, services.ProcessingOptions) ([]services.ResolvedOrderItem, error) {
	return nil, nil
}

func newProductRouter(catalog services.CatalogService, inventory services.InventoryService) chi.Router {
	h := NewProductHandlers(nil, catalog, inventory)
	return NewRouter(WithProductRoutes(h.Routes))
}

func TestProductHandlersListProducts(t *testing.T) {
	catalog := &stubCatalogService{
		listPage: domain.CursorPage[domain.Product]{
			Items: []domain.Product{
				{ID: "prod_panel", Name: "400W Panel", Price: 200},
				{ID: "prod_kit", Name: "Starter Kit", IsBundle: true},
			},
			NextPageToken: "next",
		},
	}
	router := newProductRouter(catalog, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var body struct {
		Items []struct {
			ID       string `json:"id"`
			IsBundle bool   `json:"is_bundle"`
		} `json:"items"`
		NextPageToken string `json:"next_page_token"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(body.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(body.Items))
	}
	if !body.Items[1].IsBundle {
		t.Fatalf("expected second item to be a bundle")
	}
	if body.NextPageToken != "next" {
		t.Fatalf("expected page token next, got %s", body.NextPageToken)
	}
}

func TestProductHandlersGetProductWithComponents(t *testing.T) {
	catalog := &stubCatalogService{
		products: map[string]services.ProductDetail{
			"prod_kit": {
				Product: domain.Product{ID: "prod_kit", Name: "Starter Kit", IsBundle: true},
				Components: []services.BundleComponentDetail{
					{Product: domain.Product{ID: "prod_panel", Name: "400W Panel"}, Quantity: 2},
				},
			},
		},
	}
	router := newProductRouter(catalog, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/prod_kit", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var body struct {
		Product struct {
			ID string `json:"id"`
		} `json:"product"`
		Components []struct {
			Quantity int `json:"quantity"`
			Product  struct {
				ID string `json:"id"`
			} `json:"product"`
		} `json:"components"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Product.ID != "prod_kit" {
		t.Fatalf("unexpected product id %s", body.Product.ID)
	}
	if len(body.Components) != 1 || body.Components[0].Quantity != 2 || body.Components[0].Product.ID != "prod_panel" {
		t.Fatalf("unexpected components %+v", body.Components)
	}
}

func TestProductHandlersGetProductNotFound(t *testing.T) {
	router := newProductRouter(&stubCatalogService{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/prod_missing", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body["error"] != "product_not_found" {
		t.Fatalf("expected product_not_found, got %v", body["error"])
	}
}

func TestProductHandlersListProductInventory(t *testing.T) {
	inventory := &stubInventoryService{
		rows: map[string][]domain.Inventory{
			"prod_panel": {
				{ID: "inv_1", ProductID: "prod_panel", WarehouseID: "wh_1", Quantity: 10, MinQuantity: 3},
				{ID: "inv_2", ProductID: "prod_panel", WarehouseID: "wh_2", Quantity: 4, MinQuantity: 2},
			},
		},
	}
	router := newProductRouter(&stubCatalogService{}, inventory)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/prod_panel/inventory", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var body struct {
		Items []struct {
			ID          string `json:"id"`
			WarehouseID string `json:"warehouse_id"`
			Quantity    int    `json:"quantity"`
		} `json:"items"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(body.Items) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(body.Items))
	}
	if body.Items[0].WarehouseID != "wh_1" || body.Items[0].Quantity != 10 {
		t.Fatalf("unexpected first row %+v", body.Items[0])
	}
}
