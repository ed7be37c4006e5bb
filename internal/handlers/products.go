package handlers

import (
	"context"
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
	defaultProductPageSize = 50
	maxProductPageSize     = 200
)

// ProductHandlers exposes catalog read endpoints and the per-product
// inventory view.
type ProductHandlers struct {
	authn     *auth.Authenticator
	catalog   services.CatalogService
	inventory services.InventoryService
}

// NewProductHandlers constructs a new ProductHandlers instance.
func NewProductHandlers(authn *auth.Authenticator, catalog services.CatalogService, inventory services.InventoryService) *ProductHandlers {
	return &ProductHandlers{
		authn:     authn,
		catalog:   catalog,
		inventory: inventory,
	}
}

// Routes registers the /products endpoints.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	read := requireRoles(h.authn, auth.RoleViewer, auth.RoleAdmin)
	admin := requireRoles(h.authn, auth.RoleAdmin)

	r.With(read).Get("/", h.listProducts)
	r.With(read).Get("/{productID}", h.getProduct)
	r.With(admin).Get("/{productID}/inventory", h.listProductInventory)
}

func (h *ProductHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	pageSize, ok := parsePageSize(query.Get("page_size"), defaultProductPageSize, maxProductPageSize)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be an integer", http.StatusBadRequest))
		return
	}

	filter := services.ProductListFilter{
		BundlesOnly: strings.EqualFold(strings.TrimSpace(query.Get("bundles_only")), "true"),
		Pagination: services.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	}

	page, err := h.catalog.ListProducts(ctx, filter)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	items := make([]productPayload, 0, len(page.Items))
	for _, product := range page.Items {
		items = append(items, buildProductPayload(product))
	}
	writeJSONResponse(w, http.StatusOK, productListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	detail, err := h.catalog.GetProduct(ctx, productID)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	payload := productDetailResponse{
		Product: buildProductPayload(detail.Product),
	}
	for _, component := range detail.Components {
		payload.Components = append(payload.Components, productComponentPayload{
			Product:  buildProductPayload(component.Product),
			Quantity: component.Quantity,
		})
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *ProductHandlers) listProductInventory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_service_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	rows, err := h.inventory.ListForProduct(ctx, productID)
	if err != nil {
		writeInventoryError(ctx, w, err)
		return
	}

	items := make([]inventoryPayload, 0, len(rows))
	for _, row := range rows {
		items = append(items, buildInventoryPayload(row))
	}
	writeJSONResponse(w, http.StatusOK, inventoryListResponse{Items: items})
}

type productListResponse struct {
	Items         []productPayload `json:"items"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

type productDetailResponse struct {
	Product    productPayload            `json:"product"`
	Components []productComponentPayload `json:"components,omitempty"`
}

type productComponentPayload struct {
	Product  productPayload `json:"product"`
	Quantity int            `json:"quantity"`
}

type productPayload struct {
	ID                       string  `json:"id"`
	Name                     string  `json:"name"`
	SKU                      string  `json:"sku,omitempty"`
	Price                    float64 `json:"price"`
	TaxPercentage            float64 `json:"tax_percentage,omitempty"`
	IsBundle                 bool    `json:"is_bundle"`
	BundlePricingType        string  `json:"bundle_pricing_type,omitempty"`
	BundleDiscountPercentage float64 `json:"bundle_discount_percentage,omitempty"`
	CreatedAt                string  `json:"created_at,omitempty"`
	UpdatedAt                string  `json:"updated_at,omitempty"`
}

func buildProductPayload(product domain.Product) productPayload {
	return productPayload{
		ID:                       strings.TrimSpace(product.ID),
		Name:                     strings.TrimSpace(product.Name),
		SKU:                      strings.TrimSpace(product.SKU),
		Price:                    product.Price,
		TaxPercentage:            product.TaxPercentage,
		IsBundle:                 product.IsBundle,
		BundlePricingType:        string(product.BundlePricingType),
		BundleDiscountPercentage: product.BundleDiscountPercentage,
		CreatedAt:                formatTime(product.CreatedAt),
		UpdatedAt:                formatTime(product.UpdatedAt),
	}
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrBundleNested):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to process catalog request", http.StatusInternalServerError))
	}
}
