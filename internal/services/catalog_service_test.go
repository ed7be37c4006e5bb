package services

import (
	"context"
	"errors"
	"math"
	"testing"

	domain "github.com/sunpeak-solar/api/internal/domain"
	"github.com/sunpeak-solar/api/internal/repositories/memory"
)

func newCatalogFixture(t *testing.T) (*memory.Registry, CatalogService) {
	t.Helper()

	reg := memory.NewRegistry()
	reg.SeedProduct(domain.Product{ID: "prod_panel", Name: "400W Panel", SKU: "PNL-400", Price: 200, TaxPercentage: 8.25})
	reg.SeedProduct(domain.Product{ID: "prod_inverter", Name: "5kW Inverter", SKU: "INV-5K", Price: 500})
	reg.SeedProduct(domain.Product{
		ID:                       "prod_kit",
		Name:                     "Starter Kit",
		SKU:                      "KIT-1",
		Price:                    999,
		IsBundle:                 true,
		BundlePricingType:        domain.BundlePricingCalculated,
		BundleDiscountPercentage: 10,
	})
	reg.SeedComponent(domain.BundleComponent{BundleProductID: "prod_kit", ComponentProductID: "prod_panel", Quantity: 2, SortOrder: 1})
	reg.SeedComponent(domain.BundleComponent{BundleProductID: "prod_kit", ComponentProductID: "prod_inverter", Quantity: 1, SortOrder: 2})

	svc, err := NewCatalogService(CatalogServiceDeps{Products: reg.Products()})
	if err != nil {
		t.Fatalf("NewCatalogService error: %v", err)
	}
	return reg, svc
}

func TestCatalogService_ResolveOrderItems_ExpandsBundle(t *testing.T) {
	_, svc := newCatalogFixture(t)

	resolved, err := svc.ResolveOrderItems(context.Background(), []OrderItemInput{
		{ProductID: "prod_kit", Quantity: 3, WarehouseID: "wh_1"},
	}, DefaultProcessingOptions())
	if err != nil {
		t.Fatalf("ResolveOrderItems error: %v", err)
	}

	if len(resolved) != 2 {
		t.Fatalf("expected 2 component lines, got %d", len(resolved))
	}
	for _, line := range resolved {
		if line.ProductID == "prod_kit" {
			t.Fatalf("expanded lines must not reference the bundle id, got %+v", line)
		}
		if !line.IsBundleComponent {
			t.Fatalf("expected line flagged as bundle component, got %+v", line)
		}
		if line.BundleProductID != "prod_kit" || line.BundleProductName != "Starter Kit" {
			t.Fatalf("expected bundle back-reference preserved, got %+v", line)
		}
		if line.WarehouseID != "wh_1" {
			t.Fatalf("expected warehouse carried onto component line, got %q", line.WarehouseID)
		}
	}
	if resolved[0].ProductID != "prod_panel" || resolved[0].Quantity != 6 {
		t.Fatalf("expected panel quantity 6, got %+v", resolved[0])
	}
	if resolved[1].ProductID != "prod_inverter" || resolved[1].Quantity != 3 {
		t.Fatalf("expected inverter quantity 3, got %+v", resolved[1])
	}
	if resolved[0].Price != 200 || resolved[1].Price != 500 {
		t.Fatalf("expected live component prices, got %v and %v", resolved[0].Price, resolved[1].Price)
	}
}

func TestCatalogService_ResolveOrderItems_WithoutStructure(t *testing.T) {
	_, svc := newCatalogFixture(t)

	resolved, err := svc.ResolveOrderItems(context.Background(), []OrderItemInput{
		{ProductID: "prod_kit", Quantity: 1},
	}, ProcessingOptions{ExpandBundles: true, PreserveBundleStructure: false})
	if err != nil {
		t.Fatalf("ResolveOrderItems error: %v", err)
	}

	for _, line := range resolved {
		if line.BundleProductID != "" || line.BundleProductName != "" {
			t.Fatalf("expected no bundle back-reference, got %+v", line)
		}
		if !line.IsBundleComponent {
			t.Fatalf("component flag must survive structure stripping, got %+v", line)
		}
	}
}

func TestCatalogService_ResolveOrderItems_CalculatedBundlePrice(t *testing.T) {
	_, svc := newCatalogFixture(t)

	resolved, err := svc.ResolveOrderItems(context.Background(), []OrderItemInput{
		{ProductID: "prod_kit", Quantity: 2},
	}, ProcessingOptions{ExpandBundles: false})
	if err != nil {
		t.Fatalf("ResolveOrderItems error: %v", err)
	}

	if len(resolved) != 1 {
		t.Fatalf("expected single bundle line, got %d", len(resolved))
	}
	// (200*2 + 500) * 0.9
	want := 810.0
	if math.Abs(resolved[0].Price-want) > 1e-9 {
		t.Fatalf("expected calculated price %v, got %v", want, resolved[0].Price)
	}
	if resolved[0].Quantity != 2 {
		t.Fatalf("expected quantity 2, got %d", resolved[0].Quantity)
	}
}

func TestCatalogService_ResolveOrderItems_FixedBundlePrice(t *testing.T) {
	reg, svc := newCatalogFixture(t)
	reg.SeedProduct(domain.Product{
		ID:                "prod_fixed",
		Name:              "Fixed Kit",
		Price:             750,
		IsBundle:          true,
		BundlePricingType: domain.BundlePricingFixed,
	})
	reg.SeedComponent(domain.BundleComponent{BundleProductID: "prod_fixed", ComponentProductID: "prod_panel", Quantity: 4})

	resolved, err := svc.ResolveOrderItems(context.Background(), []OrderItemInput{
		{ProductID: "prod_fixed", Quantity: 1},
	}, ProcessingOptions{ExpandBundles: false})
	if err != nil {
		t.Fatalf("ResolveOrderItems error: %v", err)
	}

	if resolved[0].Price != 750 {
		t.Fatalf("fixed bundle must keep its stored price, got %v", resolved[0].Price)
	}
}

func TestCatalogService_ResolveOrderItems_PlainProductKeepsCallerPrice(t *testing.T) {
	_, svc := newCatalogFixture(t)

	resolved, err := svc.ResolveOrderItems(context.Background(), []OrderItemInput{
		{ProductID: "prod_panel", Quantity: 2, Price: 185, WarehouseID: "wh_2"},
	}, DefaultProcessingOptions())
	if err != nil {
		t.Fatalf("ResolveOrderItems error: %v", err)
	}

	line := resolved[0]
	if line.Price != 185 {
		t.Fatalf("expected caller price kept for non-bundle line, got %v", line.Price)
	}
	if line.ProductName != "400W Panel" || line.SKU != "PNL-400" {
		t.Fatalf("expected catalog name and sku on line, got %+v", line)
	}
	if line.IsBundleComponent {
		t.Fatalf("plain product must not be flagged as component")
	}
}

func TestCatalogService_ResolveOrderItems_UnknownProduct(t *testing.T) {
	_, svc := newCatalogFixture(t)

	_, err := svc.ResolveOrderItems(context.Background(), []OrderItemInput{
		{ProductID: "prod_missing", Quantity: 1},
	}, DefaultProcessingOptions())
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestCatalogService_ResolveOrderItems_RejectsNestedBundle(t *testing.T) {
	reg, svc := newCatalogFixture(t)
	reg.SeedProduct(domain.Product{ID: "prod_outer", Name: "Outer", IsBundle: true})
	reg.SeedComponent(domain.BundleComponent{BundleProductID: "prod_outer", ComponentProductID: "prod_kit", Quantity: 1})

	_, err := svc.ResolveOrderItems(context.Background(), []OrderItemInput{
		{ProductID: "prod_outer", Quantity: 1},
	}, DefaultProcessingOptions())
	if !errors.Is(err, ErrBundleNested) {
		t.Fatalf("expected ErrBundleNested, got %v", err)
	}
}

func TestCatalogService_ResolveOrderItems_InvalidInput(t *testing.T) {
	_, svc := newCatalogFixture(t)

	cases := []struct {
		name  string
		items []OrderItemInput
	}{
		{name: "missing product id", items: []OrderItemInput{{Quantity: 1}}},
		{name: "zero quantity", items: []OrderItemInput{{ProductID: "prod_panel"}}},
		{name: "negative quantity", items: []OrderItemInput{{ProductID: "prod_panel", Quantity: -2}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.ResolveOrderItems(context.Background(), tc.items, DefaultProcessingOptions()); !errors.Is(err, ErrCatalogInvalidInput) {
				t.Fatalf("expected ErrCatalogInvalidInput, got %v", err)
			}
		})
	}
}

func TestCatalogService_GetProduct_LoadsComponents(t *testing.T) {
	_, svc := newCatalogFixture(t)

	detail, err := svc.GetProduct(context.Background(), "prod_kit")
	if err != nil {
		t.Fatalf("GetProduct error: %v", err)
	}
	if !detail.Product.IsBundle {
		t.Fatalf("expected bundle product")
	}
	if len(detail.Components) != 2 {
		t.Fatalf("expected 2 components, got %d", len(detail.Components))
	}
	if detail.Components[0].Product.ID != "prod_panel" || detail.Components[0].Quantity != 2 {
		t.Fatalf("unexpected first component: %+v", detail.Components[0])
	}
}
