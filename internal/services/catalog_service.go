package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/sunpeak-solar/api/internal/domain"
	"github.com/sunpeak-solar/api/internal/repositories"
)

var (
	// ErrCatalogInvalidInput signals the caller provided invalid arguments.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrProductNotFound indicates a referenced product does not exist.
	ErrProductNotFound = errors.New("catalog: product not found")
	// ErrBundleNested indicates a bundle component is itself a bundle, which
	// the resolver does not support.
	ErrBundleNested = errors.New("catalog: nested bundles are not supported")
)

// CatalogServiceDeps bundles the collaborators required to construct a catalog service.
type CatalogServiceDeps struct {
	Products repositories.ProductRepository
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	products repositories.ProductRepository
	logger   func(context.Context, string, map[string]any)
}

// NewCatalogService wires dependencies into a concrete CatalogService implementation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &catalogService{
		products: deps.Products,
		logger:   logger,
	}, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (ProductDetail, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return ProductDetail{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return ProductDetail{}, s.mapRepositoryError(err)
	}

	detail := ProductDetail{Product: product}
	if !product.IsBundle {
		return detail, nil
	}

	components, err := s.products.ListComponents(ctx, product.ID)
	if err != nil {
		return ProductDetail{}, s.mapRepositoryError(err)
	}
	for _, component := range components {
		componentProduct, err := s.products.FindByID(ctx, component.ComponentProductID)
		if err != nil {
			return ProductDetail{}, s.mapRepositoryError(err)
		}
		detail.Components = append(detail.Components, BundleComponentDetail{
			Product:  componentProduct,
			Quantity: component.Quantity,
		})
	}
	return detail, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error) {
	page, err := s.products.List(ctx, repositories.ProductListFilter{
		BundlesOnly: filter.BundlesOnly,
		Pagination: domain.Pagination{
			PageSize:  filter.Pagination.PageSize,
			PageToken: filter.Pagination.PageToken,
		},
	})
	if err != nil {
		return domain.CursorPage[domain.Product]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// ResolveOrderItems expands bundle lines into component lines and derives
// bundle pricing. The transformation is pure: only catalog reads, no writes.
func (s *catalogService) ResolveOrderItems(ctx context.Context, items []OrderItemInput, opts ProcessingOptions) ([]ResolvedOrderItem, error) {
	resolved := make([]ResolvedOrderItem, 0, len(items))

	for _, item := range items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" {
			return nil, fmt.Errorf("%w: line product id is required", ErrCatalogInvalidInput)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for %s must be positive", ErrCatalogInvalidInput, productID)
		}

		product, err := s.products.FindByID(ctx, productID)
		if err != nil {
			return nil, s.mapRepositoryError(err)
		}

		if !product.IsBundle {
			resolved = append(resolved, ResolvedOrderItem{
				ProductID:     product.ID,
				ProductName:   product.Name,
				SKU:           product.SKU,
				Quantity:      item.Quantity,
				Price:         item.Price,
				TaxPercentage: product.TaxPercentage,
				WarehouseID:   strings.TrimSpace(item.WarehouseID),
			})
			continue
		}

		components, err := s.loadComponents(ctx, product)
		if err != nil {
			return nil, err
		}

		if opts.ExpandBundles {
			for _, component := range components {
				line := ResolvedOrderItem{
					ProductID:         component.Product.ID,
					ProductName:       component.Product.Name,
					SKU:               component.Product.SKU,
					Quantity:          component.Quantity * item.Quantity,
					Price:             component.Product.Price,
					TaxPercentage:     component.Product.TaxPercentage,
					WarehouseID:       strings.TrimSpace(item.WarehouseID),
					IsBundleComponent: true,
				}
				if opts.PreserveBundleStructure {
					line.BundleProductID = product.ID
					line.BundleProductName = product.Name
				}
				resolved = append(resolved, line)
			}
			continue
		}

		resolved = append(resolved, ResolvedOrderItem{
			ProductID:     product.ID,
			ProductName:   product.Name,
			SKU:           product.SKU,
			Quantity:      item.Quantity,
			Price:         bundlePrice(product, components),
			TaxPercentage: product.TaxPercentage,
			WarehouseID:   strings.TrimSpace(item.WarehouseID),
		})
	}

	return resolved, nil
}

func (s *catalogService) loadComponents(ctx context.Context, bundle domain.Product) ([]BundleComponentDetail, error) {
	components, err := s.products.ListComponents(ctx, bundle.ID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}

	details := make([]BundleComponentDetail, 0, len(components))
	for _, component := range components {
		componentProduct, err := s.products.FindByID(ctx, component.ComponentProductID)
		if err != nil {
			return nil, s.mapRepositoryError(err)
		}
		if componentProduct.IsBundle {
			return nil, fmt.Errorf("%w: component %s of bundle %s", ErrBundleNested, componentProduct.ID, bundle.ID)
		}
		details = append(details, BundleComponentDetail{
			Product:  componentProduct,
			Quantity: component.Quantity,
		})
	}
	return details, nil
}

// bundlePrice derives the unit price for an unexpanded bundle line: the
// stored price for fixed pricing, otherwise the sum of the live component
// prices (weighted by component quantity) minus the bundle discount.
func bundlePrice(bundle domain.Product, components []BundleComponentDetail) float64 {
	if bundle.BundlePricingType == domain.BundlePricingFixed {
		return bundle.Price
	}

	var sum float64
	for _, component := range components {
		sum += component.Product.Price * float64(component.Quantity)
	}
	return sum * (1 - bundle.BundleDiscountPercentage/100)
}

func (s *catalogService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrProductNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("catalog: repository unavailable: %w", err)
		}
	}
	return err
}
