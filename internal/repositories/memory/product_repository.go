package memory

import (
	"context"
	"sort"

	domain "github.com/sunpeak-solar/api/internal/domain"
	"github.com/sunpeak-solar/api/internal/repositories"
)

type productRepository struct {
	reg *Registry
}

func (p *productRepository) FindByID(_ context.Context, productID string) (domain.Product, error) {
	p.reg.mu.RLock()
	defer p.reg.mu.RUnlock()

	product, ok := p.reg.products[productID]
	if !ok {
		return domain.Product{}, repositories.NewNotFound("memory.products.find", "product "+productID+" not found")
	}
	return product, nil
}

func (p *productRepository) List(_ context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	p.reg.mu.RLock()
	defer p.reg.mu.RUnlock()

	products := make([]domain.Product, 0, len(p.reg.products))
	for _, product := range p.reg.products {
		if filter.BundlesOnly && !product.IsBundle {
			continue
		}
		products = append(products, product)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })

	return paginate(products, filter.Pagination, func(product domain.Product) string { return product.ID })
}

func (p *productRepository) ListComponents(_ context.Context, bundleProductID string) ([]domain.BundleComponent, error) {
	p.reg.mu.RLock()
	defer p.reg.mu.RUnlock()

	components := append([]domain.BundleComponent(nil), p.reg.components[bundleProductID]...)
	sort.Slice(components, func(i, j int) bool { return components[i].SortOrder < components[j].SortOrder })
	return components, nil
}

// paginate applies cursor pagination over a pre-sorted slice. The token is
// the key of the last returned element.
func paginate[T any](sorted []T, pager domain.Pagination, keyOf func(T) string) (domain.CursorPage[T], error) {
	start := 0
	if pager.PageToken != "" {
		for i, item := range sorted {
			if keyOf(item) > pager.PageToken {
				start = i
				break
			}
			start = i + 1
		}
	}

	size := pager.PageSize
	if size <= 0 {
		size = len(sorted)
	}

	end := start + size
	if end > len(sorted) {
		end = len(sorted)
	}

	page := domain.CursorPage[T]{Items: append([]T(nil), sorted[start:end]...)}
	if end < len(sorted) && end > start {
		page.NextPageToken = keyOf(sorted[end-1])
	}
	return page, nil
}
