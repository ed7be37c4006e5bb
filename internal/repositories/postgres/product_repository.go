package postgres

import (
	"context"
	"database/sql"
	"errors"

	domain "github.com/sunpeak-solar/api/internal/domain"
	"github.com/sunpeak-solar/api/internal/repositories"
)

type productRepository struct {
	reg *Registry
}

const productColumns = `id, name, sku, price, tax_percentage, is_bundle,
	bundle_pricing_type, bundle_discount_percentage, created_at, updated_at`

func (p *productRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	row := p.reg.conn(ctx).QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, productID)

	product, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, repositories.NewNotFound("postgres.products.find", "product "+productID+" not found")
	}
	if err != nil {
		return domain.Product{}, repositories.NewInternal("postgres.products.find", err)
	}
	return product, nil
}

func (p *productRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id > $1`
	args := []any{filter.Pagination.PageToken}
	if filter.BundlesOnly {
		query += ` AND is_bundle`
	}
	query += ` ORDER BY id`

	limit := filter.Pagination.PageSize
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit+1)
	}

	rows, err := p.reg.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, repositories.NewInternal("postgres.products.list", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return domain.CursorPage[domain.Product]{}, repositories.NewInternal("postgres.products.list", err)
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return domain.CursorPage[domain.Product]{}, repositories.NewInternal("postgres.products.list", err)
	}

	page := domain.CursorPage[domain.Product]{Items: products}
	if limit > 0 && len(products) > limit {
		page.Items = products[:limit]
		page.NextPageToken = products[limit-1].ID
	}
	return page, nil
}

func (p *productRepository) ListComponents(ctx context.Context, bundleProductID string) ([]domain.BundleComponent, error) {
	rows, err := p.reg.conn(ctx).QueryContext(ctx,
		`SELECT bundle_product_id, component_product_id, quantity, sort_order
		 FROM bundle_components WHERE bundle_product_id = $1 ORDER BY sort_order, component_product_id`,
		bundleProductID)
	if err != nil {
		return nil, repositories.NewInternal("postgres.products.listComponents", err)
	}
	defer rows.Close()

	var components []domain.BundleComponent
	for rows.Next() {
		var c domain.BundleComponent
		if err := rows.Scan(&c.BundleProductID, &c.ComponentProductID, &c.Quantity, &c.SortOrder); err != nil {
			return nil, repositories.NewInternal("postgres.products.listComponents", err)
		}
		components = append(components, c)
	}
	if err := rows.Err(); err != nil {
		return nil, repositories.NewInternal("postgres.products.listComponents", err)
	}
	return components, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var product domain.Product
	var pricing string
	err := row.Scan(&product.ID, &product.Name, &product.SKU, &product.Price,
		&product.TaxPercentage, &product.IsBundle, &pricing,
		&product.BundleDiscountPercentage, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		return domain.Product{}, err
	}
	product.BundlePricingType = domain.BundlePricingType(pricing)
	return product, nil
}
