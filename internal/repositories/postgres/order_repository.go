package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	domain "github.com/sunpeak-solar/api/internal/domain"
	"github.com/sunpeak-solar/api/internal/repositories"
)

type orderRepository struct {
	reg *Registry
}

const orderColumns = `id, contact_id, status, total, order_date, notes, metadata, created_at, updated_at`

const orderItemColumns = `id, order_id, product_id, product_name, quantity, price,
	warehouse_id, is_bundle_component, bundle_product_id, bundle_product_name, created_at, updated_at`

func (o *orderRepository) Insert(ctx context.Context, order domain.Order) error {
	metadata, err := encodeMetadata(order.Metadata)
	if err != nil {
		return repositories.NewInternal("postgres.orders.insert", err)
	}

	_, err = o.reg.conn(ctx).ExecContext(ctx,
		`INSERT INTO orders (id, contact_id, status, total, order_date, notes, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		order.ID, order.ContactID, string(order.Status), order.Total, order.OrderDate,
		order.Notes, metadata, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return repositories.NewInternal("postgres.orders.insert", err)
	}

	for _, item := range order.Items {
		if err := o.InsertItem(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (o *orderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	row := o.reg.conn(ctx).QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)

	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, repositories.NewNotFound("postgres.orders.find", "order "+orderID+" not found")
	}
	if err != nil {
		return domain.Order{}, repositories.NewInternal("postgres.orders.find", err)
	}

	items, err := o.ListItems(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items
	return order, nil
}

func (o *orderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id > $1`
	args := []any{filter.Pagination.PageToken}
	arg := 2
	if filter.ContactID != "" {
		query += ` AND contact_id = $2`
		args = append(args, filter.ContactID)
		arg++
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			placeholders[i] = "$" + strconv.Itoa(arg)
			args = append(args, status)
			arg++
		}
		query += ` AND status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY id`

	limit := filter.Pagination.PageSize
	if limit > 0 {
		query += ` LIMIT $` + strconv.Itoa(arg)
		args = append(args, limit+1)
	}

	rows, err := o.reg.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, repositories.NewInternal("postgres.orders.list", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, repositories.NewInternal("postgres.orders.list", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return domain.CursorPage[domain.Order]{}, repositories.NewInternal("postgres.orders.list", err)
	}

	page := domain.CursorPage[domain.Order]{Items: orders}
	if limit > 0 && len(orders) > limit {
		page.Items = orders[:limit]
		page.NextPageToken = orders[limit-1].ID
	}

	for i := range page.Items {
		items, err := o.ListItems(ctx, page.Items[i].ID)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		page.Items[i].Items = items
	}
	return page, nil
}

func (o *orderRepository) Update(ctx context.Context, order domain.Order) error {
	metadata, err := encodeMetadata(order.Metadata)
	if err != nil {
		return repositories.NewInternal("postgres.orders.update", err)
	}

	res, err := o.reg.conn(ctx).ExecContext(ctx,
		`UPDATE orders SET contact_id = $2, status = $3, total = $4, order_date = $5,
		 notes = $6, metadata = $7, updated_at = $8 WHERE id = $1`,
		order.ID, order.ContactID, string(order.Status), order.Total, order.OrderDate,
		order.Notes, metadata, order.UpdatedAt)
	if err != nil {
		return repositories.NewInternal("postgres.orders.update", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return repositories.NewNotFound("postgres.orders.update", "order "+order.ID+" not found")
	}
	return nil
}

func (o *orderRepository) Delete(ctx context.Context, orderID string) error {
	res, err := o.reg.conn(ctx).ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
	if err != nil {
		return repositories.NewInternal("postgres.orders.delete", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return repositories.NewNotFound("postgres.orders.delete", "order "+orderID+" not found")
	}
	return nil
}

func (o *orderRepository) InsertItem(ctx context.Context, item domain.OrderItem) error {
	_, err := o.reg.conn(ctx).ExecContext(ctx,
		`INSERT INTO order_items (id, order_id, product_id, product_name, quantity, price,
		 warehouse_id, is_bundle_component, bundle_product_id, bundle_product_name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		item.ID, item.OrderID, item.ProductID, item.ProductName, item.Quantity, item.Price,
		item.WarehouseID, item.IsBundleComponent, item.BundleProductID, item.BundleProductName,
		item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return repositories.NewInternal("postgres.orders.insertItem", err)
	}
	return nil
}

func (o *orderRepository) UpdateItem(ctx context.Context, item domain.OrderItem) error {
	res, err := o.reg.conn(ctx).ExecContext(ctx,
		`UPDATE order_items SET quantity = $2, price = $3, warehouse_id = $4, updated_at = $5 WHERE id = $1`,
		item.ID, item.Quantity, item.Price, item.WarehouseID, item.UpdatedAt)
	if err != nil {
		return repositories.NewInternal("postgres.orders.updateItem", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return repositories.NewNotFound("postgres.orders.updateItem", "order item "+item.ID+" not found")
	}
	return nil
}

func (o *orderRepository) ListItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := o.reg.conn(ctx).QueryContext(ctx,
		`SELECT `+orderItemColumns+` FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, repositories.NewInternal("postgres.orders.listItems", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductName,
			&item.Quantity, &item.Price, &item.WarehouseID, &item.IsBundleComponent,
			&item.BundleProductID, &item.BundleProductName, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, repositories.NewInternal("postgres.orders.listItems", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, repositories.NewInternal("postgres.orders.listItems", err)
	}
	return items, nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var order domain.Order
	var status string
	var metadata []byte
	err := row.Scan(&order.ID, &order.ContactID, &status, &order.Total, &order.OrderDate,
		&order.Notes, &metadata, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &order.Metadata); err != nil {
			return domain.Order{}, err
		}
	}
	return order, nil
}

func encodeMetadata(metadata map[string]any) ([]byte, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	return json.Marshal(metadata)
}
