package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"

	domain "github.com/sunpeak-solar/api/internal/domain"
	"github.com/sunpeak-solar/api/internal/repositories"
)

type inventoryRepository struct {
	reg *Registry
}

const inventoryColumns = `id, product_id, warehouse_id, quantity, min_quantity, updated_at`

func (r *inventoryRepository) FindByID(ctx context.Context, inventoryID string) (domain.Inventory, error) {
	row := r.reg.conn(ctx).QueryRowContext(ctx,
		`SELECT `+inventoryColumns+` FROM inventory WHERE id = $1`, inventoryID)

	inv, err := scanInventory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Inventory{}, repositories.NewInventoryError(repositories.InventoryErrorRowNotFound,
			"inventory row "+inventoryID+" not found", nil)
	}
	if err != nil {
		return domain.Inventory{}, repositories.NewInternal("postgres.inventory.find", err)
	}
	return inv, nil
}

func (r *inventoryRepository) FindByProductAndWarehouse(ctx context.Context, productID, warehouseID string) (domain.Inventory, error) {
	row := r.reg.conn(ctx).QueryRowContext(ctx,
		`SELECT `+inventoryColumns+` FROM inventory WHERE product_id = $1 AND warehouse_id = $2`,
		productID, warehouseID)

	inv, err := scanInventory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Inventory{}, repositories.NewInventoryError(repositories.InventoryErrorRowNotFound,
			fmt.Sprintf("no inventory for product %s in warehouse %s", productID, warehouseID), nil)
	}
	if err != nil {
		return domain.Inventory{}, repositories.NewInternal("postgres.inventory.findByKey", err)
	}
	return inv, nil
}

func (r *inventoryRepository) ListByProduct(ctx context.Context, productID string) ([]domain.Inventory, error) {
	rows, err := r.reg.conn(ctx).QueryContext(ctx,
		`SELECT `+inventoryColumns+` FROM inventory WHERE product_id = $1 ORDER BY warehouse_id`, productID)
	if err != nil {
		return nil, repositories.NewInternal("postgres.inventory.listByProduct", err)
	}
	defer rows.Close()

	return collectInventory(rows)
}

// Adjust performs the check-and-write as a single conditional UPDATE so two
// concurrent deductions can never overdraw the row.
func (r *inventoryRepository) Adjust(ctx context.Context, req repositories.InventoryAdjustRequest) (domain.Inventory, error) {
	conn := r.reg.conn(ctx)

	row := conn.QueryRowContext(ctx,
		`UPDATE inventory SET quantity = quantity + $2, updated_at = $3
		 WHERE id = $1 AND quantity + $2 >= 0
		 RETURNING `+inventoryColumns, req.InventoryID, req.Delta, req.Now)

	inv, err := scanInventory(row)
	if errors.Is(err, sql.ErrNoRows) {
		// Either the row is missing or the conditional guard rejected the delta.
		if _, findErr := r.FindByID(ctx, req.InventoryID); findErr != nil {
			return domain.Inventory{}, findErr
		}
		return domain.Inventory{}, repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock,
			fmt.Sprintf("inventory row %s cannot absorb delta %d", req.InventoryID, req.Delta), nil)
	}
	if err != nil {
		return domain.Inventory{}, repositories.NewInternal("postgres.inventory.adjust", err)
	}

	_, err = conn.ExecContext(ctx,
		`INSERT INTO inventory_adjustments (id, inventory_id, delta, reason, occurred_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		"adj_"+ulid.Make().String(), req.InventoryID, req.Delta, req.Reason, req.Now)
	if err != nil {
		return domain.Inventory{}, repositories.NewInternal("postgres.inventory.adjust.audit", err)
	}
	return inv, nil
}

func (r *inventoryRepository) ListLowStock(ctx context.Context, query repositories.InventoryLowStockQuery) (domain.CursorPage[domain.Inventory], error) {
	stmt := `SELECT ` + inventoryColumns + ` FROM inventory WHERE quantity <= min_quantity AND id > $1 ORDER BY id`
	args := []any{query.Pagination.PageToken}

	limit := query.Pagination.PageSize
	if limit > 0 {
		stmt += ` LIMIT $2`
		args = append(args, limit+1)
	}

	rows, err := r.reg.conn(ctx).QueryContext(ctx, stmt, args...)
	if err != nil {
		return domain.CursorPage[domain.Inventory]{}, repositories.NewInternal("postgres.inventory.lowStock", err)
	}
	defer rows.Close()

	items, err := collectInventory(rows)
	if err != nil {
		return domain.CursorPage[domain.Inventory]{}, err
	}

	page := domain.CursorPage[domain.Inventory]{Items: items}
	if limit > 0 && len(items) > limit {
		page.Items = items[:limit]
		page.NextPageToken = items[limit-1].ID
	}
	return page, nil
}

func (r *inventoryRepository) ListAdjustments(ctx context.Context, inventoryID string) ([]domain.InventoryAdjustment, error) {
	rows, err := r.reg.conn(ctx).QueryContext(ctx,
		`SELECT id, inventory_id, delta, reason, occurred_at
		 FROM inventory_adjustments WHERE inventory_id = $1 ORDER BY occurred_at, id`, inventoryID)
	if err != nil {
		return nil, repositories.NewInternal("postgres.inventory.listAdjustments", err)
	}
	defer rows.Close()

	var adjustments []domain.InventoryAdjustment
	for rows.Next() {
		var adj domain.InventoryAdjustment
		if err := rows.Scan(&adj.ID, &adj.InventoryID, &adj.Delta, &adj.Reason, &adj.OccurredAt); err != nil {
			return nil, repositories.NewInternal("postgres.inventory.listAdjustments", err)
		}
		adjustments = append(adjustments, adj)
	}
	if err := rows.Err(); err != nil {
		return nil, repositories.NewInternal("postgres.inventory.listAdjustments", err)
	}
	return adjustments, nil
}

func collectInventory(rows *sql.Rows) ([]domain.Inventory, error) {
	var items []domain.Inventory
	for rows.Next() {
		inv, err := scanInventory(rows)
		if err != nil {
			return nil, repositories.NewInternal("postgres.inventory.scan", err)
		}
		items = append(items, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, repositories.NewInternal("postgres.inventory.scan", err)
	}
	return items, nil
}

func scanInventory(row rowScanner) (domain.Inventory, error) {
	var inv domain.Inventory
	err := row.Scan(&inv.ID, &inv.ProductID, &inv.WarehouseID, &inv.Quantity, &inv.MinQuantity, &inv.UpdatedAt)
	if err != nil {
		return domain.Inventory{}, err
	}
	return inv, nil
}

type warehouseRepository struct {
	reg *Registry
}

func (r *warehouseRepository) FindByID(ctx context.Context, warehouseID string) (domain.Warehouse, error) {
	var w domain.Warehouse
	err := r.reg.conn(ctx).QueryRowContext(ctx,
		`SELECT id, name, address, city, state, postal_code FROM warehouses WHERE id = $1`, warehouseID).
		Scan(&w.ID, &w.Name, &w.Address, &w.City, &w.State, &w.PostalCode)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Warehouse{}, repositories.NewNotFound("postgres.warehouses.find", "warehouse "+warehouseID+" not found")
	}
	if err != nil {
		return domain.Warehouse{}, repositories.NewInternal("postgres.warehouses.find", err)
	}
	return w, nil
}

func (r *warehouseRepository) List(ctx context.Context) ([]domain.Warehouse, error) {
	rows, err := r.reg.conn(ctx).QueryContext(ctx,
		`SELECT id, name, address, city, state, postal_code FROM warehouses ORDER BY id`)
	if err != nil {
		return nil, repositories.NewInternal("postgres.warehouses.list", err)
	}
	defer rows.Close()

	var warehouses []domain.Warehouse
	for rows.Next() {
		var w domain.Warehouse
		if err := rows.Scan(&w.ID, &w.Name, &w.Address, &w.City, &w.State, &w.PostalCode); err != nil {
			return nil, repositories.NewInternal("postgres.warehouses.list", err)
		}
		warehouses = append(warehouses, w)
	}
	if err := rows.Err(); err != nil {
		return nil, repositories.NewInternal("postgres.warehouses.list", err)
	}
	return warehouses, nil
}

type contactRepository struct {
	reg *Registry
}

func (r *contactRepository) FindByID(ctx context.Context, contactID string) (domain.Contact, error) {
	var c domain.Contact
	err := r.reg.conn(ctx).QueryRowContext(ctx,
		`SELECT id, name, email, phone FROM contacts WHERE id = $1`, contactID).
		Scan(&c.ID, &c.Name, &c.Email, &c.Phone)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Contact{}, repositories.NewNotFound("postgres.contacts.find", "contact "+contactID+" not found")
	}
	if err != nil {
		return domain.Contact{}, repositories.NewInternal("postgres.contacts.find", err)
	}
	return c, nil
}
