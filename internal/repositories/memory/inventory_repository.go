package memory

import (
	"context"
	"fmt"
	"sort"

	domain "github.com/sunpeak-solar/api/internal/domain"
	"github.com/sunpeak-solar/api/internal/repositories"
)

type inventoryRepository struct {
	reg *Registry
}

func (r *inventoryRepository) FindByID(_ context.Context, inventoryID string) (domain.Inventory, error) {
	r.reg.mu.RLock()
	defer r.reg.mu.RUnlock()

	row, ok := r.reg.inventory[inventoryID]
	if !ok {
		return domain.Inventory{}, repositories.NewInventoryError(repositories.InventoryErrorRowNotFound,
			"inventory row "+inventoryID+" not found", nil)
	}
	return row, nil
}

func (r *inventoryRepository) FindByProductAndWarehouse(_ context.Context, productID, warehouseID string) (domain.Inventory, error) {
	r.reg.mu.RLock()
	defer r.reg.mu.RUnlock()

	for _, row := range r.reg.inventory {
		if row.ProductID == productID && row.WarehouseID == warehouseID {
			return row, nil
		}
	}
	return domain.Inventory{}, repositories.NewInventoryError(repositories.InventoryErrorRowNotFound,
		fmt.Sprintf("no inventory for product %s in warehouse %s", productID, warehouseID), nil)
}

func (r *inventoryRepository) ListByProduct(_ context.Context, productID string) ([]domain.Inventory, error) {
	r.reg.mu.RLock()
	defer r.reg.mu.RUnlock()

	rows := make([]domain.Inventory, 0, 4)
	for _, row := range r.reg.inventory {
		if row.ProductID == productID {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].WarehouseID < rows[j].WarehouseID })
	return rows, nil
}

// Adjust applies the signed delta while holding the registry lock, so the
// non-negative check and the write form one atomic step.
func (r *inventoryRepository) Adjust(_ context.Context, req repositories.InventoryAdjustRequest) (domain.Inventory, error) {
	r.reg.mu.Lock()
	defer r.reg.mu.Unlock()

	row, ok := r.reg.inventory[req.InventoryID]
	if !ok {
		return domain.Inventory{}, repositories.NewInventoryError(repositories.InventoryErrorRowNotFound,
			"inventory row "+req.InventoryID+" not found", nil)
	}

	next := row.Quantity + req.Delta
	if next < 0 {
		return domain.Inventory{}, repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock,
			fmt.Sprintf("inventory row %s has %d on hand, cannot apply %d", req.InventoryID, row.Quantity, req.Delta), nil)
	}

	row.Quantity = next
	row.UpdatedAt = req.Now
	r.reg.inventory[req.InventoryID] = row

	r.reg.adjusts[req.InventoryID] = append(r.reg.adjusts[req.InventoryID], domain.InventoryAdjustment{
		ID:          fmt.Sprintf("%s-%d", req.InventoryID, len(r.reg.adjusts[req.InventoryID])+1),
		InventoryID: req.InventoryID,
		Delta:       req.Delta,
		Reason:      req.Reason,
		OccurredAt:  req.Now,
	})

	return row, nil
}

func (r *inventoryRepository) ListLowStock(_ context.Context, query repositories.InventoryLowStockQuery) (domain.CursorPage[domain.Inventory], error) {
	r.reg.mu.RLock()
	defer r.reg.mu.RUnlock()

	rows := make([]domain.Inventory, 0, 8)
	for _, row := range r.reg.inventory {
		if row.Quantity <= row.MinQuantity {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })

	return paginate(rows, query.Pagination, func(row domain.Inventory) string { return row.ID })
}

func (r *inventoryRepository) ListAdjustments(_ context.Context, inventoryID string) ([]domain.InventoryAdjustment, error) {
	r.reg.mu.RLock()
	defer r.reg.mu.RUnlock()

	return append([]domain.InventoryAdjustment(nil), r.reg.adjusts[inventoryID]...), nil
}

type warehouseRepository struct {
	reg *Registry
}

func (r *warehouseRepository) FindByID(_ context.Context, warehouseID string) (domain.Warehouse, error) {
	r.reg.mu.RLock()
	defer r.reg.mu.RUnlock()

	warehouse, ok := r.reg.warehouses[warehouseID]
	if !ok {
		return domain.Warehouse{}, repositories.NewNotFound("memory.warehouses.find", "warehouse "+warehouseID+" not found")
	}
	return warehouse, nil
}

func (r *warehouseRepository) List(_ context.Context) ([]domain.Warehouse, error) {
	r.reg.mu.RLock()
	defer r.reg.mu.RUnlock()

	warehouses := make([]domain.Warehouse, 0, len(r.reg.warehouses))
	for _, warehouse := range r.reg.warehouses {
		warehouses = append(warehouses, warehouse)
	}
	sort.Slice(warehouses, func(i, j int) bool { return warehouses[i].ID < warehouses[j].ID })
	return warehouses, nil
}

type contactRepository struct {
	reg *Registry
}

func (r *contactRepository) FindByID(_ context.Context, contactID string) (domain.Contact, error) {
	r.reg.mu.RLock()
	defer r.reg.mu.RUnlock()

	contact, ok := r.reg.contacts[contactID]
	if !ok {
		return domain.Contact{}, repositories.NewNotFound("memory.contacts.find", "contact "+contactID+" not found")
	}
	return contact, nil
}
