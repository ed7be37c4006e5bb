package repositories

import (
	"context"
	"time"

	domain "github.com/sunpeak-solar/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	Orders() OrderRepository
	Inventory() InventoryRepository
	Warehouses() WarehouseRepository
	Contacts() ContactRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProductRepository reads catalog products and bundle composition.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)
	// ListComponents returns the bundle's components ordered by sort order.
	ListComponents(ctx context.Context, bundleProductID string) ([]domain.BundleComponent, error)
}

// ProductListFilter narrows catalog listings.
type ProductListFilter struct {
	BundlesOnly bool
	Pagination  domain.Pagination
}

// OrderRepository owns order header and line item persistence. FindByID
// returns the order with its items loaded; Delete cascades to items.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	Update(ctx context.Context, order domain.Order) error
	Delete(ctx context.Context, orderID string) error

	InsertItem(ctx context.Context, item domain.OrderItem) error
	UpdateItem(ctx context.Context, item domain.OrderItem) error
	ListItems(ctx context.Context, orderID string) ([]domain.OrderItem, error)
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	ContactID  string
	Status     []string
	Pagination domain.Pagination
}

// InventoryAdjustRequest applies a signed delta to a stock row. The
// implementation must guarantee the row never goes negative: the check and
// the write happen in one atomic step, and an insufficient-stock error is
// returned when delta would overdraw the row.
type InventoryAdjustRequest struct {
	InventoryID string
	Delta       int
	Reason      string
	Now         time.Time
}

// InventoryLowStockQuery selects rows at or below their minimum quantity.
type InventoryLowStockQuery struct {
	Pagination domain.Pagination
}

// InventoryRepository manages stock rows and their audit trail.
type InventoryRepository interface {
	FindByID(ctx context.Context, inventoryID string) (domain.Inventory, error)
	FindByProductAndWarehouse(ctx context.Context, productID, warehouseID string) (domain.Inventory, error)
	// ListByProduct returns all rows for the product across warehouses in a
	// deterministic order (warehouse id ascending).
	ListByProduct(ctx context.Context, productID string) ([]domain.Inventory, error)
	Adjust(ctx context.Context, req InventoryAdjustRequest) (domain.Inventory, error)
	ListLowStock(ctx context.Context, query InventoryLowStockQuery) (domain.CursorPage[domain.Inventory], error)
	ListAdjustments(ctx context.Context, inventoryID string) ([]domain.InventoryAdjustment, error)
}

// WarehouseRepository reads warehouse records.
type WarehouseRepository interface {
	FindByID(ctx context.Context, warehouseID string) (domain.Warehouse, error)
	List(ctx context.Context) ([]domain.Warehouse, error)
}

// ContactRepository reads CRM contacts.
type ContactRepository interface {
	FindByID(ctx context.Context, contactID string) (domain.Contact, error)
}
