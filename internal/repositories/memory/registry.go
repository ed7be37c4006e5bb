// Package memory provides an in-process repositories.Registry used by tests
// and as the fallback mode when the database is unreachable at boot. It
// mirrors the conditional-adjustment semantics of the Postgres registry so
// the services behave identically against either.
package memory

import (
	"context"
	"sync"

	domain "github.com/sunpeak-solar/api/internal/domain"
	"github.com/sunpeak-solar/api/internal/repositories"
)

// Registry implements repositories.Registry backed by mutex-guarded maps.
type Registry struct {
	mu sync.RWMutex

	products   map[string]domain.Product
	components map[string][]domain.BundleComponent
	orders     map[string]domain.Order
	items      map[string][]domain.OrderItem
	inventory  map[string]domain.Inventory
	adjusts    map[string][]domain.InventoryAdjustment
	warehouses map[string]domain.Warehouse
	contacts   map[string]domain.Contact
}

// NewRegistry constructs an empty in-memory registry.
func NewRegistry() *Registry {
	return &Registry{
		products:   make(map[string]domain.Product),
		components: make(map[string][]domain.BundleComponent),
		orders:     make(map[string]domain.Order),
		items:      make(map[string][]domain.OrderItem),
		inventory:  make(map[string]domain.Inventory),
		adjusts:    make(map[string][]domain.InventoryAdjustment),
		warehouses: make(map[string]domain.Warehouse),
		contacts:   make(map[string]domain.Contact),
	}
}

// Close implements repositories.Registry.
func (r *Registry) Close(context.Context) error { return nil }

// Products implements repositories.Registry.
func (r *Registry) Products() repositories.ProductRepository { return &productRepository{reg: r} }

// Orders implements repositories.Registry.
func (r *Registry) Orders() repositories.OrderRepository { return &orderRepository{reg: r} }

// Inventory implements repositories.Registry.
func (r *Registry) Inventory() repositories.InventoryRepository { return &inventoryRepository{reg: r} }

// Warehouses implements repositories.Registry.
func (r *Registry) Warehouses() repositories.WarehouseRepository { return &warehouseRepository{reg: r} }

// Contacts implements repositories.Registry.
func (r *Registry) Contacts() repositories.ContactRepository { return &contactRepository{reg: r} }

// RunInTx executes fn directly. The memory registry offers no rollback; each
// repository call is individually atomic under the registry mutex.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// SeedProduct stores a catalog product, replacing any existing entry.
func (r *Registry) SeedProduct(p domain.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[p.ID] = p
}

// SeedComponent appends a bundle component relationship.
func (r *Registry) SeedComponent(c domain.BundleComponent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.components[c.BundleProductID] = append(r.components[c.BundleProductID], c)
}

// SeedInventory stores a stock row, replacing any existing entry.
func (r *Registry) SeedInventory(inv domain.Inventory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inventory[inv.ID] = inv
}

// SeedWarehouse stores a warehouse record.
func (r *Registry) SeedWarehouse(w domain.Warehouse) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warehouses[w.ID] = w
}

// SeedContact stores a CRM contact.
func (r *Registry) SeedContact(c domain.Contact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contacts[c.ID] = c
}
