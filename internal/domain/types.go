package domain

import "time"

// BundlePricingType selects how a bundle product derives its sale price.
type BundlePricingType string

const (
	// BundlePricingCalculated derives the price from the live component prices
	// minus the bundle discount percentage.
	BundlePricingCalculated BundlePricingType = "calculated"
	// BundlePricingFixed uses the price stored on the bundle product itself.
	BundlePricingFixed BundlePricingType = "fixed"
)

// Product is a catalog entry. A bundle product groups leaf products via
// BundleComponent relationships; a non-bundle product never has components.
type Product struct {
	ID                       string
	Name                     string
	SKU                      string
	Price                    float64
	TaxPercentage            float64
	IsBundle                 bool
	BundlePricingType        BundlePricingType
	BundleDiscountPercentage float64
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// BundleComponent links a bundle product to one of its leaf components.
// Quantity is the per-bundle-unit multiplier.
type BundleComponent struct {
	BundleProductID    string
	ComponentProductID string
	Quantity           int
	SortOrder          int
}

// OrderStatus enumerates the order lifecycle states.
type OrderStatus string

const (
	OrderStatusProposed   OrderStatus = "Proposed"
	OrderStatusFollowedUp OrderStatus = "Followed Up"
	OrderStatusScheduled  OrderStatus = "Scheduled"
	OrderStatusComplete   OrderStatus = "Complete"
	OrderStatusPaid       OrderStatus = "Paid"
	OrderStatusCancelled  OrderStatus = "Cancelled"
)

// Order is a customer order. The transition into OrderStatusComplete is the
// sole trigger for inventory consumption, and the transition out of it the
// sole trigger for restoration.
type Order struct {
	ID        string
	ContactID string
	Status    OrderStatus
	Total     float64
	OrderDate time.Time
	Notes     string
	Metadata  map[string]any
	Items     []OrderItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderItem is one line of an order. WarehouseID may be empty, in which case
// the cross-warehouse fallback deduction policy applies. ProductName is a
// snapshot taken at resolution time so inventory messages do not require a
// catalog join.
type OrderItem struct {
	ID                string
	OrderID           string
	ProductID         string
	ProductName       string
	Quantity          int
	Price             float64
	WarehouseID       string
	IsBundleComponent bool
	BundleProductID   string
	BundleProductName string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Inventory is the stock row for one (product, warehouse) pair. Quantity is
// mutated exclusively through signed adjustments carrying an audit reason.
type Inventory struct {
	ID          string
	ProductID   string
	WarehouseID string
	Quantity    int
	MinQuantity int
	UpdatedAt   time.Time
}

// InventoryAdjustment is the audit record written alongside every signed
// quantity change.
type InventoryAdjustment struct {
	ID          string
	InventoryID string
	Delta       int
	Reason      string
	OccurredAt  time.Time
}

// Warehouse is a physical stock location. Never mutated by order processing.
type Warehouse struct {
	ID         string
	Name       string
	Address    string
	City       string
	State      string
	PostalCode string
}

// Contact is a CRM contact an order belongs to.
type Contact struct {
	ID    string
	Name  string
	Email string
	Phone string
}

// Pagination carries cursor paging parameters for list queries.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage is a generic page of results with an opaque continuation token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}
