package services

import (
	"context"
	"time"

	domain "github.com/sunpeak-solar/api/internal/domain"
)

// Pagination carries cursor paging parameters through service filters.
type Pagination struct {
	PageSize  int
	PageToken string
}

// ProcessingOptions controls how order line items are resolved against the
// catalog before persistence or inventory work.
type ProcessingOptions struct {
	// ExpandBundles replaces bundle root lines with one line per component.
	ExpandBundles bool
	// PreserveBundleStructure keeps component back-references on expanded
	// lines so the original bundle can be reconstructed for display.
	PreserveBundleStructure bool
}

// DefaultProcessingOptions mirrors the behaviour of order creation: bundles
// are expanded and their structure retained.
func DefaultProcessingOptions() ProcessingOptions {
	return ProcessingOptions{ExpandBundles: true, PreserveBundleStructure: true}
}

// OrderItemInput is a caller-supplied order line before catalog resolution.
type OrderItemInput struct {
	ProductID   string
	Quantity    int
	Price       float64
	WarehouseID string
}

// ResolvedOrderItem is a line after bundle expansion and price derivation.
type ResolvedOrderItem struct {
	ProductID         string
	ProductName       string
	SKU               string
	Quantity          int
	Price             float64
	TaxPercentage     float64
	WarehouseID       string
	IsBundleComponent bool
	BundleProductID   string
	BundleProductName string
}

// ProductDetail is a catalog product together with its bundle composition.
type ProductDetail struct {
	Product    domain.Product
	Components []BundleComponentDetail
}

// BundleComponentDetail joins a component relationship with its product.
type BundleComponentDetail struct {
	Product  domain.Product
	Quantity int
}

// ProductListFilter narrows catalog listings.
type ProductListFilter struct {
	BundlesOnly bool
	Pagination  Pagination
}

// CatalogService resolves products and bundle composition.
type CatalogService interface {
	GetProduct(ctx context.Context, productID string) (ProductDetail, error)
	ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)
	// ResolveOrderItems expands bundles and derives prices. The whole call
	// fails when any referenced product is unknown.
	ResolveOrderItems(ctx context.Context, items []OrderItemInput, opts ProcessingOptions) ([]ResolvedOrderItem, error)
}

// InventoryLine is the inventory service's view of one order line: the
// product, how many units it needs, and the warehouse it is pinned to (empty
// means the cross-warehouse fallback policy applies).
type InventoryLine struct {
	ProductID   string
	ProductName string
	WarehouseID string
	Quantity    int
}

// ValidationResult reports every inventory shortfall found in one pass.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// InventoryAdjustCommand applies a manual signed adjustment to a stock row.
type InventoryAdjustCommand struct {
	InventoryID string
	Delta       int
	Reason      string
	ActorID     string
}

// InventoryLowStockFilter pages through rows at or below minimum quantity.
type InventoryLowStockFilter struct {
	Pagination Pagination
}

// InventoryService owns all stock mutations and the pre-flight validator.
type InventoryService interface {
	// ConsumeForOrder deducts stock for the given lines. Called exactly on
	// the transition into the Complete status.
	ConsumeForOrder(ctx context.Context, lines []InventoryLine) error
	// RestoreForOrder returns stock for the given lines. Called exactly on
	// the transition out of the Complete status.
	RestoreForOrder(ctx context.Context, lines []InventoryLine) error
	// ValidateForOrder checks availability without mutating anything.
	ValidateForOrder(ctx context.Context, lines []InventoryLine) (ValidationResult, error)
	Adjust(ctx context.Context, cmd InventoryAdjustCommand) (domain.Inventory, error)
	ListForProduct(ctx context.Context, productID string) ([]domain.Inventory, error)
	ListLowStock(ctx context.Context, filter InventoryLowStockFilter) (domain.CursorPage[domain.Inventory], error)
}

// CreateOrderCommand creates an order from caller-supplied line items.
type CreateOrderCommand struct {
	ContactID string
	Status    domain.OrderStatus
	OrderDate *time.Time
	Notes     string
	Items     []OrderItemInput
	Options   *ProcessingOptions
	ActorID   string
}

// OrderStatusCommand transitions an order to a target status.
type OrderStatusCommand struct {
	OrderID      string
	TargetStatus domain.OrderStatus
	ActorID      string
}

// MergedOrderData carries caller-chosen fields for the merged order. Nil
// pointer fields fall back to the deterministic merge heuristic.
type MergedOrderData struct {
	ContactID *string
	Status    *domain.OrderStatus
	Total     *float64
	OrderDate *time.Time
	Notes     *string
}

// MergeOrdersCommand combines a duplicate order into a primary order.
type MergeOrdersCommand struct {
	PrimaryOrderID   string
	DuplicateOrderID string
	Merged           *MergedOrderData
	ActorID          string
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	ContactID  string
	Status     []string
	Pagination Pagination
}

// OrderService owns order lifecycle including the merge coordinator.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	UpdateStatus(ctx context.Context, cmd OrderStatusCommand) (domain.Order, error)
	DeleteOrder(ctx context.Context, orderID string) error
	MergeOrders(ctx context.Context, cmd MergeOrdersCommand) (domain.Order, error)
}

// PaymentLinkCommand requests a hosted payment link for an order.
type PaymentLinkCommand struct {
	OrderID        string
	IdempotencyKey string
	ActorID        string
}

// OrderPaymentLink is the provider session created for an order. URL is what
// gets forwarded to the customer.
type OrderPaymentLink struct {
	OrderID   string
	URL       string
	SessionID string
	IntentID  string
	Amount    int64
	Currency  string
	ExpiresAt time.Time
}

// PaymentService creates payment links for orders and records them on the
// order metadata.
type PaymentService interface {
	CreateOrderPaymentLink(ctx context.Context, cmd PaymentLinkCommand) (OrderPaymentLink, error)
}
