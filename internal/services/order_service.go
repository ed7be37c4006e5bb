package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/sunpeak-solar/api/internal/domain"
	"github.com/sunpeak-solar/api/internal/repositories"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid arguments.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the referenced order does not exist.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderContactNotFound indicates the referenced contact does not exist.
	ErrOrderContactNotFound = errors.New("order: contact not found")
	// ErrOrderWarehouseNotFound indicates a line references an unknown warehouse.
	ErrOrderWarehouseNotFound = errors.New("order: warehouse not found")
	// ErrOrderInsufficientInventory indicates a completing transition failed
	// the inventory check. The concrete error carries per-line details.
	ErrOrderInsufficientInventory = errors.New("order: insufficient inventory")
)

// InsufficientInventoryError lists every shortfall that blocked a completing
// transition, one message per line, so callers can surface them together.
type InsufficientInventoryError struct {
	Details []string
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("order: insufficient inventory (%d shortfalls)", len(e.Details))
}

func (e *InsufficientInventoryError) Is(target error) bool {
	return target == ErrOrderInsufficientInventory
}

// OrderServiceDeps bundles the collaborators required to construct an order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Contacts    repositories.ContactRepository
	Warehouses  repositories.WarehouseRepository
	Catalog     CatalogService
	Inventory   InventoryService
	Tx          repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	contacts   repositories.ContactRepository
	warehouses repositories.WarehouseRepository
	catalog    CatalogService
	inventory  InventoryService
	tx         repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("order service: catalog service is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("order service: inventory service is required")
	}
	if deps.Tx == nil {
		return nil, errors.New("order service: unit of work is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		contacts:   deps.Contacts,
		warehouses: deps.Warehouses,
		catalog:    deps.Catalog,
		inventory:  deps.Inventory,
		tx:         deps.Tx,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  newID,
		logger: logger,
	}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error) {
	contactID := strings.TrimSpace(cmd.ContactID)
	if contactID == "" {
		return domain.Order{}, fmt.Errorf("%w: contact id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return domain.Order{}, fmt.Errorf("%w: at least one item is required", ErrOrderInvalidInput)
	}

	status := cmd.Status
	if status == "" {
		status = domain.OrderStatusProposed
	}
	if !validOrderStatus(status) {
		return domain.Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, status)
	}

	if s.contacts != nil {
		if _, err := s.contacts.FindByID(ctx, contactID); err != nil {
			return domain.Order{}, s.mapContactError(err, contactID)
		}
	}

	opts := DefaultProcessingOptions()
	if cmd.Options != nil {
		opts = *cmd.Options
	}
	resolved, err := s.catalog.ResolveOrderItems(ctx, cmd.Items, opts)
	if err != nil {
		return domain.Order{}, err
	}
	if err := s.checkWarehouses(ctx, resolved); err != nil {
		return domain.Order{}, err
	}

	now := s.clock()
	orderDate := now
	if cmd.OrderDate != nil {
		orderDate = cmd.OrderDate.UTC()
	}

	order := domain.Order{
		ID:        "ord_" + s.newID(),
		ContactID: contactID,
		Status:    status,
		OrderDate: orderDate,
		Notes:     strings.TrimSpace(cmd.Notes),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, line := range resolved {
		item := domain.OrderItem{
			ID:                "itm_" + s.newID(),
			OrderID:           order.ID,
			ProductID:         line.ProductID,
			ProductName:       line.ProductName,
			Quantity:          line.Quantity,
			Price:             line.Price,
			WarehouseID:       line.WarehouseID,
			IsBundleComponent: line.IsBundleComponent,
			BundleProductID:   line.BundleProductID,
			BundleProductName: line.BundleProductName,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		order.Total += item.Price * float64(item.Quantity)
		order.Items = append(order.Items, item)
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.orders.Insert(ctx, order); err != nil {
			return s.mapOrderError(err)
		}
		if order.Status == domain.OrderStatusComplete {
			return s.inventory.ConsumeForOrder(ctx, inventoryLinesFor(order.Items))
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.logger(ctx, "order.created", map[string]any{
		"orderId":   order.ID,
		"contactId": order.ContactID,
		"status":    string(order.Status),
		"items":     len(order.Items),
		"actorId":   strings.TrimSpace(cmd.ActorID),
	})
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapOrderError(err)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error) {
	for _, status := range filter.Status {
		if !validOrderStatus(domain.OrderStatus(status)) {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, status)
		}
	}
	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		ContactID: strings.TrimSpace(filter.ContactID),
		Status:    filter.Status,
		Pagination: domain.Pagination{
			PageSize:  filter.Pagination.PageSize,
			PageToken: filter.Pagination.PageToken,
		},
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, s.mapOrderError(err)
	}
	return page, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, cmd OrderStatusCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !validOrderStatus(cmd.TargetStatus) {
		return domain.Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.TargetStatus)
	}

	var updated domain.Order
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		order, err := s.orders.FindByID(ctx, orderID)
		if err != nil {
			return s.mapOrderError(err)
		}
		if order.Status == cmd.TargetStatus {
			updated = order
			return nil
		}

		// Only crossing the Complete boundary touches stock. Re-marking an
		// already Complete order, or moving between two non-Complete
		// statuses, must not adjust anything.
		wasComplete := order.Status == domain.OrderStatusComplete
		isComplete := cmd.TargetStatus == domain.OrderStatusComplete
		lines := inventoryLinesFor(order.Items)
		switch {
		case isComplete && !wasComplete:
			if err := s.inventory.ConsumeForOrder(ctx, lines); err != nil {
				return err
			}
		case wasComplete && !isComplete:
			if err := s.inventory.RestoreForOrder(ctx, lines); err != nil {
				return err
			}
		}

		order.Status = cmd.TargetStatus
		order.UpdatedAt = s.clock()
		if err := s.orders.Update(ctx, order); err != nil {
			return s.mapOrderError(err)
		}
		updated = order
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.logger(ctx, "order.status_updated", map[string]any{
		"orderId": updated.ID,
		"status":  string(updated.Status),
		"actorId": strings.TrimSpace(cmd.ActorID),
	})
	return updated, nil
}

func (s *orderService) DeleteOrder(ctx context.Context, orderID string) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		order, err := s.orders.FindByID(ctx, orderID)
		if err != nil {
			return s.mapOrderError(err)
		}
		// Deleting a fulfilled order returns its stock first.
		if order.Status == domain.OrderStatusComplete {
			if err := s.inventory.RestoreForOrder(ctx, inventoryLinesFor(order.Items)); err != nil {
				return err
			}
		}
		if err := s.orders.Delete(ctx, orderID); err != nil {
			return s.mapOrderError(err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger(ctx, "order.deleted", map[string]any{"orderId": orderID})
	return nil
}

func (s *orderService) MergeOrders(ctx context.Context, cmd MergeOrdersCommand) (domain.Order, error) {
	primaryID := strings.TrimSpace(cmd.PrimaryOrderID)
	duplicateID := strings.TrimSpace(cmd.DuplicateOrderID)
	if primaryID == "" || duplicateID == "" {
		return domain.Order{}, fmt.Errorf("%w: primary and duplicate order ids are required", ErrOrderInvalidInput)
	}
	if primaryID == duplicateID {
		return domain.Order{}, fmt.Errorf("%w: an order cannot be merged into itself", ErrOrderInvalidInput)
	}
	if cmd.Merged != nil && cmd.Merged.Status != nil && !validOrderStatus(*cmd.Merged.Status) {
		return domain.Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, *cmd.Merged.Status)
	}

	var merged domain.Order
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		primary, err := s.orders.FindByID(ctx, primaryID)
		if err != nil {
			return s.mapOrderError(err)
		}
		duplicate, err := s.orders.FindByID(ctx, duplicateID)
		if err != nil {
			return s.mapOrderError(err)
		}

		wasComplete := primary.Status == domain.OrderStatusComplete
		now := s.clock()
		items, updatedItems, newItems := reconcileOrderItems(primary, duplicate, now, s.newID)

		target := smartMergeOrders(primary, duplicate, items)
		applyMergedOverrides(&target, cmd.Merged)
		target.UpdatedAt = now

		isComplete := target.Status == domain.OrderStatusComplete
		lines := inventoryLinesFor(items)
		if isComplete && !wasComplete {
			// Completing through a merge commits the full item set to
			// specific warehouses, so unscoped lines are rejected rather
			// than falling back to cross-warehouse deduction.
			for _, item := range items {
				if item.WarehouseID == "" {
					return fmt.Errorf("%w: item for product %s has no warehouse, required to complete a merge",
						ErrOrderInvalidInput, item.ProductID)
				}
			}
			result, err := s.inventory.ValidateForOrder(ctx, lines)
			if err != nil {
				return err
			}
			if !result.Valid {
				return &InsufficientInventoryError{Details: result.Errors}
			}
		}

		for _, item := range updatedItems {
			if err := s.orders.UpdateItem(ctx, item); err != nil {
				return s.mapOrderError(err)
			}
		}
		for _, item := range newItems {
			if err := s.orders.InsertItem(ctx, item); err != nil {
				return s.mapOrderError(err)
			}
		}

		header := target
		header.Items = nil
		if err := s.orders.Update(ctx, header); err != nil {
			return s.mapOrderError(err)
		}

		switch {
		case isComplete && !wasComplete:
			if err := s.inventory.ConsumeForOrder(ctx, lines); err != nil {
				return err
			}
		case wasComplete && !isComplete:
			if err := s.inventory.RestoreForOrder(ctx, lines); err != nil {
				return err
			}
		}

		if err := s.orders.Delete(ctx, duplicateID); err != nil {
			return s.mapOrderError(err)
		}

		merged, err = s.orders.FindByID(ctx, primaryID)
		if err != nil {
			return s.mapOrderError(err)
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.logger(ctx, "order.merged", map[string]any{
		"primaryOrderId":   primaryID,
		"duplicateOrderId": duplicateID,
		"status":           string(merged.Status),
		"items":            len(merged.Items),
		"actorId":          strings.TrimSpace(cmd.ActorID),
	})
	return merged, nil
}

// reconcileOrderItems folds the duplicate's items into the primary's. A
// duplicate item matching an existing primary item on (product, warehouse)
// adds its quantity and keeps the higher unit price; anything else becomes a
// new line on the primary, never merged across warehouses.
func reconcileOrderItems(primary, duplicate domain.Order, now time.Time, newID func() string) (all, updated, inserted []domain.OrderItem) {
	index := make(map[string]int, len(primary.Items))
	all = make([]domain.OrderItem, len(primary.Items))
	copy(all, primary.Items)
	for i, item := range all {
		index[item.ProductID+"\x00"+item.WarehouseID] = i
	}

	changed := make(map[int]bool)
	for _, item := range duplicate.Items {
		if i, ok := index[item.ProductID+"\x00"+item.WarehouseID]; ok {
			all[i].Quantity += item.Quantity
			if item.Price > all[i].Price {
				all[i].Price = item.Price
			}
			all[i].UpdatedAt = now
			changed[i] = true
			continue
		}
		moved := item
		moved.ID = "itm_" + newID()
		moved.OrderID = primary.ID
		moved.CreatedAt = now
		moved.UpdatedAt = now
		all = append(all, moved)
		inserted = append(inserted, moved)
	}

	indexes := make([]int, 0, len(changed))
	for i := range changed {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	for _, i := range indexes {
		updated = append(updated, all[i])
	}
	return all, updated, inserted
}

// smartMergeOrders derives the merged order's fields when the caller does
// not pin them explicitly. The primary's contact wins, the more advanced
// status wins, the total is recomputed from the reconciled lines, the
// earlier order date wins, and notes are concatenated.
func smartMergeOrders(primary, duplicate domain.Order, items []domain.OrderItem) domain.Order {
	out := primary
	out.Items = items

	if out.ContactID == "" {
		out.ContactID = duplicate.ContactID
	}
	out.Status = moreAdvancedStatus(primary.Status, duplicate.Status)

	out.Total = 0
	for _, item := range items {
		out.Total += item.Price * float64(item.Quantity)
	}

	if !duplicate.OrderDate.IsZero() && (primary.OrderDate.IsZero() || duplicate.OrderDate.Before(primary.OrderDate)) {
		out.OrderDate = duplicate.OrderDate
	}

	switch {
	case primary.Notes == "":
		out.Notes = duplicate.Notes
	case duplicate.Notes == "" || duplicate.Notes == primary.Notes:
		out.Notes = primary.Notes
	default:
		out.Notes = primary.Notes + "\n" + duplicate.Notes
	}
	return out
}

var orderStatusRank = map[domain.OrderStatus]int{
	domain.OrderStatusProposed:   0,
	domain.OrderStatusFollowedUp: 1,
	domain.OrderStatusScheduled:  2,
	domain.OrderStatusComplete:   3,
	domain.OrderStatusPaid:       4,
}

// moreAdvancedStatus picks the status further along the lifecycle. Cancelled
// never wins against a live status.
func moreAdvancedStatus(a, b domain.OrderStatus) domain.OrderStatus {
	if a == domain.OrderStatusCancelled {
		if b == domain.OrderStatusCancelled {
			return a
		}
		return b
	}
	if b == domain.OrderStatusCancelled {
		return a
	}
	if orderStatusRank[b] > orderStatusRank[a] {
		return b
	}
	return a
}

func applyMergedOverrides(order *domain.Order, merged *MergedOrderData) {
	if merged == nil {
		return
	}
	if merged.ContactID != nil {
		order.ContactID = strings.TrimSpace(*merged.ContactID)
	}
	if merged.Status != nil {
		order.Status = *merged.Status
	}
	if merged.Total != nil {
		order.Total = *merged.Total
	}
	if merged.OrderDate != nil {
		order.OrderDate = merged.OrderDate.UTC()
	}
	if merged.Notes != nil {
		order.Notes = strings.TrimSpace(*merged.Notes)
	}
}

func validOrderStatus(status domain.OrderStatus) bool {
	switch status {
	case domain.OrderStatusProposed,
		domain.OrderStatusFollowedUp,
		domain.OrderStatusScheduled,
		domain.OrderStatusComplete,
		domain.OrderStatusPaid,
		domain.OrderStatusCancelled:
		return true
	}
	return false
}

func inventoryLinesFor(items []domain.OrderItem) []InventoryLine {
	lines := make([]InventoryLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, InventoryLine{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			WarehouseID: item.WarehouseID,
			Quantity:    item.Quantity,
		})
	}
	return lines
}

func (s *orderService) checkWarehouses(ctx context.Context, items []ResolvedOrderItem) error {
	if s.warehouses == nil {
		return nil
	}
	seen := make(map[string]bool)
	for _, item := range items {
		if item.WarehouseID == "" || seen[item.WarehouseID] {
			continue
		}
		seen[item.WarehouseID] = true
		if _, err := s.warehouses.FindByID(ctx, item.WarehouseID); err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				return fmt.Errorf("%w: %s", ErrOrderWarehouseNotFound, item.WarehouseID)
			}
			return err
		}
	}
	return nil
}

func (s *orderService) mapOrderError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		if repoErr.IsNotFound() {
			return fmt.Errorf("%w: %s", ErrOrderNotFound, repoErr.Error())
		}
		if repoErr.IsUnavailable() {
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}
	return err
}

func (s *orderService) mapContactError(err error, contactID string) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %s", ErrOrderContactNotFound, contactID)
	}
	return err
}
