package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	domain "github.com/sunpeak-solar/api/internal/domain"
	"github.com/sunpeak-solar/api/internal/repositories"
)

const (
	reasonOrderFulfillment = "Order fulfillment"
	reasonOrderRollback    = "Order status rollback"
)

var (
	// ErrInventoryInvalidInput signals the caller provided invalid arguments.
	ErrInventoryInvalidInput = errors.New("inventory: invalid input")
	// ErrInventoryInsufficientStock indicates the requested quantity exceeds availability.
	ErrInventoryInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrInventoryRowNotFound indicates no stock row exists for the requested key.
	ErrInventoryRowNotFound = errors.New("inventory: stock row not found")
)

// InventoryServiceDeps bundles the collaborators required to construct an inventory service.
type InventoryServiceDeps struct {
	Inventory repositories.InventoryRepository
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type inventoryService struct {
	repo   repositories.InventoryRepository
	clock  func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewInventoryService wires dependencies into a concrete InventoryService implementation.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Inventory == nil {
		return nil, errors.New("inventory service: inventory repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &inventoryService{
		repo: deps.Inventory,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// inventoryRequirement is one aggregated (product, warehouse) demand.
type inventoryRequirement struct {
	productID   string
	productName string
	warehouseID string
	quantity    int
}

func (s *inventoryService) ConsumeForOrder(ctx context.Context, lines []InventoryLine) error {
	requirements, err := aggregateInventoryLines(lines)
	if err != nil {
		return err
	}

	now := s.clock()
	for _, req := range requirements {
		if req.warehouseID != "" {
			row, err := s.repo.FindByProductAndWarehouse(ctx, req.productID, req.warehouseID)
			if err != nil {
				return s.mapRepositoryError(err)
			}
			if _, err := s.repo.Adjust(ctx, repositories.InventoryAdjustRequest{
				InventoryID: row.ID,
				Delta:       -req.quantity,
				Reason:      reasonOrderFulfillment,
				Now:         now,
			}); err != nil {
				return s.mapRepositoryError(err)
			}
			continue
		}

		if err := s.consumeAcrossWarehouses(ctx, req, now); err != nil {
			return err
		}
	}
	return nil
}

// consumeAcrossWarehouses deducts an unscoped requirement from the product's
// rows in warehouse order, partially per row, never driving any row negative.
func (s *inventoryService) consumeAcrossWarehouses(ctx context.Context, req inventoryRequirement, now time.Time) error {
	rows, err := s.repo.ListByProduct(ctx, req.productID)
	if err != nil {
		return s.mapRepositoryError(err)
	}

	remaining := req.quantity
	for _, row := range rows {
		if remaining == 0 {
			break
		}
		take := row.Quantity
		if take > remaining {
			take = remaining
		}
		if take == 0 {
			continue
		}
		if _, err := s.repo.Adjust(ctx, repositories.InventoryAdjustRequest{
			InventoryID: row.ID,
			Delta:       -take,
			Reason:      reasonOrderFulfillment,
			Now:         now,
		}); err != nil {
			return s.mapRepositoryError(err)
		}
		remaining -= take
	}

	if remaining > 0 {
		return fmt.Errorf("%w: product %s short by %d units across all warehouses",
			ErrInventoryInsufficientStock, req.productID, remaining)
	}
	return nil
}

func (s *inventoryService) RestoreForOrder(ctx context.Context, lines []InventoryLine) error {
	requirements, err := aggregateInventoryLines(lines)
	if err != nil {
		return err
	}

	now := s.clock()
	for _, req := range requirements {
		var rowID string
		if req.warehouseID != "" {
			row, err := s.repo.FindByProductAndWarehouse(ctx, req.productID, req.warehouseID)
			if err != nil {
				return s.mapRepositoryError(err)
			}
			rowID = row.ID
		} else {
			// Restoration does not mirror the per-row deduction split: the
			// whole quantity goes back into the first row. Pinned behaviour,
			// inherited from the source system.
			rows, err := s.repo.ListByProduct(ctx, req.productID)
			if err != nil {
				return s.mapRepositoryError(err)
			}
			if len(rows) == 0 {
				return fmt.Errorf("%w: product %s has no inventory rows", ErrInventoryRowNotFound, req.productID)
			}
			rowID = rows[0].ID
		}

		if _, err := s.repo.Adjust(ctx, repositories.InventoryAdjustRequest{
			InventoryID: rowID,
			Delta:       req.quantity,
			Reason:      reasonOrderRollback,
			Now:         now,
		}); err != nil {
			return s.mapRepositoryError(err)
		}
	}
	return nil
}

func (s *inventoryService) ValidateForOrder(ctx context.Context, lines []InventoryLine) (ValidationResult, error) {
	requirements, err := aggregateInventoryLines(lines)
	if err != nil {
		return ValidationResult{}, err
	}

	result := ValidationResult{Valid: true}
	for _, req := range requirements {
		available, err := s.availableQuantity(ctx, req)
		if err != nil {
			return ValidationResult{}, err
		}
		if available < req.quantity {
			result.Valid = false
			result.Errors = append(result.Errors, insufficientStockMessage(req, available))
		}
	}
	return result, nil
}

func (s *inventoryService) availableQuantity(ctx context.Context, req inventoryRequirement) (int, error) {
	if req.warehouseID != "" {
		row, err := s.repo.FindByProductAndWarehouse(ctx, req.productID, req.warehouseID)
		if err != nil {
			var invErr *repositories.InventoryError
			if errors.As(err, &invErr) && invErr.Code == repositories.InventoryErrorRowNotFound {
				return 0, nil
			}
			return 0, s.mapRepositoryError(err)
		}
		return row.Quantity, nil
	}

	rows, err := s.repo.ListByProduct(ctx, req.productID)
	if err != nil {
		return 0, s.mapRepositoryError(err)
	}
	total := 0
	for _, row := range rows {
		total += row.Quantity
	}
	return total, nil
}

func insufficientStockMessage(req inventoryRequirement, available int) string {
	name := req.productName
	if name == "" {
		name = req.productID
	}
	if req.warehouseID != "" {
		return fmt.Sprintf("Insufficient inventory for %s (product %s) in warehouse %s. Required: %d, Available: %d",
			name, req.productID, req.warehouseID, req.quantity, available)
	}
	return fmt.Sprintf("Insufficient inventory for %s (product %s). Required: %d, Available: %d",
		name, req.productID, req.quantity, available)
}

func (s *inventoryService) Adjust(ctx context.Context, cmd InventoryAdjustCommand) (domain.Inventory, error) {
	inventoryID := strings.TrimSpace(cmd.InventoryID)
	if inventoryID == "" {
		return domain.Inventory{}, fmt.Errorf("%w: inventory id is required", ErrInventoryInvalidInput)
	}
	if cmd.Delta == 0 {
		return domain.Inventory{}, fmt.Errorf("%w: delta must be non-zero", ErrInventoryInvalidInput)
	}
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		return domain.Inventory{}, fmt.Errorf("%w: reason is required", ErrInventoryInvalidInput)
	}

	row, err := s.repo.Adjust(ctx, repositories.InventoryAdjustRequest{
		InventoryID: inventoryID,
		Delta:       cmd.Delta,
		Reason:      reason,
		Now:         s.clock(),
	})
	if err != nil {
		return domain.Inventory{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "inventory.adjusted", map[string]any{
		"inventoryId": row.ID,
		"delta":       cmd.Delta,
		"reason":      reason,
		"actorId":     strings.TrimSpace(cmd.ActorID),
	})
	return row, nil
}

func (s *inventoryService) ListForProduct(ctx context.Context, productID string) ([]domain.Inventory, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, fmt.Errorf("%w: product id is required", ErrInventoryInvalidInput)
	}
	rows, err := s.repo.ListByProduct(ctx, productID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return rows, nil
}

func (s *inventoryService) ListLowStock(ctx context.Context, filter InventoryLowStockFilter) (domain.CursorPage[domain.Inventory], error) {
	page, err := s.repo.ListLowStock(ctx, repositories.InventoryLowStockQuery{
		Pagination: domain.Pagination{
			PageSize:  filter.Pagination.PageSize,
			PageToken: filter.Pagination.PageToken,
		},
	})
	if err != nil {
		return domain.CursorPage[domain.Inventory]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// aggregateInventoryLines groups lines by (product, warehouse) and sums the
// required quantity per key so each key yields at most one adjustment. The
// result is ordered deterministically.
func aggregateInventoryLines(lines []InventoryLine) ([]inventoryRequirement, error) {
	aggregated := make(map[string]*inventoryRequirement)
	for _, line := range lines {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			return nil, fmt.Errorf("%w: line product id is required", ErrInventoryInvalidInput)
		}
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for %s must be positive", ErrInventoryInvalidInput, productID)
		}

		warehouseID := strings.TrimSpace(line.WarehouseID)
		key := productID + "\x00" + warehouseID
		req, ok := aggregated[key]
		if !ok {
			req = &inventoryRequirement{
				productID:   productID,
				productName: strings.TrimSpace(line.ProductName),
				warehouseID: warehouseID,
			}
			aggregated[key] = req
		}
		if req.productName == "" {
			req.productName = strings.TrimSpace(line.ProductName)
		}
		req.quantity += line.Quantity
	}

	requirements := make([]inventoryRequirement, 0, len(aggregated))
	for _, req := range aggregated {
		requirements = append(requirements, *req)
	}
	sort.Slice(requirements, func(i, j int) bool {
		if requirements[i].productID != requirements[j].productID {
			return requirements[i].productID < requirements[j].productID
		}
		return requirements[i].warehouseID < requirements[j].warehouseID
	})
	return requirements, nil
}

func (s *inventoryService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		switch invErr.Code {
		case repositories.InventoryErrorInsufficientStock:
			return fmt.Errorf("%w: %s", ErrInventoryInsufficientStock, invErr.Message)
		case repositories.InventoryErrorRowNotFound:
			return fmt.Errorf("%w: %s", ErrInventoryRowNotFound, invErr.Message)
		}
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
		return fmt.Errorf("inventory: repository unavailable: %w", err)
	}
	return err
}
