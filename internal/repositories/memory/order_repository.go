package memory

import (
	"context"
	"slices"
	"sort"

	domain "github.com/sunpeak-solar/api/internal/domain"
	"github.com/sunpeak-solar/api/internal/repositories"
)

type orderRepository struct {
	reg *Registry
}

func (o *orderRepository) Insert(_ context.Context, order domain.Order) error {
	o.reg.mu.Lock()
	defer o.reg.mu.Unlock()

	if _, exists := o.reg.orders[order.ID]; exists {
		return repositories.NewConflict("memory.orders.insert", "order "+order.ID+" already exists")
	}

	items := append([]domain.OrderItem(nil), order.Items...)
	order.Items = nil
	o.reg.orders[order.ID] = order
	o.reg.items[order.ID] = items
	return nil
}

func (o *orderRepository) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	o.reg.mu.RLock()
	defer o.reg.mu.RUnlock()

	order, ok := o.reg.orders[orderID]
	if !ok {
		return domain.Order{}, repositories.NewNotFound("memory.orders.find", "order "+orderID+" not found")
	}
	order.Items = sortedItems(o.reg.items[orderID])
	return order, nil
}

func (o *orderRepository) List(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	o.reg.mu.RLock()
	defer o.reg.mu.RUnlock()

	orders := make([]domain.Order, 0, len(o.reg.orders))
	for _, order := range o.reg.orders {
		if filter.ContactID != "" && order.ContactID != filter.ContactID {
			continue
		}
		if len(filter.Status) > 0 && !slices.Contains(filter.Status, string(order.Status)) {
			continue
		}
		order.Items = sortedItems(o.reg.items[order.ID])
		orders = append(orders, order)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })

	return paginate(orders, filter.Pagination, func(order domain.Order) string { return order.ID })
}

func (o *orderRepository) Update(_ context.Context, order domain.Order) error {
	o.reg.mu.Lock()
	defer o.reg.mu.Unlock()

	if _, ok := o.reg.orders[order.ID]; !ok {
		return repositories.NewNotFound("memory.orders.update", "order "+order.ID+" not found")
	}
	order.Items = nil
	o.reg.orders[order.ID] = order
	return nil
}

func (o *orderRepository) Delete(_ context.Context, orderID string) error {
	o.reg.mu.Lock()
	defer o.reg.mu.Unlock()

	if _, ok := o.reg.orders[orderID]; !ok {
		return repositories.NewNotFound("memory.orders.delete", "order "+orderID+" not found")
	}
	delete(o.reg.orders, orderID)
	delete(o.reg.items, orderID)
	return nil
}

func (o *orderRepository) InsertItem(_ context.Context, item domain.OrderItem) error {
	o.reg.mu.Lock()
	defer o.reg.mu.Unlock()

	if _, ok := o.reg.orders[item.OrderID]; !ok {
		return repositories.NewNotFound("memory.orders.insertItem", "order "+item.OrderID+" not found")
	}
	o.reg.items[item.OrderID] = append(o.reg.items[item.OrderID], item)
	return nil
}

func (o *orderRepository) UpdateItem(_ context.Context, item domain.OrderItem) error {
	o.reg.mu.Lock()
	defer o.reg.mu.Unlock()

	items := o.reg.items[item.OrderID]
	for i := range items {
		if items[i].ID == item.ID {
			items[i] = item
			return nil
		}
	}
	return repositories.NewNotFound("memory.orders.updateItem", "order item "+item.ID+" not found")
}

func (o *orderRepository) ListItems(_ context.Context, orderID string) ([]domain.OrderItem, error) {
	o.reg.mu.RLock()
	defer o.reg.mu.RUnlock()

	if _, ok := o.reg.orders[orderID]; !ok {
		return nil, repositories.NewNotFound("memory.orders.listItems", "order "+orderID+" not found")
	}
	return sortedItems(o.reg.items[orderID]), nil
}

func sortedItems(items []domain.OrderItem) []domain.OrderItem {
	cloned := append([]domain.OrderItem(nil), items...)
	sort.Slice(cloned, func(i, j int) bool { return cloned[i].ID < cloned[j].ID })
	return cloned
}
