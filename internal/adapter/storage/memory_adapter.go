package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rl1809/pizzahub/internal/core/domain"
)

// MemoryIngredientStore keeps ingredients in process. A single mutex
// serializes every stock change.
type MemoryIngredientStore struct {
	mu    sync.Mutex
	items map[domain.IngredientKey]domain.Ingredient
	now   func() time.Time
}

func NewMemoryIngredientStore() *MemoryIngredientStore {
	return &MemoryIngredientStore{
		items: make(map[domain.IngredientKey]domain.Ingredient),
		now:   time.Now,
	}
}

func (m *MemoryIngredientStore) ConditionalDecrement(ctx context.Context, key domain.IngredientKey, amount int) (domain.Ingredient, error) {
	if err := ctx.Err(); err != nil {
		return domain.Ingredient{}, err
	}
	if err := domain.ValidateAmount(amount); err != nil {
		return domain.Ingredient{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[key]
	if !ok {
		return domain.Ingredient{}, domain.ErrIngredientNotFound
	}
	if item.StockQuantity < amount {
		return domain.Ingredient{}, domain.ErrInsufficientStock
	}
	item.StockQuantity -= amount
	item.UpdatedAt = m.now()
	m.items[key] = item
	return item, nil
}

func (m *MemoryIngredientStore) Increment(ctx context.Context, key domain.IngredientKey, amount int) (domain.Ingredient, error) {
	if err := ctx.Err(); err != nil {
		return domain.Ingredient{}, err
	}
	if err := domain.ValidateAmount(amount); err != nil {
		return domain.Ingredient{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[key]
	if !ok {
		return domain.Ingredient{}, domain.ErrIngredientNotFound
	}
	item.StockQuantity += amount
	item.UpdatedAt = m.now()
	m.items[key] = item
	return item, nil
}

func (m *MemoryIngredientStore) Get(ctx context.Context, key domain.IngredientKey) (domain.Ingredient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[key]
	if !ok {
		return domain.Ingredient{}, domain.ErrIngredientNotFound
	}
	return item, nil
}

func (m *MemoryIngredientStore) Create(ctx context.Context, ingredient domain.Ingredient) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[ingredient.Key()]; ok {
		return fmt.Errorf("%w: %s", domain.ErrIngredientExists, ingredient.Key())
	}
	m.items[ingredient.Key()] = ingredient
	return nil
}

func (m *MemoryIngredientStore) Save(ctx context.Context, ingredient domain.Ingredient) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.items[ingredient.Key()]; ok && !existing.CreatedAt.IsZero() {
		ingredient.CreatedAt = existing.CreatedAt
	}
	m.items[ingredient.Key()] = ingredient
	return nil
}

func (m *MemoryIngredientStore) List(ctx context.Context, typ domain.IngredientType) ([]domain.Ingredient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Ingredient
	for key, item := range m.items {
		if key.Type == typ {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryIngredientStore) Delete(ctx context.Context, key domain.IngredientKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[key]; !ok {
		return domain.ErrIngredientNotFound
	}
	delete(m.items, key)
	return nil
}

func (m *MemoryIngredientStore) AdjustStock(ctx context.Context, key domain.IngredientKey, change int) (domain.Ingredient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[key]
	if !ok {
		return domain.Ingredient{}, domain.ErrIngredientNotFound
	}
	item.StockQuantity = max(0, item.StockQuantity+change)
	item.UpdatedAt = m.now()
	m.items[key] = item
	return item, nil
}

// MemoryOrderStore keeps orders in process. Stored orders never share a
// history slice with callers.
type MemoryOrderStore struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
}

func NewMemoryOrderStore() *MemoryOrderStore {
	return &MemoryOrderStore{orders: make(map[string]domain.Order)}
}

func (m *MemoryOrderStore) Create(ctx context.Context, order domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.orders[order.ID]; exists {
		return fmt.Errorf("insert order: duplicate id %s", order.ID)
	}
	m.orders[order.ID] = cloneOrder(order)
	return nil
}

func (m *MemoryOrderStore) AppendStatus(ctx context.Context, orderID string, entry domain.StatusEntry, deliveredAt *time.Time) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	order = cloneOrder(order)
	order.ApplyStatus(entry.Status, entry.Actor, entry.Notes, entry.Timestamp)
	if deliveredAt != nil {
		at := *deliveredAt
		order.ActualDeliveryTime = &at
	}
	m.orders[orderID] = order
	return cloneOrder(order), nil
}

func (m *MemoryOrderStore) Get(ctx context.Context, orderID string) (domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	order, ok := m.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

func (m *MemoryOrderStore) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Order
	for _, order := range m.orders {
		if filter.Matches(order) {
			out = append(out, cloneOrder(order))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func cloneOrder(o domain.Order) domain.Order {
	o.StatusHistory = append([]domain.StatusEntry(nil), o.StatusHistory...)
	o.Configuration.Vegetables = append([]domain.IngredientRef(nil), o.Configuration.Vegetables...)
	o.Configuration.Meats = append([]domain.IngredientRef(nil), o.Configuration.Meats...)
	if o.ActualDeliveryTime != nil {
		at := *o.ActualDeliveryTime
		o.ActualDeliveryTime = &at
	}
	return o
}
