package catalog

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/cartstore/internal/domain"
)

// Memory — каталог в памяти процесса (сид-файл, тесты).
type Memory struct {
	mu       sync.RWMutex
	products map[string]domain.Product
}

var _ domain.Catalog = (*Memory)(nil)

// NewMemory создаёт каталог с начальным набором товаров.
func NewMemory(products ...domain.Product) *Memory {
	m := &Memory{products: make(map[string]domain.Product, len(products))}
	for _, p := range products {
		m.products[p.ID] = cloneProduct(p)
	}
	return m
}

// Put добавляет или заменяет товар. Позиции, уже лежащие в корзине, это не меняет.
func (m *Memory) Put(product domain.Product) error {
	if err := product.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[product.ID] = cloneProduct(product)
	return nil
}

// Lookup возвращает товар по идентификатору.
func (m *Memory) Lookup(_ context.Context, productID string) (domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.products[productID]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return cloneProduct(p), nil
}

// List возвращает все товары, отсортированные по идентификатору.
func (m *Memory) List() []domain.Product {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, cloneProduct(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func cloneProduct(p domain.Product) domain.Product {
	p.PrimaryImage = p.PrimaryImage.Clone()
	return p
}
