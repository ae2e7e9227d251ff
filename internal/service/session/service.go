package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cartstore/internal/cart"
	"github.com/vladislavdragonenkov/cartstore/internal/domain"
)

// Service связывает корзину сессии с каталогом: транспорты работают только через него.
type Service struct {
	sessionID string
	store     *cart.Store
	catalog   domain.Catalog
	logger    *log.Entry
}

// NewService создаёт сервис корзины для одной сессии.
func NewService(sessionID string, store *cart.Store, catalog domain.Catalog, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "cart-session")
	}
	return &Service{
		sessionID: sessionID,
		store:     store,
		catalog:   catalog,
		logger:    logger.WithField("session_id", sessionID),
	}
}

// SessionID возвращает идентификатор сессии.
func (s *Service) SessionID() string {
	return s.sessionID
}

// AddProduct находит товар в каталоге и кладёт его в корзину.
// Цена и описание фиксируются в момент добавления.
func (s *Service) AddProduct(ctx context.Context, productID string, size domain.Size, quantity int) (cart.Snapshot, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return cart.Snapshot{}, domain.ErrProductIDRequired
	}

	product, err := s.catalog.Lookup(ctx, productID)
	if err != nil {
		if !errors.Is(err, domain.ErrProductNotFound) {
			s.logger.WithError(err).WithField("product_id", productID).Warn("catalog lookup failed")
		}
		return cart.Snapshot{}, fmt.Errorf("lookup product %s: %w", productID, err)
	}

	return s.store.AddItem(product, size, quantity), nil
}

// UpdateQuantity устанавливает количество позиции.
func (s *Service) UpdateQuantity(productID string, size domain.Size, quantity int) cart.Snapshot {
	return s.store.UpdateQuantity(productID, size, quantity)
}

// RemoveItem удаляет позицию.
func (s *Service) RemoveItem(productID string, size domain.Size) cart.Snapshot {
	return s.store.RemoveItem(productID, size)
}

// Clear очищает корзину.
func (s *Service) Clear() cart.Snapshot {
	return s.store.Clear()
}

// Snapshot возвращает текущее состояние корзины.
func (s *Service) Snapshot() cart.Snapshot {
	return s.store.Snapshot()
}

// Subscribe подписывает слушателя на изменения корзины.
func (s *Service) Subscribe(listener cart.Listener) func() {
	return s.store.Subscribe(listener)
}
