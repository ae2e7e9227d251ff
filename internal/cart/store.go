package cart

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cartstore/internal/domain"
)

// Listener получает снимок после каждого вызова мутации.
type Listener func(Snapshot)

type subscription struct {
	id uint64
	fn Listener
}

// Store — единственный источник правды для позиций корзины одной сессии.
// Мутации сериализуются мьютексом и выполняются атомарно вместе с write-through.
// Подписчики вызываются после снятия блокировки строго в порядке ревизий и никогда параллельно.
type Store struct {
	mu         sync.Mutex
	lines      []domain.CartLine
	index      map[domain.LineKey]int
	revision   uint64
	lastChange Change
	closed     bool

	subsMu    sync.RWMutex
	subs      []subscription
	nextSubID uint64

	// pending — снимки, зафиксированные под mu, но ещё не доставленные подписчикам.
	notifyMu   sync.Mutex
	pending    []Snapshot
	delivering bool

	persister Persister
	recorder  Recorder
	logger    *log.Entry
}

// New создаёт корзину и, если задан Persister, восстанавливает ранее сохранённое состояние.
func New(ctx context.Context, options ...Option) *Store {
	var opts Options
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "cart-store")
	}

	s := &Store{
		index:      make(map[domain.LineKey]int),
		lastChange: Change{Op: OpHydrate},
		persister:  opts.Persister,
		recorder:   opts.Recorder,
		logger:     logger,
	}

	if s.persister != nil {
		s.replaceLines(s.persister.Hydrate(ctx))
	}
	s.lastChange.Applied = len(s.lines) > 0

	s.logger.WithFields(log.Fields{
		"lines": len(s.lines),
	}).Debug("cart store created")
	s.observe(s.Snapshot())

	return s
}

// AddItem добавляет товар или объединяет его с уже существующей позицией того же (товар, вариант).
// quantity < 1 игнорируется, избыток сверх MaxItemQuantity молча отбрасывается.
func (s *Store) AddItem(product domain.Product, size domain.Size, quantity int) Snapshot {
	key := domain.LineKey{ProductID: product.ID, Size: size}

	return s.mutate(OpAdd, key, func() Change {
		if err := product.Validate(); err != nil {
			s.logger.WithError(err).WithField("product_id", product.ID).Debug("add item rejected")
			return Change{Key: key, Quantity: s.quantityLocked(key)}
		}
		if quantity < domain.MinItemQuantity {
			s.logger.WithFields(log.Fields{
				"product_id": product.ID,
				"quantity":   quantity,
			}).Debug("add item with non-positive quantity ignored")
			return Change{Key: key, Quantity: s.quantityLocked(key)}
		}
		quantity = domain.ClampQuantity(quantity)

		if idx, ok := s.index[key]; ok {
			current := s.lines[idx].Quantity
			merged := domain.ClampQuantity(current + quantity)
			s.lines[idx].Quantity = merged
			return Change{Key: key, Quantity: merged, Applied: merged != current}
		}

		s.index[key] = len(s.lines)
		s.lines = append(s.lines, domain.NewCartLine(product, size, quantity))
		return Change{Key: key, Quantity: quantity, Applied: true}
	})
}

// UpdateQuantity устанавливает количество напрямую (не прибавляет).
// Значение < 1 удаляет позицию, значение > MaxItemQuantity ограничивается лимитом.
func (s *Store) UpdateQuantity(productID string, size domain.Size, quantity int) Snapshot {
	key := domain.LineKey{ProductID: productID, Size: size}

	return s.mutate(OpUpdate, key, func() Change {
		idx, ok := s.index[key]
		if !ok {
			return Change{Key: key}
		}

		quantity = domain.ClampQuantity(quantity)
		if quantity == 0 {
			s.removeLocked(idx)
			return Change{Key: key, Applied: true}
		}

		current := s.lines[idx].Quantity
		s.lines[idx].Quantity = quantity
		return Change{Key: key, Quantity: quantity, Applied: current != quantity}
	})
}

// RemoveItem удаляет позицию с точным совпадением ключа, включая пустой вариант.
func (s *Store) RemoveItem(productID string, size domain.Size) Snapshot {
	key := domain.LineKey{ProductID: productID, Size: size}

	return s.mutate(OpRemove, key, func() Change {
		idx, ok := s.index[key]
		if !ok {
			return Change{Key: key}
		}
		s.removeLocked(idx)
		return Change{Key: key, Applied: true}
	})
}

// Clear удаляет все позиции и сохраняет пустое состояние.
func (s *Store) Clear() Snapshot {
	return s.mutate(OpClear, domain.LineKey{}, func() Change {
		s.lines = nil
		s.index = make(map[domain.LineKey]int)
		return Change{Applied: true}
	})
}

// Resync перечитывает состояние из хранилища после записи другим процессом.
// Чтение идёт под блокировкой: мутация не может закоммититься между чтением и заменой.
// Обратная запись не выполняется.
func (s *Store) Resync(ctx context.Context) Snapshot {
	if s.persister == nil {
		return s.Snapshot()
	}

	return s.mutate(OpResync, domain.LineKey{}, func() Change {
		s.replaceLines(s.persister.Hydrate(ctx))
		return Change{Applied: true}
	})
}

// Snapshot возвращает текущее состояние. Два вызова без мутации между ними равны по значению.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return newSnapshot(s.lines, s.revision, s.lastChange)
}

// Subscribe регистрирует слушателя и возвращает функцию отписки.
func (s *Store) Subscribe(listener Listener) (unsubscribe func()) {
	if listener == nil {
		return func() {}
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return func() {}
	}

	s.subsMu.Lock()
	s.nextSubID++
	id := s.nextSubID
	s.subs = append(s.subs, subscription{id: id, fn: listener})
	s.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			defer s.subsMu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Close освобождает корзину: слушатели отписываются, дальнейшие мутации игнорируются.
// Сохранённое состояние не удаляется. Повторный вызов безопасен.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.subsMu.Lock()
	s.subs = nil
	s.subsMu.Unlock()

	s.logger.Debug("cart store closed")
	return nil
}

func (s *Store) mutate(op Op, key domain.LineKey, apply func() Change) Snapshot {
	s.mu.Lock()
	if s.closed {
		snap := newSnapshot(s.lines, s.revision, s.lastChange)
		s.mu.Unlock()
		s.logger.WithError(domain.ErrStoreClosed).WithField("op", op).Warn("mutation ignored")
		return snap
	}

	change := apply()
	change.Op = op
	if change.Key == (domain.LineKey{}) {
		change.Key = key
	}
	s.revision++
	s.lastChange = change

	// Write-through выполняется под блокировкой, чтобы записи в хранилище не переупорядочивались.
	if change.Applied && op != OpResync && s.persister != nil {
		s.persister.Persist(cloneLines(s.lines))
	}

	snap := newSnapshot(s.lines, s.revision, change)
	s.notifyMu.Lock()
	s.pending = append(s.pending, snap)
	s.notifyMu.Unlock()
	s.mu.Unlock()

	if s.recorder != nil {
		s.recorder.RecordMutation(string(op), change.Applied)
	}
	s.drain()

	return snap
}

// drain доставляет накопленные снимки по одному. Если доставкой уже занята другая горутина
// (или слушатель мутирует корзину изнутри), снимок будет доставлен ею после текущего.
func (s *Store) drain() {
	s.notifyMu.Lock()
	if s.delivering {
		s.notifyMu.Unlock()
		return
	}
	s.delivering = true

	for len(s.pending) > 0 {
		snap := s.pending[0]
		s.pending[0] = Snapshot{}
		s.pending = s.pending[1:]
		s.notifyMu.Unlock()

		s.observe(snap)
		s.notify(snap)

		s.notifyMu.Lock()
	}
	s.pending = nil
	s.delivering = false
	s.notifyMu.Unlock()
}

func (s *Store) notify(snap Snapshot) {
	s.subsMu.RLock()
	subs := make([]subscription, len(s.subs))
	copy(subs, s.subs)
	s.subsMu.RUnlock()

	for _, sub := range subs {
		s.deliver(sub, snap)
	}
}

func (s *Store) deliver(sub subscription, snap Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(log.Fields{
				"subscription": sub.id,
				"panic":        r,
			}).Error("cart listener panicked")
		}
	}()
	sub.fn(snap)
}

func (s *Store) observe(snap Snapshot) {
	if s.recorder == nil {
		return
	}
	s.recorder.ObserveCart(snap.LineCount(), snap.ItemCount(), snap.Subtotal().InexactFloat64())
}

func (s *Store) quantityLocked(key domain.LineKey) int {
	if idx, ok := s.index[key]; ok {
		return s.lines[idx].Quantity
	}
	return 0
}

func (s *Store) removeLocked(idx int) {
	s.lines = append(s.lines[:idx:idx], s.lines[idx+1:]...)
	s.reindexLocked()
}

func (s *Store) reindexLocked() {
	s.index = make(map[domain.LineKey]int, len(s.lines))
	for i, line := range s.lines {
		s.index[line.Key()] = i
	}
}

// replaceLines загружает позиции из хранилища. Persister уже проверил схему,
// здесь повторно отбрасываются позиции, нарушающие инварианты корзины.
func (s *Store) replaceLines(lines []domain.CartLine) {
	s.lines = make([]domain.CartLine, 0, len(lines))
	s.index = make(map[domain.LineKey]int, len(lines))

	for _, line := range lines {
		if errs := line.ValidateInvariants(); len(errs) != 0 {
			s.logger.WithField("product_id", line.ProductID).Warn("skipping invalid hydrated line")
			continue
		}
		if _, dup := s.index[line.Key()]; dup {
			s.logger.WithField("product_id", line.ProductID).Warn("skipping duplicate hydrated line")
			continue
		}
		s.index[line.Key()] = len(s.lines)
		s.lines = append(s.lines, line.Clone())
	}
}

func cloneLines(lines []domain.CartLine) []domain.CartLine {
	out := make([]domain.CartLine, len(lines))
	for i, line := range lines {
		out[i] = line.Clone()
	}
	return out
}
