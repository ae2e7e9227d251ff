package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/cartstore/internal/domain"
)

// slotInMemory — ячейка корзины в памяти процесса. Состояние живёт, пока жив процесс.
type slotInMemory struct {
	mu      sync.RWMutex
	payload []byte
	writes  int
}

// NewSlot создаёт пустую in-memory ячейку.
func NewSlot() *slotInMemory {
	return &slotInMemory{}
}

func (s *slotInMemory) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.payload == nil {
		return nil, domain.ErrSlotEmpty
	}
	out := make([]byte, len(s.payload))
	copy(out, s.payload)
	return out, nil
}

func (s *slotInMemory) Save(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.payload = make([]byte, len(payload))
	copy(s.payload, payload)
	s.writes++
	return nil
}

func (s *slotInMemory) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.payload = nil
	return nil
}

// Writes возвращает число успешных записей (используется в тестах).
func (s *slotInMemory) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

var _ domain.Slot = (*slotInMemory)(nil)
