package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/cartstore/internal/domain"
)

// slotRepository хранит состояние корзины одной строкой таблицы cart_slots.
type slotRepository struct {
	store *Store
	key   string
}

// NewSlotRepository создаёт PostgreSQL-реализацию ячейки корзины.
func NewSlotRepository(store *Store, key string) domain.Slot {
	return &slotRepository{store: store, key: key}
}

func (r *slotRepository) Load(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var payload []byte
	err := r.store.DB().QueryRowContext(ctx, `
		SELECT payload FROM cart_slots WHERE slot_key = $1
	`, r.key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSlotEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load cart slot %s: %v", domain.ErrSlotUnavailable, r.key, err)
	}
	return payload, nil
}

func (r *slotRepository) Save(ctx context.Context, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.store.DB().ExecContext(ctx, `
		INSERT INTO cart_slots (slot_key, payload, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (slot_key) DO UPDATE
		SET payload = EXCLUDED.payload,
		    updated_at = EXCLUDED.updated_at
	`, r.key, payload)
	if err != nil {
		return fmt.Errorf("%w: save cart slot %s: %v", domain.ErrSlotUnavailable, r.key, err)
	}
	return nil
}

func (r *slotRepository) Delete(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.store.DB().ExecContext(ctx, `DELETE FROM cart_slots WHERE slot_key = $1`, r.key); err != nil {
		return fmt.Errorf("%w: delete cart slot %s: %v", domain.ErrSlotUnavailable, r.key, err)
	}
	return nil
}

// Ping проверяет доступность базы.
func (r *slotRepository) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}

var (
	_ domain.Slot   = (*slotRepository)(nil)
	_ domain.Pinger = (*slotRepository)(nil)
)
