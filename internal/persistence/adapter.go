package persistence

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cartstore/internal/domain"
)

const defaultOpTimeout = 3 * time.Second

// Результаты операций для метрик.
const (
	ResultOK        = "ok"
	ResultEmpty     = "empty"
	ResultDiscarded = "discarded"
	ResultError     = "error"
)

// Recorder собирает метрики персистентности.
type Recorder interface {
	RecordPersist(result string)
	RecordHydrate(result string)
}

// AdapterOptions задаёт параметры Adapter.
type AdapterOptions struct {
	Logger    *log.Entry
	Recorder  Recorder
	OpTimeout time.Duration
}

// Option настраивает Adapter.
type Option func(*AdapterOptions)

// WithLogger задаёт logger адаптера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *AdapterOptions) {
		opts.Logger = logger
	}
}

// WithRecorder задаёт приёмник метрик.
func WithRecorder(recorder Recorder) Option {
	return func(opts *AdapterOptions) {
		opts.Recorder = recorder
	}
}

// WithOpTimeout ограничивает время одной операции с хранилищем.
func WithOpTimeout(timeout time.Duration) Option {
	return func(opts *AdapterOptions) {
		opts.OpTimeout = timeout
	}
}

// Adapter сериализует позиции корзины в Slot и восстанавливает их при старте.
// Персистентность best-effort: ни одна ошибка хранилища не возвращается вызывающему.
type Adapter struct {
	slot      domain.Slot
	logger    *log.Entry
	recorder  Recorder
	opTimeout time.Duration

	// unreadState выставляется, когда сохранённое состояние не удалось прочитать:
	// следующая запись затрёт его, и это нужно видеть в логах.
	unreadState atomic.Bool
}

// NewAdapter создаёт адаптер поверх ячейки хранилища.
func NewAdapter(slot domain.Slot, options ...Option) *Adapter {
	opts := AdapterOptions{OpTimeout: defaultOpTimeout}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "cart-persistence")
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = defaultOpTimeout
	}

	return &Adapter{
		slot:      slot,
		logger:    logger,
		recorder:  opts.Recorder,
		opTimeout: opts.OpTimeout,
	}
}

// Hydrate читает и строго разбирает сохранённое состояние.
// Пустая ячейка, недоступное хранилище или повреждённые данные дают пустую корзину.
func (a *Adapter) Hydrate(ctx context.Context) []domain.CartLine {
	opCtx, cancel := context.WithTimeout(ctx, a.opTimeout)
	defer cancel()

	raw, err := a.slot.Load(opCtx)
	switch {
	case errors.Is(err, domain.ErrSlotEmpty):
		a.record(a.recordHydrate, ResultEmpty)
		return nil
	case err != nil:
		a.logger.WithError(err).Warn("failed to load cart state, starting with empty cart")
		a.record(a.recordHydrate, ResultError)
		a.unreadState.Store(true)
		return nil
	}
	a.unreadState.Store(false)

	lines, err := Decode(raw)
	if err != nil {
		a.logger.WithError(err).WithField("bytes", len(raw)).Warn("discarding persisted cart state")
		a.record(a.recordHydrate, ResultDiscarded)
		if delErr := a.slot.Delete(opCtx); delErr != nil {
			a.logger.WithError(delErr).Warn("failed to delete discarded cart state")
		}
		return nil
	}

	a.record(a.recordHydrate, ResultOK)
	a.logger.WithField("lines", len(lines)).Debug("cart state hydrated")
	return lines
}

// Persist записывает позиции в хранилище. Ошибки логируются и проглатываются.
func (a *Adapter) Persist(lines []domain.CartLine) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.WithField("panic", r).Error("cart slot panicked during persist")
			a.record(a.recordPersist, ResultError)
		}
	}()

	payload, err := Encode(lines)
	if err != nil {
		a.logger.WithError(err).Warn("failed to encode cart state")
		a.record(a.recordPersist, ResultError)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.opTimeout)
	defer cancel()

	if err := a.slot.Save(ctx, payload); err != nil {
		a.logger.WithError(err).WithField("lines", len(lines)).Warn("failed to persist cart state")
		a.record(a.recordPersist, ResultError)
		return
	}
	if a.unreadState.CompareAndSwap(true, false) {
		a.logger.WithField("lines", len(lines)).Warn("overwrote cart state that could not be loaded")
	}
	a.record(a.recordPersist, ResultOK)
}

func (a *Adapter) recordPersist(result string) { a.recorder.RecordPersist(result) }
func (a *Adapter) recordHydrate(result string) { a.recorder.RecordHydrate(result) }

func (a *Adapter) record(fn func(string), result string) {
	if a.recorder == nil {
		return
	}
	fn(result)
}
