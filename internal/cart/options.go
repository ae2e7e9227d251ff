package cart

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cartstore/internal/domain"
)

// Persister сохраняет и восстанавливает позиции корзины.
// Реализация не должна держать ссылку на Store: запись не может вызвать мутацию.
type Persister interface {
	// Hydrate возвращает ранее сохранённые позиции; при любой проблеме — пустой список.
	Hydrate(ctx context.Context) []domain.CartLine
	// Persist записывает позиции; ошибки логируются внутри и наружу не возвращаются.
	Persist(lines []domain.CartLine)
}

// Recorder собирает метрики корзины.
type Recorder interface {
	RecordMutation(op string, applied bool)
	ObserveCart(lineCount, itemCount int, subtotal float64)
}

// Options задаёт зависимости Store.
type Options struct {
	Logger    *log.Entry
	Persister Persister
	Recorder  Recorder
}

// Option настраивает Store.
type Option func(*Options)

// WithLogger задаёт logger для корзины.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithPersister включает write-through и гидратацию при создании.
func WithPersister(persister Persister) Option {
	return func(opts *Options) {
		opts.Persister = persister
	}
}

// WithRecorder задаёт приёмник метрик.
func WithRecorder(recorder Recorder) Option {
	return func(opts *Options) {
		opts.Recorder = recorder
	}
}
