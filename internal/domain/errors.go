package domain

import "errors"

var (
	// Ошибка отсутствующего идентификатора товара.
	ErrProductIDRequired = errors.New("product_id is required")
	// Ошибка отрицательной цены за единицу.
	ErrPriceNegative = errors.New("price must be non-negative")
	// Ошибка количества вне диапазона [1, MaxItemQuantity].
	ErrQuantityInvalid = errors.New("quantity must be between 1 and 99")
	// Ошибка повторяющегося ключа (product_id, size) в сохранённом состоянии.
	ErrDuplicateLine = errors.New("duplicate cart line")
	// ErrProductNotFound возвращается каталогом, если товара нет.
	ErrProductNotFound = errors.New("product not found")
	// ErrSlotEmpty — в хранилище ещё нет сохранённого состояния корзины.
	ErrSlotEmpty = errors.New("cart slot is empty")
	// ErrSlotUnavailable — хранилище недоступно (сеть, диск, квота).
	ErrSlotUnavailable = errors.New("cart slot unavailable")
	// ErrUnsupportedSchemaVersion — сохранённое состояние записано неизвестной версией схемы.
	ErrUnsupportedSchemaVersion = errors.New("unsupported cart schema version")
	// ErrCorruptPayload — сохранённое состояние не проходит строгую проверку схемы.
	ErrCorruptPayload = errors.New("corrupt cart payload")
	// ErrStoreClosed — операция над уже закрытой корзиной.
	ErrStoreClosed = errors.New("cart store is closed")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsDiscardablePayload сообщает, что сохранённое состояние нужно отбросить и начать с пустой корзины.
func IsDiscardablePayload(err error) bool {
	return errors.Is(err, ErrCorruptPayload) || errors.Is(err, ErrUnsupportedSchemaVersion)
}
