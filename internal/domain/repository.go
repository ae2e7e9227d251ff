package domain

import "context"

// Slot — долговременная ячейка key-value, в которой лежит сериализованное состояние одной корзины.
// Ключ (namespace) фиксируется при создании реализации.
type Slot interface {
	// Load возвращает сохранённые байты или ErrSlotEmpty, если записи нет.
	Load(ctx context.Context) ([]byte, error)
	// Save перезаписывает содержимое ячейки.
	Save(ctx context.Context, payload []byte) error
	// Delete удаляет запись; отсутствие записи ошибкой не считается.
	Delete(ctx context.Context) error
}

// SlotWatcher реализуют хранилища, которые умеют сообщать о записи из другого процесса.
type SlotWatcher interface {
	// Watch блокируется до отмены ctx и вызывает onChange на каждую чужую запись.
	Watch(ctx context.Context, onChange func()) error
}

// Pinger реализуют хранилища с сетевым подключением (для health checks).
type Pinger interface {
	Ping(ctx context.Context) error
}

// SlotKey строит ключ ячейки для сессии в фиксированном namespace.
func SlotKey(sessionID string) string {
	return "cart:v1:" + sessionID
}
