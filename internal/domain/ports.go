package domain

import (
	"context"
	"encoding/json"
	"time"
)

// Catalog описывает внешний каталог товаров.
type Catalog interface {
	// Lookup возвращает товар или ErrProductNotFound.
	Lookup(ctx context.Context, productID string) (Product, error)
}

// CatalogRepository — каталог, который можно наполнять (seed из файла).
type CatalogRepository interface {
	Catalog
	Upsert(ctx context.Context, products ...Product) error
}

// OutboxPublisher публикует события из outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// OutboxPruner удаляет обработанные (sent/failed) сообщения outbox.
type OutboxPruner interface {
	// DeleteProcessed удаляет до limit сообщений, обработанных не позже before, и возвращает их число.
	DeleteProcessed(before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxDLQRecord — запись, которую outbox worker кладёт в DLQ после исчерпания попыток.
// Payload содержит исходное событие без изменений.
type OutboxDLQRecord struct {
	OutboxID       string          `json:"outbox_id"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	PublishError   string          `json:"publish_error"`
	DLQPublishedAt time.Time       `json:"dlq_published_at"`
}

// OutboxStats описывает текущее состояние backlog outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
