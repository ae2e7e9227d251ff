package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/cartstore/internal/cart"
)

// EventType определяет тип события
type EventType string

const (
	// События корзины
	EventTypeCartHydrated        EventType = "cart.hydrated"
	EventTypeCartItemAdded       EventType = "cart.item_added"
	EventTypeCartQuantityUpdated EventType = "cart.quantity_updated"
	EventTypeCartItemRemoved     EventType = "cart.item_removed"
	EventTypeCartCleared         EventType = "cart.cleared"
	EventTypeCartResynced        EventType = "cart.resynced"

	// Команды для корзины от соседних сервисов
	EventTypeOrderPlaced EventType = "order.placed"
)

// Topics для Kafka
const (
	TopicCartEvents      = "cart.events"
	TopicCartCommands    = "cart.commands"
	TopicDeadLetterQueue = "cart.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// AggregateTypeCart — тип агрегата в outbox для событий корзины.
const AggregateTypeCart = "cart"

// CartEvent описывает одну мутацию корзины и агрегаты после неё.
type CartEvent struct {
	EventType EventType `json:"event_type"`
	SessionID string    `json:"session_id"`
	Revision  uint64    `json:"revision"`
	Applied   bool      `json:"applied"`
	ProductID string    `json:"product_id,omitempty"`
	Size      *string   `json:"size"`
	Quantity  int       `json:"quantity"`
	LineCount int       `json:"line_count"`
	ItemCount int       `json:"item_count"`
	Subtotal  string    `json:"subtotal"`
	Timestamp time.Time `json:"timestamp"`
}

// IsCartEvent сообщает, относится ли тип к событиям корзины.
func (t EventType) IsCartEvent() bool {
	switch t {
	case EventTypeCartHydrated, EventTypeCartItemAdded, EventTypeCartQuantityUpdated,
		EventTypeCartItemRemoved, EventTypeCartCleared, EventTypeCartResynced:
		return true
	default:
		return false
	}
}

// EventTypeForOp сопоставляет операцию корзины типу события.
func EventTypeForOp(op cart.Op) EventType {
	switch op {
	case cart.OpAdd:
		return EventTypeCartItemAdded
	case cart.OpUpdate:
		return EventTypeCartQuantityUpdated
	case cart.OpRemove:
		return EventTypeCartItemRemoved
	case cart.OpClear:
		return EventTypeCartCleared
	case cart.OpResync:
		return EventTypeCartResynced
	default:
		return EventTypeCartHydrated
	}
}

// NewCartEvent создает событие из снимка корзины
func NewCartEvent(sessionID string, snap cart.Snapshot) *CartEvent {
	change := snap.Change()
	event := &CartEvent{
		EventType: EventTypeForOp(change.Op),
		SessionID: sessionID,
		Revision:  snap.Revision(),
		Applied:   change.Applied,
		ProductID: change.Key.ProductID,
		Quantity:  change.Quantity,
		LineCount: snap.LineCount(),
		ItemCount: snap.ItemCount(),
		Subtotal:  snap.Subtotal().StringFixed(2),
		Timestamp: time.Now().UTC(),
	}
	if size, ok := change.Key.Size.Value(); ok {
		event.Size = &size
	}
	return event
}

// OrderPlacedCommand приходит из checkout, когда заказ по корзине оформлен.
type OrderPlacedCommand struct {
	EventType EventType `json:"event_type"`
	SessionID string    `json:"session_id"`
	OrderID   string    `json:"order_id"`
	Timestamp time.Time `json:"timestamp"`
}

// NewOrderPlacedCommand создает команду очистки корзины после оформления заказа
func NewOrderPlacedCommand(sessionID, orderID string) *OrderPlacedCommand {
	return &OrderPlacedCommand{
		EventType: EventTypeOrderPlaced,
		SessionID: sessionID,
		OrderID:   orderID,
		Timestamp: time.Now().UTC(),
	}
}

// ParseOrderPlacedCommand парсит OrderPlacedCommand из сообщения
func ParseOrderPlacedCommand(message *sarama.ConsumerMessage) (*OrderPlacedCommand, error) {
	var cmd OrderPlacedCommand
	if err := json.Unmarshal(message.Value, &cmd); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order placed command: %w", err)
	}
	return &cmd, nil
}
