package kafka

import (
	"context"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cartstore/internal/cart"
)

// CartClearer — часть корзины, нужная обработчику команд.
type CartClearer interface {
	Clear() cart.Snapshot
}

// NewOrderPlacedHandler очищает корзину сессии после оформления заказа.
// Команды для других сессий и неизвестные типы пропускаются без ошибки,
// нечитаемое сообщение возвращает ошибку и попадает в DLQ.
func NewOrderPlacedHandler(sessionID string, store CartClearer, logger *log.Entry) MessageHandler {
	if logger == nil {
		logger = log.WithField("component", "cart-command-handler")
	}

	return func(_ context.Context, message *sarama.ConsumerMessage) error {
		cmd, err := ParseOrderPlacedCommand(message)
		if err != nil {
			return err
		}
		if cmd.EventType != EventTypeOrderPlaced || cmd.SessionID != sessionID {
			return nil
		}

		snap := store.Clear()
		logger.WithFields(log.Fields{
			"order_id": cmd.OrderID,
			"revision": snap.Revision(),
		}).Info("cart cleared after order placed")
		return nil
	}
}
