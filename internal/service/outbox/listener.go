package outbox

import (
	"encoding/json"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cartstore/internal/cart"
	"github.com/vladislavdragonenkov/cartstore/internal/domain"
	"github.com/vladislavdragonenkov/cartstore/internal/messaging/kafka"
)

// Notifier будит воркер после постановки события.
type Notifier interface {
	Notify()
}

// NewCartListener возвращает слушателя корзины, который кладёт в outbox событие
// на каждую применённую мутацию. No-op вызовы событий не порождают.
// Ошибки outbox логируются: поток событий best-effort и не влияет на корзину.
func NewCartListener(repo domain.OutboxRepository, sessionID string, notifier Notifier, logger *log.Entry) cart.Listener {
	if logger == nil {
		logger = log.WithField("component", "outbox-listener")
	}

	return func(snap cart.Snapshot) {
		if !snap.Change().Applied {
			return
		}

		event := kafka.NewCartEvent(sessionID, snap)
		payload, err := json.Marshal(event)
		if err != nil {
			logger.WithError(err).Warn("failed to marshal cart event")
			return
		}

		if _, err := repo.Enqueue(domain.OutboxMessage{
			AggregateType: kafka.AggregateTypeCart,
			AggregateID:   sessionID,
			EventType:     string(event.EventType),
			Payload:       payload,
		}); err != nil {
			logger.WithError(err).WithField("revision", event.Revision).Warn("failed to enqueue cart event")
			return
		}

		if notifier != nil {
			notifier.Notify()
		}
	}
}
