package kafka

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cartstore/internal/domain"
)

func TestOutboxPublisher_Publish(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicCartEvents {
			return fmt.Errorf("unexpected topic %s", msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "session-123" {
			return fmt.Errorf("unexpected key %s", key)
		}
		value, _ := msg.Value.Encode()
		var envelope struct {
			EventType string          `json:"event_type"`
			Payload   json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(value, &envelope); err != nil {
			return err
		}
		if envelope.EventType != string(EventTypeCartItemAdded) || string(envelope.Payload) != `{"revision":1}` {
			return fmt.Errorf("unexpected envelope %+v", envelope)
		}
		return nil
	})

	producer := newProducer(mockProducer, log.WithField("component", "kafka-outbox-publisher-test"))
	publisher := NewOutboxPublisher(producer, "")

	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: AggregateTypeCart,
		AggregateID:   "session-123",
		EventType:     string(EventTypeCartItemAdded),
		Payload:       []byte(`{"revision":1}`),
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishProducerError(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	producer := newProducer(mockProducer, log.WithField("component", "kafka-outbox-publisher-test"))
	publisher := NewOutboxPublisher(producer, TopicCartEvents)

	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-2",
		AggregateType: AggregateTypeCart,
		AggregateID:   "session-234",
		EventType:     string(EventTypeCartCleared),
		Payload:       []byte(`{"revision":2}`),
	})
	if err == nil {
		t.Fatal("expected publish error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishInvalidPayload(t *testing.T) {
	t.Parallel()

	producer := newProducer(mocks.NewSyncProducer(t, nil), nil)
	publisher := NewOutboxPublisher(producer, TopicCartEvents)

	if err := publisher.Publish(domain.OutboxMessage{ID: "outbox-4", Payload: []byte("{broken")}); err == nil {
		t.Fatal("expected error for invalid json payload")
	}
}

func TestOutboxPublisher_PublishNilProducer(t *testing.T) {
	t.Parallel()

	publisher := NewOutboxPublisher(nil, TopicCartEvents)
	if err := publisher.Publish(domain.OutboxMessage{ID: "outbox-3"}); err == nil {
		t.Fatal("expected error for nil producer")
	}
}
