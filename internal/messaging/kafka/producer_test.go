package kafka

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
)

func TestProducer_PublishEvent(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := newProducer(mockProducer, log.WithField("component", "kafka-producer-test"))

	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, _ := msg.Key.Encode()
		if string(key) != "session-1" {
			return fmt.Errorf("unexpected key %s", key)
		}
		value, _ := msg.Value.Encode()
		var cmd OrderPlacedCommand
		if err := json.Unmarshal(value, &cmd); err != nil {
			return err
		}
		if cmd.OrderID != "order-1" {
			return fmt.Errorf("unexpected order id %s", cmd.OrderID)
		}
		return nil
	})

	err := producer.PublishEvent(TopicCartCommands, "session-1", NewOrderPlacedCommand("session-1", "order-1"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_Error(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := newProducer(mockProducer, log.WithField("component", "kafka-producer-test"))

	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := producer.PublishEvent(TopicCartEvents, "session-1", map[string]string{"event_type": "cart.cleared"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_MarshalError(t *testing.T) {
	producer := newProducer(mocks.NewSyncProducer(t, nil), nil)

	if err := producer.PublishEvent(TopicCartEvents, "k", make(chan int)); err == nil {
		t.Fatal("expected marshal error")
	}
}

func TestProducer_PublishRawHeaders(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := newProducer(mockProducer, nil)

	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if len(msg.Headers) != 1 || string(msg.Headers[0].Key) != HeaderEventType {
			return fmt.Errorf("unexpected headers %v", msg.Headers)
		}
		return nil
	})

	if err := producer.PublishRaw(TopicCartEvents, "k", []byte("{}"), map[string]string{HeaderEventType: "cart.cleared"}); err != nil {
		t.Fatalf("publish raw failed: %v", err)
	}
	if err := producer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_NilGuards(t *testing.T) {
	var producer *Producer

	if err := producer.PublishRaw(TopicCartEvents, "k", nil, nil); err == nil {
		t.Fatal("expected error for nil producer")
	}
	if err := producer.Close(); err != nil {
		t.Fatalf("close nil producer should not fail: %v", err)
	}
}

func TestNewProducerInvalidBroker(t *testing.T) {
	if _, err := NewProducer([]string{"invalid-broker:9092"}, "cartd"); err == nil {
		t.Fatal("expected error for unreachable broker")
	}
}
