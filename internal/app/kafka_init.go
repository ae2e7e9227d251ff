package app

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cartstore/internal/messaging/kafka"
)

const kafkaClientID = "cartd"

// initKafkaProducer создаёт producer, если брокеры заданы.
// Пустой список брокеров означает работу без Kafka: nil, nil.
func initKafkaProducer(brokers []string, logger *log.Entry) (*kafka.Producer, error) {
	brokerList := normalizeBrokers(brokers)
	if len(brokerList) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokerList, kafkaClientID)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokerList).Info("kafka producer initialized")
	return producer, nil
}

// initCommandConsumer подписывает корзину на команды order.placed.
func initCommandConsumer(cfg Config, sessionID string, clearer kafka.CartClearer, dlq *kafka.Producer, logger *log.Entry) (*kafka.Consumer, error) {
	handler := kafka.NewOrderPlacedHandler(sessionID, clearer, logger.WithField("layer", "kafka-commands"))
	consumer, err := kafka.NewConsumerWithDLQ(
		normalizeBrokers(cfg.KafkaBrokers),
		cfg.KafkaGroupID+"-"+sessionID,
		[]string{cfg.KafkaCommandTopic},
		handler,
		dlq,
		cfg.OutboxMaxAttempts,
	)
	if err != nil {
		return nil, err
	}
	return consumer, nil
}

// closeKafka закрывает Kafka producer если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

func normalizeBrokers(brokers []string) []string {
	out := make([]string, 0, len(brokers))
	for _, broker := range brokers {
		for _, part := range strings.Split(broker, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
