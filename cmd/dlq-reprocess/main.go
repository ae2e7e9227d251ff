// dlq-reprocess просматривает DLQ корзины и возвращает записи туда, откуда они выпали:
// команды корзины в исходный topic, упавшие outbox-события в поток событий корзины.
// По умолчанию работает в режиме dry-run.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cartstore/internal/domain"
	"github.com/vladislavdragonenkov/cartstore/internal/messaging/kafka"
)

const (
	brokersEnv         = "CART_KAFKA_BROKERS"
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
)

// recordKind различает два вида записей в cart.dlq.
type recordKind string

const (
	kindCommand recordKind = "command"
	kindEvent   recordKind = "event"
)

// Причины пропуска записей в отчёте.
const (
	skipForeign  = "foreign"
	skipInvalid  = "invalid"
	skipFiltered = "filtered"
)

var errForeignRecord = errors.New("record does not belong to cart aggregate")

type config struct {
	brokers     []string
	sourceTopic string
	eventsTopic string
	kind        string
	sessionID   string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

// replayRecord — проверенная запись DLQ, готовая к повторной отправке.
type replayRecord struct {
	kind      recordKind
	sessionID string
	eventType string
	topic     string
	key       string
	value     []byte
	headers   map[string]string
}

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionConsumerSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

type replayProducer interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

type saramaConsumerAdapter struct {
	consumer sarama.Consumer
}

func (a saramaConsumerAdapter) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	return a.consumer.ConsumePartition(topic, partition, offset)
}

func (a saramaConsumerAdapter) Close() error {
	if a.consumer == nil {
		return nil
	}
	return a.consumer.Close()
}

var newReplayDependencies = func(cfg config) (offsetClient, partitionConsumerSource, replayProducer, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, consumerConfig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create kafka client: %w", err)
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	if !cfg.execute {
		return client, saramaConsumerAdapter{consumer: consumer}, nil, nil
	}

	producerConfig := sarama.NewConfig()
	producerConfig.Producer.RequiredAcks = sarama.WaitForAll
	producerConfig.Producer.Return.Successes = true
	producerConfig.Producer.Idempotent = true
	producerConfig.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(cfg.brokers, producerConfig)
	if err != nil {
		_ = consumer.Close()
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return client, saramaConsumerAdapter{consumer: consumer}, producer, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := readConfig(os.Args[1:], os.Getenv)
	if err != nil {
		log.WithError(err).Fatal("invalid dlq-reprocess arguments")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.WithError(err).Fatal("dlq replay failed")
	}
}

func readConfig(args []string, getenv func(string) string) (config, error) {
	fs := flag.NewFlagSet("dlq-reprocess", flag.ContinueOnError)

	var (
		cfg        config
		brokersRaw string
	)
	fs.StringVar(&brokersRaw, "brokers", "", "Kafka brokers, comma-separated (fallback: "+brokersEnv+")")
	fs.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ topic to scan")
	fs.StringVar(&cfg.eventsTopic, "events-topic", kafka.TopicCartEvents, "topic for replayed cart events")
	fs.StringVar(&cfg.kind, "kind", "all", "records to replay: all | command | event")
	fs.StringVar(&cfg.sessionID, "session", "", "replay only records of this cart session")
	fs.IntVar(&cfg.limit, "limit", defaultReplayLimit, "max number of DLQ records to scan")
	fs.BoolVar(&cfg.execute, "execute", false, "publish records; without it only candidates are logged")
	fs.BoolVar(&cfg.fromNewest, "from-newest", false, "scan the newest records of each partition")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "stop reading a partition after this idle period")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = getenv(brokersEnv)
	}
	for _, broker := range strings.Split(brokersRaw, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			cfg.brokers = append(cfg.brokers, broker)
		}
	}
	cfg.sessionID = strings.TrimSpace(cfg.sessionID)

	switch {
	case len(cfg.brokers) == 0:
		return config{}, fmt.Errorf("kafka brokers are required (-brokers or %s)", brokersEnv)
	case strings.TrimSpace(cfg.sourceTopic) == "":
		return config{}, errors.New("source-topic is required")
	case strings.TrimSpace(cfg.eventsTopic) == "":
		return config{}, errors.New("events-topic is required")
	case cfg.kind != "all" && cfg.kind != string(kindCommand) && cfg.kind != string(kindEvent):
		return config{}, fmt.Errorf("unknown kind %q", cfg.kind)
	case cfg.limit <= 0:
		return config{}, errors.New("limit must be > 0")
	case cfg.idleTimeout <= 0:
		return config{}, errors.New("idle-timeout must be > 0")
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config) error {
	client, consumer, producer, err := newReplayDependencies(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if producer != nil {
			_ = producer.Close()
		}
		if consumer != nil {
			_ = consumer.Close()
		}
		if client != nil {
			_ = client.Close()
		}
	}()

	r, err := newReplayer(cfg, client, consumer, producer)
	if err != nil {
		return err
	}
	report, err := r.run(ctx)
	if err != nil {
		return err
	}
	report.logTo(r.logger, cfg.execute)
	return nil
}

// replayReport — итог прохода по DLQ.
type replayReport struct {
	scanned  int
	replayed map[recordKind]int
	skipped  map[string]int
}

func (r replayReport) logTo(logger *log.Entry, execute bool) {
	mode := "dry-run"
	if execute {
		mode = "execute"
	}
	logger.WithFields(log.Fields{
		"mode":             mode,
		"scanned":          r.scanned,
		"replayed_command": r.replayed[kindCommand],
		"replayed_event":   r.replayed[kindEvent],
		"skipped_foreign":  r.skipped[skipForeign],
		"skipped_invalid":  r.skipped[skipInvalid],
		"skipped_filtered": r.skipped[skipFiltered],
	}).Info("dlq replay finished")
}

type replayer struct {
	cfg      config
	client   offsetClient
	consumer partitionConsumerSource
	producer replayProducer
	logger   *log.Entry
	report   replayReport
}

func newReplayer(cfg config, client offsetClient, consumer partitionConsumerSource, producer replayProducer) (*replayer, error) {
	if client == nil || consumer == nil {
		return nil, errors.New("kafka client and consumer are required")
	}
	if cfg.execute && producer == nil {
		return nil, errors.New("producer is required with -execute")
	}
	return &replayer{
		cfg:      cfg,
		client:   client,
		consumer: consumer,
		producer: producer,
		logger:   log.WithField("component", "dlq-reprocess"),
		report: replayReport{
			replayed: make(map[recordKind]int),
			skipped:  make(map[string]int),
		},
	}, nil
}

func (r *replayer) run(ctx context.Context) (replayReport, error) {
	partitions, err := r.client.Partitions(r.cfg.sourceTopic)
	if err != nil {
		return r.report, fmt.Errorf("list partitions of %s: %w", r.cfg.sourceTopic, err)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		budget := r.cfg.limit - r.report.scanned
		if budget <= 0 {
			break
		}
		if err := r.scanPartition(ctx, partition, budget); err != nil {
			return r.report, err
		}
	}
	return r.report, nil
}

// scanPartition читает не более budget записей из окна [start, newest) партиции.
func (r *replayer) scanPartition(ctx context.Context, partition int32, budget int) error {
	oldest, err := r.client.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return fmt.Errorf("oldest offset of partition %d: %w", partition, err)
	}
	newest, err := r.client.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return fmt.Errorf("newest offset of partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return nil
	}

	start := oldest
	if r.cfg.fromNewest && newest-int64(budget) > oldest {
		start = newest - int64(budget)
	}

	pc, err := r.consumer.ConsumePartition(r.cfg.sourceTopic, partition, start)
	if err != nil {
		return fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	for scanned := 0; scanned < budget; scanned++ {
		msg, err := nextMessage(ctx, pc, r.cfg.idleTimeout)
		if err != nil {
			return fmt.Errorf("partition %d: %w", partition, err)
		}
		if msg == nil || msg.Offset >= newest {
			return nil
		}

		r.report.scanned++
		if err := r.handle(msg); err != nil {
			return err
		}
		if msg.Offset+1 >= newest {
			return nil
		}
	}
	return nil
}

// nextMessage возвращает nil, если партиция закрыта или молчит дольше idle.
func nextMessage(ctx context.Context, pc partitionConsumer, idle time.Duration) (*sarama.ConsumerMessage, error) {
	timer := time.NewTimer(idle)
	defer timer.Stop()

	errs := pc.Errors()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case cerr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if cerr != nil {
				return nil, cerr
			}
		case msg, ok := <-pc.Messages():
			if !ok {
				return nil, nil
			}
			return msg, nil
		case <-timer.C:
			return nil, nil
		}
	}
}

func (r *replayer) handle(msg *sarama.ConsumerMessage) error {
	fields := log.Fields{"partition": msg.Partition, "offset": msg.Offset}

	rec, err := decodeRecord(msg, r.cfg.eventsTopic)
	switch {
	case errors.Is(err, errForeignRecord):
		r.report.skipped[skipForeign]++
		return nil
	case err != nil:
		r.report.skipped[skipInvalid]++
		r.logger.WithError(err).WithFields(fields).Warn("skip invalid dlq record")
		return nil
	}

	if !r.accepts(rec) {
		r.report.skipped[skipFiltered]++
		return nil
	}

	fields["kind"] = rec.kind
	fields["session_id"] = rec.sessionID
	fields["event_type"] = rec.eventType
	fields["target_topic"] = rec.topic

	if !r.cfg.execute {
		r.logger.WithFields(fields).Info("dlq replay candidate")
		r.report.replayed[rec.kind]++
		return nil
	}
	if err := publishReplay(r.producer, rec); err != nil {
		return fmt.Errorf("replay %s for session %s: %w", rec.eventType, rec.sessionID, err)
	}
	r.logger.WithFields(fields).Debug("dlq record replayed")
	r.report.replayed[rec.kind]++
	return nil
}

func (r *replayer) accepts(rec replayRecord) bool {
	if r.cfg.kind != "" && r.cfg.kind != "all" && r.cfg.kind != string(rec.kind) {
		return false
	}
	return r.cfg.sessionID == "" || r.cfg.sessionID == rec.sessionID
}

// decodeRecord разбирает запись DLQ. Команду, отбракованную consumer'ом, выдаёт заголовок
// x-original-topic; всё остальное должно быть outbox-событием корзины в DLQ-обёртке.
func decodeRecord(msg *sarama.ConsumerMessage, eventsTopic string) (replayRecord, error) {
	if topic := headerValue(msg, kafka.HeaderOriginalTopic); topic != "" {
		return decodeCommand(msg, topic)
	}
	return decodeOutboxEvent(msg.Value, eventsTopic)
}

func decodeCommand(msg *sarama.ConsumerMessage, topic string) (replayRecord, error) {
	cmd, err := kafka.ParseOrderPlacedCommand(msg)
	if err != nil {
		return replayRecord{}, err
	}
	if cmd.EventType != kafka.EventTypeOrderPlaced {
		return replayRecord{}, fmt.Errorf("unsupported command %q", cmd.EventType)
	}
	if cmd.SessionID == "" {
		return replayRecord{}, errors.New("command has no session_id")
	}

	key := string(msg.Key)
	if key == "" {
		key = cmd.SessionID
	}
	// Счётчик retry не переносится: повторная доставка начинает попытки заново.
	return replayRecord{
		kind:      kindCommand,
		sessionID: cmd.SessionID,
		eventType: string(cmd.EventType),
		topic:     topic,
		key:       key,
		value:     msg.Value,
	}, nil
}

func decodeOutboxEvent(value []byte, eventsTopic string) (replayRecord, error) {
	var envelope kafka.OutboxEnvelope
	if err := json.Unmarshal(value, &envelope); err != nil {
		return replayRecord{}, fmt.Errorf("decode outbox envelope: %w", err)
	}
	if envelope.AggregateType != kafka.AggregateTypeCart {
		return replayRecord{}, fmt.Errorf("%w: %q", errForeignRecord, envelope.AggregateType)
	}

	var dlq domain.OutboxDLQRecord
	if err := json.Unmarshal(envelope.Payload, &dlq); err != nil {
		return replayRecord{}, fmt.Errorf("decode dlq record: %w", err)
	}
	if len(dlq.Payload) == 0 || string(dlq.Payload) == "null" {
		return replayRecord{}, errors.New("dlq record has no cart event")
	}

	var event kafka.CartEvent
	if err := json.Unmarshal(dlq.Payload, &event); err != nil {
		return replayRecord{}, fmt.Errorf("decode cart event: %w", err)
	}
	if !event.EventType.IsCartEvent() {
		return replayRecord{}, fmt.Errorf("unsupported cart event %q", event.EventType)
	}
	if event.SessionID == "" {
		return replayRecord{}, errors.New("cart event has no session_id")
	}
	if dlq.AggregateID != "" && dlq.AggregateID != event.SessionID {
		return replayRecord{}, fmt.Errorf("aggregate %q does not match session %q", dlq.AggregateID, event.SessionID)
	}

	replay, err := json.Marshal(kafka.OutboxEnvelope{
		ID:            dlq.OutboxID,
		AggregateType: kafka.AggregateTypeCart,
		AggregateID:   event.SessionID,
		EventType:     string(event.EventType),
		Payload:       dlq.Payload,
		PublishedAt:   time.Now().UTC(),
	})
	if err != nil {
		return replayRecord{}, fmt.Errorf("encode replay envelope: %w", err)
	}

	return replayRecord{
		kind:      kindEvent,
		sessionID: event.SessionID,
		eventType: string(event.EventType),
		topic:     eventsTopic,
		key:       event.SessionID,
		value:     replay,
		headers:   map[string]string{kafka.HeaderEventType: string(event.EventType)},
	}, nil
}

func publishReplay(producer replayProducer, rec replayRecord) error {
	if producer == nil {
		return errors.New("producer is nil")
	}

	msg := &sarama.ProducerMessage{
		Topic:     rec.topic,
		Key:       sarama.StringEncoder(rec.key),
		Value:     sarama.ByteEncoder(rec.value),
		Timestamp: time.Now().UTC(),
	}
	for key, value := range rec.headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(key), Value: []byte(value)})
	}

	_, _, err := producer.SendMessage(msg)
	return err
}

func headerValue(msg *sarama.ConsumerMessage, key string) string {
	for _, header := range msg.Headers {
		if header != nil && string(header.Key) == key {
			return strings.TrimSpace(string(header.Value))
		}
	}
	return ""
}
