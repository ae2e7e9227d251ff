package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cartstore/internal/domain"
)

// Slot хранит состояние корзины в Redis и публикует уведомление о каждой записи.
// В уведомлении лежит origin экземпляра: собственные записи Watch пропускает.
type Slot struct {
	client  *redis.Client
	key     string
	channel string
	origin  string
	logger  *log.Entry
}

// NewSlot создаёт ячейку с ключом key.
func NewSlot(client *redis.Client, key string, logger *log.Entry) *Slot {
	if logger == nil {
		logger = log.WithField("component", "redis-slot")
	}
	return &Slot{
		client:  client,
		key:     key,
		channel: ChangeChannel(key),
		origin:  uuid.NewString(),
		logger:  logger.WithField("key", key),
	}
}

// ChangeChannel — имя pub/sub канала для уведомлений о записи в ключ.
func ChangeChannel(key string) string {
	return key + ":changed"
}

// Origin возвращает идентификатор экземпляра, которым помечаются уведомления.
func (s *Slot) Origin() string {
	return s.origin
}

func (s *Slot) Load(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSlotEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", domain.ErrSlotUnavailable, s.key, err)
	}
	return data, nil
}

func (s *Slot) Save(ctx context.Context, payload []byte) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key, payload, 0)
		pipe.Publish(ctx, s.channel, s.origin)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: set %s: %v", domain.ErrSlotUnavailable, s.key, err)
	}
	return nil
}

func (s *Slot) Delete(ctx context.Context) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		pipe.Publish(ctx, s.channel, s.origin)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: del %s: %v", domain.ErrSlotUnavailable, s.key, err)
	}
	return nil
}

// Watch подписывается на канал изменений и вызывает onChange на каждую запись другого экземпляра.
// Блокируется до отмены ctx.
func (s *Slot) Watch(ctx context.Context, onChange func()) error {
	sub := s.client.Subscribe(ctx, s.channel)
	defer func() {
		_ = sub.Close()
	}()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	s.logger.WithField("channel", s.channel).Info("watching cart slot changes")

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if msg.Payload == s.origin {
				continue
			}
			s.logger.WithField("origin", msg.Payload).Debug("cart slot changed by another instance")
			onChange()
		}
	}
}

// Ping проверяет доступность Redis.
func (s *Slot) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

var (
	_ domain.Slot        = (*Slot)(nil)
	_ domain.SlotWatcher = (*Slot)(nil)
	_ domain.Pinger      = (*Slot)(nil)
)
