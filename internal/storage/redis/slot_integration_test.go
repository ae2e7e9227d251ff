package redis

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/cartstore/internal/domain"
)

const defaultLocalRedisAddr = "localhost:6379"

func openRedisForIntegrationTest(t *testing.T) *redis.Client {
	t.Helper()

	addr := strings.TrimSpace(os.Getenv("CART_REDIS_TEST_ADDR"))
	if addr == "" {
		addr = defaultLocalRedisAddr
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := NewClient(ctx, Config{Addr: addr})
	if err != nil {
		t.Skipf("redis is not available for integration tests: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func TestSlotIntegration_SaveLoadDelete(t *testing.T) {
	client := openRedisForIntegrationTest(t)
	key := domain.SlotKey("it-" + uuid.NewString())
	slot := NewSlot(client, key, nil)
	ctx := context.Background()
	t.Cleanup(func() { _ = client.Del(context.Background(), key).Err() })

	_, err := slot.Load(ctx)
	require.ErrorIs(t, err, domain.ErrSlotEmpty)

	require.NoError(t, slot.Save(ctx, []byte(`{"version":1,"lines":[]}`)))
	data, err := slot.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"version":1,"lines":[]}`, string(data))

	require.NoError(t, slot.Delete(ctx))
	_, err = slot.Load(ctx)
	assert.ErrorIs(t, err, domain.ErrSlotEmpty)
	assert.NoError(t, slot.Ping(ctx))
}

func TestSlotIntegration_WatchIgnoresOwnWrites(t *testing.T) {
	client := openRedisForIntegrationTest(t)
	key := domain.SlotKey("it-" + uuid.NewString())
	t.Cleanup(func() { _ = client.Del(context.Background(), key).Err() })

	watcher := NewSlot(client, key, nil)
	other := NewSlot(client, key, nil)
	require.NotEqual(t, watcher.Origin(), other.Origin())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan struct{}, 4)
	done := make(chan error, 1)
	go func() {
		done <- watcher.Watch(ctx, func() { changes <- struct{}{} })
	}()

	// Подписка устанавливается асинхронно: ждём, пока канал появится на сервере.
	require.Eventually(t, func() bool {
		counts, err := client.PubSubNumSub(context.Background(), ChangeChannel(key)).Result()
		return err == nil && counts[ChangeChannel(key)] > 0
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, watcher.Save(context.Background(), []byte("own")))
	require.NoError(t, other.Save(context.Background(), []byte("foreign")))

	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("expected change notification from another instance")
	}
	select {
	case <-changes:
		t.Fatal("own write must not be reported")
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	assert.NoError(t, <-done)
}

func TestChangeChannel(t *testing.T) {
	assert.Equal(t, "cart:v1:s1:changed", ChangeChannel(domain.SlotKey("s1")))
}
