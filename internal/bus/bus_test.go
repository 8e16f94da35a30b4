package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a connected Bus.
func setupRedis(t *testing.T) (*Bus, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor: wait.ForListeningPort("6379/tcp").
			WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	b, err := Connect(ctx, fmt.Sprintf("%s:%s", host, port.Port()))
	require.NoError(t, err)

	cleanup := func() {
		b.Close()
		_ = container.Terminate(ctx)
	}
	return b, cleanup
}

type collector struct {
	mu   sync.Mutex
	msgs []*Message
}

func (c *collector) handle(_ context.Context, msg *Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func TestBus_PublishAndConsume(t *testing.T) {
	b, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	col := &collector{}

	consumer := NewConsumer(b, "topic-basic", col.handle, ConsumerOptions{
		Group: "g1", Name: "c1",
	})
	require.NoError(t, consumer.Start(ctx))
	defer consumer.Stop()

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Publish(ctx, "topic-basic", []byte(fmt.Sprintf(`{"n":%d}`, i))))
	}

	require.Eventually(t, func() bool {
		return col.len() == 3
	}, 10*time.Second, 50*time.Millisecond)

	// All delivered messages acked
	require.Eventually(t, func() bool {
		pending, err := b.client.XPending(ctx, "topic-basic", "g1").Result()
		return err == nil && pending.Count == 0
	}, 5*time.Second, 50*time.Millisecond)
}

func TestBus_RetryThenDeadLetter(t *testing.T) {
	b, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()

	var mu sync.Mutex
	attempts := 0
	failing := func(_ context.Context, _ *Message) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return errors.New("handler broken")
	}

	consumer := NewConsumer(b, "topic-retry", failing, ConsumerOptions{
		Group: "g1", Name: "c1", MaxRetries: 2,
	})
	require.NoError(t, consumer.Start(ctx))
	defer consumer.Stop()

	require.NoError(t, b.Publish(ctx, "topic-retry", []byte(`{"doomed":true}`)))

	// Original + 2 retries, then parked
	var dead []redis.XMessage
	require.Eventually(t, func() bool {
		var err error
		dead, err = b.DeadLetters(ctx, "topic-retry", 10)
		return err == nil && len(dead) == 1
	}, 10*time.Second, 50*time.Millisecond)

	assert.Equal(t, "handler broken", dead[0].Values["error"])
	assert.Equal(t, `{"doomed":true}`, dead[0].Values["data"])
	assert.NotEmpty(t, dead[0].Values["original_id"])

	mu.Lock()
	assert.Equal(t, 3, attempts)
	mu.Unlock()

	// Dead-lettered messages are terminal: no further attempts
	time.Sleep(500 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 3, attempts)
	mu.Unlock()
}

func TestBus_ExpiredMessageDeadLetters(t *testing.T) {
	b, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()

	// Inject a message whose producer timestamp is far in the past
	err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: "topic-old",
		Values: map[string]interface{}{
			"data":        `{"stale":true}`,
			"timestamp":   time.Now().Add(-time.Minute).Unix(),
			"retry_count": 0,
		},
	}).Err()
	require.NoError(t, err)

	var handled bool
	var mu sync.Mutex
	consumer := NewConsumer(b, "topic-old", func(_ context.Context, _ *Message) error {
		mu.Lock()
		handled = true
		mu.Unlock()
		return nil
	}, ConsumerOptions{Group: "g1", Name: "c1", MaxAge: 15 * time.Second})
	require.NoError(t, consumer.Start(ctx))
	defer consumer.Stop()

	require.Eventually(t, func() bool {
		dead, err := b.DeadLetters(ctx, "topic-old", 10)
		return err == nil && len(dead) == 1
	}, 10*time.Second, 50*time.Millisecond)

	mu.Lock()
	assert.False(t, handled, "expired message must not reach the handler")
	mu.Unlock()

	// Original removed from the live stream
	entries, err := b.client.XRange(ctx, "topic-old", "-", "+").Result()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBus_ReplayDead(t *testing.T) {
	b, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()

	failing := func(_ context.Context, _ *Message) error {
		return errors.New("still broken")
	}
	consumer := NewConsumer(b, "topic-replay", failing, ConsumerOptions{
		Group: "g1", Name: "c1", MaxRetries: 1,
	})
	require.NoError(t, consumer.Start(ctx))

	require.NoError(t, b.Publish(ctx, "topic-replay", []byte(`{"v":1}`)))

	require.Eventually(t, func() bool {
		dead, err := b.DeadLetters(ctx, "topic-replay", 10)
		return err == nil && len(dead) == 1
	}, 10*time.Second, 50*time.Millisecond)
	consumer.Stop()

	n, err := b.ReplayDead(ctx, "topic-replay", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	dead, err := b.DeadLetters(ctx, "topic-replay", 10)
	require.NoError(t, err)
	assert.Empty(t, dead)

	// A healthy consumer in a fresh group picks the replayed copy up
	col := &collector{}
	healthy := NewConsumer(b, "topic-replay", col.handle, ConsumerOptions{
		Group: "g2", Name: "c1",
	})
	require.NoError(t, healthy.Start(ctx))
	defer healthy.Stop()

	require.Eventually(t, func() bool {
		return col.len() >= 1
	}, 10*time.Second, 50*time.Millisecond)
}

func TestBus_PendingRedeliveredBeforeNew(t *testing.T) {
	b, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()

	require.NoError(t, b.Publish(ctx, "topic-pending", []byte(`{"v":"pending"}`)))

	// Simulate a consumer that received the message and died before ack
	require.NoError(t, b.client.XGroupCreateMkStream(ctx, "topic-pending", "g1", "0").Err())
	_, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    "g1",
		Consumer: "c1",
		Streams:  []string{"topic-pending", ">"},
		Count:    10,
		Block:    -1,
	}).Result()
	require.NoError(t, err)

	col := &collector{}
	consumer := NewConsumer(b, "topic-pending", col.handle, ConsumerOptions{
		Group: "g1", Name: "c1",
	})
	require.NoError(t, consumer.Start(ctx))
	defer consumer.Stop()

	require.Eventually(t, func() bool {
		return col.len() == 1
	}, 10*time.Second, 50*time.Millisecond)
	assert.Equal(t, []byte(`{"v":"pending"}`), col.msgs[0].Data)
}

func TestBus_FailureDoesNotBlockSiblings(t *testing.T) {
	b, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()

	col := &collector{}
	handler := func(hctx context.Context, msg *Message) error {
		if string(msg.Data) == "poison" {
			// Slow failure must not stall the healthy messages
			time.Sleep(300 * time.Millisecond)
			return errors.New("poison")
		}
		return col.handle(hctx, msg)
	}

	consumer := NewConsumer(b, "topic-iso", handler, ConsumerOptions{
		Group: "g1", Name: "c1", MaxRetries: 1, Concurrency: 4,
	})
	require.NoError(t, consumer.Start(ctx))
	defer consumer.Stop()

	require.NoError(t, b.Publish(ctx, "topic-iso", []byte("poison")))
	for i := 0; i < 3; i++ {
		require.NoError(t, b.Publish(ctx, "topic-iso", []byte(fmt.Sprintf("ok-%d", i))))
	}

	require.Eventually(t, func() bool {
		return col.len() == 3
	}, 10*time.Second, 50*time.Millisecond)
}
