// Package bus is a Redis Streams event bus. Producers append JSON
// payloads with XADD; consumer groups read with explicit acks, retry
// with a bounded count and park poison messages on a dead-letter
// stream next to the topic.
package bus

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"solana-copytrader/internal/observability"
)

// Topics carried by the bus.
const (
	TopicTradeEvent = "trade_event"
	TopicSwapEvent  = "swap_event"
	TopicSwapResult = "swap_result"
)

// DeadLetterSuffix is appended to a topic to form its dead-letter stream.
const DeadLetterSuffix = ":dead"

// FailedSuffix is appended to a topic to form the list of payloads
// that could not be published at all.
const FailedSuffix = ":failed"

// Message is one entry read from a stream.
type Message struct {
	ID         string
	Data       []byte
	Timestamp  int64 // producer clock, unix seconds
	RetryCount int
}

// Bus publishes to and consumes from Redis Streams.
type Bus struct {
	client *redis.Client
}

// New creates a Bus over an existing Redis client.
func New(client *redis.Client) *Bus {
	return &Bus{client: client}
}

// Connect dials Redis and verifies the connection.
func Connect(ctx context.Context, addr string) (*Bus, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Bus{client: client}, nil
}

// Close releases the underlying client.
func (b *Bus) Close() error {
	return b.client.Close()
}

// Publish appends a payload to a topic stream.
func (b *Bus) Publish(ctx context.Context, topic string, data []byte) error {
	return b.publish(ctx, topic, data, 0)
}

func (b *Bus) publish(ctx context.Context, topic string, data []byte, retryCount int) error {
	err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		Values: map[string]interface{}{
			"data":        data,
			"timestamp":   time.Now().Unix(),
			"retry_count": retryCount,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", topic, err)
	}
	observability.RecordBusPublish(topic)
	return nil
}

// PushFailed stashes a payload that could not be published onto the
// topic's failed list so it is never dropped.
func (b *Bus) PushFailed(ctx context.Context, topic string, data []byte) error {
	if err := b.client.LPush(ctx, topic+FailedSuffix, data).Err(); err != nil {
		return fmt.Errorf("lpush %s%s: %w", topic, FailedSuffix, err)
	}
	return nil
}

// PopFailed removes and returns one stashed payload, oldest first.
// Returns nil when the list is empty.
func (b *Bus) PopFailed(ctx context.Context, topic string) ([]byte, error) {
	data, err := b.client.RPop(ctx, topic+FailedSuffix).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("rpop %s%s: %w", topic, FailedSuffix, err)
	}
	return data, nil
}

// DeadLetters returns up to count entries from a topic's dead-letter stream.
func (b *Bus) DeadLetters(ctx context.Context, topic string, count int64) ([]redis.XMessage, error) {
	msgs, err := b.client.XRangeN(ctx, topic+DeadLetterSuffix, "-", "+", count).Result()
	if err != nil {
		return nil, fmt.Errorf("xrange %s%s: %w", topic, DeadLetterSuffix, err)
	}
	return msgs, nil
}

// ReplayDead moves up to count dead-letter entries back onto the live
// topic with a fresh retry budget. Returns the number replayed.
func (b *Bus) ReplayDead(ctx context.Context, topic string, count int64) (int, error) {
	dead := topic + DeadLetterSuffix
	msgs, err := b.client.XRangeN(ctx, dead, "-", "+", count).Result()
	if err != nil {
		return 0, fmt.Errorf("xrange %s: %w", dead, err)
	}

	replayed := 0
	for _, m := range msgs {
		data, ok := m.Values["data"].(string)
		if !ok {
			// Entry recorded without payload; nothing to replay.
			if err := b.client.XDel(ctx, dead, m.ID).Err(); err != nil {
				return replayed, fmt.Errorf("xdel %s %s: %w", dead, m.ID, err)
			}
			continue
		}
		if err := b.publish(ctx, topic, []byte(data), 0); err != nil {
			return replayed, err
		}
		if err := b.client.XDel(ctx, dead, m.ID).Err(); err != nil {
			return replayed, fmt.Errorf("xdel %s %s: %w", dead, m.ID, err)
		}
		replayed++
	}
	return replayed, nil
}

func parseMessage(m redis.XMessage) *Message {
	msg := &Message{ID: m.ID}
	if s, ok := m.Values["data"].(string); ok {
		msg.Data = []byte(s)
	}
	if s, ok := m.Values["timestamp"].(string); ok {
		msg.Timestamp, _ = strconv.ParseInt(s, 10, 64)
	}
	if s, ok := m.Values["retry_count"].(string); ok {
		msg.RetryCount, _ = strconv.Atoi(s)
	}
	return msg
}
