package bus

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"solana-copytrader/internal/observability"
)

// Handler processes one message. A nil return acks the message; an
// error re-enqueues it until the retry budget runs out.
type Handler func(ctx context.Context, msg *Message) error

// ConsumerOptions configures a stream consumer.
type ConsumerOptions struct {
	Group        string
	Name         string        // consumer name within the group
	MaxAge       time.Duration // older messages go straight to dead-letter
	MaxRetries   int           // re-enqueues before dead-letter
	Concurrency  int           // max handlers in flight
	BlockTimeout time.Duration // XREADGROUP block per poll
	StopGrace    time.Duration // drain budget on Stop
}

// DefaultConsumerOptions returns production defaults for a group.
func DefaultConsumerOptions(group, name string) ConsumerOptions {
	return ConsumerOptions{
		Group:        group,
		Name:         name,
		MaxAge:       15 * time.Second,
		MaxRetries:   3,
		Concurrency:  10,
		BlockTimeout: 2 * time.Second,
		StopGrace:    5 * time.Second,
	}
}

// Consumer reads one topic on behalf of one consumer group.
// Pending (delivered, unacked) messages are reprocessed before new
// ones, so a crash between delivery and ack redelivers.
type Consumer struct {
	bus     *Bus
	topic   string
	handler Handler
	opts    ConsumerOptions

	sem chan struct{}
	wg  sync.WaitGroup

	cancelLoop     context.CancelFunc
	cancelHandlers context.CancelFunc
	stopOnce       sync.Once
}

// NewConsumer creates a consumer for a topic. Zero option fields take
// the defaults.
func NewConsumer(b *Bus, topic string, handler Handler, opts ConsumerOptions) *Consumer {
	def := DefaultConsumerOptions(opts.Group, opts.Name)
	if opts.MaxAge == 0 {
		opts.MaxAge = def.MaxAge
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = def.MaxRetries
	}
	if opts.Concurrency == 0 {
		opts.Concurrency = def.Concurrency
	}
	if opts.BlockTimeout == 0 {
		opts.BlockTimeout = def.BlockTimeout
	}
	if opts.StopGrace == 0 {
		opts.StopGrace = def.StopGrace
	}

	return &Consumer{
		bus:     b,
		topic:   topic,
		handler: handler,
		opts:    opts,
		sem:     make(chan struct{}, opts.Concurrency),
	}
}

// Start ensures the consumer group exists and begins reading.
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}

	loopCtx, cancelLoop := context.WithCancel(context.Background())
	handlerCtx, cancelHandlers := context.WithCancel(context.Background())
	c.cancelLoop = cancelLoop
	c.cancelHandlers = cancelHandlers

	go c.run(loopCtx, handlerCtx)
	return nil
}

// Stop halts reading and drains in-flight handlers. Handlers still
// running when the grace period elapses are cancelled.
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() {
		if c.cancelLoop == nil {
			return
		}
		c.cancelLoop()

		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(c.opts.StopGrace):
			log.Printf("[bus] %s/%s: drain grace elapsed, cancelling in-flight handlers", c.topic, c.opts.Group)
			c.cancelHandlers()
			<-done
		}
		c.cancelHandlers()
	})
}

func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.bus.client.XGroupCreateMkStream(ctx, c.topic, c.opts.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (c *Consumer) run(loopCtx, handlerCtx context.Context) {
	// Recover messages delivered to this consumer but never acked
	// before reading anything new.
	c.processPending(loopCtx, handlerCtx)

	for {
		select {
		case <-loopCtx.Done():
			return
		default:
		}

		streams, err := c.bus.client.XReadGroup(loopCtx, &redis.XReadGroupArgs{
			Group:    c.opts.Group,
			Consumer: c.opts.Name,
			Streams:  []string{c.topic, ">"},
			Count:    32,
			Block:    c.opts.BlockTimeout,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			log.Printf("[bus] %s/%s: read: %v", c.topic, c.opts.Group, err)
			select {
			case <-loopCtx.Done():
				return
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}

		c.dispatch(handlerCtx, streams)
	}
}

// processPending reads the group's pending entries for this consumer
// (XREADGROUP with id "0") until the backlog is empty.
func (c *Consumer) processPending(loopCtx, handlerCtx context.Context) {
	for {
		select {
		case <-loopCtx.Done():
			return
		default:
		}

		streams, err := c.bus.client.XReadGroup(loopCtx, &redis.XReadGroupArgs{
			Group:    c.opts.Group,
			Consumer: c.opts.Name,
			Streams:  []string{c.topic, "0"},
			Count:    32,
			Block:    -1,
		}).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) {
				log.Printf("[bus] %s/%s: read pending: %v", c.topic, c.opts.Group, err)
			}
			return
		}

		total := 0
		for _, s := range streams {
			total += len(s.Messages)
		}
		if total == 0 {
			return
		}

		c.dispatch(handlerCtx, streams)
	}
}

func (c *Consumer) dispatch(ctx context.Context, streams []redis.XStream) {
	for _, s := range streams {
		for _, raw := range s.Messages {
			msg := parseMessage(raw)

			select {
			case c.sem <- struct{}{}:
			case <-ctx.Done():
				return
			}

			c.wg.Add(1)
			go func() {
				defer c.wg.Done()
				defer func() { <-c.sem }()
				c.handleOne(ctx, msg)
			}()
		}
	}
}

// handleOne runs the handler and settles the message: ack on success,
// re-enqueue with an incremented retry count on failure, dead-letter
// when expired or out of retries. A failed message never blocks its
// siblings; each runs in its own goroutine.
func (c *Consumer) handleOne(ctx context.Context, msg *Message) {
	if msg.Timestamp > 0 {
		age := time.Since(time.Unix(msg.Timestamp, 0))
		if age > c.opts.MaxAge {
			c.deadLetter(ctx, msg, "expired after "+age.Truncate(time.Second).String())
			return
		}
	}

	err := c.handler(ctx, msg)
	if err == nil {
		c.ack(ctx, msg.ID)
		return
	}

	if msg.RetryCount >= c.opts.MaxRetries {
		c.deadLetter(ctx, msg, err.Error())
		return
	}

	log.Printf("[bus] %s/%s: handler failed (retry %d): %v", c.topic, c.opts.Group, msg.RetryCount+1, err)
	if pubErr := c.bus.publish(ctx, c.topic, msg.Data, msg.RetryCount+1); pubErr != nil {
		// Leave unacked so pending redelivery retries it.
		log.Printf("[bus] %s/%s: re-enqueue %s: %v", c.topic, c.opts.Group, msg.ID, pubErr)
		return
	}
	c.ack(ctx, msg.ID)
}

// deadLetter parks a message on the topic's dead stream, then acks and
// deletes the original. Dead-lettered messages are terminal until an
// operator replays them.
func (c *Consumer) deadLetter(ctx context.Context, msg *Message, reason string) {
	err := c.bus.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.topic + DeadLetterSuffix,
		Values: map[string]interface{}{
			"original_id": msg.ID,
			"error":       reason,
			"ts":          time.Now().Unix(),
			"data":        msg.Data,
		},
	}).Err()
	if err != nil {
		log.Printf("[bus] %s/%s: dead-letter %s: %v", c.topic, c.opts.Group, msg.ID, err)
		return
	}

	observability.RecordDeadLetter(c.topic)
	c.ack(ctx, msg.ID)
	if err := c.bus.client.XDel(ctx, c.topic, msg.ID).Err(); err != nil {
		log.Printf("[bus] %s/%s: xdel %s: %v", c.topic, c.opts.Group, msg.ID, err)
	}
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.bus.client.XAck(ctx, c.topic, c.opts.Group, id).Err(); err != nil {
		log.Printf("[bus] %s/%s: xack %s: %v", c.topic, c.opts.Group, id, err)
	}
}
