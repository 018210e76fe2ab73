package messaging

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
)

// DefaultMaxAttempts is how many times a message is handed to the handler
// before it is given up on.
const DefaultMaxAttempts = 5

// Handler processes a single decoded event.
type Handler[T any] func(ctx context.Context, event *T) error

// ConsumerOption tunes a Consumer.
type ConsumerOption func(*consumerConfig)

type consumerConfig struct {
	maxAttempts int
}

// WithMaxAttempts bounds redeliveries of a message whose handler keeps
// failing. Values below one mean a single attempt.
func WithMaxAttempts(n int) ConsumerOption {
	return func(c *consumerConfig) {
		c.maxAttempts = max(n, 1)
	}
}

// ConsumerStats counts message outcomes.
type ConsumerStats struct {
	Processed int64
	Malformed int64
	Retried   int64
	Abandoned int64
}

// Consumer subscribes to a topic and decodes JSON payloads for a typed
// handler.
//
// Malformed payloads are acked and dropped. Handler errors nack the message
// until it has been attempted maxAttempts times, after which it is acked and
// logged as abandoned.
type Consumer[T any] struct {
	subscriber message.Subscriber
	topic      string
	handler    Handler[T]
	cfg        consumerConfig
	logger     *zap.Logger

	// attempts is only touched by the consume loop.
	attempts map[string]int

	processed atomic.Int64
	malformed atomic.Int64
	retried   atomic.Int64
	abandoned atomic.Int64

	cancel context.CancelFunc
	done   chan struct{}
	stop   sync.Once
}

// NewConsumer creates a consumer of topic.
func NewConsumer[T any](
	subscriber message.Subscriber,
	topic string,
	handler Handler[T],
	logger *zap.Logger,
	opts ...ConsumerOption,
) *Consumer[T] {
	cfg := consumerConfig{maxAttempts: DefaultMaxAttempts}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Consumer[T]{
		subscriber: subscriber,
		topic:      topic,
		handler:    handler,
		cfg:        cfg,
		logger:     logger.With(zap.String("topic", topic)),
		attempts:   make(map[string]int),
	}
}

// Topic returns the topic this consumer subscribes to.
func (c *Consumer[T]) Topic() string {
	return c.topic
}

// Stats returns the outcome counters.
func (c *Consumer[T]) Stats() ConsumerStats {
	return ConsumerStats{
		Processed: c.processed.Load(),
		Malformed: c.malformed.Load(),
		Retried:   c.retried.Load(),
		Abandoned: c.abandoned.Load(),
	}
}

// Start subscribes and consumes in the background until ctx is cancelled,
// the subscriber closes, or Shutdown is called.
func (c *Consumer[T]) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	msgs, err := c.subscriber.Subscribe(ctx, c.topic)
	if err != nil {
		cancel()

		return err
	}

	c.cancel = cancel
	c.done = make(chan struct{})

	go c.consume(ctx, msgs)

	return nil
}

func (c *Consumer[T]) consume(ctx context.Context, msgs <-chan *message.Message) {
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}

			c.handle(ctx, msg)
		}
	}
}

func (c *Consumer[T]) handle(ctx context.Context, msg *message.Message) {
	log := c.logger.With(
		zap.String("message_uuid", msg.UUID),
		zap.String("key", msg.Metadata.Get(MetadataKey)),
	)

	var event T
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		c.malformed.Add(1)
		log.Warn("dropping malformed message", zap.Error(err))
		msg.Ack()

		return
	}

	err := c.handler(ctx, &event)
	if err == nil {
		delete(c.attempts, msg.UUID)
		c.processed.Add(1)
		msg.Ack()

		return
	}

	c.attempts[msg.UUID]++
	attempt := c.attempts[msg.UUID]

	if attempt >= c.cfg.maxAttempts {
		delete(c.attempts, msg.UUID)
		c.abandoned.Add(1)
		log.Error("abandoning event", zap.Int("attempts", attempt), zap.Error(err))
		msg.Ack()

		return
	}

	c.retried.Add(1)
	log.Warn("event handling failed, will retry", zap.Int("attempt", attempt), zap.Error(err))
	msg.Nack()
}

// Shutdown stops consuming and waits for the in-flight message. It is a no-op
// for a consumer that never started.
func (c *Consumer[T]) Shutdown() error {
	c.stop.Do(func() {
		if c.cancel == nil {
			return
		}

		c.cancel()
		<-c.done
	})

	return nil
}
