package analytics

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/serroba/shortlinks/internal/messaging"
	"go.uber.org/zap"
)

// Processor consumes statistics events and persists each one before its
// message is acknowledged. A failed save nacks the message so it is
// redelivered, and a crash leaves it pending on the stream. Delivery is
// therefore at least once.
//
// Subscribers hand out the next message only after the previous one is
// acked, so every save covers exactly one event.
type Processor struct {
	consumer *messaging.Consumer[Event]
	store    Store
	logger   *zap.Logger
}

// NewProcessor creates a processor reading TopicStatistics from subscriber.
func NewProcessor(
	subscriber message.Subscriber,
	store Store,
	logger *zap.Logger,
	opts ...messaging.ConsumerOption,
) *Processor {
	p := &Processor{
		store:  store,
		logger: logger,
	}
	p.consumer = messaging.NewConsumer[Event](subscriber, TopicStatistics, p.handle, logger, opts...)

	return p
}

func (p *Processor) handle(ctx context.Context, event *Event) error {
	if err := event.Validate(); err != nil {
		p.logger.Warn("discarding invalid statistics event",
			zap.String("alias", event.Alias),
			zap.String("event_type", string(event.EventType)),
		)

		return nil
	}

	agg := NewAggregator()
	agg.Add(*event)

	if err := p.store.SaveSnapshot(ctx, agg.Take()); err != nil {
		return fmt.Errorf("save statistics for %s: %w", event.Alias, err)
	}

	p.logger.Debug("statistics event saved",
		zap.String("alias", event.Alias),
		zap.String("event_type", string(event.EventType)),
	)

	return nil
}

// Stats reports how the consumed messages were handled.
func (p *Processor) Stats() messaging.ConsumerStats {
	return p.consumer.Stats()
}

// Start subscribes to the statistics topic.
func (p *Processor) Start(ctx context.Context) error {
	return p.consumer.Start(ctx)
}

// Shutdown stops consuming. A save in progress is cancelled and its message
// stays unacknowledged.
func (p *Processor) Shutdown() error {
	return p.consumer.Shutdown()
}
