package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
)

// Runnable is a background component with an explicit lifecycle.
type Runnable interface {
	Start(ctx context.Context) error
	Shutdown() error
}

type member struct {
	name     string
	runnable Runnable
}

// ConsumerGroup runs named consumers that share one subscriber and closes the
// subscriber after the last of them stops.
type ConsumerGroup struct {
	members    []member
	subscriber message.Subscriber
	logger     *zap.Logger
}

// NewConsumerGroup creates an empty group over subscriber.
func NewConsumerGroup(subscriber message.Subscriber, logger *zap.Logger) *ConsumerGroup {
	return &ConsumerGroup{
		subscriber: subscriber,
		logger:     logger,
	}
}

// Add registers r under name. Members start in the order they were added.
func (g *ConsumerGroup) Add(name string, r Runnable) {
	g.members = append(g.members, member{name: name, runnable: r})
}

// Len reports how many members are registered.
func (g *ConsumerGroup) Len() int {
	return len(g.members)
}

// Start starts every member. When one fails, the members already running are
// stopped in reverse order and all errors are returned together.
func (g *ConsumerGroup) Start(ctx context.Context) error {
	for i, m := range g.members {
		if err := m.runnable.Start(ctx); err != nil {
			errs := []error{fmt.Errorf("start %s: %w", m.name, err)}

			for j := i - 1; j >= 0; j-- {
				if err := g.members[j].runnable.Shutdown(); err != nil {
					errs = append(errs, fmt.Errorf("stop %s: %w", g.members[j].name, err))
				}
			}

			return errors.Join(errs...)
		}

		g.logger.Debug("consumer started", zap.String("consumer", m.name))
	}

	g.logger.Info("consumer group started", zap.Int("count", len(g.members)))

	return nil
}

// Shutdown stops every member in reverse order, then closes the subscriber.
// Every failure is reported.
func (g *ConsumerGroup) Shutdown() error {
	g.logger.Info("shutting down consumer group")

	var errs []error

	for i := len(g.members) - 1; i >= 0; i-- {
		m := g.members[i]
		if err := m.runnable.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", m.name, err))
		}
	}

	if err := g.subscriber.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close subscriber: %w", err))
	}

	return errors.Join(errs...)
}
