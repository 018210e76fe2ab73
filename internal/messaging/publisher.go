package messaging

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Metadata keys set on every published message.
const (
	MetadataTopic = "topic"
	MetadataKey   = "key"
)

// Publish sends one typed event.
type Publish[T any] func(event *T) error

// KeyFunc returns the routing key recorded on a message, for example the
// alias a statistics event is about.
type KeyFunc[T any] func(event *T) string

// Encode marshals event as JSON into a new message. key may be nil.
func Encode[T any](topic string, event *T, key KeyFunc[T]) (*message.Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", topic, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(MetadataTopic, topic)

	if key != nil {
		msg.Metadata.Set(MetadataKey, key(event))
	}

	return msg, nil
}

// NewPublishFunc creates a typed publish function for topic.
func NewPublishFunc[T any](publisher message.Publisher, topic string, key KeyFunc[T]) Publish[T] {
	return func(event *T) error {
		msg, err := Encode(topic, event, key)
		if err != nil {
			return err
		}

		return publisher.Publish(topic, msg)
	}
}

// TopicStats counts publish outcomes for one topic.
type TopicStats struct {
	Published int64
	Failed    int64
}

type topicCounters struct {
	published atomic.Int64
	failed    atomic.Int64
}

// PublisherGroup owns the publisher shared by every bound topic and counts
// what goes through it.
type PublisherGroup struct {
	publisher message.Publisher

	mu     sync.Mutex
	topics map[string]*topicCounters
	close  sync.Once
	err    error
}

// NewPublisherGroup creates a group over publisher.
func NewPublisherGroup(publisher message.Publisher) *PublisherGroup {
	return &PublisherGroup{
		publisher: publisher,
		topics:    make(map[string]*topicCounters),
	}
}

// Bind returns a publish function for topic whose outcomes are counted by g.
func Bind[T any](g *PublisherGroup, topic string, key KeyFunc[T]) Publish[T] {
	counters := g.counters(topic)
	publish := NewPublishFunc(g.publisher, topic, key)

	return func(event *T) error {
		if err := publish(event); err != nil {
			counters.failed.Add(1)

			return err
		}

		counters.published.Add(1)

		return nil
	}
}

func (g *PublisherGroup) counters(topic string) *topicCounters {
	g.mu.Lock()
	defer g.mu.Unlock()

	c, ok := g.topics[topic]
	if !ok {
		c = &topicCounters{}
		g.topics[topic] = c
	}

	return c
}

// Stats reports the counters of topic. Unknown topics report zeros.
func (g *PublisherGroup) Stats(topic string) TopicStats {
	g.mu.Lock()
	c, ok := g.topics[topic]
	g.mu.Unlock()

	if !ok {
		return TopicStats{}
	}

	return TopicStats{Published: c.published.Load(), Failed: c.failed.Load()}
}

// Publisher returns the underlying message publisher.
func (g *PublisherGroup) Publisher() message.Publisher {
	return g.publisher
}

// Shutdown closes the underlying publisher. Later calls return the result of
// the first.
func (g *PublisherGroup) Shutdown() error {
	g.close.Do(func() {
		g.err = g.publisher.Close()
	})

	return g.err
}
