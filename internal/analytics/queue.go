package analytics

import (
	"sync"
	"sync/atomic"

	"github.com/serroba/shortlinks/internal/messaging"
	"go.uber.org/zap"
)

// TopicStatistics is the topic statistics events are published to.
const TopicStatistics = "statistics"

// Queue publishes events in the background. Enqueue never blocks: when the
// buffer is full the event is dropped and counted.
type Queue struct {
	publish messaging.Publish[Event]
	events  chan Event
	logger  *zap.Logger
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewQueue starts a queue with room for bufferSize pending events.
func NewQueue(publish messaging.Publish[Event], bufferSize int, logger *zap.Logger) *Queue {
	if bufferSize < 1 {
		bufferSize = 1
	}

	q := &Queue{
		publish: publish,
		events:  make(chan Event, bufferSize),
		logger:  logger,
		done:    make(chan struct{}),
	}

	go q.run()

	return q
}

// Enqueue hands event to the background publisher.
func (q *Queue) Enqueue(event Event) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return
	}

	select {
	case q.events <- event:
	default:
		q.dropped.Add(1)
		q.logger.Warn("statistics queue full, dropping event",
			zap.String("alias", event.Alias),
			zap.String("event_type", string(event.EventType)),
		)
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}

func (q *Queue) run() {
	defer close(q.done)

	for event := range q.events {
		if err := q.publish(&event); err != nil {
			q.logger.Error("failed to publish statistics event",
				zap.String("alias", event.Alias),
				zap.String("event_type", string(event.EventType)),
				zap.Error(err),
			)
		}
	}
}

// Shutdown stops accepting events and waits for buffered ones to publish.
func (q *Queue) Shutdown() error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.events)
	}
	q.mu.Unlock()

	<-q.done

	return nil
}
