package messaging_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/serroba/shortlinks/internal/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type visit struct {
	Alias string `json:"alias"`
	Count int    `json:"count"`
}

type stubSubscriber struct {
	msgs         chan *message.Message
	subscribeErr error
	mu           sync.Mutex
	closed       bool
}

func newStubSubscriber() *stubSubscriber {
	return &stubSubscriber{msgs: make(chan *message.Message, 10)}
}

func (s *stubSubscriber) Subscribe(_ context.Context, _ string) (<-chan *message.Message, error) {
	if s.subscribeErr != nil {
		return nil, s.subscribeErr
	}

	return s.msgs, nil
}

func (s *stubSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.msgs)
	}

	return nil
}

func visitMessage(t *testing.T, v visit) *message.Message {
	t.Helper()

	payload, err := json.Marshal(v)
	require.NoError(t, err)

	return message.NewMessage(uuid.NewString(), payload)
}

type outcome int

const (
	acked outcome = iota + 1
	nacked
)

func waitOutcome(t *testing.T, msg *message.Message) outcome {
	t.Helper()

	select {
	case <-msg.Acked():
		return acked
	case <-msg.Nacked():
		return nacked
	case <-time.After(time.Second):
		t.Fatal("message was neither acked nor nacked")

		return 0
	}
}

func startConsumer(
	t *testing.T,
	sub *stubSubscriber,
	handler messaging.Handler[visit],
	opts ...messaging.ConsumerOption,
) *messaging.Consumer[visit] {
	t.Helper()

	consumer := messaging.NewConsumer(sub, "visits", handler, zap.NewNop(), opts...)
	require.NoError(t, consumer.Start(context.Background()))
	t.Cleanup(func() { _ = consumer.Shutdown() })

	return consumer
}

func TestConsumer_Start(t *testing.T) {
	t.Run("reports its topic", func(t *testing.T) {
		consumer := startConsumer(t, newStubSubscriber(), func(context.Context, *visit) error { return nil })

		assert.Equal(t, "visits", consumer.Topic())
	})

	t.Run("returns the subscribe error", func(t *testing.T) {
		sub := &stubSubscriber{subscribeErr: errors.New("stream missing")}
		consumer := messaging.NewConsumer(sub, "visits", func(context.Context, *visit) error { return nil }, zap.NewNop())

		err := consumer.Start(context.Background())

		require.ErrorContains(t, err, "stream missing")
		require.NoError(t, consumer.Shutdown())
	})
}

func TestConsumer_Handle(t *testing.T) {
	t.Run("decodes and acks", func(t *testing.T) {
		sub := newStubSubscriber()
		got := make(chan visit, 1)
		consumer := startConsumer(t, sub, func(_ context.Context, v *visit) error {
			got <- *v

			return nil
		})

		msg := visitMessage(t, visit{Alias: "abc123", Count: 2})
		sub.msgs <- msg

		require.Equal(t, acked, waitOutcome(t, msg))
		assert.Equal(t, visit{Alias: "abc123", Count: 2}, <-got)
		assert.Equal(t, int64(1), consumer.Stats().Processed)
	})

	t.Run("acks and drops malformed payloads", func(t *testing.T) {
		sub := newStubSubscriber()
		called := make(chan struct{}, 1)
		consumer := startConsumer(t, sub, func(context.Context, *visit) error {
			called <- struct{}{}

			return nil
		})

		msg := message.NewMessage(uuid.NewString(), []byte("{not json"))
		sub.msgs <- msg

		require.Equal(t, acked, waitOutcome(t, msg))
		assert.Empty(t, called)
		assert.Equal(t, int64(1), consumer.Stats().Malformed)
	})

	t.Run("nacks while attempts remain", func(t *testing.T) {
		sub := newStubSubscriber()
		consumer := startConsumer(t, sub, func(context.Context, *visit) error {
			return errors.New("database down")
		}, messaging.WithMaxAttempts(3))

		msg := visitMessage(t, visit{Alias: "abc123"})
		sub.msgs <- msg

		require.Equal(t, nacked, waitOutcome(t, msg))
		assert.Equal(t, int64(1), consumer.Stats().Retried)
	})

	t.Run("acks once attempts are exhausted", func(t *testing.T) {
		sub := newStubSubscriber()
		consumer := startConsumer(t, sub, func(context.Context, *visit) error {
			return errors.New("database down")
		}, messaging.WithMaxAttempts(2))

		// A redelivery keeps the UUID and arrives as a fresh message.
		id := uuid.NewString()
		payload, err := json.Marshal(visit{Alias: "abc123"})
		require.NoError(t, err)

		first := message.NewMessage(id, payload)
		sub.msgs <- first
		require.Equal(t, nacked, waitOutcome(t, first))

		second := message.NewMessage(id, payload)
		sub.msgs <- second
		require.Equal(t, acked, waitOutcome(t, second))

		stats := consumer.Stats()
		assert.Equal(t, int64(1), stats.Retried)
		assert.Equal(t, int64(1), stats.Abandoned)
		assert.Zero(t, stats.Processed)
	})

	t.Run("a single attempt never nacks", func(t *testing.T) {
		sub := newStubSubscriber()
		startConsumer(t, sub, func(context.Context, *visit) error {
			return errors.New("boom")
		}, messaging.WithMaxAttempts(0))

		msg := visitMessage(t, visit{Alias: "abc123"})
		sub.msgs <- msg

		assert.Equal(t, acked, waitOutcome(t, msg))
	})
}

func TestConsumer_Shutdown(t *testing.T) {
	t.Run("waits for the loop and is idempotent", func(t *testing.T) {
		consumer := messaging.NewConsumer(newStubSubscriber(), "visits",
			func(context.Context, *visit) error { return nil }, zap.NewNop())

		require.NoError(t, consumer.Start(context.Background()))
		require.NoError(t, consumer.Shutdown())
		require.NoError(t, consumer.Shutdown())
	})

	t.Run("never started", func(t *testing.T) {
		consumer := messaging.NewConsumer(newStubSubscriber(), "visits",
			func(context.Context, *visit) error { return nil }, zap.NewNop())

		done := make(chan error, 1)

		go func() { done <- consumer.Shutdown() }()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("shutdown blocked on a consumer that never started")
		}
	})

	t.Run("after the subscriber closed", func(t *testing.T) {
		sub := newStubSubscriber()
		consumer := messaging.NewConsumer(sub, "visits",
			func(context.Context, *visit) error { return nil }, zap.NewNop())

		require.NoError(t, consumer.Start(context.Background()))
		require.NoError(t, sub.Close())
		require.NoError(t, consumer.Shutdown())
	})
}
