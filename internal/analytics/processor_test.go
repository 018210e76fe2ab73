package analytics_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/serroba/shortlinks/internal/analytics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockSubscriber struct {
	msgChan chan *message.Message
	once    sync.Once
}

func newMockSubscriber() *mockSubscriber {
	return &mockSubscriber{msgChan: make(chan *message.Message, 10)}
}

func (m *mockSubscriber) Subscribe(_ context.Context, _ string) (<-chan *message.Message, error) {
	return m.msgChan, nil
}

func (m *mockSubscriber) Close() error {
	m.once.Do(func() { close(m.msgChan) })

	return nil
}

type memoryStatsStore struct {
	mu        sync.Mutex
	snapshots []analytics.Snapshot
	failNext  bool
}

func (s *memoryStatsStore) SaveSnapshot(_ context.Context, snap analytics.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNext {
		s.failNext = false

		return errors.New("database unavailable")
	}

	s.snapshots = append(s.snapshots, snap)

	return nil
}

func (s *memoryStatsStore) saved() []analytics.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]analytics.Snapshot(nil), s.snapshots...)
}

type outcome int

const (
	acked outcome = iota + 1
	nacked
)

func deliver(t *testing.T, sub *mockSubscriber, msg *message.Message) outcome {
	t.Helper()

	sub.msgChan <- msg

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

func eventMessage(t *testing.T, id string, event analytics.Event) *message.Message {
	t.Helper()

	payload, err := json.Marshal(event)
	require.NoError(t, err)

	return message.NewMessage(id, payload)
}

func startProcessor(t *testing.T, sub *mockSubscriber, stats analytics.Store) *analytics.Processor {
	t.Helper()

	p := analytics.NewProcessor(sub, stats, zap.NewNop())
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() { _ = p.Shutdown() })

	return p
}

func TestProcessor_SavesEachEventBeforeAck(t *testing.T) {
	sub := newMockSubscriber()
	stats := &memoryStatsStore{}
	p := startProcessor(t, sub, stats)

	created := eventMessage(t, uuid.NewString(), analytics.NewLinkCreated("abc", day1))
	require.Equal(t, acked, deliver(t, sub, created))
	require.Len(t, stats.saved(), 1, "saved by the time the message is acked")

	redirect := eventMessage(t, uuid.NewString(), analytics.NewRedirect("abc", day1))
	require.Equal(t, acked, deliver(t, sub, redirect))

	saved := stats.saved()
	require.Len(t, saved, 2)
	assert.Equal(t, int64(1), saved[0].TotalLinks)
	assert.Equal(t, int64(1), saved[1].TotalRedirects)
	assert.Equal(t, int64(1), saved[1].Links["abc"].Redirects)
	assert.Equal(t, int64(2), p.Stats().Processed)
}

func TestProcessor_DropsInvalidEvents(t *testing.T) {
	sub := newMockSubscriber()
	stats := &memoryStatsStore{}
	startProcessor(t, sub, stats)

	assert.Equal(t, acked, deliver(t, sub, message.NewMessage(uuid.NewString(), []byte("not json"))))
	assert.Equal(t, acked, deliver(t, sub, eventMessage(t, uuid.NewString(),
		analytics.Event{EventType: "Unknown", Alias: "abc", Timestamp: day1})))
	assert.Equal(t, acked, deliver(t, sub, eventMessage(t, uuid.NewString(), analytics.NewRedirect("", day1))))

	assert.Empty(t, stats.saved())
}

func TestProcessor_RedeliversWhenSaveFails(t *testing.T) {
	sub := newMockSubscriber()
	stats := &memoryStatsStore{failNext: true}
	p := startProcessor(t, sub, stats)

	id := uuid.NewString()
	event := analytics.NewRedirect("abc", day1)

	first := eventMessage(t, id, event)
	require.Equal(t, nacked, deliver(t, sub, first))
	assert.Empty(t, stats.saved())

	// The broker redelivers a nacked message under the same UUID.
	retry := eventMessage(t, id, event)
	require.Equal(t, acked, deliver(t, sub, retry))

	saved := stats.saved()
	require.Len(t, saved, 1, "counted once")
	assert.Equal(t, int64(1), saved[0].TotalRedirects)

	consumed := p.Stats()
	assert.Equal(t, int64(1), consumed.Retried)
	assert.Equal(t, int64(1), consumed.Processed)
	assert.Zero(t, consumed.Abandoned)
}

func TestProcessor_ShutdownWithoutStart(t *testing.T) {
	p := analytics.NewProcessor(newMockSubscriber(), &memoryStatsStore{}, zap.NewNop())

	assert.NoError(t, p.Shutdown())
}
