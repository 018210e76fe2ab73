package messaging_test

import (
	"context"
	"errors"
	"testing"

	"github.com/serroba/shortlinks/internal/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// lifecycleLog records start and stop calls in order across runnables.
type lifecycleLog []string

type fakeRunnable struct {
	name        string
	log         *lifecycleLog
	startErr    error
	shutdownErr error
}

func (f *fakeRunnable) Start(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}

	*f.log = append(*f.log, "start "+f.name)

	return nil
}

func (f *fakeRunnable) Shutdown() error {
	*f.log = append(*f.log, "stop "+f.name)

	return f.shutdownErr
}

func TestConsumerGroup_Start(t *testing.T) {
	t.Run("starts members in order", func(t *testing.T) {
		var log lifecycleLog

		group := messaging.NewConsumerGroup(newStubSubscriber(), zap.NewNop())
		group.Add("statistics", &fakeRunnable{name: "statistics", log: &log})
		group.Add("audit", &fakeRunnable{name: "audit", log: &log})

		require.NoError(t, group.Start(context.Background()))

		assert.Equal(t, 2, group.Len())
		assert.Equal(t, lifecycleLog{"start statistics", "start audit"}, log)
	})

	t.Run("stops started members in reverse when one fails", func(t *testing.T) {
		var log lifecycleLog

		group := messaging.NewConsumerGroup(newStubSubscriber(), zap.NewNop())
		group.Add("a", &fakeRunnable{name: "a", log: &log})
		group.Add("b", &fakeRunnable{name: "b", log: &log, shutdownErr: errors.New("stuck")})
		group.Add("c", &fakeRunnable{name: "c", log: &log, startErr: errors.New("no stream")})

		err := group.Start(context.Background())

		require.Error(t, err)
		assert.ErrorContains(t, err, "start c: no stream")
		assert.ErrorContains(t, err, "stop b: stuck")
		assert.Equal(t, lifecycleLog{"start a", "start b", "stop b", "stop a"}, log)
	})
}

func TestConsumerGroup_Shutdown(t *testing.T) {
	t.Run("stops members in reverse then closes the subscriber", func(t *testing.T) {
		var log lifecycleLog

		sub := newStubSubscriber()
		group := messaging.NewConsumerGroup(sub, zap.NewNop())
		group.Add("a", &fakeRunnable{name: "a", log: &log})
		group.Add("b", &fakeRunnable{name: "b", log: &log})
		require.NoError(t, group.Start(context.Background()))

		require.NoError(t, group.Shutdown())

		assert.Equal(t, lifecycleLog{"start a", "start b", "stop b", "stop a"}, log)
		assert.True(t, sub.closed)
	})

	t.Run("reports every failure", func(t *testing.T) {
		var log lifecycleLog

		group := messaging.NewConsumerGroup(newStubSubscriber(), zap.NewNop())
		group.Add("a", &fakeRunnable{name: "a", log: &log, shutdownErr: errors.New("first")})
		group.Add("b", &fakeRunnable{name: "b", log: &log, shutdownErr: errors.New("second")})

		err := group.Shutdown()

		require.Error(t, err)
		assert.ErrorContains(t, err, "stop a: first")
		assert.ErrorContains(t, err, "stop b: second")
		assert.Equal(t, lifecycleLog{"stop b", "stop a"}, log)
	})
}
