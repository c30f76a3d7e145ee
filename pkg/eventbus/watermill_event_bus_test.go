package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imagechoom/imagechoom/pkg/channels/gochannel"
	"github.com/imagechoom/imagechoom/pkg/events"
)

func TestWatermillEventBus_PublishReachesHandler(t *testing.T) {
	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, sub)
	defer bus.Close()

	received := make(chan *events.RunLogLine, 1)

	err = bus.Handle(events.RunLogLineEvent, func(_ context.Context, event any) error {
		line, ok := event.(*events.RunLogLine)
		require.True(t, ok)
		received <- line

		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	logLine := events.RunLogLine{
		BaseEvent: events.NewBaseEvent(events.RunLogLineEvent, "job-1"),
		RunName:   "test-run",
		Line:      "run_dir=/tmp/out/run-x",
	}
	require.NoError(t, bus.Publish(ctx, "job-1", logLine))

	select {
	case got := <-received:
		assert.Equal(t, "test-run", got.RunName)
		assert.Equal(t, "run_dir=/tmp/out/run-x", got.Line)
		assert.Equal(t, "job-1", got.JobID)
	case <-time.After(2 * time.Second):
		t.Fatal("handler never received the published event")
	}
}

func TestWatermillEventBus_UnhandledTypeIsAcked(t *testing.T) {
	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, sub)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	status := events.DispatcherStatus{
		BaseEvent: events.NewBaseEvent(events.DispatcherStatusEvent, ""),
		State:     "paused",
		Detail:    "idle",
	}

	// No handler registered; publish must still succeed and not block.
	assert.NoError(t, bus.Publish(ctx, "dispatcher", status))
}

func TestWatermillEventBus_GenerateID(t *testing.T) {
	bus := NewWatermillEventBus(nil, nil)

	assert.NotEqual(t, bus.GenerateID(), bus.GenerateID())
}
