package persistence

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gistnote/gistnote/internal/middleware"
	"github.com/gistnote/gistnote/internal/notebook"
)

func newAutosaveBus(t *testing.T, delay time.Duration) (middleware.Bus, *Autosaver, *atomic.Int32) {
	t.Helper()

	bus := middleware.NewBus()
	t.Cleanup(func() { bus.Close() })

	var saves atomic.Int32
	bus.RegisterNamed(ChannelSave, "recorder", func(ctx context.Context, payload interface{}) middleware.Outcome {
		saves.Add(1)
		return middleware.Done(payload)
	})

	saver := NewAutosaver(bus, delay, zap.NewNop())
	bus.Use("autosave", saver.Bindings())

	return bus, saver, &saves
}

func TestAutosaver(t *testing.T) {
	t.Run("change settles immediately, save fires after the delay", func(t *testing.T) {
		bus, saver, saves := newAutosaveBus(t, 50*time.Millisecond)
		require.NoError(t, saver.Start(context.Background()))
		defer saver.Stop()

		nb := notebook.New()
		nb.SetContents("edit")

		start := time.Now()
		result, err := bus.Trigger(context.Background(), ChannelChange, nb)
		require.NoError(t, err)
		assert.Equal(t, nb, result)
		assert.Less(t, time.Since(start), 50*time.Millisecond, "the change trigger must not wait out the delay")
		assert.Zero(t, saves.Load())

		time.Sleep(250 * time.Millisecond)
		assert.Equal(t, int32(1), saves.Load())
	})

	t.Run("rapid changes collapse into one save", func(t *testing.T) {
		bus, saver, saves := newAutosaveBus(t, 50*time.Millisecond)
		require.NoError(t, saver.Start(context.Background()))
		defer saver.Stop()

		nb := notebook.New()
		for i := 0; i < 5; i++ {
			nb.SetContents("edit")
			_, err := bus.Trigger(context.Background(), ChannelChange, nb)
			require.NoError(t, err)
			time.Sleep(10 * time.Millisecond)
		}

		time.Sleep(250 * time.Millisecond)
		assert.Equal(t, int32(1), saves.Load())
	})

	t.Run("changes before Start never schedule", func(t *testing.T) {
		bus, _, saves := newAutosaveBus(t, 10*time.Millisecond)

		nb := notebook.New()
		_, err := bus.Trigger(context.Background(), ChannelChange, nb)
		require.NoError(t, err, "the change trigger still settles")

		time.Sleep(100 * time.Millisecond)
		assert.Zero(t, saves.Load())
	})

	t.Run("Stop flushes a pending save", func(t *testing.T) {
		bus, saver, saves := newAutosaveBus(t, time.Minute)
		require.NoError(t, saver.Start(context.Background()))

		nb := notebook.New()
		nb.SetContents("about to exit")
		_, err := bus.Trigger(context.Background(), ChannelChange, nb)
		require.NoError(t, err)

		saver.Stop()
		assert.Equal(t, int32(1), saves.Load(), "Stop must not strand a scheduled save")
	})

	t.Run("Stop without a pending save does nothing", func(t *testing.T) {
		_, saver, saves := newAutosaveBus(t, time.Minute)
		require.NoError(t, saver.Start(context.Background()))

		saver.Stop()
		assert.Zero(t, saves.Load())
	})

	t.Run("double start fails", func(t *testing.T) {
		_, saver, _ := newAutosaveBus(t, time.Minute)
		require.NoError(t, saver.Start(context.Background()))
		defer saver.Stop()

		assert.Error(t, saver.Start(context.Background()))
	})

	t.Run("worker identity", func(t *testing.T) {
		_, saver, _ := newAutosaveBus(t, time.Minute)
		assert.Equal(t, "Autosaver", saver.Name())
	})
}
