package worker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeWorker records lifecycle calls for testing
type fakeWorker struct {
	mu       sync.Mutex
	name     string
	startErr error
	started  bool
	stopped  bool
	events   *[]string
}

func (w *fakeWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.startErr != nil {
		return w.startErr
	}
	w.started = true
	*w.events = append(*w.events, "start:"+w.name)
	return nil
}

func (w *fakeWorker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	*w.events = append(*w.events, "stop:"+w.name)
}

func (w *fakeWorker) Name() string {
	return w.name
}

func TestManager(t *testing.T) {
	t.Run("starts in order, stops in reverse", func(t *testing.T) {
		var events []string
		m := NewManager(zap.NewNop())
		m.Register(&fakeWorker{name: "first", events: &events})
		m.Register(&fakeWorker{name: "second", events: &events})

		require.NoError(t, m.StartAll(context.Background()))
		m.StopAll()

		assert.Equal(t, []string{
			"start:first",
			"start:second",
			"stop:second",
			"stop:first",
		}, events)
	})

	t.Run("failed start rolls back the workers already running", func(t *testing.T) {
		var events []string
		first := &fakeWorker{name: "first", events: &events}
		broken := &fakeWorker{name: "broken", startErr: errors.New("no dice"), events: &events}
		never := &fakeWorker{name: "never", events: &events}

		m := NewManager(zap.NewNop())
		m.Register(first)
		m.Register(broken)
		m.Register(never)

		err := m.StartAll(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broken")

		assert.True(t, first.stopped, "started workers must be stopped on failure")
		assert.False(t, never.started, "workers after the failure must not start")
	})

	t.Run("lists registered names in start order", func(t *testing.T) {
		var events []string
		m := NewManager(zap.NewNop())
		m.Register(&fakeWorker{name: "a", events: &events})
		m.Register(&fakeWorker{name: "b", events: &events})

		assert.Equal(t, []string{"a", "b"}, m.Names())
	})
}
