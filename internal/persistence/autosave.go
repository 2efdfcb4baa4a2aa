package persistence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gistnote/gistnote/internal/middleware"
	"github.com/gistnote/gistnote/internal/notebook"
)

// DefaultAutosaveDelay is the debounce window between the last edit and
// the deferred save
const DefaultAutosaveDelay = 3 * time.Second

// Autosaver debounces change notifications into saves. Each change resets
// a single timer; when it fires, the save chain runs asynchronously. The
// change trigger itself completes immediately, the deferred save reports
// through its own completion.
type Autosaver struct {
	bus    middleware.Bus
	delay  time.Duration
	logger *zap.Logger

	// State
	mu        sync.Mutex
	timer     *time.Timer
	pending   *notebook.Notebook
	isRunning bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewAutosaver creates an autosave worker. A non-positive delay gets the
// default.
func NewAutosaver(bus middleware.Bus, delay time.Duration, logger *zap.Logger) *Autosaver {
	if delay <= 0 {
		delay = DefaultAutosaveDelay
	}
	return &Autosaver{
		bus:    bus,
		delay:  delay,
		logger: logger,
	}
}

// Bindings returns the channel bindings for bus registration
func (a *Autosaver) Bindings() middleware.Bindings {
	return middleware.Bindings{
		ChannelChange: a.handleChange,
	}
}

// Start starts the autosave worker
func (a *Autosaver) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.isRunning {
		return fmt.Errorf("autosaver is already running")
	}

	a.ctx, a.cancel = context.WithCancel(ctx)
	a.isRunning = true

	a.logger.Info("Autosaver started",
		zap.Duration("delay", a.delay))

	return nil
}

// Stop stops the autosave worker. A pending save is flushed synchronously
// so edits do not die with the process.
func (a *Autosaver) Stop() {
	a.mu.Lock()
	if !a.isRunning {
		a.mu.Unlock()
		return
	}

	a.isRunning = false
	if a.cancel != nil {
		a.cancel()
	}

	var nb *notebook.Notebook
	if a.timer != nil && a.timer.Stop() {
		nb = a.pending
	}
	a.timer = nil
	a.pending = nil
	a.mu.Unlock()

	if nb != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if _, err := a.bus.Trigger(ctx, ChannelSave, nb); err != nil {
			a.logger.Error("Final autosave failed", zap.Error(err))
		}
	}

	a.logger.Info("Autosaver stopped")
}

// Name returns the worker name for identification
func (a *Autosaver) Name() string {
	return "Autosaver"
}

// handleChange schedules a deferred save and settles immediately. The
// change trigger never waits out the debounce window.
func (a *Autosaver) handleChange(ctx context.Context, payload interface{}) middleware.Outcome {
	nb, ok := payload.(*notebook.Notebook)
	if !ok {
		return middleware.Fail(fmt.Errorf("unexpected payload type %T", payload))
	}

	a.schedule(nb)

	return middleware.Done(nb)
}

func (a *Autosaver) schedule(nb *notebook.Notebook) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.isRunning {
		return
	}

	a.pending = nb
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.delay, a.fire)
}

func (a *Autosaver) fire() {
	a.mu.Lock()
	nb := a.pending
	ctx := a.ctx
	running := a.isRunning
	a.pending = nil
	a.timer = nil
	a.mu.Unlock()

	if !running || nb == nil {
		return
	}

	a.bus.TriggerAsync(ctx, ChannelSave, nb, func(result interface{}, err error) {
		if err != nil {
			a.logger.Error("Autosave failed", zap.Error(err))
			return
		}
		a.logger.Info("Autosave completed")
	})
}
