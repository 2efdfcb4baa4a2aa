// Package middleware implements the named-channel bus the application is
// composed on. Plugins register handlers on plain string channels
// (e.g. "persistence:save"); triggering a channel runs its handlers in
// registration order as a fallback chain, where each handler may decline,
// record a provisional failure, or settle the trigger outright.
package middleware

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
)

// DefaultMaxDepth bounds nested triggering. Handlers are free to trigger
// other channels, so a misregistered handler can recurse through the bus;
// the depth guard turns that into an error instead of a blown stack.
const DefaultMaxDepth = 64

// Bus routes channel triggers to registered handlers
type Bus interface {
	// Register appends a handler to a channel with an auto-generated name
	Register(channel string, handler Handler)

	// RegisterNamed appends a handler under a name. The name is the
	// handler's identity for Deregister; duplicate names are allowed and
	// produce duplicate entries.
	RegisterNamed(channel, name string, handler Handler)

	// Deregister removes every handler registered under name for the
	// channel. Removing a name that is not present is a no-op.
	Deregister(channel, name string)

	// Use registers one handler per channel from bindings, all under the
	// plugin name
	Use(plugin string, bindings Bindings)

	// Disuse removes the plugin's handlers from every channel in bindings
	Disuse(plugin string, bindings Bindings)

	// Trigger runs the channel's fallback chain synchronously and returns
	// its single completion. An empty chain succeeds with the unmodified
	// payload.
	Trigger(ctx context.Context, channel string, payload interface{}) (interface{}, error)

	// TriggerAsync runs the chain on its own goroutine. The completion is
	// invoked exactly once; a nil completion discards the outcome.
	TriggerAsync(ctx context.Context, channel string, payload interface{}, completion Completion)

	// ListHandlers returns registered handlers for a channel
	ListHandlers(channel string) []HandlerInfo

	// Close shuts down the bus and waits for async triggers
	Close() error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// channelBus is the concrete implementation of Bus
type channelBus struct {
	mu       sync.RWMutex
	channels map[string][]HandlerInfo
	maxDepth int
	logger   Logger

	// For async triggers
	wg     sync.WaitGroup
	closed atomic.Bool
}

// Option configures the bus
type Option func(*channelBus)

// WithLogger sets a logger for the bus
func WithLogger(logger Logger) Option {
	return func(b *channelBus) {
		b.logger = logger
	}
}

// WithMaxDepth sets the nested-trigger depth limit
func WithMaxDepth(depth int) Option {
	return func(b *channelBus) {
		if depth > 0 {
			b.maxDepth = depth
		}
	}
}

// NewBus creates a new channel bus
func NewBus(opts ...Option) Bus {
	b := &channelBus{
		channels: make(map[string][]HandlerInfo),
		maxDepth: DefaultMaxDepth,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Register appends a handler to a channel with an auto-generated name
func (b *channelBus) Register(channel string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	name := fmt.Sprintf("handler-%d", len(b.channels[channel]))
	b.add(channel, name, handler)
}

// RegisterNamed appends a handler to a channel under a specific name
func (b *channelBus) RegisterNamed(channel, name string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.add(channel, name, handler)
}

// add appends an entry; callers must hold b.mu.
func (b *channelBus) add(channel, name string, handler Handler) {
	b.channels[channel] = append(b.channels[channel], HandlerInfo{
		Name:    name,
		Channel: channel,
		Handler: handler,
	})

	if b.logger != nil {
		b.logger.Info("Handler registered",
			"channel", channel,
			"handler_name", name,
		)
	}
}

// Deregister removes every handler registered under name for the channel.
// The filtered list is a fresh slice: in-flight trigger snapshots hold the
// old backing array and must never observe the removal.
func (b *channelBus) Deregister(channel, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	handlers := b.channels[channel]
	filtered := make([]HandlerInfo, 0, len(handlers))

	for _, h := range handlers {
		if h.Name != name {
			filtered = append(filtered, h)
		}
	}

	b.channels[channel] = filtered

	if b.logger != nil {
		b.logger.Info("Handler deregistered",
			"channel", channel,
			"handler_name", name,
		)
	}
}

// Use registers one handler per channel from bindings under the plugin name
func (b *channelBus) Use(plugin string, bindings Bindings) {
	for channel, handler := range bindings {
		b.RegisterNamed(channel, plugin, handler)
	}
}

// Disuse removes the plugin's handlers from every channel in bindings
func (b *channelBus) Disuse(plugin string, bindings Bindings) {
	for channel := range bindings {
		b.Deregister(channel, plugin)
	}
}

// depthKey carries the nested-trigger depth through handler contexts.
type depthKey struct{}

func chainDepth(ctx context.Context) int {
	if d, ok := ctx.Value(depthKey{}).(int); ok {
		return d
	}
	return 0
}

// Trigger runs the channel's fallback chain synchronously.
//
// The handler list is snapshotted up front; register/deregister during the
// walk (including from inside a handler) applies only to later triggers. A
// handler declining with an error records it provisionally, last write
// wins: a later plain decline clears it. The first handler to settle stops
// the walk. Exhausting the chain returns the payload together with the
// last recorded provisional error, if any.
func (b *channelBus) Trigger(ctx context.Context, channel string, payload interface{}) (interface{}, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}

	depth := chainDepth(ctx) + 1
	if depth > b.maxDepth {
		if b.logger != nil {
			b.logger.Error("Trigger depth limit hit",
				"channel", channel,
				"depth", depth,
			)
		}
		return nil, fmt.Errorf("channel %s: %w", channel, ErrDepthExceeded)
	}
	ctx = context.WithValue(ctx, depthKey{}, depth)

	b.mu.RLock()
	handlers := b.channels[channel]
	b.mu.RUnlock()

	triggerID := ulid.Make().String()

	if b.logger != nil {
		b.logger.Info("Triggering channel",
			"channel", channel,
			"trigger_id", triggerID,
			"handler_count", len(handlers),
			"depth", depth,
		)
	}

	var lastErr error
	for _, info := range handlers {
		out := b.safeExecute(ctx, channel, info, payload)

		switch out.kind {
		case outcomeNext:
			lastErr = out.err
			if out.err != nil && b.logger != nil {
				b.logger.Info("Handler declined with error",
					"channel", channel,
					"trigger_id", triggerID,
					"handler_name", info.Name,
					"error", out.err,
				)
			}

		case outcomeDone:
			return out.result, nil

		case outcomeFail:
			if b.logger != nil {
				b.logger.Error("Handler terminated with error",
					"channel", channel,
					"trigger_id", triggerID,
					"handler_name", info.Name,
					"error", out.err,
				)
			}
			return nil, out.err
		}
	}

	return payload, lastErr
}

// TriggerAsync runs the chain on its own goroutine and reports the single
// completion to the callback
func (b *channelBus) TriggerAsync(ctx context.Context, channel string, payload interface{}, completion Completion) {
	if b.closed.Load() {
		if b.logger != nil {
			b.logger.Error("Cannot trigger channel, bus is closed",
				"channel", channel,
			)
		}
		if completion != nil {
			completion(nil, ErrClosed)
		}
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		result, err := b.Trigger(ctx, channel, payload)
		if completion != nil {
			completion(result, err)
		}
	}()
}

// ListHandlers returns registered handlers for a channel
func (b *channelBus) ListHandlers(channel string) []HandlerInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()

	handlers := b.channels[channel]
	result := make([]HandlerInfo, len(handlers))

	for i, h := range handlers {
		result[i] = HandlerInfo{
			Name:    h.Name,
			Channel: h.Channel,
			// Handler function is not copied to avoid exposing internals
		}
	}

	return result
}

// Close shuts down the bus and waits for async triggers to complete
func (b *channelBus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("bus already closed")
	}

	if b.logger != nil {
		b.logger.Info("Closing bus, waiting for async triggers")
	}

	b.wg.Wait()

	if b.logger != nil {
		b.logger.Info("Bus closed")
	}

	return nil
}

// safeExecute runs a handler with panic recovery. A panicking handler
// becomes a terminal failure so the trigger still completes exactly once.
func (b *channelBus) safeExecute(ctx context.Context, channel string, info HandlerInfo, payload interface{}) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Fail(fmt.Errorf("handler panic: %v", r))
			if b.logger != nil {
				b.logger.Error("Handler panic recovered",
					"channel", channel,
					"handler_name", info.Name,
					"panic", r,
				)
			}
		}
	}()

	return info.Handler(ctx, payload)
}
