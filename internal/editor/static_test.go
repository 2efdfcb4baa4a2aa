package editor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gistnote/gistnote/internal/middleware"
)

func newStaticBus(t *testing.T) middleware.Bus {
	t.Helper()

	bus := middleware.NewBus()
	t.Cleanup(func() { bus.Close() })

	bus.Use("editor-static", NewStaticCompleter(nil, zap.NewNop()).Bindings())
	return bus
}

func complete(t *testing.T, bus middleware.Bus, text string, limit int) *Completion {
	t.Helper()

	comp := &Completion{Text: text, Limit: limit}
	result, err := bus.Trigger(context.Background(), ChannelComplete, comp)
	require.NoError(t, err)
	require.Equal(t, comp, result)
	return comp
}

func TestStaticCompleter(t *testing.T) {
	t.Run("completes from the document vocabulary", func(t *testing.T) {
		bus := newStaticBus(t)

		comp := complete(t, bus, "The weathervane pointed north. The wea", 0)
		assert.Contains(t, comp.Suggestions, "weathervane")
	})

	t.Run("completes markdown constructs", func(t *testing.T) {
		bus := newStaticBus(t)

		comp := complete(t, bus, "notes\n#", 0)
		assert.Contains(t, comp.Suggestions, "# ")
		assert.Contains(t, comp.Suggestions, "## ")
	})

	t.Run("document words come before terms", func(t *testing.T) {
		bus := newStaticBus(t)

		comp := complete(t, bus, "breakfast menu\nbre", 0)
		require.NotEmpty(t, comp.Suggestions)
		assert.Equal(t, "breakfast", comp.Suggestions[0])
	})

	t.Run("repeated words are suggested once", func(t *testing.T) {
		bus := newStaticBus(t)

		comp := complete(t, bus, "weather weather weathervane wea", 0)
		count := 0
		for _, s := range comp.Suggestions {
			if s == "weather" {
				count++
			}
		}
		assert.Equal(t, 1, count)
	})

	t.Run("respects the limit", func(t *testing.T) {
		bus := newStaticBus(t)

		comp := complete(t, bus, "aaa aab aac aad aae aaf aa", 3)
		assert.Len(t, comp.Suggestions, 3)
	})

	t.Run("finished word yields no suggestions", func(t *testing.T) {
		bus := newStaticBus(t)

		comp := complete(t, bus, "the sentence ended ", 0)
		assert.Empty(t, comp.Suggestions)
	})

	t.Run("empty text yields no suggestions", func(t *testing.T) {
		bus := newStaticBus(t)

		comp := complete(t, bus, "", 0)
		assert.Empty(t, comp.Suggestions)
	})

	t.Run("punctuation does not leak into suggestions", func(t *testing.T) {
		bus := newStaticBus(t)

		comp := complete(t, bus, "See the appendix. app", 0)
		assert.Contains(t, comp.Suggestions, "appendix")
		assert.NotContains(t, comp.Suggestions, "appendix.")
	})
}
