package editor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gistnote/gistnote/internal/middleware"
)

// fakeModelCompleter points the OpenAI client at a stub server
func fakeModelCompleter(t *testing.T, handler http.HandlerFunc) *OpenAICompleter {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = server.URL + "/v1"

	return &OpenAICompleter{
		client:    openai.NewClientWithConfig(cfg),
		model:     openai.GPT4,
		maxTokens: 64,
		timeout:   5 * time.Second,
		logger:    zap.NewNop(),
	}
}

func TestOpenAICompleter(t *testing.T) {
	t.Run("declines without an API key", func(t *testing.T) {
		bus := middleware.NewBus()
		defer bus.Close()

		completer := NewOpenAICompleter("", "", 0, 0, 0, zap.NewNop())
		bus.Use("editor-openai", completer.Bindings())

		comp := &Completion{Text: "some text"}
		result, err := bus.Trigger(context.Background(), ChannelComplete, comp)
		require.NoError(t, err)
		assert.Equal(t, comp, result, "a declined chain passes the payload through")
		assert.Empty(t, comp.Suggestions)
	})

	t.Run("declines on empty text before any network activity", func(t *testing.T) {
		completer := fakeModelCompleter(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("no request should be made for empty text")
		})

		bus := middleware.NewBus()
		defer bus.Close()
		bus.Use("editor-openai", completer.Bindings())

		_, err := bus.Trigger(context.Background(), ChannelComplete, &Completion{Text: "   "})
		require.NoError(t, err)
	})

	t.Run("parses one suggestion per response line", func(t *testing.T) {
		completer := fakeModelCompleter(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"weathervane\nweather report\n\nweathered"}}]}`))
		})

		bus := middleware.NewBus()
		defer bus.Close()
		bus.Use("editor-openai", completer.Bindings())

		comp := &Completion{Text: "The wea", Limit: 2}
		_, err := bus.Trigger(context.Background(), ChannelComplete, comp)
		require.NoError(t, err)

		assert.Equal(t, []string{"weathervane", "weather report"}, comp.Suggestions, "blank lines are dropped and the limit is applied")
	})

	t.Run("API failure falls through to the static completer", func(t *testing.T) {
		completer := fakeModelCompleter(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})

		bus := middleware.NewBus()
		defer bus.Close()
		bus.Use("editor-openai", completer.Bindings())
		bus.Use("editor-static", NewStaticCompleter(nil, zap.NewNop()).Bindings())

		comp := &Completion{Text: "weathervane wea"}
		_, err := bus.Trigger(context.Background(), ChannelComplete, comp)
		require.NoError(t, err, "the fallback settles the chain and clears the provisional error")
		assert.Contains(t, comp.Suggestions, "weathervane")
	})
}
