package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gistnote/gistnote/internal/middleware"
)

func newTestBus(t *testing.T) middleware.Bus {
	t.Helper()

	bus := middleware.NewBus()
	t.Cleanup(func() { bus.Close() })

	plugin := NewPlugin(nil, zap.NewNop())
	bus.Use("transport", plugin.Bindings())

	return bus
}

func TestHandleRequest(t *testing.T) {
	t.Run("performs the described request", func(t *testing.T) {
		var gotMethod, gotAuth, gotAccept string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			gotAuth = r.Header.Get("Authorization")
			gotAccept = r.Header.Get("Accept")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"ok":true}`))
		}))
		defer server.Close()

		bus := newTestBus(t)

		header := http.Header{}
		header.Set("Accept", "application/json")
		result, err := bus.Trigger(context.Background(), ChannelRequest, &Request{
			Method: http.MethodGet,
			URL:    server.URL,
			Header: header,
			Token:  "secret-token",
		})
		require.NoError(t, err)

		resp, ok := result.(*Response)
		require.True(t, ok, "expected *Response, got %T", result)
		assert.Equal(t, http.StatusOK, resp.Status)
		assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
		assert.Equal(t, http.MethodGet, gotMethod)
		assert.Equal(t, "token secret-token", gotAuth)
		assert.Equal(t, "application/json", gotAccept)
	})

	t.Run("no auth header without a token", func(t *testing.T) {
		var gotAuth string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
		}))
		defer server.Close()

		bus := newTestBus(t)

		_, err := bus.Trigger(context.Background(), ChannelRequest, &Request{
			Method: http.MethodGet,
			URL:    server.URL,
		})
		require.NoError(t, err)
		assert.Empty(t, gotAuth)
	})

	t.Run("error statuses are returned, not failed", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		bus := newTestBus(t)

		result, err := bus.Trigger(context.Background(), ChannelRequest, &Request{
			Method: http.MethodGet,
			URL:    server.URL,
		})
		require.NoError(t, err)

		resp := result.(*Response)
		assert.Equal(t, http.StatusNotFound, resp.Status)
	})

	t.Run("unreachable host fails the trigger", func(t *testing.T) {
		bus := newTestBus(t)

		_, err := bus.Trigger(context.Background(), ChannelRequest, &Request{
			Method: http.MethodGet,
			URL:    "http://127.0.0.1:1",
		})
		assert.Error(t, err)
	})

	t.Run("unexpected payload type fails the trigger", func(t *testing.T) {
		bus := newTestBus(t)

		_, err := bus.Trigger(context.Background(), ChannelRequest, "not a request")
		assert.Error(t, err)
	})
}

func TestHandleTokenExchange(t *testing.T) {
	t.Run("exchanges a code for a token", func(t *testing.T) {
		var gotBody map[string]string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"access_token":"gho_abc","token_type":"bearer"}`))
		}))
		defer server.Close()

		bus := newTestBus(t)

		ex := &TokenExchange{
			Code:        "auth-code",
			ExchangeURL: server.URL,
			ClientID:    "client-123",
		}
		result, err := bus.Trigger(context.Background(), ChannelOAuth2, ex)
		require.NoError(t, err)

		assert.Equal(t, "gho_abc", result)
		assert.Equal(t, "gho_abc", ex.Token)
		assert.Equal(t, "auth-code", gotBody["code"])
		assert.Equal(t, "client-123", gotBody["client_id"])
	})

	t.Run("non-200 fails the trigger", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		bus := newTestBus(t)

		_, err := bus.Trigger(context.Background(), ChannelOAuth2, &TokenExchange{
			Code:        "auth-code",
			ExchangeURL: server.URL,
		})
		assert.Error(t, err)
	})

	t.Run("missing access token fails the trigger", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"error":"bad_verification_code"}`))
		}))
		defer server.Close()

		bus := newTestBus(t)

		_, err := bus.Trigger(context.Background(), ChannelOAuth2, &TokenExchange{
			Code:        "expired",
			ExchangeURL: server.URL,
		})
		assert.Error(t, err)
	})
}
