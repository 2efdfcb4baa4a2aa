package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gistnote/gistnote/internal/middleware"
	"github.com/gistnote/gistnote/internal/transport"
)

func newTestBus(t *testing.T, cfg Config) middleware.Bus {
	t.Helper()

	bus := middleware.NewBus()
	t.Cleanup(func() { bus.Close() })

	logger := zap.NewNop()
	bus.Use("transport", transport.NewPlugin(nil, logger).Bindings())
	bus.Use("auth", NewService(bus, cfg, logger).Bindings())

	return bus
}

func TestHandleExchange(t *testing.T) {
	t.Run("fills the token from the exchange endpoint", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"access_token":"gho_abc"}`))
		}))
		defer server.Close()

		bus := newTestBus(t, Config{ClientID: "client-123", ExchangeURL: server.URL})

		ex := &Exchange{Code: "auth-code"}
		result, err := bus.Trigger(context.Background(), ChannelOAuth2, ex)
		require.NoError(t, err)

		assert.Equal(t, "gho_abc", result)
		assert.Equal(t, "gho_abc", ex.Token)
	})

	t.Run("failed exchange declines with the error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		bus := newTestBus(t, Config{ExchangeURL: server.URL})

		ex := &Exchange{Code: "auth-code"}
		result, err := bus.Trigger(context.Background(), ChannelOAuth2, ex)
		assert.Error(t, err)
		assert.Equal(t, ex, result, "a declined chain returns the payload")
		assert.Empty(t, ex.Token)
	})
}

func TestHandleValidate(t *testing.T) {
	t.Run("resolves the user behind the token", func(t *testing.T) {
		var gotAuth string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			w.Write([]byte(`{"id":7,"login":"octocat"}`))
		}))
		defer server.Close()

		bus := newTestBus(t, Config{ValidateURL: server.URL})

		ex := &Exchange{Token: "gho_abc"}
		_, err := bus.Trigger(context.Background(), ChannelOAuth2Validate, ex)
		require.NoError(t, err)

		require.NotNil(t, ex.User)
		assert.Equal(t, int64(7), ex.User.ID)
		assert.Equal(t, "octocat", ex.User.Login)
		assert.Equal(t, "token gho_abc", gotAuth)
	})

	t.Run("empty token terminates", func(t *testing.T) {
		bus := newTestBus(t, Config{})

		result, err := bus.Trigger(context.Background(), ChannelOAuth2Validate, &Exchange{})
		assert.Error(t, err)
		assert.Nil(t, result)
	})

	t.Run("rejected token terminates", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		bus := newTestBus(t, Config{ValidateURL: server.URL})

		_, err := bus.Trigger(context.Background(), ChannelOAuth2Validate, &Exchange{Token: "revoked"})
		assert.Error(t, err)
	})

	t.Run("identity without a login terminates", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		bus := newTestBus(t, Config{ValidateURL: server.URL})

		_, err := bus.Trigger(context.Background(), ChannelOAuth2Validate, &Exchange{Token: "gho_abc"})
		assert.Error(t, err)
	})
}
