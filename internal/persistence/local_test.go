package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gistnote/gistnote/internal/middleware"
	"github.com/gistnote/gistnote/internal/notebook"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", filepath.Join(t.TempDir(), "test.db"))
	db, err := sql.Open("sqlite3", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE notebooks (
			id TEXT PRIMARY KEY,
			owner_id INTEGER NOT NULL DEFAULT 0,
			contents TEXT NOT NULL DEFAULT '',
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	require.NoError(t, err)

	return db
}

func newLocalBus(t *testing.T) (middleware.Bus, *sql.DB) {
	t.Helper()

	bus := middleware.NewBus()
	t.Cleanup(func() { bus.Close() })

	db := newTestDB(t)
	bus.Use("local", NewLocalStore(db, zap.NewNop()).Bindings())

	return bus, db
}

func TestLocalStore(t *testing.T) {
	t.Run("draft roundtrip", func(t *testing.T) {
		bus, _ := newLocalBus(t)

		nb := notebook.New()
		nb.SetContents("draft text")
		_, err := bus.Trigger(context.Background(), ChannelSave, nb)
		require.NoError(t, err)
		assert.False(t, nb.Dirty())
		assert.Empty(t, nb.ID(), "a local save must not assign an id")

		restored := notebook.New()
		result, err := bus.Trigger(context.Background(), ChannelLoad, restored)
		require.NoError(t, err)
		assert.Equal(t, restored, result)
		assert.Equal(t, "draft text", restored.Contents())
		assert.Empty(t, restored.ID())
		assert.False(t, restored.Dirty())
	})

	t.Run("documents are keyed by their remote id", func(t *testing.T) {
		bus, _ := newLocalBus(t)

		nb := notebook.New()
		nb.Load("g1", 7, "original")
		nb.SetContents("edited")
		_, err := bus.Trigger(context.Background(), ChannelSave, nb)
		require.NoError(t, err)

		restored := notebook.New()
		restored.Open("g1")
		_, err = bus.Trigger(context.Background(), ChannelLoad, restored)
		require.NoError(t, err)
		assert.Equal(t, "g1", restored.ID())
		assert.Equal(t, int64(7), restored.OwnerID())
		assert.Equal(t, "edited", restored.Contents())
	})

	t.Run("missing row declines", func(t *testing.T) {
		bus, _ := newLocalBus(t)

		nb := notebook.New()
		nb.Open("never-saved")
		result, err := bus.Trigger(context.Background(), ChannelLoad, nb)
		require.NoError(t, err)
		assert.Equal(t, nb, result, "an exhausted chain passes the payload through")
		assert.Empty(t, nb.Contents())
	})

	t.Run("saving twice overwrites", func(t *testing.T) {
		bus, _ := newLocalBus(t)

		nb := notebook.New()
		nb.SetContents("first")
		_, err := bus.Trigger(context.Background(), ChannelSave, nb)
		require.NoError(t, err)

		nb.SetContents("second")
		_, err = bus.Trigger(context.Background(), ChannelSave, nb)
		require.NoError(t, err)

		restored := notebook.New()
		_, err = bus.Trigger(context.Background(), ChannelLoad, restored)
		require.NoError(t, err)
		assert.Equal(t, "second", restored.Contents())
	})

	t.Run("serves the save a remote backend declined", func(t *testing.T) {
		bus := middleware.NewBus()
		t.Cleanup(func() { bus.Close() })

		bus.RegisterNamed(ChannelSave, "gist", func(ctx context.Context, payload interface{}) middleware.Outcome {
			return middleware.Next()
		})

		db := newTestDB(t)
		bus.Use("local", NewLocalStore(db, zap.NewNop()).Bindings())

		nb := notebook.New()
		nb.SetContents("offline edit")
		_, err := bus.Trigger(context.Background(), ChannelSave, nb)
		require.NoError(t, err)
		assert.False(t, nb.Dirty())

		var stored string
		require.NoError(t, db.QueryRow("SELECT contents FROM notebooks WHERE id = ?", "draft").Scan(&stored))
		assert.Equal(t, "offline edit", stored)
	})
}
