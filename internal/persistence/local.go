package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/gistnote/gistnote/internal/middleware"
	"github.com/gistnote/gistnote/internal/notebook"
)

// draftKey is the row id an unsaved notebook is stored under. Notebooks
// with a remote id are keyed by that id instead.
const draftKey = "draft"

// LocalStore keeps an offline copy of the notebook in SQLite. Registered
// after the gist store, it serves loads and saves the remote backend
// declined.
type LocalStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewLocalStore creates a SQLite-backed store
func NewLocalStore(db *sql.DB, logger *zap.Logger) *LocalStore {
	return &LocalStore{
		db:     db,
		logger: logger,
	}
}

// Bindings returns the channel bindings for bus registration
func (s *LocalStore) Bindings() middleware.Bindings {
	return middleware.Bindings{
		ChannelLoad: s.handleLoad,
		ChannelSave: s.handleSave,
	}
}

func (s *LocalStore) handleLoad(ctx context.Context, payload interface{}) middleware.Outcome {
	nb, ok := payload.(*notebook.Notebook)
	if !ok {
		return middleware.Fail(fmt.Errorf("unexpected payload type %T", payload))
	}

	key := nb.ID()
	if key == "" {
		key = draftKey
	}

	var (
		id       string
		ownerID  int64
		contents string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, owner_id, contents FROM notebooks WHERE id = ?", key,
	).Scan(&id, &ownerID, &contents)
	if errors.Is(err, sql.ErrNoRows) {
		return middleware.Next()
	}
	if err != nil {
		return middleware.NextErr(fmt.Errorf("failed to load local notebook: %w", err))
	}

	if id == draftKey {
		id = ""
	}
	nb.Load(id, ownerID, contents)

	s.logger.Info("Notebook loaded from local store",
		zap.String("key", key),
	)

	return middleware.Done(nb)
}

func (s *LocalStore) handleSave(ctx context.Context, payload interface{}) middleware.Outcome {
	nb, ok := payload.(*notebook.Notebook)
	if !ok {
		return middleware.Fail(fmt.Errorf("unexpected payload type %T", payload))
	}

	key := nb.ID()
	if key == "" {
		key = draftKey
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notebooks (id, owner_id, contents, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			contents = excluded.contents,
			updated_at = CURRENT_TIMESTAMP
	`, key, nb.OwnerID(), nb.Contents())
	if err != nil {
		return middleware.Fail(fmt.Errorf("failed to save local notebook: %w", err))
	}

	nb.MarkClean()

	s.logger.Info("Notebook saved to local store",
		zap.String("key", key),
	)

	return middleware.Done(nb)
}
