package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/gistnote/gistnote/internal/auth"
	"github.com/gistnote/gistnote/internal/middleware"
	"github.com/gistnote/gistnote/internal/notebook"
	"github.com/gistnote/gistnote/internal/transport"
)

// DefaultFilename is the file inside the gist the notebook lives in
const DefaultFilename = "notebook.md"

// GistConfig holds the gist backend settings
type GistConfig struct {
	APIBaseURL string
	Filename   string
	Scope      string
}

// GistStore persists the notebook as a single-file GitHub gist. All
// network activity goes through the ajax channels.
type GistStore struct {
	bus    middleware.Bus
	cfg    GistConfig
	online func() bool
	logger *zap.Logger
}

// NewGistStore creates a gist-backed store. A nil online probe is treated
// as always online.
func NewGistStore(bus middleware.Bus, cfg GistConfig, online func() bool, logger *zap.Logger) *GistStore {
	if cfg.Filename == "" {
		cfg.Filename = DefaultFilename
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	if online == nil {
		online = func() bool { return true }
	}
	return &GistStore{
		bus:    bus,
		cfg:    cfg,
		online: online,
		logger: logger,
	}
}

// Bindings returns the channel bindings for bus registration
func (s *GistStore) Bindings() middleware.Bindings {
	return middleware.Bindings{
		ChannelAuthenticate: s.handleAuthenticate,
		ChannelLoad:         s.handleLoad,
		ChannelSave:         s.handleSave,
	}
}

// Gist API wire shapes. Only the fields the notebook needs are mapped.
type gistFile struct {
	Content string `json:"content"`
}

type gistUser struct {
	ID int64 `json:"id"`
}

type gistDocument struct {
	ID    string              `json:"id"`
	User  gistUser            `json:"user"`
	Files map[string]gistFile `json:"files"`
}

type gistWriteRequest struct {
	Files map[string]gistFile `json:"files"`
}

// handleAuthenticate drives the OAuth2 exchange and installs the session
// on the notebook. Exchange failures decline so another backend could
// still authenticate; a token that fails validation terminates.
func (s *GistStore) handleAuthenticate(ctx context.Context, payload interface{}) middleware.Outcome {
	login, ok := payload.(*auth.Login)
	if !ok {
		return middleware.Fail(fmt.Errorf("unexpected payload type %T", payload))
	}

	ex := &auth.Exchange{
		Code:  login.Code,
		Scope: s.cfg.Scope,
	}

	if _, err := s.bus.Trigger(ctx, auth.ChannelOAuth2, ex); err != nil {
		return middleware.NextErr(err)
	}

	if _, err := s.bus.Trigger(ctx, auth.ChannelOAuth2Validate, ex); err != nil {
		return middleware.Fail(err)
	}

	login.Notebook.SetSession(&notebook.Session{
		Token: ex.Token,
		User:  ex.User,
	})

	s.logger.Info("User authenticated",
		zap.String("login", ex.User.Login),
		zap.Int64("user_id", ex.User.ID),
	)

	return middleware.Done(ex.User)
}

// handleLoad fetches the notebook's gist. Fetch failures decline with the
// error so the local store can serve a cached copy; a response that
// cannot be interpreted terminates.
func (s *GistStore) handleLoad(ctx context.Context, payload interface{}) middleware.Outcome {
	nb, ok := payload.(*notebook.Notebook)
	if !ok {
		return middleware.Fail(fmt.Errorf("unexpected payload type %T", payload))
	}

	id := nb.ID()
	if id == "" {
		// Nothing to fetch; the local store may hold a draft.
		return middleware.Next()
	}

	header := http.Header{}
	header.Set("Accept", "application/vnd.github+json")

	result, err := s.bus.Trigger(ctx, transport.ChannelRequest, &transport.Request{
		Method: http.MethodGet,
		URL:    fmt.Sprintf("%s/gists/%s", s.cfg.APIBaseURL, id),
		Header: header,
		Token:  nb.Token(),
	})
	if err != nil {
		return middleware.NextErr(fmt.Errorf("failed to fetch gist %s: %w", id, err))
	}

	resp, ok := result.(*transport.Response)
	if !ok {
		return middleware.Fail(fmt.Errorf("unexpected transport result type %T", result))
	}
	if resp.Status != http.StatusOK {
		return middleware.NextErr(fmt.Errorf("gist fetch returned status %d", resp.Status))
	}

	var doc gistDocument
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		return middleware.Fail(fmt.Errorf("%w: %v", ErrMalformedGist, err))
	}

	file, ok := doc.Files[s.cfg.Filename]
	if !ok {
		return middleware.Fail(fmt.Errorf("%w: missing file %q", ErrMalformedGist, s.cfg.Filename))
	}

	nb.Load(doc.ID, doc.User.ID, file.Content)

	s.logger.Info("Notebook loaded from gist",
		zap.String("gist_id", doc.ID),
		zap.Int64("owner_id", doc.User.ID),
	)

	return middleware.Done(nb)
}

// handleSave creates or updates the notebook's gist. Without a session or
// without connectivity it declines immediately, no network activity, so
// the local store takes the save. Once committed to the network, failures
// terminate: the user must learn the remote save did not happen.
func (s *GistStore) handleSave(ctx context.Context, payload interface{}) middleware.Outcome {
	nb, ok := payload.(*notebook.Notebook)
	if !ok {
		return middleware.Fail(fmt.Errorf("unexpected payload type %T", payload))
	}

	if !nb.Authenticated() {
		return middleware.Next()
	}
	if !s.online() {
		s.logger.Info("Offline, deferring save to local store")
		return middleware.Next()
	}

	reqBody, err := json.Marshal(gistWriteRequest{
		Files: map[string]gistFile{
			s.cfg.Filename: {Content: nb.Contents()},
		},
	})
	if err != nil {
		return middleware.Fail(fmt.Errorf("failed to marshal gist request: %w", err))
	}

	method := http.MethodPost
	url := s.cfg.APIBaseURL + "/gists"
	creating := nb.ID() == ""
	if !creating {
		method = http.MethodPatch
		url = fmt.Sprintf("%s/gists/%s", s.cfg.APIBaseURL, nb.ID())
	}

	header := http.Header{}
	header.Set("Accept", "application/vnd.github+json")
	header.Set("Content-Type", "application/json")

	result, err := s.bus.Trigger(ctx, transport.ChannelRequest, &transport.Request{
		Method: method,
		URL:    url,
		Header: header,
		Body:   reqBody,
		Token:  nb.Token(),
	})
	if err != nil {
		return middleware.Fail(fmt.Errorf("failed to save gist: %w", err))
	}

	resp, ok := result.(*transport.Response)
	if !ok {
		return middleware.Fail(fmt.Errorf("unexpected transport result type %T", result))
	}
	if resp.Status != http.StatusOK && resp.Status != http.StatusCreated {
		return middleware.Fail(fmt.Errorf("gist save returned status %d", resp.Status))
	}

	var doc gistDocument
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		return middleware.Fail(fmt.Errorf("%w: %v", ErrMalformedGist, err))
	}

	nb.MarkSaved(doc.ID, doc.User.ID)

	s.logger.Info("Notebook saved to gist",
		zap.String("gist_id", doc.ID),
		zap.Bool("created", creating),
	)

	return middleware.Done(nb)
}
