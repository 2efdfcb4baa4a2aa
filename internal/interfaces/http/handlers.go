package http

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gistnote/gistnote/internal/auth"
	"github.com/gistnote/gistnote/internal/editor"
	"github.com/gistnote/gistnote/internal/middleware"
	"github.com/gistnote/gistnote/internal/notebook"
	"github.com/gistnote/gistnote/internal/persistence"
	"github.com/gistnote/gistnote/pkg/utils"
)

// OAuthConfig holds what the login redirect needs. The client secret is
// not here; only the exchange proxy carries it.
type OAuthConfig struct {
	ClientID     string
	Scope        string
	AuthorizeURL string
}

// Handlers contains all HTTP request handlers
type Handlers struct {
	bus    middleware.Bus
	nb     *notebook.Notebook
	oauth  OAuthConfig
	logger Logger

	// OAuth2 state parameter, valid for one callback
	mu    sync.Mutex
	state string
}

// NewHandlers creates a new Handlers instance
func NewHandlers(bus middleware.Bus, nb *notebook.Notebook, oauth OAuthConfig, logger Logger) *Handlers {
	return &Handlers{
		bus:    bus,
		nb:     nb,
		oauth:  oauth,
		logger: logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// OpenNotebookRequest represents the body of POST /api/notebook/open
type OpenNotebookRequest struct {
	ID string `json:"id" binding:"required"`
}

// UpdateNotebookRequest represents the body of PUT /api/notebook. An
// empty contents string is a legitimate edit.
type UpdateNotebookRequest struct {
	Contents string `json:"contents"`
}

// CompleteRequest represents the body of POST /api/complete
type CompleteRequest struct {
	Text  string `json:"text"`
	Limit int    `json:"limit"`
}

// CompletionResponse represents completion suggestions in API responses
type CompletionResponse struct {
	Suggestions []string `json:"suggestions"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    response,
	})
}

// GetNotebook handles GET /api/notebook
func (h *Handlers) GetNotebook(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    h.nb.View(),
	})
}

// OpenNotebook handles POST /api/notebook/open
func (h *Handlers) OpenNotebook(c *gin.Context) {
	var req OpenNotebookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid request body",
		})
		return
	}

	if err := utils.ValidateNotebookID(req.ID); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	h.nb.Open(req.ID)

	if _, err := h.bus.Trigger(c.Request.Context(), persistence.ChannelLoad, h.nb); err != nil {
		h.logger.Error("Failed to load notebook",
			"notebook_id", req.ID,
			"error", err)
		c.JSON(http.StatusBadGateway, Response{
			Success: false,
			Error:   "failed to load notebook: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    h.nb.View(),
	})
}

// UpdateNotebook handles PUT /api/notebook
func (h *Handlers) UpdateNotebook(c *gin.Context) {
	var req UpdateNotebookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid request body",
		})
		return
	}

	h.nb.SetContents(req.Contents)

	if _, err := h.bus.Trigger(c.Request.Context(), persistence.ChannelChange, h.nb); err != nil {
		h.logger.Error("Failed to record change", "error", err)
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to record change",
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    h.nb.View(),
	})
}

// SaveNotebook handles POST /api/notebook/save
func (h *Handlers) SaveNotebook(c *gin.Context) {
	if _, err := h.bus.Trigger(c.Request.Context(), persistence.ChannelSave, h.nb); err != nil {
		h.logger.Error("Failed to save notebook", "error", err)
		c.JSON(http.StatusBadGateway, Response{
			Success: false,
			Error:   "save failed: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    h.nb.View(),
	})
}

// Complete handles POST /api/complete
func (h *Handlers) Complete(c *gin.Context) {
	var req CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid request body",
		})
		return
	}

	comp := &editor.Completion{
		Text:  req.Text,
		Limit: req.Limit,
	}

	result, err := h.bus.Trigger(c.Request.Context(), editor.ChannelComplete, comp)
	if err != nil {
		h.logger.Error("Completion failed", "error", err)
		c.JSON(http.StatusBadGateway, Response{
			Success: false,
			Error:   "completion failed",
		})
		return
	}

	out, ok := result.(*editor.Completion)
	if !ok {
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "unexpected completion result",
		})
		return
	}

	suggestions := out.Suggestions
	if suggestions == nil {
		suggestions = []string{}
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    CompletionResponse{Suggestions: suggestions},
	})
}

// CurrentUser handles GET /api/user
func (h *Handlers) CurrentUser(c *gin.Context) {
	if !h.nb.Authenticated() {
		c.JSON(http.StatusUnauthorized, Response{
			Success: false,
			Error:   "not authenticated",
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    h.nb.User(),
	})
}

// Login handles GET /auth/login by redirecting to the provider's
// authorization page
func (h *Handlers) Login(c *gin.Context) {
	state, err := newState()
	if err != nil {
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to generate state",
		})
		return
	}

	h.mu.Lock()
	h.state = state
	h.mu.Unlock()

	location := fmt.Sprintf("%s?client_id=%s&scope=%s&state=%s",
		h.oauth.AuthorizeURL,
		url.QueryEscape(h.oauth.ClientID),
		url.QueryEscape(h.oauth.Scope),
		url.QueryEscape(state),
	)

	c.Redirect(http.StatusFound, location)
}

// Callback handles GET /auth/callback, the provider's redirect back with
// the authorization code
func (h *Handlers) Callback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "missing authorization code",
		})
		return
	}

	// The state is consumed whether or not it matches.
	h.mu.Lock()
	expected := h.state
	h.state = ""
	h.mu.Unlock()

	if expected == "" || c.Query("state") != expected {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "state mismatch",
		})
		return
	}

	if _, err := h.bus.Trigger(c.Request.Context(), persistence.ChannelAuthenticate, &auth.Login{
		Code:     code,
		Notebook: h.nb,
	}); err != nil {
		h.logger.Error("Authentication failed", "error", err)
		c.JSON(http.StatusBadGateway, Response{
			Success: false,
			Error:   "authentication failed: " + err.Error(),
		})
		return
	}

	if !h.nb.Authenticated() {
		c.JSON(http.StatusBadGateway, Response{
			Success: false,
			Error:   "authentication did not complete",
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    h.nb.View(),
	})
}

// newState generates the OAuth2 state parameter
func newState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
