// Package proxy implements the OAuth2 exchange proxy. The client secret
// never ships to browsers or app configs; this small server is the only
// process that holds it, injecting it into code exchanges on the
// application's behalf.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Config holds the proxy server configuration
type Config struct {
	Host          string
	Port          int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	TokenURL      string
	ClientID      string
	ClientSecret  string
	AllowedOrigin string
}

// Server relays authorization-code exchanges to the upstream token
// endpoint, adding the client secret on the way through.
type Server struct {
	config     Config
	httpServer *http.Server
	router     *gin.Engine
	client     *http.Client
	logger     *zap.Logger
}

// NewServer creates the exchange proxy
func NewServer(config Config, logger *zap.Logger) *Server {
	if config.AllowedOrigin == "" {
		config.AllowedOrigin = "*"
	}

	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	server := &Server{
		config: config,
		router: router,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}

	router.Use(gin.Recovery())
	router.Use(server.loggingMiddleware())
	router.Use(server.corsMiddleware())

	router.GET("/health", server.handleHealth)
	router.POST("/exchange", server.handleExchange)

	return server
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		s.logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", s.config.AllowedOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "gistnote-proxy",
		"time":    time.Now().Format(time.RFC3339),
	})
}

// exchangeRequest is what the application sends; the secret is added here
type exchangeRequest struct {
	Code string `json:"code"`
}

// handleExchange relays the code exchange upstream. The upstream response
// is passed through verbatim, status included, so the application sees
// exactly what the provider said.
func (s *Server) handleExchange(c *gin.Context) {
	var req exchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}

	body, err := json.Marshal(map[string]string{
		"client_id":     s.config.ClientID,
		"client_secret": s.config.ClientSecret,
		"code":          req.Code,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build exchange request"})
		return
	}

	upstream, err := http.NewRequestWithContext(c.Request.Context(), http.MethodPost, s.config.TokenURL, bytes.NewReader(body))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build exchange request"})
		return
	}
	upstream.Header.Set("Content-Type", "application/json")
	upstream.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(upstream)
	if err != nil {
		s.logger.Error("Token endpoint unreachable",
			zap.String("token_url", s.config.TokenURL),
			zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "token endpoint unreachable"})
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to read token response"})
		return
	}

	s.logger.Info("Code exchanged",
		zap.Int("upstream_status", resp.StatusCode))

	c.Data(resp.StatusCode, "application/json", respBody)
}

// Start starts the proxy server
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting exchange proxy", zap.String("address", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Exchange proxy shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("Exchange proxy error", zap.Error(err))
		return err
	}
}

// Stop gracefully stops the proxy server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Exchange proxy shutdown error", zap.Error(err))
		return err
	}

	s.logger.Info("Exchange proxy stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}
