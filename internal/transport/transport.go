// Package transport is the single place outbound HTTP happens. Other
// plugins describe requests as payloads on the ajax channels and never
// touch the network themselves, which keeps them trivial to test.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/gistnote/gistnote/internal/middleware"
)

const (
	// ChannelRequest performs a plain HTTP request
	ChannelRequest = "ajax"

	// ChannelOAuth2 exchanges an authorization code for an access token
	ChannelOAuth2 = "ajax:oauth2"
)

// Request describes an outbound HTTP call. Token, when set, is sent as an
// OAuth2 token Authorization header.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
	Token  string
}

// Response carries the raw result back to the triggering handler. Status
// is returned for every completed request; judging it is the caller's job.
type Response struct {
	Status int
	Body   []byte
}

// TokenExchange describes an authorization-code exchange against a token
// endpoint. The endpoint is expected to speak JSON both ways.
type TokenExchange struct {
	Code        string
	ExchangeURL string
	ClientID    string
	Token       string
}

// Plugin serves the ajax channels
type Plugin struct {
	client *http.Client
	logger *zap.Logger
}

// NewPlugin creates a transport plugin. A nil client gets a default with a
// 30 second timeout.
func NewPlugin(client *http.Client, logger *zap.Logger) *Plugin {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Plugin{
		client: client,
		logger: logger,
	}
}

// Bindings returns the channel bindings for bus registration
func (p *Plugin) Bindings() middleware.Bindings {
	return middleware.Bindings{
		ChannelRequest: p.handleRequest,
		ChannelOAuth2:  p.handleTokenExchange,
	}
}

func (p *Plugin) handleRequest(ctx context.Context, payload interface{}) middleware.Outcome {
	req, ok := payload.(*Request)
	if !ok {
		return middleware.Fail(fmt.Errorf("unexpected payload type %T", payload))
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return middleware.Fail(fmt.Errorf("failed to build request: %w", err))
	}

	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "token "+req.Token)
	}

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		p.logger.Error("Request failed",
			zap.String("method", req.Method),
			zap.String("url", req.URL),
			zap.Error(err),
		)
		return middleware.Fail(fmt.Errorf("request to %s failed: %w", req.URL, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return middleware.Fail(fmt.Errorf("failed to read response body: %w", err))
	}

	p.logger.Debug("Request completed",
		zap.String("method", req.Method),
		zap.String("url", req.URL),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	return middleware.Done(&Response{
		Status: resp.StatusCode,
		Body:   body,
	})
}

func (p *Plugin) handleTokenExchange(ctx context.Context, payload interface{}) middleware.Outcome {
	ex, ok := payload.(*TokenExchange)
	if !ok {
		return middleware.Fail(fmt.Errorf("unexpected payload type %T", payload))
	}

	reqBody, err := json.Marshal(map[string]string{
		"client_id": ex.ClientID,
		"code":      ex.Code,
	})
	if err != nil {
		return middleware.Fail(fmt.Errorf("failed to marshal exchange request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, ex.ExchangeURL, bytes.NewReader(reqBody))
	if err != nil {
		return middleware.Fail(fmt.Errorf("failed to build exchange request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		p.logger.Error("Token exchange failed",
			zap.String("url", ex.ExchangeURL),
			zap.Error(err),
		)
		return middleware.Fail(fmt.Errorf("token exchange request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return middleware.Fail(fmt.Errorf("failed to read exchange response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return middleware.Fail(fmt.Errorf("token exchange returned status %d", resp.StatusCode))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return middleware.Fail(fmt.Errorf("failed to parse exchange response: %w", err))
	}
	if tokenResp.AccessToken == "" {
		return middleware.Fail(fmt.Errorf("token exchange response contained no access token"))
	}

	ex.Token = tokenResp.AccessToken

	p.logger.Info("Token exchange completed",
		zap.String("url", ex.ExchangeURL),
	)

	return middleware.Done(ex.Token)
}
