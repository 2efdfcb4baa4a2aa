// Package auth implements OAuth2 authentication against an identity
// provider. Token exchange and identity validation are separate channels
// so persistence plugins can drive just the part they need.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/gistnote/gistnote/internal/middleware"
	"github.com/gistnote/gistnote/internal/notebook"
	"github.com/gistnote/gistnote/internal/transport"
)

const (
	// ChannelOAuth2 exchanges an authorization code for an access token
	ChannelOAuth2 = "authenticate:oauth2"

	// ChannelOAuth2Validate resolves the token's user identity
	ChannelOAuth2Validate = "authenticate:oauth2:validate"
)

// Exchange is the payload driven through the authenticate channels. The
// exchange handler fills Token, the validate handler fills User.
type Exchange struct {
	Code  string
	Scope string
	Token string
	User  *notebook.User
}

// Login is the payload for an authentication attempt against a
// persistence backend.
type Login struct {
	Code     string
	Notebook *notebook.Notebook
}

// Config holds the OAuth2 endpoints and client identity. ExchangeURL
// points at the exchange proxy, which holds the client secret.
type Config struct {
	ClientID     string
	Scope        string
	AuthorizeURL string
	ExchangeURL  string
	ValidateURL  string
}

// Service serves the authenticate channels
type Service struct {
	bus    middleware.Bus
	cfg    Config
	logger *zap.Logger
}

// NewService creates an OAuth2 authentication service
func NewService(bus middleware.Bus, cfg Config, logger *zap.Logger) *Service {
	return &Service{
		bus:    bus,
		cfg:    cfg,
		logger: logger,
	}
}

// Bindings returns the channel bindings for bus registration
func (s *Service) Bindings() middleware.Bindings {
	return middleware.Bindings{
		ChannelOAuth2:         s.handleExchange,
		ChannelOAuth2Validate: s.handleValidate,
	}
}

// handleExchange turns an authorization code into an access token. A
// failed exchange declines with the error so another authentication
// method may still serve the trigger.
func (s *Service) handleExchange(ctx context.Context, payload interface{}) middleware.Outcome {
	ex, ok := payload.(*Exchange)
	if !ok {
		return middleware.Fail(fmt.Errorf("unexpected payload type %T", payload))
	}

	result, err := s.bus.Trigger(ctx, transport.ChannelOAuth2, &transport.TokenExchange{
		Code:        ex.Code,
		ExchangeURL: s.cfg.ExchangeURL,
		ClientID:    s.cfg.ClientID,
	})
	if err != nil {
		return middleware.NextErr(fmt.Errorf("failed to exchange authorization code: %w", err))
	}

	token, ok := result.(string)
	if !ok || token == "" {
		return middleware.NextErr(fmt.Errorf("token exchange produced no token"))
	}

	ex.Token = token

	s.logger.Info("Authorization code exchanged")

	return middleware.Done(token)
}

// handleValidate resolves the authenticated user behind the token. A
// token that cannot be validated is unusable, so failures here terminate.
func (s *Service) handleValidate(ctx context.Context, payload interface{}) middleware.Outcome {
	ex, ok := payload.(*Exchange)
	if !ok {
		return middleware.Fail(fmt.Errorf("unexpected payload type %T", payload))
	}
	if ex.Token == "" {
		return middleware.Fail(fmt.Errorf("cannot validate an empty token"))
	}

	header := http.Header{}
	header.Set("Accept", "application/vnd.github+json")

	result, err := s.bus.Trigger(ctx, transport.ChannelRequest, &transport.Request{
		Method: http.MethodGet,
		URL:    s.cfg.ValidateURL,
		Header: header,
		Token:  ex.Token,
	})
	if err != nil {
		return middleware.Fail(fmt.Errorf("identity validation request failed: %w", err))
	}

	resp, ok := result.(*transport.Response)
	if !ok {
		return middleware.Fail(fmt.Errorf("unexpected transport result type %T", result))
	}
	if resp.Status != http.StatusOK {
		return middleware.Fail(fmt.Errorf("identity validation returned status %d", resp.Status))
	}

	var user notebook.User
	if err := json.Unmarshal(resp.Body, &user); err != nil {
		return middleware.Fail(fmt.Errorf("failed to parse identity response: %w", err))
	}
	if user.Login == "" {
		return middleware.Fail(fmt.Errorf("identity response contained no login"))
	}

	ex.User = &user

	s.logger.Info("Identity validated",
		zap.String("login", user.Login),
		zap.Int64("user_id", user.ID),
	)

	return middleware.Done(ex.User)
}
