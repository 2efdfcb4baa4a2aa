package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/gistnote/gistnote/internal/config"
	"github.com/gistnote/gistnote/internal/proxy"
	"github.com/gistnote/gistnote/pkg/utils"
)

func main() {
	// Load .env if present; real deployments set the environment directly
	gotenv.Load()

	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// The proxy is the only process that may hold the client secret.
	if cfg.OAuth.ClientSecret == "" {
		logger.Fatal("GITHUB_CLIENT_SECRET is required to run the exchange proxy")
	}
	if cfg.OAuth.ClientID == "" {
		logger.Fatal("GITHUB_CLIENT_ID is required to run the exchange proxy")
	}

	logger.Info("Starting gistnote exchange proxy",
		zap.Int("port", cfg.Proxy.Port),
		zap.String("token_url", cfg.OAuth.TokenURL))

	server := proxy.NewServer(proxy.Config{
		Host:          cfg.Proxy.Host,
		Port:          cfg.Proxy.Port,
		ReadTimeout:   cfg.Server.ReadTimeout,
		WriteTimeout:  cfg.Server.WriteTimeout,
		TokenURL:      cfg.OAuth.TokenURL,
		ClientID:      cfg.OAuth.ClientID,
		ClientSecret:  cfg.OAuth.ClientSecret,
		AllowedOrigin: cfg.Proxy.AllowedOrigin,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		logger.Error("Exchange proxy error", zap.Error(err))
	}

	logger.Info("Exchange proxy exited")
}
