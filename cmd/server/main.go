package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gistnote/gistnote/internal/auth"
	"github.com/gistnote/gistnote/internal/config"
	"github.com/gistnote/gistnote/internal/connectivity"
	"github.com/gistnote/gistnote/internal/editor"
	httpapi "github.com/gistnote/gistnote/internal/interfaces/http"
	"github.com/gistnote/gistnote/internal/middleware"
	"github.com/gistnote/gistnote/internal/notebook"
	"github.com/gistnote/gistnote/internal/persistence"
	"github.com/gistnote/gistnote/internal/transport"
	"github.com/gistnote/gistnote/internal/worker"
	"github.com/gistnote/gistnote/pkg/database"
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

	logger.Info("Starting gistnote server",
		zap.Int("port", cfg.Server.Port),
		zap.Bool("oauth_configured", cfg.OAuth.ClientID != ""),
		zap.Bool("completion_configured", cfg.Completion.APIKey != ""))

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		logger.Fatal("Failed to create database directory", zap.Error(err))
	}

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(ctx, os.DirFS(cfg.Database.MigrationsDir)); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	adapter := &zapAdapter{logger: logger}

	bus := middleware.NewBus(
		middleware.WithLogger(adapter),
		middleware.WithMaxDepth(cfg.Middleware.MaxTriggerDepth),
	)

	nb := notebook.New()

	monitor := connectivity.NewMonitor(cfg.Connectivity.ProbeURL, cfg.Connectivity.ProbeInterval, logger)
	autosaver := persistence.NewAutosaver(bus, cfg.Autosave.Delay, logger)

	// Registration order is fallback order. The gist store answers load
	// and save first; the local store catches whatever it declines.
	bus.Use("transport", transport.NewPlugin(nil, logger).Bindings())
	bus.Use("auth", auth.NewService(bus, auth.Config{
		ClientID:     cfg.OAuth.ClientID,
		Scope:        cfg.OAuth.Scope,
		AuthorizeURL: cfg.OAuth.AuthorizeURL,
		ExchangeURL:  cfg.OAuth.ExchangeURL,
		ValidateURL:  cfg.OAuth.ValidateURL,
	}, logger).Bindings())
	bus.Use("gist", persistence.NewGistStore(bus, persistence.GistConfig{
		APIBaseURL: cfg.Gist.APIBaseURL,
		Filename:   cfg.Gist.Filename,
		Scope:      cfg.OAuth.Scope,
	}, monitor.Online, logger).Bindings())
	bus.Use("local", persistence.NewLocalStore(db.DB, logger).Bindings())
	bus.Use("autosave", autosaver.Bindings())
	bus.Use("editor-openai", editor.NewOpenAICompleter(
		cfg.Completion.APIKey,
		cfg.Completion.Model,
		cfg.Completion.Temperature,
		cfg.Completion.MaxTokens,
		cfg.Completion.Timeout,
		logger,
	).Bindings())
	bus.Use("editor-static", editor.NewStaticCompleter(nil, logger).Bindings())

	workerManager := worker.NewManager(logger)
	workerManager.Register(monitor)
	workerManager.Register(autosaver)

	handlers := httpapi.NewHandlers(bus, nb, httpapi.OAuthConfig{
		ClientID:     cfg.OAuth.ClientID,
		Scope:        cfg.OAuth.Scope,
		AuthorizeURL: cfg.OAuth.AuthorizeURL,
	}, adapter)

	server := httpapi.NewServer(httpapi.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, handlers, adapter)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Start(gctx)
	})

	g.Go(func() error {
		if err := workerManager.StartAll(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		workerManager.StopAll()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", zap.Error(err))
	}

	if err := bus.Close(); err != nil {
		logger.Error("Failed to close middleware bus", zap.Error(err))
	}

	logger.Info("Server exited")
}

// zapAdapter adapts zap.Logger to the key-value Logger interfaces used
// by the middleware bus and the HTTP layer.
type zapAdapter struct {
	logger *zap.Logger
}

func (a *zapAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
