package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/RichardoC/chatdesk/internal/api"
	"github.com/RichardoC/chatdesk/internal/auth"
	"github.com/RichardoC/chatdesk/internal/config"
	"github.com/RichardoC/chatdesk/internal/db"
	"github.com/RichardoC/chatdesk/internal/llm"
	"github.com/RichardoC/chatdesk/internal/session"
)

type flags struct {
	port      string
	dbPath    string
	model     string
	staticDir string
}

func main() {
	var f flags
	cmd := &cobra.Command{
		Use:          "chatdesk",
		Short:        "Chat server with login and per-user conversation history",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = f.port
			}
			if cmd.Flags().Changed("db") {
				cfg.DBPath = f.dbPath
			}
			if cmd.Flags().Changed("model") {
				cfg.Model = f.model
			}
			return run(cmd.Context(), cfg, f.staticDir)
		},
	}
	cmd.Flags().StringVar(&f.port, "port", "", "port to listen on (overrides PORT)")
	cmd.Flags().StringVar(&f.dbPath, "db", "", "SQLite database path (overrides DB_PATH)")
	cmd.Flags().StringVar(&f.model, "model", "", "completion model (overrides CHAT_MODEL)")
	cmd.Flags().StringVar(&f.staticDir, "static", "web", "directory served at / (empty to disable)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, staticDir string) (err error) {
	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	database, err := db.New(cfg.DBPath, logger)
	if err != nil {
		logger.Error("failed to initialize database",
			zap.Error(err),
			zap.String("dbPath", cfg.DBPath))
		return err
	}
	defer func() {
		err = multierr.Combine(err, database.Close(), ignoreSyncErr(logger.Sync()))
	}()

	llmService, err := llm.New(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.CompletionTimeout)
	if err != nil {
		logger.Error("failed to initialize LLM service", zap.Error(err))
		return err
	}

	controller := session.NewController(database, database, llmService, logger)
	handler := api.NewHandler(
		controller,
		database,
		session.NewRegistry(cfg.SessionTTL),
		auth.NewTokens(cfg.SessionSecret, cfg.SessionTTL),
		auth.NewLoginLimiter(time.Second, 5),
		cfg.SessionTTL,
		logger,
	)

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: handler.Routes(api.RouterOptions{
			AllowedOrigins: cfg.AllowedOrigins,
			StaticDir:      staticDir,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", zap.String("addr", srv.Addr), zap.String("model", cfg.Model))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// ignoreSyncErr drops the error zap returns when stderr is a terminal.
func ignoreSyncErr(err error) error {
	if errors.Is(err, syscall.ENOTTY) || errors.Is(err, syscall.EINVAL) {
		return nil
	}
	return err
}
