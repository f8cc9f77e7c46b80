package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/houra-app/houra/internal/config"
	"github.com/houra-app/houra/internal/service/proposer"
	"github.com/houra-app/houra/internal/storage"
	"github.com/houra-app/houra/internal/storage/memory"
	"github.com/houra-app/houra/migrations"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "houra",
		Short:         "Houra - volunteer service log with a supervised agent",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.AddCommand(newServeCmd(), newMigrateCmd(), newScheduledCmd())
	return root
}

// setup loads configuration and installs the process logger. Every
// subcommand starts here.
func setup() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		// Log through a default logger so the failure is still structured.
		logger := newLogger(os.Stderr, "info")
		logger.Error("load config", "error", err)
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(os.Stdout, cfg.Server.LogLevel)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)}))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openStore returns the configured store and its name. Postgres is migrated
// before it is returned.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage.Store, error) {
	if cfg.Store.Backend != config.StorePostgres {
		logger.Warn("store: memory (data is lost on restart)")
		return memory.New(), nil
	}

	db, err := storage.New(ctx, cfg.Store.DatabaseURL, cfg.Store.MaxConns, logger)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	// RunMigrations tracks applied files in schema_migrations and skips
	// duplicates, so an error here is a real failure.
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("migrations: %w", err)
	}
	logger.Info("store: postgres")
	return db, nil
}

// newProposer returns a proposer backed by OpenAI when a key is configured,
// otherwise one that always uses the heuristic.
func newProposer(cfg config.Config, logger *slog.Logger) *proposer.Proposer {
	var backend proposer.Backend
	if cfg.GenerativeConfigured() {
		backend = proposer.NewOpenAIBackend(cfg.Agent.OpenAIAPIKey, cfg.Agent.OpenAIBaseURL)
		logger.Info("proposer: openai", "model", cfg.Agent.Model)
	} else {
		logger.Info("proposer: heuristic only (no OPENAI_API_KEY)")
	}
	return proposer.New(backend, cfg.Agent.ProposerTimeout, logger)
}
