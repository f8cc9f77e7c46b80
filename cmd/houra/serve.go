package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/houra-app/houra/internal/auth"
	"github.com/houra-app/houra/internal/config"
	"github.com/houra-app/houra/internal/mcp"
	"github.com/houra-app/houra/internal/ratelimit"
	"github.com/houra-app/houra/internal/scheduler"
	"github.com/houra-app/houra/internal/server"
	"github.com/houra-app/houra/internal/service/agent"
	"github.com/houra-app/houra/internal/service/records"
	"github.com/houra-app/houra/internal/service/syncqueue"
	"github.com/houra-app/houra/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, MCP endpoint, scheduler and sync flusher",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			if err := serve(ctx, cfg, logger); err != nil {
				logger.Error("fatal error", "error", err)
				return err
			}
			return nil
		},
	}
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	logger.Info("houra starting", "version", version, "port", cfg.Server.Port, "store", cfg.Store.Backend)

	otelShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Endpoint:    cfg.Telemetry.OTELEndpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     version,
		Insecure:    cfg.Telemetry.Insecure,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close(context.Background())

	jwtMgr, err := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, time.Hour)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	agentSvc := agent.New(store, newProposer(cfg, logger), logger)
	recordsSvc := records.New(store, logger)
	mcpSrv := mcp.New(store, agentSvc, logger, version, cfg.Agent.Model)

	var limiter ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		mem := ratelimit.NewMemoryLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		defer func() { _ = mem.Close() }()
		limiter = mem
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", cfg.RateLimit.RPS, "burst", cfg.RateLimit.Burst)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}

	if cfg.Auth.CronSecret == "" {
		logger.Warn("scheduled run trigger disabled (no HOURA_CRON_SECRET)")
	}

	srv := server.New(server.ServerConfig{
		Store:                store,
		AgentSvc:             agentSvc,
		RecordsSvc:           recordsSvc,
		JWTMgr:               jwtMgr,
		Logger:               logger,
		Limiter:              limiter,
		MCPServer:            mcpSrv.MCPServer(),
		Port:                 cfg.Server.Port,
		ReadTimeout:          cfg.Server.ReadTimeout,
		WriteTimeout:         cfg.Server.WriteTimeout,
		Version:              version,
		MaxRequestBodyBytes:  cfg.Server.MaxRequestBodyBytes,
		CronSecret:           cfg.Auth.CronSecret,
		GenerativeConfigured: cfg.GenerativeConfigured(),
		Model:                cfg.Agent.Model,
		StoreName:            cfg.Store.Backend,
	})

	sched := scheduler.New(scheduler.Config{
		Enabled:     cfg.Scheduler.Enabled,
		Interval:    cfg.Scheduler.Interval,
		Objective:   cfg.Scheduler.Objective,
		Model:       cfg.Agent.Model,
		Concurrency: cfg.Scheduler.Concurrency,
	}, agentSvc, store, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		sched.Run(gctx)
		return nil
	})

	if cfg.SyncEnabled() {
		uploader := syncqueue.NewKafkaUploader(cfg.Sync.KafkaBrokers, cfg.Sync.KafkaTopic, 0)
		defer func() { _ = uploader.Close() }()
		flusher := syncqueue.New(store, uploader, cfg.Sync.MaxRetries, logger)
		logger.Info("sync flusher: kafka", "topic", cfg.Sync.KafkaTopic, "interval", cfg.Sync.FlushInterval)
		g.Go(func() error {
			flusher.Run(gctx, cfg.Sync.FlushInterval)
			return nil
		})
	} else {
		logger.Info("sync flusher: disabled (no HOURA_KAFKA_BROKERS)")
	}

	// Shut the HTTP server down when a signal arrives or a worker fails.
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("houra shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown error", "error", err)
		}
		return nil
	})

	err = g.Wait()
	logger.Info("houra stopped")
	return err
}
