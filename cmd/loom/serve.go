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

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/loom/internal/assistant"
	"github.com/haasonsaas/loom/internal/bridge"
	slackchat "github.com/haasonsaas/loom/internal/chat/slack"
	"github.com/haasonsaas/loom/internal/config"
	"github.com/haasonsaas/loom/internal/conversation"
	"github.com/haasonsaas/loom/internal/integrations/confluence"
	"github.com/haasonsaas/loom/internal/integrations/jira"
	"github.com/haasonsaas/loom/internal/observability"
	"github.com/haasonsaas/loom/internal/prompts"
)

func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Slack bridge",
		Long: `Start the bridge: connect to Slack via Socket Mode, map threads to
assistant sessions, and serve metrics.

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "loom.yaml", "Path to configuration file")
	return cmd
}

// store is the persistence surface serve needs from one backing
// implementation: per-thread records plus the global snapshot.
type store interface {
	conversation.Store
	conversation.GlobalStore
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	slog.SetDefault(logger)

	logger.Info("starting loom",
		"version", version,
		"commit", commit,
		"config", configPath,
		"storage", cfg.Storage.Type,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, closeStore, err := openStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer closeStore()

	global, err := conversation.LoadGlobalState(ctx, st, logger)
	if err != nil {
		return fmt.Errorf("load global state: %w", err)
	}

	pack, err := prompts.Load(cfg.Prompts.Path)
	if err != nil {
		return fmt.Errorf("load prompt pack: %w", err)
	}
	if cfg.Prompts.Watch {
		go func() {
			if err := pack.Watch(ctx, cfg.Prompts.Path, logger); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("prompt pack watcher stopped", "error", err)
			}
		}()
	}

	metrics := observability.NewMetrics(nil)

	backend := assistant.NewOpenAIBackend(cfg.OpenAI.APIKey)
	resolver := assistant.NewResolver(backend, global, pack, logger)
	registry := conversation.NewRegistry(st, global, resolver, backend, metrics, logger)
	runner := assistant.NewRunner(backend, assistant.RunnerConfig{
		PollInterval: cfg.Runner.PollInterval,
		MaxAttempts:  cfg.Runner.MaxAttempts,
	}, nil, metrics, logger)

	adapter, err := slackchat.New(slackchat.Config{
		BotToken: cfg.Slack.BotToken,
		AppToken: cfg.Slack.AppToken,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("create slack adapter: %w", err)
	}

	deps := bridge.Deps{
		Chat:     adapter,
		Backend:  backend,
		Registry: registry,
		Runner:   runner,
		Personas: resolver,
		Pack:     pack,
		Global:   global,
		Metrics:  metrics,
		Logger:   logger,
	}
	if cfg.Jira.Enabled() {
		deps.Jira = jira.NewClient(cfg.Jira, logger)
		logger.Info("jira integration enabled", "project", cfg.Jira.ProjectKey)
	}
	if cfg.Confluence.Enabled() {
		deps.Confluence = confluence.NewClient(cfg.Confluence, logger)
		logger.Info("confluence integration enabled", "space", cfg.Confluence.SpaceKey)
	}
	br := bridge.New(deps)

	// Periodic global-state flush so statistics survive a crash.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Storage.FlushSchedule, func() {
		if err := global.Flush(context.Background()); err != nil {
			logger.Warn("global state flush failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid flush schedule %q: %w", cfg.Storage.FlushSchedule, err)
	}
	scheduler.Start()

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			logger.Info("metrics server listening", "addr", cfg.Metrics.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	if err := adapter.Start(ctx); err != nil {
		return fmt.Errorf("start slack adapter: %w", err)
	}
	logger.Info("loom started")

	// One goroutine per event; per-thread ordering is enforced inside
	// the bridge, not here.
	events := adapter.Events()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case ev, ok := <-events:
			if !ok {
				break loop
			}
			go func() {
				reqLogger := logger.With("request_id", uuid.NewString(), "thread", ev.ThreadID)
				if _, err := br.HandleEvent(ctx, ev); err != nil {
					reqLogger.Error("event handling failed", "error", err)
					return
				}
				reqLogger.Debug("event handled")
			}()
		}
	}

	logger.Info("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := adapter.Stop(shutdownCtx); err != nil {
		logger.Warn("slack adapter shutdown incomplete", "error", err)
	}
	<-scheduler.Stop().Done()
	if err := global.Flush(shutdownCtx); err != nil {
		logger.Warn("final global state flush failed", "error", err)
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown incomplete", "error", err)
		}
	}

	logger.Info("loom stopped gracefully")
	return nil
}

// openStore builds the configured persistence backend and returns a
// close function for shutdown.
func openStore(cfg config.StorageConfig) (store, func(), error) {
	switch cfg.Type {
	case "sqlite":
		s, err := conversation.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		s, err := conversation.NewFileStore(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	}
}
