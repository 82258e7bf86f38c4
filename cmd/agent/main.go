package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/skyreply/internal/api/router"
	"github.com/wolfman30/skyreply/internal/app/bootstrap"
	"github.com/wolfman30/skyreply/internal/chat"
	appconfig "github.com/wolfman30/skyreply/internal/config"
	"github.com/wolfman30/skyreply/internal/observability/metrics"
	"github.com/wolfman30/skyreply/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	platform, err := bootstrap.BuildPlatform(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect to bluesky", "error", err)
		os.Exit(1)
	}

	llmClient, closeLLM, err := bootstrap.BuildLLMClient(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build llm client", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := closeLLM(); err != nil {
			logger.Warn("failed to close llm client", "error", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	agentMetrics := metrics.NewAgentMetrics(registry)

	guard := chat.NewGuard()
	processor := chat.NewProcessor(platform, llmClient, guard, cfg.LLMModel, logger,
		chat.WithAnnotator(platform),
		chat.WithHistoryLimit(cfg.HistoryLimit),
		chat.WithMetrics(agentMetrics),
	)
	scheduler := chat.NewScheduler(platform, processor, guard, logger,
		chat.WithPollInterval(cfg.PollInterval),
		chat.WithSchedulerMetrics(agentMetrics),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scheduler.Run(gctx)
	})

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr: cfg.MetricsAddr,
			Handler: router.New(&router.Config{
				Logger:         logger,
				MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
				Status: func() map[string]any {
					return map[string]any{"did": platform.SelfDID(), "in_flight": guard.Len()}
				},
			}),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		g.Go(func() error {
			logger.Info("metrics server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("agent stopped with error", "error", err)
	}

	logger.Info("shutting down, waiting for in-flight conversations", "in_flight", guard.Len())
	if !scheduler.WaitTimeout(cfg.ShutdownTimeout) {
		logger.Error("shutdown timed out with conversations still in flight", "in_flight", guard.Len())
		os.Exit(1)
	}
	logger.Info("agent stopped")
}
