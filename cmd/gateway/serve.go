package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mrmushfiq/prospect-gateway/internal/gateway/agent"
	"github.com/mrmushfiq/prospect-gateway/internal/gateway/cache"
	"github.com/mrmushfiq/prospect-gateway/internal/gateway/handlers"
	"github.com/mrmushfiq/prospect-gateway/internal/gateway/websearch"
	"github.com/mrmushfiq/prospect-gateway/internal/shared/redis"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func serve() error {
	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e, cleanup, err := setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	cfg, logger := e.cfg, e.log
	logger.WithFields(logrus.Fields{"port": cfg.Port, "env": cfg.Env, "db": cfg.DBDriver}).
		Info("Starting prospect gateway")

	deps := handlers.Deps{
		Keys:               e.db,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Admins:             cfg.AdminUserIDs,
		Accountant:         e.accountant,
		Directory:          e.db,
		Health:             map[string]handlers.Pinger{"database": e.db},
		Logger:             logger,
	}

	// Redis is optional; without it requests are not rate limited
	if cfg.RedisURL != "" {
		redisClient, err := redis.New(ctx, cfg.RedisURL)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, rate limiting disabled")
		} else {
			defer redisClient.Close()
			deps.Limiter = redisClient
			deps.Health["redis"] = redisClient
			logger.Info("✓ Connected to Redis")
		}
	}

	requestCache := cache.New(cache.Options{
		MaxSize:    cfg.CacheMaxSize,
		DefaultTTL: cfg.CacheDefaultTTL,
		Logger:     logger,
	})
	deps.Cache = cache.NewAgentCache(requestCache)

	if cfg.OpenAIAPIKey != "" {
		tools := agent.NewToolbox(e.db, websearch.NewSearcher(cfg.WebSearchEndpoint, logger), deps.Cache, logger)
		deps.Agent = agent.New(agent.NewOpenAICompleter(cfg.OpenAIAPIKey, logger), tools, agent.Options{
			Model:         cfg.AgentModel,
			MaxToolRounds: cfg.AgentMaxToolRounds,
			Logger:        logger,
		})
		logger.WithField("model", cfg.AgentModel).Info("✓ Agent ready")
	} else {
		logger.Warn("OPENAI_API_KEY not set, /v1/chat disabled")
	}

	// HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handlers.NewRouter(deps),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Server listening on http://localhost:%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
	case err := <-errCh:
		return err
	}

	logger.Info("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server shutdown error")
	}

	stats := e.accountant.PathStats()
	logger.WithFields(logrus.Fields{
		"atomic":   stats.Atomic,
		"degraded": stats.Degraded,
		"dropped":  stats.Dropped,
	}).Info("Server stopped")
	return nil
}
