package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/ocgroups/meetsync/internal/api"
	"github.com/ocgroups/meetsync/internal/config"
	"github.com/ocgroups/meetsync/internal/database"
	"github.com/ocgroups/meetsync/internal/logging"
	"github.com/ocgroups/meetsync/internal/provider"
	"github.com/ocgroups/meetsync/internal/repositories"
	"github.com/ocgroups/meetsync/internal/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	godotenv.Load()

	logger := logging.NewLoggerWithService("meetsyncd")

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load config")
	}
	logger.SetLevel(logging.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.RunMigrations {
		if err := database.Migrate(cfg.DatabaseURL, logger); err != nil {
			logger.WithError(err).Fatal("Failed to run migrations")
		}
	}

	// Initialize database connections
	postgresPool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create postgres pool")
	}
	defer postgresPool.Close()

	var claimer repositories.Claimer
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create redis client")
		}
		defer redisClient.Close()
		claimer = repositories.NewRedisClaimer(redisClient, cfg.ClaimTTL)
	} else {
		logger.Warn("REDIS_URL not set, claims are local to this process")
		claimer = repositories.NewLocalClaimer(cfg.ClaimTTL)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := services.NewMetrics(registry)

	providers := provider.NewRegistry()
	providers.Register(cfg.ProviderID, provider.NewBridgeClient(provider.BridgeConfig{
		BaseURL:    cfg.ProviderBridgeURL,
		ProviderID: cfg.ProviderID,
		Secret:     cfg.ProviderBridgeSecret,
		Timeout:    cfg.ProviderTimeout,
		MaxRetries: cfg.ProviderMaxRetries,
		Logger:     logger,
	}))

	meetings := repositories.NewPostgresMeetingRepository(postgresPool)
	queue := repositories.NewPostgresMeetingQueue(postgresPool, claimer)

	syncWorker := services.NewSyncWorker(queue, meetings, meetings, providers, services.SyncWorkerConfig{
		HostPool:      cfg.ProviderHosts,
		MaxConcurrent: cfg.HostMaxConcurrent,
		PollInterval:  cfg.SyncPollInterval,
	}, logger, metrics)
	autoEndWorker := services.NewAutoEndWorker(meetings, claimer, providers, cfg.AutoEndPollInterval, logger, metrics)
	rearmWorker := services.NewRearmWorker(meetings, cfg.RearmAfter, cfg.RearmInterval, logger, metrics)

	var workers sync.WaitGroup
	for _, run := range []func(context.Context){syncWorker.Run, autoEndWorker.Run, rearmWorker.Run} {
		run := run
		workers.Add(1)
		go func() {
			defer workers.Done()
			run(ctx)
		}()
	}

	// Start Server
	server := &http.Server{
		Addr: fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: api.NewRouter(api.Config{
			DB:            postgresPool,
			Recordings:    meetings,
			Gatherer:      registry,
			WebhookSecret: cfg.ProviderBridgeSecret,
			Logger:        logger,
		}),
	}

	// graceful shutdown
	go func() {
		<-ctx.Done()

		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.WithField("port", cfg.ServerPort).Info("Starting server")
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.WithError(err).Error("Server error")
		stop()
		workers.Wait()
		os.Exit(1)
	}

	workers.Wait()
	logger.Info("Server stopped gracefully")
}
