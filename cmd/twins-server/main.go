package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saaga0h/energy-twins/internal/api"
	"github.com/saaga0h/energy-twins/internal/bus"
	"github.com/saaga0h/energy-twins/internal/cache"
	"github.com/saaga0h/energy-twins/internal/dataset"
	"github.com/saaga0h/energy-twins/internal/engine"
	"github.com/saaga0h/energy-twins/internal/index"
	"github.com/saaga0h/energy-twins/internal/vectorstore"
	"github.com/saaga0h/energy-twins/pkg/config"
	"github.com/saaga0h/energy-twins/pkg/health"
	"github.com/saaga0h/energy-twins/pkg/mqtt"
	"github.com/saaga0h/energy-twins/pkg/postgres"
	"github.com/saaga0h/energy-twins/pkg/redis"
)

func main() {
	// Load configuration with hierarchy: defaults → file → env → flags
	cfg := config.NewConfig()
	if err := cfg.Load(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("Starting Energy Twins server",
		"service_name", cfg.ServiceName,
		"dataset_source", cfg.DatasetSource,
		"dataset_path", cfg.DatasetPath,
		"api_port", cfg.APIPort,
		"redis_cache", cfg.EnableRedisCache,
		"mqtt", cfg.EnableMQTT,
		"log_level", cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Energy Twins server shutdown complete")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Postgres is only opened when a component needs it
	var pgClient postgres.Client
	if cfg.UsesPostgres() {
		pg := postgres.NewClient(cfg, logger)
		connectCtx, connectCancel := context.WithTimeout(ctx, 10*time.Second)
		err := pg.Connect(connectCtx)
		connectCancel()
		if err != nil {
			return err
		}
		defer pg.Disconnect()
		pgClient = pg
	}

	// Load the reference dataset and build the index before any listener starts
	loader, err := dataset.New(cfg, pgClient, logger)
	if err != nil {
		return err
	}
	records, err := loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}
	idx, err := index.Build(records, logger)
	if err != nil {
		return fmt.Errorf("failed to build reference index: %w", err)
	}

	if cfg.PersistVectors {
		if _, err := vectorstore.NewExporter(pgClient, 0, logger).Export(ctx, idx); err != nil {
			logger.Warn("Vector export failed", "error", err)
		}
	}

	var store cache.Store
	var redisClient redis.Client
	if cfg.EnableRedisCache {
		redisClient = redis.NewClient(cfg, logger)
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		err := redisClient.Ping(pingCtx)
		pingCancel()
		if err != nil {
			return err
		}
		defer redisClient.Close()
		store = cache.NewRedis(redisClient, logger)
	}

	twins, err := engine.New(idx, engine.Options{
		MaxK:          cfg.MaxK,
		DefaultK:      cfg.DefaultK,
		SearchWorkers: cfg.SearchWorkers,
		SearchTimeout: cfg.SearchTimeout(),
		MapSampleSize: cfg.MapSampleSize,
		CacheTTL:      cfg.CacheTTL(),
	}, store, logger)
	if err != nil {
		return err
	}

	var mqttClient mqtt.Client
	var agent *bus.Agent
	agentErr := make(chan error, 1)
	if cfg.EnableMQTT {
		mqttClient = mqtt.NewClient(cfg, logger)
		agent = bus.NewAgent(mqttClient, twins, logger)
		go func() {
			if err := agent.Start(ctx); err != nil {
				agentErr <- err
			}
		}()
	}

	healthChecker := health.NewChecker(idx, mqttClient, redisClient, logger)
	if pgClient != nil {
		table := dataset.BuildingsTable
		if cfg.PersistVectors {
			table = vectorstore.Table
		}
		healthChecker.WithPostgres(pgClient, table)
	}
	healthServer := startHealthServer(cfg.HealthPort, healthChecker, logger)

	apiServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.APIPort),
		Handler:           api.NewServer(twins, logger).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	apiErr := make(chan error, 1)
	go func() {
		logger.Info("Starting API server", "port", cfg.APIPort)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			apiErr <- err
		}
	}()

	var runErr error
	select {
	case <-sigChan:
		logger.Info("Shutdown signal received (SIGTERM/SIGINT)")
	case err := <-agentErr:
		runErr = fmt.Errorf("query agent failed: %w", err)
	case err := <-apiErr:
		runErr = fmt.Errorf("API server failed: %w", err)
	}

	logger.Info("Initiating graceful shutdown")
	cancel()

	if agent != nil {
		agent.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down API server", "error", err)
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down health server", "error", err)
	}

	return runErr
}

func startHealthServer(port int, checker *health.Checker, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", checker.HandlerFunc())
	mux.HandleFunc("/health/detailed", checker.DetailedHandlerFunc())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		logger.Info("Starting health check server", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Health server error", "error", err)
		}
	}()

	return server
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
