package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/saaga0h/energy-twins/e2e/internal/executor"
	"github.com/saaga0h/energy-twins/e2e/internal/reporter"
	"github.com/saaga0h/energy-twins/e2e/internal/scenario"
	"github.com/saaga0h/energy-twins/pkg/config"
	"github.com/saaga0h/energy-twins/pkg/mqtt"
	"github.com/saaga0h/energy-twins/pkg/postgres"
)

func main() {
	// Broker and database settings come from the server's own configuration
	cfg := config.NewConfig()
	cfg.ServiceName = "energy-twins-e2e"
	cfg.LoadFromEnv()

	fs := pflag.NewFlagSet("test-runner", pflag.ExitOnError)
	cfg.BindFlags(fs)
	scenarioPath := fs.String("scenario", "", "Path to YAML scenario file (required)")
	outputDir := fs.String("output-dir", "./test-output", "Output directory for test artifacts")
	apiURL := fs.String("api-url", "http://localhost:5000", "Base URL of the HTTP API for http steps")
	redisAddr := fs.String("redis-addr", "", "Redis address for cache checks (empty = skip)")
	checkPostgres := fs.Bool("check-postgres", false, "Run postgres checks using the configured database")
	_ = fs.Parse(os.Args[1:])

	if *scenarioPath == "" {
		fmt.Fprintf(os.Stderr, "Error: --scenario is required\n")
		fs.Usage()
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}))

	scen, err := scenario.LoadScenario(*scenarioPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load scenario: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := run(ctx, cfg, scen, *apiURL, *redisAddr, *checkPostgres, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Test execution failed: %v\n", err)
		os.Exit(1)
	}

	report := reporter.Format(result)
	fmt.Println(report)

	name := strings.TrimSuffix(filepath.Base(*scenarioPath), filepath.Ext(*scenarioPath))
	reportPath := filepath.Join(*outputDir, "reports", name+".txt")
	if err := reporter.SaveReport(report, reportPath); err != nil {
		logger.Warn("Failed to save report", "error", err)
	}
	summaryPath := filepath.Join(*outputDir, "summaries", name+".json")
	if err := reporter.SaveSummary(result, summaryPath); err != nil {
		logger.Warn("Failed to save summary", "error", err)
	}

	if !result.Passed {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, scen *scenario.Scenario, apiURL, redisAddr string, checkPostgres bool, logger *slog.Logger) (*scenario.TestResult, error) {
	client := executor.NewQueryClient(mqtt.NewClient(cfg, logger), logger)
	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	err := client.Start(connectCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to start query client: %w", err)
	}
	defer client.Close()

	var rdb *redis.Client
	if redisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: redisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
	}

	var pg postgres.Client
	if checkPostgres {
		pc := postgres.NewClient(cfg, logger)
		if err := pc.Connect(ctx); err != nil {
			return nil, err
		}
		defer pc.Disconnect()
		pg = pc
	}

	var api executor.Getter
	if apiURL != "" {
		api = executor.NewAPIClient(apiURL)
	}

	return executor.NewRunner(client, api, rdb, pg, logger).Run(ctx, scen)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
