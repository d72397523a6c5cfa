// Riskengine - transaction risk scoring and case routing for Wekeza.

package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/wekeza/riskengine/internal/anomaly"
	"github.com/wekeza/riskengine/internal/api"
	"github.com/wekeza/riskengine/internal/bus"
	"github.com/wekeza/riskengine/internal/cache"
	"github.com/wekeza/riskengine/internal/domain"
	"github.com/wekeza/riskengine/internal/engine"
	"github.com/wekeza/riskengine/internal/integrations"
	"github.com/wekeza/riskengine/internal/portfolio"
	"github.com/wekeza/riskengine/internal/repository"
	"github.com/wekeza/riskengine/internal/router"
	"github.com/wekeza/riskengine/internal/rules"
	"github.com/wekeza/riskengine/internal/scoring"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	once := flag.Bool("once", false, "run a single processing cycle and exit")
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := loadConfig()

	logger := slog.New(newLogHandler(cfg.Logging))
	slog.SetDefault(logger)

	slog.Info("starting riskengine",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"advisory", cfg.Advisory.Mode,
	)

	if err := cfg.Scoring.Validate(); err != nil {
		slog.Error("invalid scoring configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	advisory, err := integrations.NewAdvisoryClient(cfg.Advisory, cacheImpl, cfg.Cache.AdvisoryTTL)
	if err != nil {
		slog.Error("failed to initialize advisory client", "error", err)
		os.Exit(1)
	}

	caseManager, err := integrations.NewCaseManager(cfg.CaseManagement)
	if err != nil {
		slog.Error("failed to initialize case manager", "error", err)
		os.Exit(1)
	}

	register, err := integrations.NewRiskRegister(cfg.RiskRegister)
	if err != nil {
		slog.Error("failed to initialize risk register", "error", err)
		os.Exit(1)
	}

	scorer, err := rules.NewScorer()
	if err != nil {
		slog.Error("failed to compile scoring rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule scorer initialized", "factors", scorer.FactorCount())

	model := anomaly.New(cfg.Engine.ModelSeed)

	compositor, err := scoring.NewCompositor(cfg.Scoring)
	if err != nil {
		slog.Error("failed to initialize compositor", "error", err)
		os.Exit(1)
	}

	caseRouter := router.New(repo, caseManager, register, busImpl)
	aggregator := portfolio.New(repo, register, busImpl, cfg.Portfolio)

	eng := engine.New(repo, scorer, model, compositor, advisory, caseRouter, aggregator, busImpl, cfg.Engine)

	if *once {
		eng.Retrain(ctx)
		if err := eng.RunOnce(ctx); err != nil {
			slog.Error("processing cycle failed", "error", err)
			os.Exit(1)
		}
		slog.Info("single cycle complete")
		return
	}

	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, eng, aggregator, Version)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("riskengine is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		eng.Run(ctx)
	}()

	<-ctx.Done()
	slog.Info("shutting down...")

	// Engine first so no cycle is mid-flight when storage closes.
	<-engineDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("riskengine shutdown complete")
}

// loadConfig builds the configuration from defaults plus RISKENGINE_*
// environment overrides.
func loadConfig() *domain.Config {
	cfg := domain.DefaultConfig()

	if v := os.Getenv("RISKENGINE_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := envInt("RISKENGINE_PORT"); v > 0 {
		cfg.Server.Port = v
	}

	if v := os.Getenv("RISKENGINE_DB_DRIVER"); v != "" {
		cfg.Repository.Driver = v
	}
	if v := os.Getenv("RISKENGINE_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("RISKENGINE_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := envInt("RISKENGINE_POSTGRES_PORT"); v > 0 {
		cfg.Repository.PostgresPort = v
	}
	if v := os.Getenv("RISKENGINE_POSTGRES_USER"); v != "" {
		cfg.Repository.PostgresUser = v
	}
	if v := os.Getenv("RISKENGINE_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("RISKENGINE_POSTGRES_DB"); v != "" {
		cfg.Repository.PostgresDB = v
	}

	if v := os.Getenv("RISKENGINE_CACHE_TYPE"); v != "" {
		cfg.Cache.Type = v
	}
	if v := os.Getenv("RISKENGINE_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("RISKENGINE_REDIS_PASSWORD"); v != "" {
		cfg.Cache.RedisPassword = v
	}

	if v := os.Getenv("RISKENGINE_BUS_TYPE"); v != "" {
		cfg.EventBus.Type = v
	}
	if v := os.Getenv("RISKENGINE_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("RISKENGINE_NATS_TOKEN"); v != "" {
		cfg.EventBus.NATSToken = v
	}

	if v := envDuration("RISKENGINE_POLL_INTERVAL"); v > 0 {
		cfg.Engine.PollInterval = v
	}
	if v := envInt("RISKENGINE_BATCH_SIZE"); v > 0 {
		cfg.Engine.BatchSize = v
	}
	if v := envDuration("RISKENGINE_RETRAIN_INTERVAL"); v > 0 {
		cfg.Engine.RetrainInterval = v
	}
	if v := envDuration("RISKENGINE_AGGREGATE_INTERVAL"); v > 0 {
		cfg.Engine.AggregateInterval = v
	}

	applyIntegrationEnv("RISKENGINE_ADVISORY", &cfg.Advisory)
	applyIntegrationEnv("RISKENGINE_CASEMGMT", &cfg.CaseManagement)
	applyIntegrationEnv("RISKENGINE_REGISTER", &cfg.RiskRegister)

	if v := os.Getenv("RISKENGINE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("RISKENGINE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	return cfg
}

func applyIntegrationEnv(prefix string, cfg *domain.IntegrationConfig) {
	if v := os.Getenv(prefix + "_MODE"); v != "" {
		cfg.Mode = v
	}
	if v := os.Getenv(prefix + "_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
	if v := os.Getenv(prefix + "_API_KEY"); v != "" {
		cfg.APIKey = v
	}
}

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("ignoring invalid integer environment variable", "key", key, "value", v)
		return 0
	}
	return n
}

func envDuration(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("ignoring invalid duration environment variable", "key", key, "value", v)
		return 0
	}
	return d
}

func newLogHandler(cfg domain.LoggingConfig) slog.Handler {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.NewJSONHandler(os.Stdout, opts)
}
