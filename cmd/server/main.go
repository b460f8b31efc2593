package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/scstanton20/tago-analysis-worker/internal/adapter/postgres"
	"github.com/scstanton20/tago-analysis-worker/internal/adapter/redis"
	"github.com/scstanton20/tago-analysis-worker/internal/config"
	"github.com/scstanton20/tago-analysis-worker/internal/domain"
	"github.com/scstanton20/tago-analysis-worker/internal/hub"
	"github.com/scstanton20/tago-analysis-worker/internal/logging"
	"github.com/scstanton20/tago-analysis-worker/internal/retry"
	"github.com/scstanton20/tago-analysis-worker/internal/server"
	"github.com/scstanton20/tago-analysis-worker/internal/version"
)

func main() {
	cfg := setupConfig()
	logging.Init(cfg.LogLevel, cfg.LogFormat)

	build := version.Get()
	slog.Info("Starting tago-analysis-worker",
		"version", build.Version, "commit", build.Commit, "go", build.GoVersion)

	clock := clockwork.NewRealClock()
	pool := setupDB(cfg)
	defer pool.Close()
	rdb := setupRedis(cfg)
	defer rdb.Close()

	health := domain.NewHealthState(clock)
	engine := hub.New(
		hub.Config{
			HeartbeatInterval: cfg.HeartbeatInterval,
			StaleThreshold:    cfg.StaleThreshold,
			MetricsInterval:   cfg.MetricsInterval,
			LogoutGrace:       cfg.LogoutGrace,
		},
		hub.Collaborators{
			Directory:   postgres.NewDirectory(pool),
			Permissions: postgres.NewPermissions(pool),
			Metrics:     redis.NewMetricsSource(rdb),
			DNSStats:    redis.NewDNSStatsSource(rdb),
			LogStats:    postgres.NewLogStats(pool),
		},
		health,
		clock,
	)

	srv := server.NewServer(cfg, engine, postgres.NewUsers(pool), clock)
	done := runGracefulShutdown(srv, engine)

	engine.SetStatus(domain.StatusReady, "")
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}

	<-done
	slog.Info("Shutdown complete")
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

// startupRetry covers dependencies that may come up slower than we do,
// e.g. when the whole compose stack boots at once.
var startupRetry = retry.Policy{
	MaxAttempts:    5,
	InitialBackoff: time.Second,
	OnRetry: func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Dependency not ready, retrying",
			"attempt", attempt, "backoff", backoff.String(), "error", err)
	},
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := retry.Do(ctx, startupRetry, nil, func() (*pgxpool.Pool, error) {
		return postgres.Connect(ctx, cfg.DatabaseURL)
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	return pool
}

func setupRedis(cfg *config.Config) *goredis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := retry.Do(ctx, startupRetry, nil, func() (*goredis.Client, error) {
		return redis.NewClient(ctx, cfg.RedisURL)
	})
	if err != nil {
		slog.Error("Failed to connect to redis", "error", err)
		os.Exit(1)
	}
	return client
}

func runGracefulShutdown(srv *server.Server, engine *hub.Engine) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		engine.Stop()
		close(done)
	}()

	return done
}
