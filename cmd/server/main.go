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

	"github.com/alecbass/jdp-htmx-chat/internal/adapter/httpserver"
	"github.com/alecbass/jdp-htmx-chat/internal/adapter/postgres"
	"github.com/alecbass/jdp-htmx-chat/internal/adapter/redis"
	"github.com/alecbass/jdp-htmx-chat/internal/broadcast"
	"github.com/alecbass/jdp-htmx-chat/internal/platform/config"
	"github.com/alecbass/jdp-htmx-chat/internal/platform/logging"
	"github.com/alecbass/jdp-htmx-chat/internal/platform/retry"
)

// greeting is sent once to every push connection right after it is accepted.
var greeting = []byte(`<div class="message" id="board-status">connected</div>`)

var startupRetryPolicy = retry.Policy{
	MaxAttempts:    5,
	InitialBackoff: time.Second,
	OnRetry: func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Startup connect failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
	},
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(ctx context.Context, cfg *config.Config) *pgxpool.Pool {
	pool, err := retry.Do(ctx, startupRetryPolicy, retry.Always, func() (*pgxpool.Pool, error) {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return postgres.Connect(ctx, cfg.DatabaseURL)
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func setupRedis(ctx context.Context, cfg *config.Config) *goredis.Client {
	client, err := retry.Do(ctx, startupRetryPolicy, retry.Always, func() (*goredis.Client, error) {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return redis.NewClient(ctx, cfg.RedisURL)
	})
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func runGracefulShutdown(srv *httpserver.Server, hub *broadcast.Hub) <-chan struct{} {
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

		hub.Stop()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	ctx := context.Background()

	pool := setupDB(ctx, cfg)
	defer pool.Close()

	redisClient := setupRedis(ctx, cfg)
	defer func() { _ = redisClient.Close() }()

	sessionRepo := redis.NewSessionRepo(redisClient, clock)
	userRepo := postgres.NewUserRepo(pool)
	messageRepo := postgres.NewMessageRepo(pool)

	hub := broadcast.NewHub(clock, greeting, cfg.MaxWebSocketConnections)

	healthChecks := []httpserver.HealthCheck{
		{Name: "postgres", Check: pool.Ping},
		{Name: "redis", Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
	}

	srv, err := httpserver.NewServer(cfg, clock, sessionRepo, userRepo, messageRepo, hub, healthChecks)
	if err != nil {
		slog.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	done := runGracefulShutdown(srv, hub)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
