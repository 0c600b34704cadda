package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/alphabot-ai/nodebird/internal/clock"
	"github.com/alphabot-ai/nodebird/internal/config"
	httpapp "github.com/alphabot-ai/nodebird/internal/http"
	"github.com/alphabot-ai/nodebird/internal/metrics"
	"github.com/alphabot-ai/nodebird/internal/rate"
	"github.com/alphabot-ai/nodebird/internal/store/sqlite"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Addr = addr
		}
		return runServer(cmd.Context(), cfg)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides NODEBIRD_ADDR)")
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func runServer(parent context.Context, cfg config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)
	if cfg.JWTSecret == "dev-jwt-secret" {
		logger.Warn("using the development JWT secret, set JWT_SECRET in production")
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []httpapp.Option{httpapp.WithLogger(logger), httpapp.WithMetrics(metrics.New())}
	var limiter rate.Limiter
	if cfg.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
		}
		limiter = rate.NewRedis(rdb, clock.Real())
		opts = append(opts, httpapp.WithStats(rate.NewRedisStats(rdb, "", 24*time.Hour)))
		logger.Info("rate limiting backed by redis", "addr", cfg.Redis.Addr)
	} else {
		mem := rate.NewMemory(clock.Real())
		mem.StartJanitor(ctx, cfg.RateLimits.Window)
		limiter = mem
	}

	server := httpapp.NewServer(store, limiter, cfg, opts...)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("nodebird-api listening",
			"addr", cfg.Addr,
			"v1", cfg.V1.State,
			"v2", cfg.V2.State,
			"rate_key", cfg.RateLimits.KeyBy,
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
