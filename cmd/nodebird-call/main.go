// Command nodebird-call is a small caller service that proxies a few reads
// through the gateway using a registered domain's client secret.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/alphabot-ai/nodebird/internal/client"
	"github.com/alphabot-ai/nodebird/internal/config"
	"github.com/alphabot-ai/nodebird/internal/model"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	cfg := config.LoadCall()
	if cfg.ClientSecret == "" {
		logger.Error("CLIENT_SECRET is required")
		os.Exit(1)
	}

	opts := []client.Option{client.WithVersion(cfg.Version), client.WithRate(cfg.PaceRPS, 1)}
	if cfg.Origin != "" {
		opts = append(opts, client.WithOrigin(cfg.Origin))
	}
	api := client.New(cfg.APIURL, cfg.ClientSecret, opts...)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newRouter(api, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("nodebird-call listening", "addr", cfg.Addr, "api", cfg.APIURL, "version", cfg.Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
		return
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
}

type api interface {
	Test(ctx context.Context) (client.Claims, error)
	MyPosts(ctx context.Context) ([]model.Post, error)
	HashtagPosts(ctx context.Context, hashtag string) ([]model.Post, error)
}

func newRouter(c api, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)

	r.Get("/test", func(w http.ResponseWriter, r *http.Request) {
		claims, err := c.Test(r.Context())
		relay(w, logger, claims, err)
	})
	r.Get("/posts/my", func(w http.ResponseWriter, r *http.Request) {
		posts, err := c.MyPosts(r.Context())
		relay(w, logger, posts, err)
	})
	r.Get("/search/{hashtag}", func(w http.ResponseWriter, r *http.Request) {
		posts, err := c.HashtagPosts(r.Context(), chi.URLParam(r, "hashtag"))
		relay(w, logger, posts, err)
	})
	return r
}

// relay writes the gateway's answer back to the caller. Gateway errors keep
// their status and message.
func relay(w http.ResponseWriter, logger *slog.Logger, v any, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, v)
		return
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		if apiErr.RetryAfter > 0 {
			w.Header().Set("Retry-After", fmtSeconds(apiErr.RetryAfter))
		}
		writeJSON(w, apiErr.Status, map[string]any{"code": apiErr.Code, "message": apiErr.Message})
		return
	}
	logger.Error("gateway call failed", "err", err)
	writeJSON(w, http.StatusInternalServerError, map[string]any{"code": http.StatusInternalServerError, "message": "internal server error"})
}

func fmtSeconds(d time.Duration) string {
	return strconv.Itoa(int((d + time.Second - 1) / time.Second))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
