package httpapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/alphabot-ai/nodebird/internal/auth"
	"github.com/alphabot-ai/nodebird/internal/config"
	"github.com/alphabot-ai/nodebird/internal/rate"
	"github.com/alphabot-ai/nodebird/internal/registry"
)

type ctxKey int

const requestIDKey ctxKey = iota

const requestIDHeader = "X-Request-Id"

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.clock.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := s.clock.Now().Sub(start)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		s.metrics.ObserveRequest(r.Method, route, status, elapsed)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", elapsed,
			"remote", clientIP(r),
			"request_id", requestIDFrom(r.Context()),
		)
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			s.logger.Error("panic serving request",
				"panic", fmt.Sprint(rec),
				"path", r.URL.Path,
				"request_id", requestIDFrom(r.Context()),
				"stack", string(debug.Stack()),
			)
			writeEnvelope(w, http.StatusInternalServerError, envelope{Message: "internal server error"})
		}()
		next.ServeHTTP(w, r)
	})
}

// lifecycle applies the generation's state. Deprecated generations carry a
// 410 notice in headers ahead of the normal response; retired ones answer
// 410 without running the handler.
func (s *Server) lifecycle(g generation) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch g.settings.State {
			case config.StateDeprecated:
				msg := deprecationMessage(g)
				notice, _ := json.Marshal(envelope{Code: http.StatusGone, Message: msg})
				h := w.Header()
				h.Set("X-Deprecation-Notice", string(notice))
				h.Set("Deprecation", "true")
				h.Set("Warning", fmt.Sprintf("299 - %q", msg))
				if g.successor != "" {
					h.Set("Link", fmt.Sprintf("<%s>; rel=\"successor-version\"", g.successor))
				}
				s.metrics.DeprecatedCall(g.name, g.settings.State)
				s.logger.Warn("deprecated api called",
					"version", g.name,
					"path", r.URL.Path,
					"remote", clientIP(r),
				)
				next.ServeHTTP(w, r)
			case config.StateRetired:
				s.metrics.DeprecatedCall(g.name, g.settings.State)
				writeEnvelope(w, http.StatusGone, envelope{Message: fmt.Sprintf("api %s has been retired", g.name)})
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func deprecationMessage(g generation) string {
	if g.successor != "" {
		return fmt.Sprintf("api %s is deprecated, migrate to %s", g.name, g.successor)
	}
	return fmt.Sprintf("api %s is deprecated", g.name)
}

func (s *Server) rateLimit(g generation, route string, limit int) func(http.Handler) http.Handler {
	window := s.cfg.RateLimits.Window
	label := g.name + " " + route
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			caller := s.callerKey(r)
			key := fmt.Sprintf("%s:%s:%s", g.name, route, caller)
			d, err := s.limiter.Allow(r.Context(), key, limit, window)
			if err != nil {
				s.writeAPIError(w, r, fmt.Errorf("rate limiter: %w", err))
				return
			}

			s.metrics.RateDecision(label, d.Allowed)
			if s.stats != nil {
				ev := rate.Event{Route: label, Key: caller, Allowed: d.Allowed, At: s.clock.Now()}
				if err := s.stats.Record(r.Context(), ev); err != nil {
					s.logger.Debug("rate stats record failed", "error", err)
				}
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if !d.Allowed {
				writeRateLimit(w, d.RetryAfter)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) callerKey(r *http.Request) string {
	if s.cfg.RateLimits.KeyBy == config.KeyByOrigin {
		if host := registry.NormalizeHost(r.Header.Get("Origin")); host != "" {
			return "origin:" + host
		}
	}
	return "ip:" + clientIP(r)
}

func (s *Server) requireToken(g generation) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := s.verifier.Verify(r.Header.Get("Authorization"))
			switch {
			case err == nil:
				s.metrics.Verification(g.name, "valid")
				next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
			case errors.Is(err, auth.ErrTokenExpired):
				s.metrics.Verification(g.name, "expired")
				writeEnvelope(w, statusTokenExpired, envelope{Message: "token expired"})
			default:
				s.metrics.Verification(g.name, "invalid")
				writeEnvelope(w, http.StatusUnauthorized, envelope{Message: "invalid token"})
			}
		})
	}
}

// basicAuth authenticates management calls with the local strategy.
func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="nodebird"`)
			writeEnvelope(w, http.StatusUnauthorized, envelope{Message: "login required"})
			return
		}
		user, err := s.local.Authenticate(r.Context(), auth.Credentials{Email: email, Password: password})
		if err != nil {
			if errors.Is(err, auth.ErrBadCredentials) {
				w.Header().Set("WWW-Authenticate", `Basic realm="nodebird"`)
			}
			s.writeAPIError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user)))
	})
}

func retrySeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
