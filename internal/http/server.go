package httpapp

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/alphabot-ai/nodebird/internal/auth"
	"github.com/alphabot-ai/nodebird/internal/clock"
	"github.com/alphabot-ai/nodebird/internal/config"
	"github.com/alphabot-ai/nodebird/internal/cors"
	"github.com/alphabot-ai/nodebird/internal/metrics"
	"github.com/alphabot-ai/nodebird/internal/rate"
	"github.com/alphabot-ai/nodebird/internal/registry"
	"github.com/alphabot-ai/nodebird/internal/store"
)

type Server struct {
	store       store.Store
	cfg         config.Config
	clock       clock.Clock
	logger      *slog.Logger
	metrics     *metrics.Metrics
	limiter     rate.Limiter
	stats       rate.Stats
	registry    *registry.Registry
	credentials *auth.CredentialVerifier
	issuer      *auth.Issuer
	verifier    *auth.Verifier
	local       auth.Strategy
	origins     *cors.Authorizer
	router      chi.Router
}

type Option func(*Server)

func WithClock(clk clock.Clock) Option {
	return func(s *Server) { s.clock = clk }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithStats records every rate-limit decision in addition to the metrics.
func WithStats(stats rate.Stats) Option {
	return func(s *Server) { s.stats = stats }
}

func NewServer(st store.Store, limiter rate.Limiter, cfg config.Config, opts ...Option) *Server {
	s := &Server{store: st, limiter: limiter, cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}

	s.registry = registry.New(st, s.clock)
	s.credentials = auth.NewCredentialVerifier(s.registry, st)
	s.issuer = auth.NewIssuer(cfg.JWTSecret, s.clock)
	s.verifier = auth.NewVerifier(cfg.JWTSecret, cfg.Issuer, s.clock)
	s.local = auth.NewLocalStrategy(st)
	s.origins = cors.NewAuthorizer(s.registry)
	s.router = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	if s.cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(s.requestID, s.logRequests, s.recoverer)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusNotFound, envelope{Message: "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusMethodNotAllowed, envelope{Message: "method not allowed"})
	})

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Post("/auth/join", s.handleJoin)
	r.Group(func(r chi.Router) {
		r.Use(s.basicAuth)
		r.Get("/domains", s.handleListDomains)
		r.Post("/domains", s.handleRegisterDomain)
		r.Delete("/domains/{id}", s.handleRemoveDomain)
		r.Post("/posts", s.handleCreatePost)
	})

	r.Route("/v1", func(r chi.Router) {
		s.mountGeneration(r, generation{
			name:      "v1",
			settings:  s.cfg.V1,
			successor: "/v2",
		})
	})
	r.Route("/v2", func(r chi.Router) {
		s.mountGeneration(r, generation{
			name:     "v2",
			settings: s.cfg.V2,
			guarded:  true,
		})
	})
	return r
}

// generation is one published API version. Only guarded generations get
// dynamic CORS and rate limiting; the frozen v1 contract never changes.
type generation struct {
	name      string
	settings  config.Generation
	successor string
	guarded   bool
}

func (s *Server) mountGeneration(r chi.Router, g generation) {
	r.Use(s.lifecycle(g))

	limits := s.cfg.RateLimits
	limit := func(route string, n int) func(http.Handler) http.Handler {
		if !g.guarded {
			return passthrough
		}
		return s.rateLimit(g, route, n)
	}
	if g.guarded {
		r.Use(s.origins.Handler(cors.Options{
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:     []string{"Authorization", "Content-Type"},
			ExposeHeaders:    []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-Deprecation-Notice"},
			AllowCredentials: true,
			MaxAge:           10 * time.Minute,
			OnDecision: func(_ *http.Request, _ string, granted bool) {
				s.metrics.CORSDecision(granted)
			},
			OnError: s.writeAPIError,
		}))
	}

	r.With(limit("token", limits.Token)).Post("/token", s.handleToken(g))
	r.With(limit("test", limits.Test), s.requireToken(g)).Get("/test", s.handleTest)
	r.With(limit("posts", limits.Posts), s.requireToken(g)).Get("/posts/my", s.handleMyPosts)
	r.With(limit("hashtag", limits.Hashtag), s.requireToken(g)).Get("/posts/hashtag/{title}", s.handleHashtagPosts)
}

func passthrough(next http.Handler) http.Handler { return next }
