// Package cors grants cross-origin access only to origins whose host is a
// registered, live domain.
package cors

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alphabot-ai/nodebird/internal/model"
	"github.com/alphabot-ai/nodebird/internal/store"
)

// HostLookup finds a live domain by origin or host.
type HostLookup interface {
	FindByHost(ctx context.Context, host string) (model.Domain, error)
}

type Authorizer struct {
	hosts HostLookup
}

func NewAuthorizer(hosts HostLookup) *Authorizer {
	return &Authorizer{hosts: hosts}
}

// Authorize returns the origin to echo in Access-Control-Allow-Origin and
// true when origin belongs to a registered domain. Unknown origins yield
// ("", false, nil).
func (a *Authorizer) Authorize(ctx context.Context, origin string) (string, bool, error) {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return "", false, nil
	}
	if _, err := a.hosts.FindByHost(ctx, origin); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return origin, true, nil
}

type Options struct {
	AllowMethods     []string
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           time.Duration
	// OnDecision is called for every request that carried an Origin header.
	OnDecision func(r *http.Request, origin string, granted bool)
	// OnError writes the response when the lookup fails.
	OnError func(w http.ResponseWriter, r *http.Request, err error)
}

// Handler applies the authorizer's decision to each request. Requests from
// unregistered origins proceed without CORS headers.
func (a *Authorizer) Handler(opts Options) func(http.Handler) http.Handler {
	methods := strings.Join(opts.AllowMethods, ", ")
	headers := strings.Join(opts.AllowHeaders, ", ")
	expose := strings.Join(opts.ExposeHeaders, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Origin")
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowed, granted, err := a.Authorize(r.Context(), origin)
			if err != nil {
				if opts.OnError != nil {
					opts.OnError(w, r, err)
				} else {
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
				return
			}
			if opts.OnDecision != nil {
				opts.OnDecision(r, origin, granted)
			}

			if granted {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", allowed)
				if opts.AllowCredentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				if expose != "" {
					h.Set("Access-Control-Expose-Headers", expose)
				}
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if granted {
					h := w.Header()
					h.Add("Vary", "Access-Control-Request-Method")
					h.Add("Vary", "Access-Control-Request-Headers")
					if methods != "" {
						h.Set("Access-Control-Allow-Methods", methods)
					}
					if headers != "" {
						h.Set("Access-Control-Allow-Headers", headers)
					}
					if opts.MaxAge > 0 {
						h.Set("Access-Control-Max-Age", strconv.Itoa(int(opts.MaxAge.Seconds())))
					}
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
