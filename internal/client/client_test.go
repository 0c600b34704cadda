package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// fakeGateway issues numbered tokens and reports every token older than
// the latest as expired.
type fakeGateway struct {
	exchanges atomic.Int32
	tests     atomic.Int32
	// alwaysExpired makes every test call fail with 419.
	alwaysExpired bool
	origin        atomic.Value
}

func (g *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if o := r.Header.Get("Origin"); o != "" {
		g.origin.Store(o)
	}
	switch r.URL.Path {
	case "/v2/token":
		var body struct {
			ClientSecret string `json:"clientSecret"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.ClientSecret != "good" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{"code": 401, "message": "unregistered domain"})
			return
		}
		n := g.exchanges.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"code": 200, "token": tokenName(n)})
	case "/v2/test":
		g.tests.Add(1)
		if g.alwaysExpired || r.Header.Get("Authorization") != tokenName(g.exchanges.Load()) {
			w.WriteHeader(StatusTokenExpired)
			_ = json.NewEncoder(w).Encode(map[string]any{"code": 419, "message": "token expired"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 1, "nick": "owner", "iss": "nodebird"})
	case "/v2/posts/my":
		w.Header().Set("Retry-After", "42")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{"code": 429, "message": "rate limit exceeded"})
	default:
		http.NotFound(w, r)
	}
}

func tokenName(n int32) string {
	return "token-" + string(rune('0'+n))
}

func TestClientCachesToken(t *testing.T) {
	gw := &fakeGateway{}
	ts := httptest.NewServer(gw)
	t.Cleanup(ts.Close)

	c := New(ts.URL, "good", WithOrigin("https://a.test"))
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		claims, err := c.Test(ctx)
		if err != nil {
			t.Fatalf("test call %d: %v", i+1, err)
		}
		if claims.Nick != "owner" {
			t.Fatalf("unexpected claims %+v", claims)
		}
	}
	if n := gw.exchanges.Load(); n != 1 {
		t.Fatalf("exchanges = %d, want 1", n)
	}
	if gw.origin.Load() != "https://a.test" {
		t.Fatalf("expected Origin header to be sent")
	}
}

func TestClientReexchangesOnceOnExpiry(t *testing.T) {
	gw := &fakeGateway{}
	ts := httptest.NewServer(gw)
	t.Cleanup(ts.Close)

	c := New(ts.URL, "good")
	ctx := context.Background()
	if _, err := c.Test(ctx); err != nil {
		t.Fatalf("first call: %v", err)
	}

	// another exchange elsewhere makes the cached token stale
	gw.exchanges.Add(1)

	if _, err := c.Test(ctx); err != nil {
		t.Fatalf("call after expiry: %v", err)
	}
	if c.Token() != tokenName(3) {
		t.Fatalf("cached token = %q, want %q", c.Token(), tokenName(3))
	}
}

func TestClientRetryIsBounded(t *testing.T) {
	gw := &fakeGateway{alwaysExpired: true}
	ts := httptest.NewServer(gw)
	t.Cleanup(ts.Close)

	_, err := New(ts.URL, "good").Test(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.Expired() {
		t.Fatalf("expected expired APIError, got %v", err)
	}
	if n := gw.tests.Load(); n != 2 {
		t.Fatalf("test calls = %d, want 2", n)
	}
	if n := gw.exchanges.Load(); n != 2 {
		t.Fatalf("exchanges = %d, want 2", n)
	}
}

func TestClientUnregisteredSecret(t *testing.T) {
	ts := httptest.NewServer(&fakeGateway{})
	t.Cleanup(ts.Close)

	_, err := New(ts.URL, "bogus").Exchange(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 APIError, got %v", err)
	}
}

func TestClientRateLimitError(t *testing.T) {
	ts := httptest.NewServer(&fakeGateway{})
	t.Cleanup(ts.Close)

	_, err := New(ts.URL, "good").MyPosts(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.RateLimited() {
		t.Fatalf("expected rate limit APIError, got %v", err)
	}
	if apiErr.RetryAfter != 42*time.Second {
		t.Fatalf("RetryAfter = %s, want 42s", apiErr.RetryAfter)
	}
}

func TestClientPacing(t *testing.T) {
	ts := httptest.NewServer(&fakeGateway{})
	t.Cleanup(ts.Close)

	c := New(ts.URL, "good", WithRate(1, 1))
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if _, err := c.Exchange(ctx); err != nil {
		t.Fatalf("first exchange: %v", err)
	}
	if _, err := c.Exchange(ctx); err == nil {
		t.Fatalf("expected pacing to exceed the deadline")
	}
}

func TestClientNew(t *testing.T) {
	c := New("https://example.com/", "s", WithVersion("/v1/"))

	if c.BaseURL != "https://example.com" {
		t.Errorf("expected trimmed base URL, got '%s'", c.BaseURL)
	}
	if c.Version != "v1" {
		t.Errorf("expected version v1, got '%s'", c.Version)
	}
	if c.HTTPClient == nil {
		t.Error("expected non-nil HTTP client")
	}
	if c.Token() != "" {
		t.Error("expected new client to have no token")
	}
}
