// Package client provides a Go client for the NodeBird API gateway.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alphabot-ai/nodebird/internal/model"
)

// StatusTokenExpired is returned by the gateway when a token has expired.
const StatusTokenExpired = 419

// maxReexchanges bounds how often one call may swap an expired token.
const maxReexchanges = 1

// Client calls one API generation on behalf of a registered domain. The
// token is cached and exchanged again when the gateway reports expiry.
type Client struct {
	BaseURL    string
	Version    string
	Origin     string
	HTTPClient *http.Client

	secret string
	pacer  *rate.Limiter

	mu    sync.Mutex
	token string
}

type Option func(*Client)

func WithVersion(version string) Option {
	return func(c *Client) { c.Version = strings.Trim(version, "/") }
}

// WithOrigin sends an Origin header so the gateway can grant CORS.
func WithOrigin(origin string) Option {
	return func(c *Client) { c.Origin = origin }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

// WithRate paces outbound calls to rps with the given burst.
func WithRate(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.pacer = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.pacer = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func New(baseURL, clientSecret string, opts ...Option) *Client {
	c := &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Version:    "v2",
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		secret:     clientSecret,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-success gateway response.
type APIError struct {
	Status     int
	Code       int
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("nodebird api: status %d", e.Status)
	}
	return fmt.Sprintf("nodebird api: %d %s", e.Code, e.Message)
}

func (e *APIError) Expired() bool     { return e.Code == StatusTokenExpired }
func (e *APIError) RateLimited() bool { return e.Code == http.StatusTooManyRequests }

// Claims are the token contents echoed by the test endpoint.
type Claims struct {
	ID        int64  `json:"id"`
	Nick      string `json:"nick"`
	Issuer    string `json:"iss"`
	TokenID   string `json:"jti"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Token   string          `json:"token"`
	Payload json.RawMessage `json:"payload"`
}

// Token returns the cached token, if any.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Exchange trades the client secret for a fresh token and caches it.
func (c *Client) Exchange(ctx context.Context) (string, error) {
	var env envelope
	body := map[string]string{"clientSecret": c.secret}
	if err := c.do(ctx, http.MethodPost, c.path("/token"), "", body, &env); err != nil {
		return "", err
	}
	if env.Token == "" {
		return "", errors.New("nodebird api: token missing from response")
	}
	c.mu.Lock()
	c.token = env.Token
	c.mu.Unlock()
	return env.Token, nil
}

func (c *Client) Test(ctx context.Context) (Claims, error) {
	var claims Claims
	err := c.withToken(ctx, func(token string) error {
		return c.do(ctx, http.MethodGet, c.path("/test"), token, nil, &claims)
	})
	return claims, err
}

func (c *Client) MyPosts(ctx context.Context) ([]model.Post, error) {
	return c.posts(ctx, c.path("/posts/my"))
}

func (c *Client) HashtagPosts(ctx context.Context, hashtag string) ([]model.Post, error) {
	return c.posts(ctx, c.path("/posts/hashtag/"+url.PathEscape(hashtag)))
}

func (c *Client) posts(ctx context.Context, path string) ([]model.Post, error) {
	var env envelope
	err := c.withToken(ctx, func(token string) error {
		return c.do(ctx, http.MethodGet, path, token, nil, &env)
	})
	if err != nil {
		return nil, err
	}
	posts := []model.Post{}
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &posts); err != nil {
			return nil, fmt.Errorf("decode posts: %w", err)
		}
	}
	return posts, nil
}

// withToken runs call with the cached token, exchanging the secret when no
// token is cached and at most once more when the gateway reports expiry.
func (c *Client) withToken(ctx context.Context, call func(token string) error) error {
	for attempt := 0; ; attempt++ {
		token := c.Token()
		if token == "" {
			var err error
			if token, err = c.Exchange(ctx); err != nil {
				return err
			}
		}
		err := call(token)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Expired() && attempt < maxReexchanges {
			c.dropToken(token)
			continue
		}
		return err
	}
}

func (c *Client) dropToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == token {
		c.token = ""
	}
}

func (c *Client) path(suffix string) string {
	return "/" + c.Version + suffix
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	if c.pacer != nil {
		if err := c.pacer.Wait(ctx); err != nil {
			return err
		}
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	if c.Origin != "" {
		req.Header.Set("Origin", c.Origin)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseError(resp, respBody)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

func parseError(resp *http.Response, body []byte) error {
	apiErr := &APIError{Status: resp.StatusCode, Code: resp.StatusCode}
	var env envelope
	if json.Unmarshal(body, &env) == nil {
		if env.Code != 0 {
			apiErr.Code = env.Code
		}
		apiErr.Message = env.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
		apiErr.RetryAfter = time.Duration(secs) * time.Second
	}
	return apiErr
}
