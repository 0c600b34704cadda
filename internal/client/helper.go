package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Provisioner creates accounts, domains and posts on a running gateway
// through its management routes.
type Provisioner struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewProvisioner(baseURL string) *Provisioner {
	return &Provisioner{BaseURL: strings.TrimRight(baseURL, "/"), HTTPClient: http.DefaultClient}
}

// Join creates a local account.
func (h *Provisioner) Join(ctx context.Context, email, nick, password string) error {
	body := map[string]string{"email": email, "nick": nick, "password": password}
	_, err := h.send(ctx, http.MethodPost, "/auth/join", "", "", body)
	return err
}

// RegisterDomain registers host for the account and returns its client secret.
func (h *Provisioner) RegisterDomain(ctx context.Context, email, password, host, tier string) (string, error) {
	body := map[string]string{"host": host, "type": tier}
	raw, err := h.send(ctx, http.MethodPost, "/domains", email, password, body)
	if err != nil {
		return "", err
	}
	var result struct {
		ClientSecret string `json:"clientSecret"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", err
	}
	return result.ClientSecret, nil
}

// CreateClient joins a throwaway account, registers host and returns a
// client holding the new domain's secret.
func (h *Provisioner) CreateClient(ctx context.Context, host string, opts ...Option) (*Client, error) {
	id := uuid.NewString()[:8]
	email := fmt.Sprintf("caller-%s@nodebird.test", id)
	password := "pw-" + id
	if err := h.Join(ctx, email, "caller-"+id, password); err != nil {
		return nil, fmt.Errorf("join: %w", err)
	}
	secret, err := h.RegisterDomain(ctx, email, password, host, "free")
	if err != nil {
		return nil, fmt.Errorf("register domain: %w", err)
	}
	opts = append([]Option{WithHTTPClient(h.HTTPClient)}, opts...)
	return New(h.BaseURL, secret, opts...), nil
}

// CreatePost publishes content as the account and returns the post id.
func (h *Provisioner) CreatePost(ctx context.Context, email, password, content, img string) (int64, error) {
	body := map[string]string{"content": content, "img": img}
	raw, err := h.send(ctx, http.MethodPost, "/posts", email, password, body)
	if err != nil {
		return 0, err
	}
	var result struct {
		Payload struct {
			Post struct {
				ID int64 `json:"id"`
			} `json:"post"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return 0, err
	}
	return result.Payload.Post.ID, nil
}

func (h *Provisioner) send(ctx context.Context, method, path, email, password string, body any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, h.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if email != "" {
		req.SetBasicAuth(email, password)
	}
	resp, err := h.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, parseError(resp, raw)
	}
	return raw, nil
}
