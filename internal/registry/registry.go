// Package registry manages the domains allowed to exchange a client secret
// for API tokens.
package registry

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/alphabot-ai/nodebird/internal/clock"
	"github.com/alphabot-ai/nodebird/internal/model"
	"github.com/alphabot-ai/nodebird/internal/store"
)

var (
	ErrInvalidTier = errors.New("domain type must be free or premium")
	ErrInvalidHost = errors.New("domain host is required")
)

const secretAttempts = 3

type Registry struct {
	domains store.DomainStore
	clock   clock.Clock
}

func New(domains store.DomainStore, clk clock.Clock) *Registry {
	if clk == nil {
		clk = clock.Real()
	}
	return &Registry{domains: domains, clock: clk}
}

// Register stores a new domain for ownerID with a freshly generated secret.
// The host is stored in normalized form.
func (r *Registry) Register(ctx context.Context, ownerID int64, host string, tier model.Tier) (model.Domain, error) {
	if !tier.Valid() {
		return model.Domain{}, fmt.Errorf("%w: %q", ErrInvalidTier, tier)
	}
	normalized := NormalizeHost(host)
	if normalized == "" {
		return model.Domain{}, ErrInvalidHost
	}

	for attempt := 0; ; attempt++ {
		secret, err := newSecret(32)
		if err != nil {
			return model.Domain{}, err
		}
		d := model.Domain{
			UserID:    ownerID,
			Host:      normalized,
			Tier:      tier,
			Secret:    secret,
			CreatedAt: r.clock.Now(),
		}
		id, err := r.domains.CreateDomain(ctx, &d)
		if errors.Is(err, store.ErrDuplicateSecret) && attempt+1 < secretAttempts {
			continue
		}
		if err != nil {
			return model.Domain{}, err
		}
		d.ID = id
		return d, nil
	}
}

func (r *Registry) FindBySecret(ctx context.Context, secret string) (model.Domain, error) {
	if secret == "" {
		return model.Domain{}, store.ErrNotFound
	}
	return r.domains.FindDomainBySecret(ctx, secret)
}

// FindByHost looks up a live domain by host. The argument may be a full
// origin such as "https://a.test:8080" or a bare authority.
func (r *Registry) FindByHost(ctx context.Context, host string) (model.Domain, error) {
	normalized := NormalizeHost(host)
	if normalized == "" {
		return model.Domain{}, store.ErrNotFound
	}
	return r.domains.FindDomainByHost(ctx, normalized)
}

func (r *Registry) ListByOwner(ctx context.Context, ownerID int64) ([]model.Domain, error) {
	return r.domains.ListDomainsByUser(ctx, ownerID)
}

// Remove soft-deletes a domain. Domains owned by someone else are reported
// as not found.
func (r *Registry) Remove(ctx context.Context, ownerID, domainID int64) error {
	d, err := r.domains.GetDomain(ctx, domainID)
	if err != nil {
		return err
	}
	if d.UserID != ownerID {
		return store.ErrNotFound
	}
	return r.domains.DeleteDomain(ctx, domainID, r.clock.Now())
}

// NormalizeHost strips the scheme, path and user info from raw and returns
// the lowercased authority (host plus port if present).
func NormalizeHost(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return ""
	}
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return ""
		}
		return strings.ToLower(u.Host)
	}
	if i := strings.IndexAny(raw, "/?#"); i >= 0 {
		raw = raw[:i]
	}
	if i := strings.LastIndex(raw, "@"); i >= 0 {
		raw = raw[i+1:]
	}
	return strings.ToLower(raw)
}

func newSecret(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
