package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/alphabot-ai/nodebird/internal/model"
	"github.com/alphabot-ai/nodebird/internal/store"
)

var ErrUnregistered = errors.New("unregistered domain, register it first")

// DomainFinder resolves live domains by client secret.
type DomainFinder interface {
	FindBySecret(ctx context.Context, secret string) (model.Domain, error)
}

// CredentialVerifier resolves a presented client secret to its live domain
// and owning user.
type CredentialVerifier struct {
	domains DomainFinder
	users   store.UserStore
}

func NewCredentialVerifier(domains DomainFinder, users store.UserStore) *CredentialVerifier {
	return &CredentialVerifier{domains: domains, users: users}
}

// VerifySecret returns ErrUnregistered when no live domain, or no live
// owner, matches the secret. Store failures are returned wrapped.
func (c *CredentialVerifier) VerifySecret(ctx context.Context, secret string) (model.User, model.Domain, error) {
	domain, err := c.domains.FindBySecret(ctx, secret)
	if errors.Is(err, store.ErrNotFound) {
		return model.User{}, model.Domain{}, ErrUnregistered
	}
	if err != nil {
		return model.User{}, model.Domain{}, fmt.Errorf("find domain: %w", err)
	}

	user, err := c.users.GetUser(ctx, domain.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return model.User{}, model.Domain{}, ErrUnregistered
	}
	if err != nil {
		return model.User{}, model.Domain{}, fmt.Errorf("find owner: %w", err)
	}
	return user, domain, nil
}
