package store

import (
	"context"
	"errors"
	"time"

	"github.com/alphabot-ai/nodebird/internal/model"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicateEmail  = errors.New("duplicate email")
	ErrDuplicateSecret = errors.New("duplicate client secret")
)

type Store interface {
	UserStore
	DomainStore
	PostStore
	HashtagStore
	GetSiteStats(ctx context.Context) (model.SiteStats, error)
	Ping(ctx context.Context) error
	Close() error
}

type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) (int64, error)
	GetUser(ctx context.Context, id int64) (model.User, error)
	FindUserByEmail(ctx context.Context, email string) (model.User, error)
	FindUserBySNS(ctx context.Context, provider, snsID string) (model.User, error)
	DeleteUser(ctx context.Context, id int64, deletedAt time.Time) error
}

// DomainStore persists registered domains. Lookups never return
// soft-deleted rows.
type DomainStore interface {
	CreateDomain(ctx context.Context, domain *model.Domain) (int64, error)
	GetDomain(ctx context.Context, id int64) (model.Domain, error)
	FindDomainBySecret(ctx context.Context, secret string) (model.Domain, error)
	FindDomainByHost(ctx context.Context, host string) (model.Domain, error)
	ListDomainsByUser(ctx context.Context, userID int64) ([]model.Domain, error)
	DeleteDomain(ctx context.Context, id int64, deletedAt time.Time) error
}

type PostStore interface {
	CreatePost(ctx context.Context, post *model.Post, hashtags []string) (int64, error)
	ListPostsByUser(ctx context.Context, userID int64) ([]model.Post, error)
}

type HashtagStore interface {
	FindHashtagByTitle(ctx context.Context, title string) (model.Hashtag, error)
	ListPostsByHashtag(ctx context.Context, hashtagID int64) ([]model.Post, error)
}
