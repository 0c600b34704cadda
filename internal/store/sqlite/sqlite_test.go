package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alphabot-ai/nodebird/internal/model"
	"github.com/alphabot-ai/nodebird/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	st, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func createUser(t *testing.T, st *Store, email string) int64 {
	t.Helper()
	id, err := st.CreateUser(context.Background(), &model.User{
		Email:        email,
		Nick:         "nick-" + email,
		PasswordHash: "hash",
		Provider:     model.ProviderLocal,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return id
}

func TestUserLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	id := createUser(t, st, "a@example.com")
	got, err := st.FindUserByEmail(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if got.ID != id || got.Provider != model.ProviderLocal || got.PasswordHash != "hash" {
		t.Fatalf("unexpected user: %+v", got)
	}

	_, err = st.CreateUser(ctx, &model.User{Email: "a@example.com", Nick: "dup", CreatedAt: time.Now()})
	if !errors.Is(err, store.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}

	if err := st.DeleteUser(ctx, id, time.Now()); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if _, err := st.GetUser(ctx, id); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected deleted user hidden, got %v", err)
	}
	if err := st.DeleteUser(ctx, id, time.Now()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}

	// the email is free again once the previous owner is gone
	createUser(t, st, "a@example.com")
}

func TestFindUserBySNS(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	id, err := st.CreateUser(ctx, &model.User{Nick: "kakao", Provider: model.ProviderKakao, SNSID: "12345", CreatedAt: time.Now()})
	if err != nil {
		t.Fatalf("create sns user: %v", err)
	}
	got, err := st.FindUserBySNS(ctx, model.ProviderKakao, "12345")
	if err != nil {
		t.Fatalf("find by sns: %v", err)
	}
	if got.ID != id || got.Email != "" {
		t.Fatalf("unexpected user: %+v", got)
	}
	if _, err := st.FindUserBySNS(ctx, model.ProviderLocal, "12345"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for other provider, got %v", err)
	}
}

func TestDomainLookupsHideDeleted(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	userID := createUser(t, st, "owner@example.com")

	domain := model.Domain{UserID: userID, Host: "localhost:4000", Tier: model.TierFree, Secret: "s3cret", CreatedAt: time.Now()}
	id, err := st.CreateDomain(ctx, &domain)
	if err != nil {
		t.Fatalf("create domain: %v", err)
	}

	bySecret, err := st.FindDomainBySecret(ctx, "s3cret")
	if err != nil || bySecret.ID != id {
		t.Fatalf("find by secret: %+v %v", bySecret, err)
	}
	byHost, err := st.FindDomainByHost(ctx, "localhost:4000")
	if err != nil || byHost.Tier != model.TierFree {
		t.Fatalf("find by host: %+v %v", byHost, err)
	}

	_, err = st.CreateDomain(ctx, &model.Domain{UserID: userID, Host: "other", Tier: model.TierPremium, Secret: "s3cret", CreatedAt: time.Now()})
	if !errors.Is(err, store.ErrDuplicateSecret) {
		t.Fatalf("expected ErrDuplicateSecret, got %v", err)
	}

	if err := st.DeleteDomain(ctx, id, time.Now()); err != nil {
		t.Fatalf("delete domain: %v", err)
	}
	if _, err := st.FindDomainBySecret(ctx, "s3cret"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected deleted domain hidden by secret, got %v", err)
	}
	if _, err := st.FindDomainByHost(ctx, "localhost:4000"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected deleted domain hidden by host, got %v", err)
	}
	domains, err := st.ListDomainsByUser(ctx, userID)
	if err != nil {
		t.Fatalf("list domains: %v", err)
	}
	if len(domains) != 0 {
		t.Fatalf("expected no live domains, got %d", len(domains))
	}
}

func TestDeleteUserCascadesToDomains(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	userID := createUser(t, st, "gone@example.com")

	if _, err := st.CreateDomain(ctx, &model.Domain{UserID: userID, Host: "gone.example", Tier: model.TierFree, Secret: "gone", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("create domain: %v", err)
	}
	if err := st.DeleteUser(ctx, userID, time.Now()); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if _, err := st.FindDomainBySecret(ctx, "gone"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected domain removed with owner, got %v", err)
	}
}

func TestPostsAndHashtags(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	alice := createUser(t, st, "alice@example.com")
	bob := createUser(t, st, "bob@example.com")

	now := time.Now()
	first, err := st.CreatePost(ctx, &model.Post{Content: "hello #go #nodebird", UserID: alice, CreatedAt: now}, []string{"go", "nodebird"})
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	second, err := st.CreatePost(ctx, &model.Post{Content: "again #go", Img: "/img/a.png", UserID: bob, CreatedAt: now.Add(time.Second)}, []string{"go"})
	if err != nil {
		t.Fatalf("create post: %v", err)
	}

	mine, err := st.ListPostsByUser(ctx, alice)
	if err != nil {
		t.Fatalf("list by user: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != first {
		t.Fatalf("unexpected posts for alice: %+v", mine)
	}

	tag, err := st.FindHashtagByTitle(ctx, "go")
	if err != nil {
		t.Fatalf("find hashtag: %v", err)
	}
	tagged, err := st.ListPostsByHashtag(ctx, tag.ID)
	if err != nil {
		t.Fatalf("list by hashtag: %v", err)
	}
	if len(tagged) != 2 || tagged[0].ID != second || tagged[0].Img != "/img/a.png" {
		t.Fatalf("unexpected tagged posts: %+v", tagged)
	}

	if _, err := st.FindHashtagByTitle(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	empty, err := st.ListPostsByUser(ctx, 999)
	if err != nil {
		t.Fatalf("list empty: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", empty)
	}
}

func TestSiteStats(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	userID := createUser(t, st, "stats@example.com")
	if _, err := st.CreateDomain(ctx, &model.Domain{UserID: userID, Host: "h", Tier: model.TierFree, Secret: "x", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("create domain: %v", err)
	}
	if _, err := st.CreatePost(ctx, &model.Post{Content: "p", UserID: userID, CreatedAt: time.Now()}, nil); err != nil {
		t.Fatalf("create post: %v", err)
	}

	stats, err := st.GetSiteStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Users != 1 || stats.Domains != 1 || stats.Posts != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if err := st.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
