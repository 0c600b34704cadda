package auth

import (
	"context"

	"github.com/alphabot-ai/nodebird/internal/model"
)

type ctxKey uint32

const (
	claimsKey ctxKey = iota
	userKey
)

func WithClaims(ctx context.Context, claims model.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

func ClaimsFrom(ctx context.Context) (model.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(model.Claims)
	return claims, ok
}

func WithUser(ctx context.Context, user model.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

func UserFrom(ctx context.Context) (model.User, bool) {
	user, ok := ctx.Value(userKey).(model.User)
	return user, ok
}
