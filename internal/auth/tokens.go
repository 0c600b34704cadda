package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/alphabot-ai/nodebird/internal/clock"
	"github.com/alphabot-ai/nodebird/internal/model"
)

var (
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenInvalid       = errors.New("token invalid")
	ErrWrongSigningMethod = errors.New("unexpected signing method")
)

type tokenClaims struct {
	ID   int64  `json:"id"`
	Nick string `json:"nick"`
	jwt.RegisteredClaims
}

// Issuer signs HS256 tokens with a fixed secret.
type Issuer struct {
	secret []byte
	clock  clock.Clock
}

func NewIssuer(secret string, clk clock.Clock) *Issuer {
	if clk == nil {
		clk = clock.Real()
	}
	return &Issuer{secret: []byte(secret), clock: clk}
}

// Issue mints a token for user that expires ttl from now. A negative ttl
// yields a token that is already expired.
func (i *Issuer) Issue(user model.User, ttl time.Duration, issuer string) (string, model.Claims, error) {
	now := i.clock.Now()
	claims := tokenClaims{
		ID:   user.ID,
		Nick: user.Nick,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", model.Claims{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, toModel(claims), nil
}

// Verifier checks signature and expiry of tokens minted by an Issuer
// sharing the same secret.
type Verifier struct {
	secret []byte
	issuer string
	clock  clock.Clock
}

// NewVerifier returns a Verifier. An empty issuer disables the iss check.
func NewVerifier(secret, issuer string, clk clock.Clock) *Verifier {
	if clk == nil {
		clk = clock.Real()
	}
	return &Verifier{secret: []byte(secret), issuer: issuer, clock: clk}
}

// Verify returns the token's claims, ErrTokenExpired when the signature is
// good but the token is past its expiry, or ErrTokenInvalid otherwise.
func (v *Verifier) Verify(raw string) (model.Claims, error) {
	raw = strings.TrimSpace(raw)
	if after, ok := strings.CutPrefix(raw, "Bearer "); ok {
		raw = strings.TrimSpace(after)
	}
	if raw == "" {
		return model.Claims{}, ErrTokenInvalid
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.clock.Now),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims tokenClaims
	_, err := jwt.ParseWithClaims(raw, &claims, v.fetchSecret, opts...)
	switch {
	case err == nil:
		return toModel(claims), nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return model.Claims{}, fmt.Errorf("%w: %v", ErrTokenExpired, err)
	default:
		return model.Claims{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
}

func (v *Verifier) fetchSecret(token *jwt.Token) (any, error) {
	if token.Method != jwt.SigningMethodHS256 {
		return nil, ErrWrongSigningMethod
	}
	return v.secret, nil
}

func toModel(c tokenClaims) model.Claims {
	out := model.Claims{
		ID:      c.ID,
		Nick:    c.Nick,
		Issuer:  c.Issuer,
		TokenID: c.RegisteredClaims.ID,
	}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	return out
}
