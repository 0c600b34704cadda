package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/alphabot-ai/nodebird/internal/clock"
	"github.com/alphabot-ai/nodebird/internal/model"
	"github.com/alphabot-ai/nodebird/internal/store"
)

var (
	ErrBadCredentials  = errors.New("bad credentials")
	ErrPasswordTooLong = errors.New("password longer than 72 bytes")
)

const (
	passwordCost     = 12
	maxPasswordBytes = 72
)

// NormalizeEmail is applied wherever a local email is stored or looked up.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Credentials carries whatever a Strategy needs. Local login uses Email and
// Password; external profiles use Provider, SNSID, Nick and optionally Email.
type Credentials struct {
	Email    string
	Password string
	Provider string
	SNSID    string
	Nick     string
}

// Strategy authenticates a principal from presented credentials.
type Strategy interface {
	Authenticate(ctx context.Context, creds Credentials) (model.User, error)
}

type LocalStrategy struct {
	users store.UserStore
}

func NewLocalStrategy(users store.UserStore) *LocalStrategy {
	return &LocalStrategy{users: users}
}

func (s *LocalStrategy) Authenticate(ctx context.Context, creds Credentials) (model.User, error) {
	email := NormalizeEmail(creds.Email)
	if email == "" || creds.Password == "" {
		return model.User{}, ErrBadCredentials
	}
	user, err := s.users.FindUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return model.User{}, ErrBadCredentials
	}
	if err != nil {
		return model.User{}, err
	}
	if user.Provider != model.ProviderLocal || user.PasswordHash == "" {
		return model.User{}, ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password)); err != nil {
		return model.User{}, ErrBadCredentials
	}
	return user, nil
}

// ExternalProfileStrategy trusts a profile returned by an identity provider,
// creating the user on first sight.
type ExternalProfileStrategy struct {
	users store.UserStore
	clock clock.Clock
}

func NewExternalProfileStrategy(users store.UserStore, clk clock.Clock) *ExternalProfileStrategy {
	if clk == nil {
		clk = clock.Real()
	}
	return &ExternalProfileStrategy{users: users, clock: clk}
}

func (s *ExternalProfileStrategy) Authenticate(ctx context.Context, creds Credentials) (model.User, error) {
	if creds.Provider == "" || creds.Provider == model.ProviderLocal || creds.SNSID == "" {
		return model.User{}, ErrBadCredentials
	}
	user, err := s.users.FindUserBySNS(ctx, creds.Provider, creds.SNSID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return model.User{}, err
	}

	nick := strings.TrimSpace(creds.Nick)
	if nick == "" {
		nick = creds.Provider + "-" + creds.SNSID
	}
	user = model.User{
		Email:     creds.Email,
		Nick:      nick,
		Provider:  creds.Provider,
		SNSID:     creds.SNSID,
		CreatedAt: s.clock.Now(),
	}
	id, err := s.users.CreateUser(ctx, &user)
	if err != nil {
		return model.User{}, fmt.Errorf("create %s user: %w", creds.Provider, err)
	}
	user.ID = id
	return user, nil
}

func HashPassword(password string) (string, error) {
	if len(password) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
