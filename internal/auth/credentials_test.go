package auth

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alphabot-ai/nodebird/internal/clock"
	"github.com/alphabot-ai/nodebird/internal/model"
	"github.com/alphabot-ai/nodebird/internal/registry"
	"github.com/alphabot-ai/nodebird/internal/store/sqlite"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestVerifySecret(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	reg := registry.New(st, clock.Fake(testStart))

	ownerID, err := st.CreateUser(ctx, &model.User{Email: "owner@a.test", Nick: "owner", CreatedAt: testStart})
	require.NoError(t, err)
	domain, err := reg.Register(ctx, ownerID, "https://a.test", model.TierFree)
	require.NoError(t, err)

	verifier := NewCredentialVerifier(reg, st)

	user, got, err := verifier.VerifySecret(ctx, domain.Secret)
	require.NoError(t, err)
	require.Equal(t, ownerID, user.ID)
	require.Equal(t, "owner", user.Nick)
	require.Equal(t, domain.ID, got.ID)

	_, _, err = verifier.VerifySecret(ctx, "bogus")
	require.ErrorIs(t, err, ErrUnregistered)

	require.NoError(t, reg.Remove(ctx, ownerID, domain.ID))
	_, _, err = verifier.VerifySecret(ctx, domain.Secret)
	require.ErrorIs(t, err, ErrUnregistered)
}

func TestVerifySecretDeletedOwner(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	reg := registry.New(st, clock.Fake(testStart))

	ownerID, err := st.CreateUser(ctx, &model.User{Email: "gone@a.test", Nick: "gone", CreatedAt: testStart})
	require.NoError(t, err)
	domain, err := reg.Register(ctx, ownerID, "https://gone.test", model.TierPremium)
	require.NoError(t, err)
	require.NoError(t, st.DeleteUser(ctx, ownerID, time.Now()))

	_, _, err = NewCredentialVerifier(reg, st).VerifySecret(ctx, domain.Secret)
	require.ErrorIs(t, err, ErrUnregistered)
}
