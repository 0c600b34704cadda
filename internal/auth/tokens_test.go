package auth

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/alphabot-ai/nodebird/internal/clock"
	"github.com/alphabot-ai/nodebird/internal/model"
)

const testSecret = "test-signing-secret"

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newPair(clk clock.Clock) (*Issuer, *Verifier) {
	return NewIssuer(testSecret, clk), NewVerifier(testSecret, "nodebird", clk)
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	clk := clock.Fake(testStart)
	issuer, verifier := newPair(clk)
	user := model.User{ID: 7, Nick: "alice"}

	raw, issued, err := issuer.Issue(user, 30*time.Minute, "nodebird")
	require.NoError(t, err)
	require.NotEmpty(t, issued.TokenID)

	claims, err := verifier.Verify(raw)
	require.NoError(t, err)
	require.Equal(t, int64(7), claims.ID)
	require.Equal(t, "alice", claims.Nick)
	require.Equal(t, "nodebird", claims.Issuer)
	require.Equal(t, issued.TokenID, claims.TokenID)
	require.True(t, claims.IssuedAt.Equal(testStart))
	require.True(t, claims.ExpiresAt.Equal(testStart.Add(30*time.Minute)))

	bearer, err := verifier.Verify("Bearer " + raw)
	require.NoError(t, err)
	require.Equal(t, claims, bearer)
}

func TestVerifyExpiryBoundary(t *testing.T) {
	clk := clock.Fake(testStart)
	issuer, verifier := newPair(clk)

	raw, _, err := issuer.Issue(model.User{ID: 1, Nick: "bob"}, time.Minute, "nodebird")
	require.NoError(t, err)

	clk.Advance(59 * time.Second)
	_, err = verifier.Verify(raw)
	require.NoError(t, err)

	clk.Advance(time.Second)
	_, err = verifier.Verify(raw)
	require.ErrorIs(t, err, ErrTokenExpired)
	require.NotErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyAlreadyExpiredToken(t *testing.T) {
	issuer, verifier := newPair(clock.Fake(testStart))

	raw, _, err := issuer.Issue(model.User{ID: 1, Nick: "bob"}, -time.Second, "nodebird")
	require.NoError(t, err)

	_, err = verifier.Verify(raw)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyTamperedToken(t *testing.T) {
	issuer, verifier := newPair(clock.Fake(testStart))

	raw, _, err := issuer.Issue(model.User{ID: 1, Nick: "alice"}, time.Hour, "nodebird")
	require.NoError(t, err)

	parts := strings.Split(raw, ".")
	require.Len(t, parts, 3)
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	forged := strings.Replace(string(payload), `"id":1`, `"id":2`, 1)
	require.NotEqual(t, string(payload), forged)
	parts[1] = base64.RawURLEncoding.EncodeToString([]byte(forged))

	_, err = verifier.Verify(strings.Join(parts, "."))
	require.ErrorIs(t, err, ErrTokenInvalid)

	// flipping a signature byte must fail the same way
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	orig := strings.Split(raw, ".")
	_, err = verifier.Verify(strings.Join([]string{orig[0], orig[1], string(sig)}, "."))
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyTamperedExpiredTokenIsInvalid(t *testing.T) {
	issuer, verifier := newPair(clock.Fake(testStart))

	raw, _, err := issuer.Issue(model.User{ID: 1, Nick: "alice"}, -time.Minute, "nodebird")
	require.NoError(t, err)

	_, err = verifier.Verify(raw + "x")
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyRejectsGarbageAndForeignTokens(t *testing.T) {
	clk := clock.Fake(testStart)
	_, verifier := newPair(clk)

	for _, raw := range []string{"", "garbage", "a.b.c", "Bearer "} {
		_, err := verifier.Verify(raw)
		require.ErrorIs(t, err, ErrTokenInvalid, "raw %q", raw)
	}

	otherIssuer := NewIssuer("another-secret", clk)
	raw, _, err := otherIssuer.Issue(model.User{ID: 1, Nick: "eve"}, time.Hour, "nodebird")
	require.NoError(t, err)
	_, err = verifier.Verify(raw)
	require.ErrorIs(t, err, ErrTokenInvalid)

	wrongIss, _, err := NewIssuer(testSecret, clk).Issue(model.User{ID: 1, Nick: "eve"}, time.Hour, "elsewhere")
	require.NoError(t, err)
	_, err = verifier.Verify(wrongIss)
	require.ErrorIs(t, err, ErrTokenInvalid)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"id":  1,
		"iss": "nodebird",
		"exp": testStart.Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = verifier.Verify(unsigned)
	require.ErrorIs(t, err, ErrTokenInvalid)
}
