package token_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/school-auth/token"
	"github.com/stretchr/testify/require"
)

var signingKey = []byte("confirmation-signing-key-0123456789")

func TestNewHMACSignerKeyLength(t *testing.T) {
	_, err := token.NewHMACSigner([]byte("short"))
	require.Error(t, err)
}

func TestIssueAndParse(t *testing.T) {
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	signer, err := token.NewHMACSigner(signingKey, token.WithNowTime(func() time.Time { return now }))
	require.NoError(t, err)

	raw, issued, err := signer.Issue("admin-a", "school-a", "tenant_erasure", 5*time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, issued.ID)

	claims, err := signer.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "admin-a", claims.Subject)
	require.Equal(t, "school-a", claims.Tenant)
	require.Equal(t, "tenant_erasure", claims.Purpose)
	require.Equal(t, issued.ID, claims.ID)

	t.Run("expired", func(t *testing.T) {
		later, err := token.NewHMACSigner(signingKey, token.WithNowTime(func() time.Time { return now.Add(6 * time.Minute) }))
		require.NoError(t, err)
		_, err = later.Parse(raw)
		require.ErrorIs(t, err, token.ErrInvalidToken)
	})

	t.Run("other key", func(t *testing.T) {
		other, err := token.NewHMACSigner([]byte("another-signing-key-0123456789abcdef"), token.WithNowTime(func() time.Time { return now }))
		require.NoError(t, err)
		_, err = other.Parse(raw)
		require.ErrorIs(t, err, token.ErrInvalidToken)
	})

	t.Run("none algorithm", func(t *testing.T) {
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, issued).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = signer.Parse(unsigned)
		require.ErrorIs(t, err, token.ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := signer.Parse("not-a-token")
		require.ErrorIs(t, err, token.ErrInvalidToken)
	})
}

func TestUsedTokenCache(t *testing.T) {
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	cache := token.NewInMemoryUsedTokenCache()

	require.True(t, cache.MarkUsed("j1", now.Add(time.Minute)))
	require.False(t, cache.MarkUsed("j1", now.Add(time.Minute)))
	require.True(t, cache.MarkUsed("j2", now.Add(time.Hour)))

	require.Equal(t, 1, cache.Cleanup(now.Add(2*time.Minute)))
	require.False(t, cache.MarkUsed("j2", now.Add(time.Hour)))
}
