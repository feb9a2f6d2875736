package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func mintToken(t *testing.T, claims Claims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	raw, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return raw
}

func TestInspect(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	raw := mintToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "42",
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email: "ana@example.com",
		Role:  "tutor",
	})

	info, err := Inspect(raw)
	require.NoError(t, err)
	require.Equal(t, "42", info.Subject)
	require.Equal(t, "ana@example.com", info.Email)
	require.Equal(t, "tutor", info.Role)
	require.True(t, exp.Equal(info.ExpiresAt))
	require.False(t, info.Expired())
}

func TestInspectMalformed(t *testing.T) {
	for _, raw := range []string{"", "not-a-jwt", "a.b"} {
		_, err := Inspect(raw)
		require.ErrorIs(t, err, ErrMalformed)
	}
}

func TestExpired(t *testing.T) {
	raw := mintToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	info, err := Inspect(raw)
	require.NoError(t, err)
	require.True(t, info.Expired())
}

func TestNoExpiryClaimNeverExpires(t *testing.T) {
	raw := mintToken(t, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "7"}})
	info, err := Inspect(raw)
	require.NoError(t, err)
	require.False(t, info.Expired())
}
