package jwt_test

import (
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benmeehan/meterctl/pkg/jwt"
)

func mint(t *testing.T, claims gojwt.RegisteredClaims) string {
	t.Helper()
	token, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestInspect(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	token := mint(t, gojwt.RegisteredClaims{
		Subject:   "user-1",
		IssuedAt:  gojwt.NewNumericDate(now),
		ExpiresAt: gojwt.NewNumericDate(now.Add(time.Minute)),
	})

	claims, err := jwt.Inspect(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.True(t, claims.HasExpiry())
	assert.False(t, claims.Expired(now))
	assert.Equal(t, time.Minute, claims.ExpiresIn(now))
	assert.True(t, claims.Expired(now.Add(time.Minute)))
	assert.Zero(t, claims.ExpiresIn(now.Add(2*time.Minute)))
}

func TestInspect_ExpiredTokenStillParses(t *testing.T) {
	token := mint(t, gojwt.RegisteredClaims{ExpiresAt: gojwt.NewNumericDate(time.Now().Add(-time.Hour))})

	claims, err := jwt.Inspect(token)
	require.NoError(t, err)
	assert.True(t, claims.Expired(time.Now()))
}

func TestInspect_NoExpiry(t *testing.T) {
	claims, err := jwt.Inspect(mint(t, gojwt.RegisteredClaims{Subject: "s"}))
	require.NoError(t, err)
	assert.False(t, claims.HasExpiry())
	assert.False(t, claims.Expired(time.Now()))
}

func TestInspect_Opaque(t *testing.T) {
	_, err := jwt.Inspect("opaque-token")
	assert.ErrorIs(t, err, jwt.ErrOpaqueToken)

	_, err = jwt.Inspect("a.b.c")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, jwt.ErrOpaqueToken)
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "abcdef…", jwt.Redact("abcdefghijkl"))
	assert.Equal(t, "***", jwt.Redact("abc"))
	assert.Equal(t, "", jwt.Redact(""))
}
