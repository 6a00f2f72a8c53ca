package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novaline-edu/enrollgate/internal/auth"
)

func TestJWTProvider_RoundTrip(t *testing.T) {
	p := auth.NewJWTProvider("test-secret", time.Hour)

	token, err := p.GenerateAccessToken(42, "student")
	require.NoError(t, err)

	claims, err := p.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "student", claims.Role)
	assert.Equal(t, "access", claims.Scope)
}

func TestJWTProvider_RejectsTokenSignedWithDifferentSecret(t *testing.T) {
	p1 := auth.NewJWTProvider("secret-one", time.Hour)
	p2 := auth.NewJWTProvider("secret-two", time.Hour)

	token, err := p1.GenerateAccessToken(1, "admin")
	require.NoError(t, err)

	_, err = p2.ValidateToken(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestJWTProvider_RejectsExpiredToken(t *testing.T) {
	p := auth.NewJWTProvider("test-secret", -time.Minute)

	token, err := p.GenerateAccessToken(1, "student")
	require.NoError(t, err)

	_, err = p.ValidateToken(token)
	assert.ErrorIs(t, err, auth.ErrExpiredToken)
}

func TestJWTProvider_RejectsMalformedToken(t *testing.T) {
	p := auth.NewJWTProvider("test-secret", time.Hour)

	_, err := p.ValidateToken("not-a-jwt")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}
