package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenService_RoundTrip(t *testing.T) {
	svc := NewTokenService("s3cret", "ops")

	token, err := svc.GenerateToken("admin", time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Subject)
	assert.Equal(t, "ops", claims.Issuer)
}

func TestTokenService_Rejects(t *testing.T) {
	svc := NewTokenService("s3cret", "ops")

	expired, err := svc.GenerateToken("admin", -time.Minute)
	require.NoError(t, err)
	_, err = svc.ValidateToken(expired)
	assert.Error(t, err)

	foreign, err := NewTokenService("other", "ops").GenerateToken("admin", time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(foreign)
	assert.Error(t, err)

	otherIssuer, err := NewTokenService("s3cret", "elsewhere").GenerateToken("admin", time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(otherIssuer)
	assert.Error(t, err)
}

func TestTokenService_Disabled(t *testing.T) {
	svc := NewTokenService("", "")
	assert.False(t, svc.Enabled())

	_, err := svc.GenerateToken("admin", time.Hour)
	assert.ErrorIs(t, err, ErrNoSecret)
	_, err = svc.ValidateToken("x")
	assert.ErrorIs(t, err, ErrNoSecret)
}
