package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careconnect/identity/internal/account"
)

var testPasetoKey = []byte("0123456789abcdef0123456789abcdef")

func TestPasetoIssuerRoundTrip(t *testing.T) {
	issuer, err := NewPasetoIssuer(testPasetoKey, time.Hour)
	require.NoError(t, err)

	id := uuid.New()
	token, err := issuer.Mint(id, "user@example.com", account.RoleVolunteer)
	require.NoError(t, err)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, id.String(), claims.AccountID)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, account.RoleVolunteer, claims.Role)
	assert.True(t, claims.ExpiresAt.After(claims.IssuedAt))
}

func TestPasetoIssuerRejectsBadKeyLength(t *testing.T) {
	_, err := NewPasetoIssuer([]byte("too short"), time.Hour)
	assert.Error(t, err)
}

func TestPasetoIssuerRejectsGarbageToken(t *testing.T) {
	issuer, err := NewPasetoIssuer(testPasetoKey, time.Hour)
	require.NoError(t, err)

	_, err = issuer.Verify("v4.local.garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasetoIssuerRejectsExpiredToken(t *testing.T) {
	issuer, err := NewPasetoIssuer(testPasetoKey, -time.Minute)
	require.NoError(t, err)

	token, err := issuer.Mint(uuid.New(), "user@example.com", account.RoleVolunteer)
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestPasetoIssuerRejectsForgedToken(t *testing.T) {
	issuer, err := NewPasetoIssuer(testPasetoKey, time.Hour)
	require.NoError(t, err)

	otherKey := []byte("ffffffffffffffffffffffffffffffff")
	other, err := NewPasetoIssuer(otherKey, time.Hour)
	require.NoError(t, err)

	token, err := other.Mint(uuid.New(), "user@example.com", account.RoleVolunteer)
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
