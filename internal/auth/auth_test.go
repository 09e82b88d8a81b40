package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispatchly/backend/internal/models"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := NewTokenManager("a", "r", "test", time.Minute, time.Hour)

	pair, err := tm.GeneratePair("u-1", models.RoleDriver)
	require.NoError(t, err)

	c, err := tm.ParseAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u-1", c.UserID)
	assert.Equal(t, models.RoleDriver, c.Role)

	c, err = tm.ParseRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "u-1", c.UserID)
}

func TestTokenManager_RejectsWrongKind(t *testing.T) {
	tm := NewTokenManager("a", "r", "test", time.Minute, time.Hour)
	pair, err := tm.GeneratePair("u-1", models.RoleCustomer)
	require.NoError(t, err)

	_, err = tm.ParseAccess(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = tm.ParseRefresh(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenManager_RejectsExpiredAndForeign(t *testing.T) {
	tm := NewTokenManager("a", "r", "test", -time.Minute, time.Hour)
	pair, err := tm.GeneratePair("u-1", models.RoleCustomer)
	require.NoError(t, err)
	_, err = tm.ParseAccess(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewTokenManager("a", "r", "someone-else", time.Minute, time.Hour)
	pair, err = other.GeneratePair("u-1", models.RoleCustomer)
	require.NoError(t, err)
	_, err = tm.ParseAccess(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPassword(t *testing.T) {
	h, err := HashPassword("s3cret-pass")
	require.NoError(t, err)
	assert.NoError(t, VerifyPassword("s3cret-pass", h))
	assert.Error(t, VerifyPassword("wrong", h))
}
