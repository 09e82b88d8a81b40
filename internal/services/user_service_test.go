package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispatchly/backend/internal/auth"
	"github.com/dispatchly/backend/internal/models"
	"github.com/dispatchly/backend/internal/repository/repotest"
)

func newUserService(t *testing.T) (*UserService, *repotest.Store, *auth.TokenManager) {
	t.Helper()
	store := repotest.New()
	tm := auth.NewTokenManager("access", "refresh", "test", time.Minute, time.Hour)
	return NewUserService(store, tm, testLog), store, tm
}

func TestUser_RegisterCreatesWallet(t *testing.T) {
	svc, store, tm := newUserService(t)
	ctx := context.Background()

	u, pair, err := svc.Register(ctx, RegisterInput{
		Email:     "  Driver@Example.com ",
		Password:  "s3cretpass",
		FirstName: "Tunde",
		Role:      models.RoleDriver,
	})
	require.NoError(t, err)
	assert.Equal(t, "driver@example.com", u.Email)
	assert.Equal(t, models.RoleDriver, u.Role)
	assert.NotEqual(t, "s3cretpass", u.PasswordHash)

	assert.NotEmpty(t, store.Wallet(u.ID).ID)
	assert.Equal(t, u.ID, store.Driver(u.ID).UserID)

	claims, err := tm.ParseAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)
}

func TestUser_CustomerHasNoDriverProfile(t *testing.T) {
	svc, store, _ := newUserService(t)

	u, _, err := svc.Register(context.Background(), RegisterInput{Email: "cust@x.io", Password: "password1", FirstName: "C"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleCustomer, u.Role)
	assert.Empty(t, store.Driver(u.ID).ID)
}

func TestUser_RegisterRejects(t *testing.T) {
	svc, _, _ := newUserService(t)
	ctx := context.Background()
	base := RegisterInput{Email: "a@b.co", Password: "longenough", FirstName: "A"}

	in := base
	in.Role = models.RoleAdmin
	_, _, err := svc.Register(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidInput)

	in = base
	in.Password = "short"
	_, _, err = svc.Register(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidInput)

	in = base
	in.Email = "nope"
	_, _, err = svc.Register(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, _, err = svc.Register(ctx, base)
	require.NoError(t, err)
	_, _, err = svc.Register(ctx, base)
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestUser_LoginAndRefresh(t *testing.T) {
	svc, store, _ := newUserService(t)
	ctx := context.Background()
	u, _, err := svc.Register(ctx, RegisterInput{Email: "c@x.io", Password: "password1", FirstName: "C"})
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "c@x.io", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = svc.Login(ctx, "ghost@x.io", "password1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	got, pair, err := svc.Login(ctx, "C@X.io", "password1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	fresh, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, fresh.AccessToken)

	_, err = svc.Refresh(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrUnauthorized)

	inactive := store.User(u.ID)
	inactive.IsActive = false
	store.PutUser(inactive)

	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, _, err = svc.Login(ctx, "c@x.io", "password1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUser_SeedAdminIsIdempotent(t *testing.T) {
	svc, store, _ := newUserService(t)
	ctx := context.Background()

	require.NoError(t, svc.SeedAdmin(ctx, "admin@dispatch.local", "changeme123"))
	require.NoError(t, svc.SeedAdmin(ctx, "admin@dispatch.local", "changeme123"))
	require.NoError(t, svc.SeedAdmin(ctx, "", ""))

	assert.Len(t, store.Users(), 1)
	u, _, err := svc.Login(ctx, "admin@dispatch.local", "changeme123")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, u.Role)

	me, err := svc.Me(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, me.Email)
	_, err = svc.Me(ctx, "missing")
	assert.ErrorIs(t, err, ErrUnauthorized)
}
