package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispatchly/backend/internal/models"
	repo "github.com/dispatchly/backend/internal/repository"
)

var txOpts = pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func walletRow(balance string, locked bool) *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows([]string{
		"id", "user_id", "balance", "total_earnings", "total_withdrawals", "pending_balance",
		"is_locked", "created_at", "updated_at",
	}).AddRow("w-1", "u-1", decimal.RequireFromString(balance), decimal.Zero, decimal.Zero, decimal.Zero,
		locked, now, now)
}

func TestStore_WithTx_Commits(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock)

	mock.ExpectBeginTx(txOpts)
	mock.ExpectQuery(`FROM wallets WHERE user_id=\$1 FOR UPDATE`).
		WithArgs("u-1").
		WillReturnRows(walletRow("100.00", false))
	mock.ExpectCommit()

	var got models.Wallet
	err := store.WithTx(context.Background(), func(r repo.Repos) error {
		var err error
		got, err = r.Wallets.LockByUserID(context.Background(), "u-1")
		return err
	})

	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("100").Equal(got.Balance))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithTx_RollsBackOnError(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock)
	boom := errors.New("boom")

	mock.ExpectBeginTx(txOpts)
	mock.ExpectRollback()

	err := store.WithTx(context.Background(), func(repo.Repos) error { return boom })

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithTx_RollsBackOnPanic(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock)

	mock.ExpectBeginTx(txOpts)
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = store.WithTx(context.Background(), func(repo.Repos) error { panic("bad") })
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithTx_BeginFails(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock)

	mock.ExpectBeginTx(txOpts).WillReturnError(errors.New("no conn"))

	called := false
	err := store.WithTx(context.Background(), func(repo.Repos) error { called = true; return nil })

	require.Error(t, err)
	assert.False(t, called)
	assert.Contains(t, err.Error(), "begin tx")
}

func TestMapErr(t *testing.T) {
	assert.NoError(t, mapErr(nil))
	assert.ErrorIs(t, mapErr(pgx.ErrNoRows), repo.ErrNotFound)

	dup := &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"}
	err := mapErr(dup)
	assert.ErrorIs(t, err, repo.ErrConflict)
	assert.Contains(t, err.Error(), "users_email_key")

	assert.ErrorIs(t, mapErr(&pgconn.PgError{Code: "22P02"}), repo.ErrNotFound)

	other := errors.New("other")
	assert.Equal(t, other, mapErr(other))
}
