package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/dispatchly/backend/internal/models"
)

type walletsRepo struct{ db DBTX }

const walletColumns = `id, user_id, balance, total_earnings, total_withdrawals, pending_balance, is_locked, created_at, updated_at`

func scanWallet(row interface{ Scan(...any) error }) (models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(&w.ID, &w.UserID, &w.Balance, &w.TotalEarnings, &w.TotalWithdrawals,
		&w.PendingBalance, &w.IsLocked, &w.CreatedAt, &w.UpdatedAt)
	return w, mapErr(err)
}

func (r *walletsRepo) Create(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO wallets(id, user_id) VALUES($1, $2)
		 ON CONFLICT (user_id) DO NOTHING`,
		uuid.NewString(), userID,
	)
	return mapErr(err)
}

func (r *walletsRepo) GetByUserID(ctx context.Context, userID string) (models.Wallet, error) {
	return scanWallet(r.db.QueryRow(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE user_id=$1`, userID))
}

func (r *walletsRepo) LockByUserID(ctx context.Context, userID string) (models.Wallet, error) {
	return scanWallet(r.db.QueryRow(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE user_id=$1 FOR UPDATE`, userID))
}

func (r *walletsRepo) Update(ctx context.Context, w models.Wallet) (models.Wallet, error) {
	return scanWallet(r.db.QueryRow(ctx,
		`UPDATE wallets
		    SET balance=$2, total_earnings=$3, total_withdrawals=$4, pending_balance=$5,
		        is_locked=$6, updated_at=now()
		  WHERE id=$1
		  RETURNING `+walletColumns,
		w.ID, w.Balance, w.TotalEarnings, w.TotalWithdrawals, w.PendingBalance, w.IsLocked,
	))
}
