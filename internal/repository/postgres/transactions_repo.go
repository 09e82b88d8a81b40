package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/dispatchly/backend/internal/models"
)

type transactionsRepo struct{ db DBTX }

const txnColumns = `id, wallet_id, order_id, type, amount, commission, balance_after, status,
	payment_method, COALESCE(description, ''), COALESCE(reference, ''), metadata, created_at`

func scanTxn(row interface{ Scan(...any) error }) (models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(&t.ID, &t.WalletID, &t.OrderID, &t.Type, &t.Amount, &t.Commission, &t.BalanceAfter,
		&t.Status, &t.PaymentMethod, &t.Description, &t.Reference, &t.Metadata, &t.CreatedAt)
	return t, mapErr(err)
}

// Create appends a ledger entry. Entries are never updated or deleted.
func (r *transactionsRepo) Create(ctx context.Context, t models.Transaction) (models.Transaction, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return scanTxn(r.db.QueryRow(ctx,
		`INSERT INTO transactions (
		   id, wallet_id, order_id, type, amount, commission, balance_after, status,
		   payment_method, description, reference, metadata
		 ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NULLIF($10,''),NULLIF($11,''),$12)
		 RETURNING `+txnColumns,
		t.ID, t.WalletID, t.OrderID, t.Type, t.Amount, t.Commission, t.BalanceAfter, t.Status,
		t.PaymentMethod, t.Description, t.Reference, t.Metadata,
	))
}

func (r *transactionsRepo) GetByID(ctx context.Context, walletID, id string) (models.Transaction, error) {
	return scanTxn(r.db.QueryRow(ctx,
		`SELECT `+txnColumns+` FROM transactions WHERE id=$1 AND wallet_id=$2`, id, walletID))
}

func (r *transactionsRepo) ListByWallet(ctx context.Context, walletID string, limit, offset int) ([]models.Transaction, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+txnColumns+`
		   FROM transactions
		  WHERE wallet_id=$1
		  ORDER BY created_at DESC
		  LIMIT $2 OFFSET $3`,
		walletID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Transaction{}
	for rows.Next() {
		t, err := scanTxn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *transactionsRepo) CountByWallet(ctx context.Context, walletID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM transactions WHERE wallet_id=$1`, walletID).Scan(&n)
	return n, mapErr(err)
}

func (r *transactionsRepo) LatestForOrder(ctx context.Context, walletID, orderID, kind string) (models.Transaction, error) {
	return scanTxn(r.db.QueryRow(ctx,
		`SELECT `+txnColumns+`
		   FROM transactions
		  WHERE wallet_id=$1 AND order_id=$2 AND metadata->>'type'=$3
		  ORDER BY created_at DESC
		  LIMIT 1`,
		walletID, orderID, kind,
	))
}
