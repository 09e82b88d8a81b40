package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet holds one user's balance. It is created lazily and never deleted.
type Wallet struct {
	ID               string          `json:"id"`
	UserID           string          `json:"user_id"`
	Balance          decimal.Decimal `json:"balance"`
	TotalEarnings    decimal.Decimal `json:"total_earnings"`
	TotalWithdrawals decimal.Decimal `json:"total_withdrawals"`
	PendingBalance   decimal.Decimal `json:"pending_balance"`
	IsLocked         bool            `json:"is_locked"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type WalletStats struct {
	Balance            decimal.Decimal `json:"balance"`
	TotalEarnings      decimal.Decimal `json:"total_earnings"`
	TotalWithdrawals   decimal.Decimal `json:"total_withdrawals"`
	PendingBalance     decimal.Decimal `json:"pending_balance"`
	TotalTransactions  int             `json:"total_transactions"`
	CanTakeOrders      bool            `json:"can_take_orders"`
	MinBalanceRequired decimal.Decimal `json:"min_balance_required"`
}
