package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TxnCredit TransactionType = "credit"
	TxnDebit  TransactionType = "debit"
)

type TransactionStatus string

const (
	TxnPending   TransactionStatus = "pending"
	TxnCompleted TransactionStatus = "completed"
	TxnFailed    TransactionStatus = "failed"
	TxnReversed  TransactionStatus = "reversed"
)

type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentCard         PaymentMethod = "card"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentWallet       PaymentMethod = "wallet"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentBankTransfer, PaymentWallet:
		return true
	}
	return false
}

// Transaction is an append-only ledger entry. BalanceAfter is the wallet
// balance immediately after the entry was applied.
type Transaction struct {
	ID            string            `json:"id"`
	WalletID      string            `json:"wallet_id"`
	OrderID       *string           `json:"order_id,omitempty"`
	Type          TransactionType   `json:"type"`
	Amount        decimal.Decimal   `json:"amount"`
	Commission    decimal.Decimal   `json:"commission"`
	BalanceAfter  decimal.Decimal   `json:"balance_after"`
	Status        TransactionStatus `json:"status"`
	PaymentMethod PaymentMethod     `json:"payment_method"`
	Description   string            `json:"description,omitempty"`
	Reference     string            `json:"reference,omitempty"`
	Metadata      map[string]any    `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Signed returns the amount as applied to the balance.
func (t Transaction) Signed() decimal.Decimal {
	if t.Type == TxnDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}
