package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/dispatchly/backend/internal/metrics"
	"github.com/dispatchly/backend/internal/models"
	repo "github.com/dispatchly/backend/internal/repository"
)

// Metadata "type" values that mark deposit entries.
const (
	KindSecurityDeposit       = "security_deposit"
	KindSecurityDepositRefund = "security_deposit_refund"
)

// ConfigReader is the part of ConfigService the ledger and order logic read.
type ConfigReader interface {
	GetNumber(ctx context.Context, key string, def float64) float64
	GetBoolean(ctx context.Context, key string, def bool) bool
}

// FundsInput carries a top-up or withdrawal request.
type FundsInput struct {
	Amount        decimal.Decimal
	PaymentMethod models.PaymentMethod
	Description   string
	Reference     string
}

// WalletService is the ledger. Every balance change runs inside one database
// transaction that holds the wallet row lock and writes the matching
// transaction row.
type WalletService struct {
	store repo.Store
	cfg   ConfigReader
	log   *slog.Logger
}

func NewWalletService(store repo.Store, cfg ConfigReader, log *slog.Logger) *WalletService {
	return &WalletService{store: store, cfg: cfg, log: log.With("svc", "wallet")}
}

// ----------------- Reads -----------------

// GetWallet returns the user's wallet, creating an empty one on first access.
func (s *WalletService) GetWallet(ctx context.Context, userID string) (models.Wallet, error) {
	return getOrCreateWallet(ctx, s.store.Repos(), userID)
}

func getOrCreateWallet(ctx context.Context, r repo.Repos, userID string) (models.Wallet, error) {
	w, err := r.Wallets.GetByUserID(ctx, userID)
	if err == nil || !errors.Is(err, repo.ErrNotFound) {
		return w, err
	}
	if err := r.Wallets.Create(ctx, userID); err != nil {
		return models.Wallet{}, err
	}
	return r.Wallets.GetByUserID(ctx, userID)
}

// lockWallet takes the row lock, creating the wallet first if needed.
func lockWallet(ctx context.Context, r repo.Repos, userID string) (models.Wallet, error) {
	w, err := r.Wallets.LockByUserID(ctx, userID)
	if err == nil || !errors.Is(err, repo.ErrNotFound) {
		return w, err
	}
	if err := r.Wallets.Create(ctx, userID); err != nil {
		return models.Wallet{}, err
	}
	return r.Wallets.LockByUserID(ctx, userID)
}

func (s *WalletService) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	w, err := s.GetWallet(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return w.Balance, nil
}

func (s *WalletService) minBalance(ctx context.Context) decimal.Decimal {
	return decimal.NewFromFloat(s.cfg.GetNumber(ctx, KeyDriverMinBalance, DefaultDriverMinBalance)).Round(2)
}

// CanDriverTakeOrder reports whether the balance meets DRIVER_MIN_BALANCE as
// configured right now.
func (s *WalletService) CanDriverTakeOrder(ctx context.Context, userID string) (bool, error) {
	return s.canDriverTakeOrder(ctx, s.store.Repos(), userID)
}

func (s *WalletService) canDriverTakeOrder(ctx context.Context, r repo.Repos, userID string) (bool, error) {
	w, err := getOrCreateWallet(ctx, r, userID)
	if err != nil {
		return false, err
	}
	return w.Balance.GreaterThanOrEqual(s.minBalance(ctx)), nil
}

func (s *WalletService) GetStats(ctx context.Context, userID string) (models.WalletStats, error) {
	r := s.store.Repos()
	w, err := getOrCreateWallet(ctx, r, userID)
	if err != nil {
		return models.WalletStats{}, err
	}
	n, err := r.Transactions.CountByWallet(ctx, w.ID)
	if err != nil {
		return models.WalletStats{}, err
	}
	minBal := s.minBalance(ctx)
	return models.WalletStats{
		Balance:            w.Balance,
		TotalEarnings:      w.TotalEarnings,
		TotalWithdrawals:   w.TotalWithdrawals,
		PendingBalance:     w.PendingBalance,
		TotalTransactions:  n,
		CanTakeOrders:      w.Balance.GreaterThanOrEqual(minBal),
		MinBalanceRequired: minBal,
	}, nil
}

// GetTransactions pages the wallet's ledger, newest first.
func (s *WalletService) GetTransactions(ctx context.Context, userID string, limit, offset int) ([]models.Transaction, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	r := s.store.Repos()
	w, err := getOrCreateWallet(ctx, r, userID)
	if err != nil {
		return nil, 0, err
	}
	list, err := r.Transactions.ListByWallet(ctx, w.ID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := r.Transactions.CountByWallet(ctx, w.ID)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// GetTransaction returns txID only if it belongs to userID's wallet.
func (s *WalletService) GetTransaction(ctx context.Context, userID, txID string) (models.Transaction, error) {
	r := s.store.Repos()
	w, err := getOrCreateWallet(ctx, r, userID)
	if err != nil {
		return models.Transaction{}, err
	}
	t, err := r.Transactions.GetByID(ctx, w.ID, txID)
	if errors.Is(err, repo.ErrNotFound) {
		return models.Transaction{}, ErrTransactionNotFound
	}
	return t, err
}

// ----------------- Mutations -----------------

// entry describes one ledger write. apply turns it into a wallet update plus
// a transaction row.
type entry struct {
	kind        string
	typ         models.TransactionType
	amount      decimal.Decimal
	commission  decimal.Decimal
	method      models.PaymentMethod
	orderID     string
	description string
	reference   string
	metadata    map[string]any

	// checkLock is false only for deposit refunds, which must go through
	// even when an admin has locked the wallet meanwhile.
	checkLock bool
	// adjust updates the running totals on w after balance has changed.
	adjust func(w *models.Wallet)
}

func (s *WalletService) apply(ctx context.Context, r repo.Repos, userID string, e entry) (models.Transaction, error) {
	if !e.amount.IsPositive() {
		return models.Transaction{}, ErrInvalidAmount
	}
	w, err := lockWallet(ctx, r, userID)
	if err != nil {
		return models.Transaction{}, err
	}
	if e.checkLock && w.IsLocked {
		return models.Transaction{}, ErrWalletLocked
	}

	switch e.typ {
	case models.TxnCredit:
		w.Balance = w.Balance.Add(e.amount)
	case models.TxnDebit:
		if w.Balance.LessThan(e.amount) {
			return models.Transaction{}, ErrInsufficientBalance
		}
		w.Balance = w.Balance.Sub(e.amount)
	}
	if e.adjust != nil {
		e.adjust(&w)
	}
	if _, err := r.Wallets.Update(ctx, w); err != nil {
		return models.Transaction{}, err
	}

	ref := e.reference
	if ref == "" {
		ref = "TXN-" + ulid.Make().String()
	}
	t := models.Transaction{
		WalletID:      w.ID,
		Type:          e.typ,
		Amount:        e.amount,
		Commission:    e.commission,
		BalanceAfter:  w.Balance,
		Status:        models.TxnCompleted,
		PaymentMethod: e.method,
		Description:   e.description,
		Reference:     ref,
		Metadata:      e.metadata,
	}
	if e.orderID != "" {
		id := e.orderID
		t.OrderID = &id
	}
	return r.Transactions.Create(ctx, t)
}

// run executes one entry in its own transaction and records the outcome.
func (s *WalletService) run(ctx context.Context, userID string, build func(r repo.Repos) (entry, error)) (models.Transaction, error) {
	var (
		t    models.Transaction
		kind string
	)
	err := s.store.WithTx(ctx, func(r repo.Repos) error {
		e, err := build(r)
		if err != nil {
			return err
		}
		kind = e.kind
		t, err = s.apply(ctx, r, userID, e)
		return err
	})
	if err != nil {
		s.reject(ctx, userID, kind, err)
		return models.Transaction{}, err
	}
	metrics.LedgerEntriesTotal.WithLabelValues(kind).Inc()
	return t, nil
}

func (s *WalletService) reject(ctx context.Context, userID, kind string, err error) {
	reason := "error"
	switch {
	case errors.Is(err, ErrWalletLocked):
		reason = "wallet_locked"
	case errors.Is(err, ErrInsufficientBalance):
		reason = "insufficient_balance"
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidInput):
		reason = "invalid_input"
	case errors.Is(err, ErrTransactionNotFound):
		reason = "not_found"
	default:
		s.log.ErrorContext(ctx, "ledger write failed", "op", kind, "user_id", userID, "err", err)
	}
	metrics.LedgerRejectedTotal.WithLabelValues(reason).Inc()
}

// AddFunds credits a top-up.
func (s *WalletService) AddFunds(ctx context.Context, userID string, in FundsInput) (models.Transaction, error) {
	return s.run(ctx, userID, func(repo.Repos) (entry, error) {
		return addFundsEntry(in)
	})
}

func addFundsEntry(in FundsInput) (entry, error) {
	method := in.PaymentMethod
	if method == "" {
		method = models.PaymentCard
	}
	if !method.Valid() {
		return entry{}, fmt.Errorf("%w: unknown payment method %q", ErrInvalidInput, method)
	}
	desc := in.Description
	if desc == "" {
		desc = "Wallet top-up"
	}
	amount := in.Amount.Round(2)
	return entry{
		kind:        "top_up",
		typ:         models.TxnCredit,
		amount:      amount,
		method:      method,
		description: desc,
		reference:   in.Reference,
		checkLock:   true,
		adjust: func(w *models.Wallet) {
			w.TotalEarnings = w.TotalEarnings.Add(amount)
		},
	}, nil
}

// WithdrawFunds debits a payout. The payment method is always bank_transfer.
func (s *WalletService) WithdrawFunds(ctx context.Context, userID string, in FundsInput) (models.Transaction, error) {
	desc := in.Description
	if desc == "" {
		desc = "Wallet withdrawal"
	}
	amount := in.Amount.Round(2)
	return s.run(ctx, userID, func(repo.Repos) (entry, error) {
		return entry{
			kind:        "withdrawal",
			typ:         models.TxnDebit,
			amount:      amount,
			method:      models.PaymentBankTransfer,
			description: desc,
			reference:   in.Reference,
			checkLock:   true,
			adjust: func(w *models.Wallet) {
				w.TotalWithdrawals = w.TotalWithdrawals.Add(amount)
			},
		}, nil
	})
}

// ProcessOrderPayment credits the driver with gross minus commission. The
// commission rate is read from config on every call.
func (s *WalletService) ProcessOrderPayment(ctx context.Context, driverID, orderID string, gross decimal.Decimal, method models.PaymentMethod) (models.Transaction, error) {
	return s.run(ctx, driverID, func(repo.Repos) (entry, error) {
		return s.orderPaymentEntry(ctx, orderID, gross, method), nil
	})
}

// processOrderPaymentTx is ProcessOrderPayment inside a caller's transaction.
func (s *WalletService) processOrderPaymentTx(ctx context.Context, r repo.Repos, driverID, orderID string, gross decimal.Decimal, method models.PaymentMethod) (models.Transaction, error) {
	return s.apply(ctx, r, driverID, s.orderPaymentEntry(ctx, orderID, gross, method))
}

func (s *WalletService) orderPaymentEntry(ctx context.Context, orderID string, gross decimal.Decimal, method models.PaymentMethod) entry {
	if method == "" {
		method = models.PaymentCash
	}
	pct := s.cfg.GetNumber(ctx, KeyDriverCommissionPct, DefaultCommissionPct)
	commission, net := SplitCommission(gross, pct)
	return entry{
		kind:        "order_payment",
		typ:         models.TxnCredit,
		amount:      net,
		commission:  commission,
		method:      method,
		orderID:     orderID,
		description: fmt.Sprintf("Payment for order %s", orderID),
		metadata: map[string]any{
			"orderAmount":          gross.InexactFloat64(),
			"commission":           commission.InexactFloat64(),
			"commissionPercentage": pct,
		},
		checkLock: true,
		adjust: func(w *models.Wallet) {
			w.TotalEarnings = w.TotalEarnings.Add(net)
		},
	}
}

// SplitCommission returns (commission, net) for gross at pct percent, with
// the commission rounded to two decimals.
func SplitCommission(gross decimal.Decimal, pct float64) (commission, net decimal.Decimal) {
	commission = gross.Mul(decimal.NewFromFloat(pct)).Div(decimal.NewFromInt(100)).Round(2)
	return commission, gross.Sub(commission)
}

// DeductSecurityDeposit holds DRIVER_MIN_BALANCE from the driver's balance
// for orderID. The held amount is tracked in pending_balance.
func (s *WalletService) DeductSecurityDeposit(ctx context.Context, driverID, orderID string) (models.Transaction, error) {
	return s.run(ctx, driverID, func(repo.Repos) (entry, error) {
		return s.depositEntry(ctx, orderID), nil
	})
}

// deductSecurityDepositTx holds the deposit inside a caller's transaction.
// It returns false without writing anything when DRIVER_MIN_BALANCE is zero.
func (s *WalletService) deductSecurityDepositTx(ctx context.Context, r repo.Repos, driverID, orderID string) (bool, error) {
	e := s.depositEntry(ctx, orderID)
	if !e.amount.IsPositive() {
		return false, nil
	}
	_, err := s.apply(ctx, r, driverID, e)
	if errors.Is(err, ErrInsufficientBalance) {
		return false, fmt.Errorf("%w: minimum balance of %s required", ErrInsufficientDriverBalance, s.minBalance(ctx))
	}
	return err == nil, err
}

func (s *WalletService) depositEntry(ctx context.Context, orderID string) entry {
	amount := s.minBalance(ctx)
	return entry{
		kind:        KindSecurityDeposit,
		typ:         models.TxnDebit,
		amount:      amount,
		method:      models.PaymentWallet,
		orderID:     orderID,
		description: fmt.Sprintf("Security deposit for order %s", orderID),
		metadata:    map[string]any{"type": KindSecurityDeposit, "orderId": orderID},
		checkLock:   true,
		adjust: func(w *models.Wallet) {
			w.PendingBalance = w.PendingBalance.Add(amount)
		},
	}
}

// RefundSecurityDeposit releases the deposit held for orderID. The refund
// equals the amount actually deducted, not the current config value.
func (s *WalletService) RefundSecurityDeposit(ctx context.Context, driverID, orderID string) (models.Transaction, error) {
	return s.run(ctx, driverID, func(r repo.Repos) (entry, error) {
		e, ok, err := s.refundEntry(ctx, r, driverID, orderID)
		if err != nil {
			return entry{}, err
		}
		if !ok {
			return entry{}, fmt.Errorf("%w: no security deposit held for order %s", ErrTransactionNotFound, orderID)
		}
		return e, nil
	})
}

// refundSecurityDepositTx refunds inside a caller's transaction. It returns
// false when no deposit is outstanding for the order.
func (s *WalletService) refundSecurityDepositTx(ctx context.Context, r repo.Repos, driverID, orderID string) (bool, error) {
	e, ok, err := s.refundEntry(ctx, r, driverID, orderID)
	if err != nil || !ok {
		return false, err
	}
	_, err = s.apply(ctx, r, driverID, e)
	return err == nil, err
}

func (s *WalletService) refundEntry(ctx context.Context, r repo.Repos, driverID, orderID string) (entry, bool, error) {
	w, err := getOrCreateWallet(ctx, r, driverID)
	if err != nil {
		return entry{}, false, err
	}
	deposit, err := r.Transactions.LatestForOrder(ctx, w.ID, orderID, KindSecurityDeposit)
	if errors.Is(err, repo.ErrNotFound) {
		return entry{}, false, nil
	}
	if err != nil {
		return entry{}, false, err
	}
	_, err = r.Transactions.LatestForOrder(ctx, w.ID, orderID, KindSecurityDepositRefund)
	switch {
	case err == nil:
		return entry{}, false, nil
	case !errors.Is(err, repo.ErrNotFound):
		return entry{}, false, err
	}

	amount := deposit.Amount
	return entry{
		kind:        KindSecurityDepositRefund,
		typ:         models.TxnCredit,
		amount:      amount,
		method:      models.PaymentWallet,
		orderID:     orderID,
		description: fmt.Sprintf("Security deposit refund for order %s", orderID),
		metadata:    map[string]any{"type": KindSecurityDepositRefund, "orderId": orderID},
		adjust: func(w *models.Wallet) {
			w.PendingBalance = decimal.Max(decimal.Zero, w.PendingBalance.Sub(amount))
		},
	}, true, nil
}

// ----------------- Admin -----------------

func (s *WalletService) LockWallet(ctx context.Context, actorID, userID string) (models.Wallet, error) {
	return s.setLocked(ctx, actorID, userID, true)
}

func (s *WalletService) UnlockWallet(ctx context.Context, actorID, userID string) (models.Wallet, error) {
	return s.setLocked(ctx, actorID, userID, false)
}

func (s *WalletService) setLocked(ctx context.Context, actorID, userID string, locked bool) (models.Wallet, error) {
	action := "unlock"
	if locked {
		action = "lock"
	}
	var out models.Wallet
	err := s.store.WithTx(ctx, func(r repo.Repos) error {
		w, err := lockWallet(ctx, r, userID)
		if err != nil {
			return err
		}
		w.IsLocked = locked
		if out, err = r.Wallets.Update(ctx, w); err != nil {
			return err
		}
		audit(ctx, r, s.log, actorID, "wallet", w.ID, action, map[string]any{"user_id": userID})
		return nil
	})
	if err != nil {
		return models.Wallet{}, err
	}
	s.log.InfoContext(ctx, "wallet lock changed", "user_id", userID, "actor_id", actorID, "locked", locked)
	return out, nil
}
