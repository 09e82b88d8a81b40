package repository

import (
	"context"
	"errors"

	"github.com/dispatchly/backend/internal/models"
)

// ErrNotFound is returned by every repository when the addressed row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a unique constraint rejects a write.
var ErrConflict = errors.New("conflict")

type Users interface {
	Create(ctx context.Context, u models.User) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
}

type Wallets interface {
	// Create inserts an empty wallet for userID; it is a no-op if one exists.
	Create(ctx context.Context, userID string) error
	GetByUserID(ctx context.Context, userID string) (models.Wallet, error)
	// LockByUserID reads the wallet row holding an exclusive row lock until
	// the surrounding transaction ends. Only meaningful inside Store.WithTx.
	LockByUserID(ctx context.Context, userID string) (models.Wallet, error)
	Update(ctx context.Context, w models.Wallet) (models.Wallet, error)
}

type DriverProfiles interface {
	// Create inserts an empty profile for userID; it is a no-op if one exists.
	Create(ctx context.Context, userID string) error
	GetByUserID(ctx context.Context, userID string) (models.DriverProfile, error)
	// LockByUserID is the row-locking read; see Wallets.LockByUserID.
	LockByUserID(ctx context.Context, userID string) (models.DriverProfile, error)
	Update(ctx context.Context, p models.DriverProfile) (models.DriverProfile, error)
	// RecordRating stores the rating for orderID. A second rating for the
	// same order fails with ErrConflict.
	RecordRating(ctx context.Context, orderID, driverID, customerID string, score int) error
}

type Transactions interface {
	Create(ctx context.Context, t models.Transaction) (models.Transaction, error)
	GetByID(ctx context.Context, walletID, id string) (models.Transaction, error)
	// ListByWallet returns newest first.
	ListByWallet(ctx context.Context, walletID string, limit, offset int) ([]models.Transaction, error)
	CountByWallet(ctx context.Context, walletID string) (int, error)
	// LatestForOrder returns the newest entry on walletID for orderID whose
	// metadata "type" equals kind.
	LatestForOrder(ctx context.Context, walletID, orderID, kind string) (models.Transaction, error)
}

type Orders interface {
	Create(ctx context.Context, o models.Order) (models.Order, error)
	GetByID(ctx context.Context, id string) (models.Order, error)
	// LockByID reads the order row holding an exclusive row lock until the
	// surrounding transaction ends. Only meaningful inside Store.WithTx.
	LockByID(ctx context.Context, id string) (models.Order, error)
	Update(ctx context.Context, o models.Order) (models.Order, error)
	List(ctx context.Context, f models.OrderFilter) ([]models.Order, int, error)
	// ListPending returns pending orders oldest first.
	ListPending(ctx context.Context) ([]models.Order, error)
}

type SystemConfigs interface {
	List(ctx context.Context) ([]models.SystemConfig, error)
	Get(ctx context.Context, key string) (models.SystemConfig, error)
	// InsertIfMissing never overwrites an existing key.
	InsertIfMissing(ctx context.Context, c models.SystemConfig) error
	Upsert(ctx context.Context, c models.SystemConfig) (models.SystemConfig, error)
	Delete(ctx context.Context, key string) error
}

type Notifications interface {
	Create(ctx context.Context, n models.Notification) (models.Notification, error)
	ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID, id string) (models.Notification, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

type AuditLogs interface {
	// Create must not abort the surrounding transaction when it fails.
	Create(ctx context.Context, l models.AuditLog) error
}

// Repos is a set of repositories bound to one connection scope: either the
// pool or a single database transaction.
type Repos struct {
	Users          Users
	Wallets        Wallets
	DriverProfiles DriverProfiles
	Transactions   Transactions
	Orders         Orders
	SystemConfigs  SystemConfigs
	Notifications  Notifications
	AuditLogs      AuditLogs
}

// Store hands out pool-bound repositories and runs units of work.
type Store interface {
	Repos() Repos
	// WithTx runs fn inside one database transaction. The transaction commits
	// only if fn returns nil; on error or panic it rolls back and nothing fn
	// wrote is visible.
	WithTx(ctx context.Context, fn func(r Repos) error) error
}
