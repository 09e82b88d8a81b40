package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	repo "github.com/dispatchly/backend/internal/repository"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pool is the part of *pgxpool.Pool the store needs.
type Pool interface {
	DBTX
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

type Store struct {
	pool Pool
}

func NewStore(pool Pool) *Store { return &Store{pool: pool} }

func (s *Store) Repos() repo.Repos { return newRepos(s.pool, nil) }

// WithTx runs fn in a read-committed transaction. Row locks taken with
// LockByUserID/LockByID serialise concurrent writers on the same row.
func (s *Store) WithTx(ctx context.Context, fn func(repo.Repos) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(newRepos(tx, tx)); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// newRepos binds every repository to db. tx is set when db is a transaction.
func newRepos(db DBTX, tx pgx.Tx) repo.Repos {
	return repo.Repos{
		Users:          &usersRepo{db},
		Wallets:        &walletsRepo{db},
		DriverProfiles: &driverProfilesRepo{db},
		Transactions:   &transactionsRepo{db},
		Orders:         &ordersRepo{db},
		SystemConfigs:  &configsRepo{db},
		Notifications:  &notificationsRepo{db},
		AuditLogs:      &auditLogsRepo{db: db, tx: tx},
	}
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repo.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", repo.ErrConflict, pgErr.ConstraintName)
		case "22P02":
			// A malformed uuid can't match any row.
			return repo.ErrNotFound
		}
	}
	return err
}
