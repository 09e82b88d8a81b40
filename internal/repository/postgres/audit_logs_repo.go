package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/dispatchly/backend/internal/models"
)

type auditLogsRepo struct {
	db DBTX
	tx pgx.Tx
}

// Create inserts l. Inside a transaction the insert runs under a savepoint,
// so a failed audit write leaves the surrounding transaction usable.
func (r *auditLogsRepo) Create(ctx context.Context, l models.AuditLog) error {
	if r.tx == nil {
		return insertAudit(ctx, r.db, l)
	}
	sp, err := r.tx.Begin(ctx)
	if err != nil {
		return mapErr(err)
	}
	if err := insertAudit(ctx, sp, l); err != nil {
		_ = sp.Rollback(ctx)
		return err
	}
	return mapErr(sp.Commit(ctx))
}

func insertAudit(ctx context.Context, db DBTX, l models.AuditLog) error {
	_, err := db.Exec(ctx,
		`INSERT INTO audit_logs(actor_id, entity_type, entity_id, action, details) VALUES($1,$2,$3,$4,$5)`,
		l.ActorID, l.EntityType, l.EntityID, l.Action, l.Details,
	)
	return mapErr(err)
}
