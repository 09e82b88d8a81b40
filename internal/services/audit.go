package services

import (
	"context"
	"log/slog"

	"github.com/dispatchly/backend/internal/models"
	repo "github.com/dispatchly/backend/internal/repository"
)

// audit writes an audit row through r so it commits with the change it
// describes. A failed audit write is logged, not returned.
func audit(ctx context.Context, r repo.Repos, log *slog.Logger, actorID, entityType, entityID, action string, details map[string]any) {
	l := models.AuditLog{
		EntityType: entityType,
		EntityID:   &entityID,
		Action:     action,
		Details:    details,
	}
	if actorID != "" {
		l.ActorID = &actorID
	}
	if err := r.AuditLogs.Create(ctx, l); err != nil {
		log.Warn("audit write failed", "entity", entityType, "entity_id", entityID, "action", action, "err", err)
	}
}
