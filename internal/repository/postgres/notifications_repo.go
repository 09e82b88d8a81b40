package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/dispatchly/backend/internal/models"
)

type notificationsRepo struct{ db DBTX }

const notificationColumns = `id, user_id, type, title, message, data, is_read, created_at`

func scanNotification(row interface{ Scan(...any) error }) (models.Notification, error) {
	var n models.Notification
	err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Data, &n.IsRead, &n.CreatedAt)
	return n, mapErr(err)
}

func (r *notificationsRepo) Create(ctx context.Context, n models.Notification) (models.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return scanNotification(r.db.QueryRow(ctx,
		`INSERT INTO notifications(id, user_id, type, title, message, data)
		 VALUES($1,$2,$3,$4,$5,$6)
		 RETURNING `+notificationColumns,
		n.ID, n.UserID, n.Type, n.Title, n.Message, n.Data,
	))
}

func (r *notificationsRepo) ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]models.Notification, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+notificationColumns+`
		   FROM notifications
		  WHERE user_id=$1 AND ($2 = false OR is_read = false)
		  ORDER BY created_at DESC
		  LIMIT 100`,
		userID, unreadOnly,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *notificationsRepo) MarkRead(ctx context.Context, userID, id string) (models.Notification, error) {
	return scanNotification(r.db.QueryRow(ctx,
		`UPDATE notifications SET is_read=true
		  WHERE id=$1 AND user_id=$2
		  RETURNING `+notificationColumns,
		id, userID,
	))
}

func (r *notificationsRepo) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE notifications SET is_read=true WHERE user_id=$1 AND is_read=false`, userID)
	if err != nil {
		return 0, mapErr(err)
	}
	return tag.RowsAffected(), nil
}
