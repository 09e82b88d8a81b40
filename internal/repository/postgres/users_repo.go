package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/dispatchly/backend/internal/models"
)

type usersRepo struct{ db DBTX }

const userColumns = `id, email, first_name, last_name, COALESCE(phone, ''), password_hash, role, is_active, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Phone, &u.PasswordHash,
		&u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return u, mapErr(err)
}

func (r *usersRepo) Create(ctx context.Context, u models.User) (models.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return scanUser(r.db.QueryRow(ctx,
		`INSERT INTO users(id, email, first_name, last_name, phone, password_hash, role, is_active)
		 VALUES($1,$2,$3,$4,NULLIF($5,''),$6,$7,$8)
		 RETURNING `+userColumns,
		u.ID, u.Email, u.FirstName, u.LastName, u.Phone, u.PasswordHash, u.Role, u.IsActive,
	))
}

func (r *usersRepo) GetByID(ctx context.Context, id string) (models.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
}

func (r *usersRepo) GetByEmail(ctx context.Context, email string) (models.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email))
}
