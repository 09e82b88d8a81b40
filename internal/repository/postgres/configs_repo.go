package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/dispatchly/backend/internal/models"
	repo "github.com/dispatchly/backend/internal/repository"
)

type configsRepo struct{ db DBTX }

const configColumns = `id, key, value, COALESCE(description, ''), data_type, created_at, updated_at`

func scanConfig(row interface{ Scan(...any) error }) (models.SystemConfig, error) {
	var c models.SystemConfig
	err := row.Scan(&c.ID, &c.Key, &c.Value, &c.Description, &c.DataType, &c.CreatedAt, &c.UpdatedAt)
	return c, mapErr(err)
}

func (r *configsRepo) List(ctx context.Context) ([]models.SystemConfig, error) {
	rows, err := r.db.Query(ctx, `SELECT `+configColumns+` FROM system_configs ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.SystemConfig{}
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *configsRepo) Get(ctx context.Context, key string) (models.SystemConfig, error) {
	return scanConfig(r.db.QueryRow(ctx, `SELECT `+configColumns+` FROM system_configs WHERE key=$1`, key))
}

func (r *configsRepo) InsertIfMissing(ctx context.Context, c models.SystemConfig) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO system_configs(id, key, value, description, data_type)
		 VALUES($1,$2,$3,NULLIF($4,''),$5)
		 ON CONFLICT (key) DO NOTHING`,
		uuid.NewString(), c.Key, c.Value, c.Description, c.DataType,
	)
	return mapErr(err)
}

// Upsert keeps the stored description when c carries none.
func (r *configsRepo) Upsert(ctx context.Context, c models.SystemConfig) (models.SystemConfig, error) {
	return scanConfig(r.db.QueryRow(ctx,
		`INSERT INTO system_configs(id, key, value, description, data_type)
		 VALUES($1,$2,$3,NULLIF($4,''),$5)
		 ON CONFLICT (key) DO UPDATE
		   SET value=EXCLUDED.value,
		       description=COALESCE(EXCLUDED.description, system_configs.description),
		       data_type=EXCLUDED.data_type,
		       updated_at=now()
		 RETURNING `+configColumns,
		uuid.NewString(), c.Key, c.Value, c.Description, c.DataType,
	))
}

func (r *configsRepo) Delete(ctx context.Context, key string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM system_configs WHERE key=$1`, key)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}
