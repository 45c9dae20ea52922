package schedule

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

const templateColumns = `id, name, week, default_class_option_id, lock_out_time, active, created_at`

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateTemplate(ctx context.Context, t *Template) error {
	query := `
		INSERT INTO schedules (name, week, default_class_option_id, lock_out_time, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	return r.db.QueryRowxContext(ctx, query, t.Name, t.Week, t.DefaultClassOptionID, t.LockOutTime, t.Active).
		Scan(&t.ID, &t.CreatedAt)
}

func (r *repository) GetTemplate(ctx context.Context, id int) (*Template, error) {
	var t Template
	err := r.db.GetContext(ctx, &t, `SELECT `+templateColumns+` FROM schedules WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *repository) ListTemplates(ctx context.Context, activeOnly bool) ([]Template, error) {
	query := `SELECT ` + templateColumns + ` FROM schedules`
	if activeOnly {
		query += ` WHERE active = TRUE`
	}
	query += ` ORDER BY id`

	templates := []Template{}
	if err := r.db.SelectContext(ctx, &templates, query); err != nil {
		return nil, err
	}
	return templates, nil
}

func (r *repository) SetTemplateActive(ctx context.Context, id int, active bool) error {
	result, err := r.db.ExecContext(ctx, `UPDATE schedules SET active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrTemplateNotFound
	}
	return nil
}
