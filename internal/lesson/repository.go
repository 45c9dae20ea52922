package lesson

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"studiobook/internal/db"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var (
	ErrLessonNotFound      = errors.New("lesson not found")
	ErrClassOptionNotFound = errors.New("class option not found")
	ErrDropInNotFound      = errors.New("drop-in not found")
)

const lessonColumns = `id, date, start_time, end_time, lock_out_time, location, instructor_id, class_option_id, active, created_at`

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateDropIn(ctx context.Context, d *DropIn) error {
	query := `
		INSERT INTO drop_ins (name, price_cents, currency, discount_tiers, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	return r.db.QueryRowxContext(ctx, query, d.Name, d.PriceCents, d.Currency, d.DiscountTiers, d.Active).
		Scan(&d.ID, &d.CreatedAt)
}

func (r *repository) GetDropIn(ctx context.Context, id int) (*DropIn, error) {
	query := `
		SELECT id, name, price_cents, currency, discount_tiers, active, created_at
		FROM drop_ins
		WHERE id = $1
	`

	var d DropIn
	if err := r.db.GetContext(ctx, &d, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDropInNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *repository) CreateClassOption(ctx context.Context, o *ClassOption) error {
	return db.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO class_options (name, description, places, type, drop_in_id)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at
		`
		if err := tx.QueryRowxContext(ctx, query, o.Name, o.Description, o.Places, o.Type, o.DropIn).
			Scan(&o.ID, &o.CreatedAt); err != nil {
			return err
		}
		return replacePlans(ctx, tx, o.ID, o.AllowedPlans)
	})
}

func (r *repository) UpdateClassOption(ctx context.Context, o *ClassOption) error {
	return db.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE class_options
			SET name = $1, description = $2, places = $3, type = $4, drop_in_id = $5
			WHERE id = $6
		`, o.Name, o.Description, o.Places, o.Type, o.DropIn, o.ID)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrClassOptionNotFound
		}
		return replacePlans(ctx, tx, o.ID, o.AllowedPlans)
	})
}

func replacePlans(ctx context.Context, tx *sqlx.Tx, optionID int, planIDs []int) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM class_option_plans WHERE class_option_id = $1`, optionID); err != nil {
		return err
	}
	if len(planIDs) == 0 {
		return nil
	}

	ids := make([]int64, len(planIDs))
	for i, id := range planIDs {
		ids[i] = int64(id)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO class_option_plans (class_option_id, plan_id)
		SELECT $1, unnest($2::int[])
	`, optionID, pq.Array(ids))
	return err
}

// GetClassOption loads the option with its allowed plans and expanded drop-in.
func (r *repository) GetClassOption(ctx context.Context, id int) (*ClassOption, error) {
	query := `
		SELECT id, name, description, places, type, drop_in_id, created_at
		FROM class_options
		WHERE id = $1
	`

	var o ClassOption
	if err := r.db.GetContext(ctx, &o, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrClassOptionNotFound
		}
		return nil, err
	}

	o.AllowedPlans = []int{}
	if err := r.db.SelectContext(ctx, &o.AllowedPlans, `
		SELECT plan_id FROM class_option_plans WHERE class_option_id = $1 ORDER BY plan_id
	`, id); err != nil {
		return nil, fmt.Errorf("load allowed plans: %w", err)
	}

	if !o.DropIn.IsZero() {
		d, err := o.DropIn.Resolve(ctx, r.GetDropIn)
		if err != nil {
			return nil, fmt.Errorf("load drop-in: %w", err)
		}
		o.DropIn = o.DropIn.Expand(d)
	}

	return &o, nil
}

func (r *repository) CreateLesson(ctx context.Context, l *Lesson) error {
	query := `
		INSERT INTO lessons (date, start_time, end_time, lock_out_time, location, instructor_id, class_option_id, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	return r.db.QueryRowxContext(ctx, query,
		l.Date, l.StartTime, l.EndTime, l.LockOutTime, l.Location, l.Instructor, l.ClassOption, l.Active,
	).Scan(&l.ID, &l.CreatedAt)
}

func (r *repository) GetLesson(ctx context.Context, id int) (*Lesson, error) {
	var l Lesson
	err := r.db.GetContext(ctx, &l, `SELECT `+lessonColumns+` FROM lessons WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLessonNotFound
		}
		return nil, err
	}
	return &l, nil
}

func (r *repository) ListLessons(ctx context.Context, from, to time.Time) ([]Lesson, error) {
	query := `SELECT ` + lessonColumns + `
		FROM lessons
		WHERE start_time >= $1 AND start_time < $2 AND active
		ORDER BY start_time ASC
	`

	lessons := []Lesson{}
	if err := r.db.SelectContext(ctx, &lessons, query, from, to); err != nil {
		return nil, err
	}
	return lessons, nil
}

func (r *repository) FindOverlapping(ctx context.Context, location string, start, end time.Time) ([]Lesson, error) {
	query := `SELECT ` + lessonColumns + `
		FROM lessons
		WHERE location = $1 AND start_time < $3 AND end_time > $2
	`

	var lessons []Lesson
	if err := r.db.SelectContext(ctx, &lessons, query, location, start, end); err != nil {
		return nil, err
	}
	return lessons, nil
}

// DeleteLesson removes the lesson together with its bookings.
func (r *repository) DeleteLesson(ctx context.Context, id int) error {
	return db.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM bookings WHERE lesson_id = $1`, id); err != nil {
			return fmt.Errorf("delete bookings: %w", err)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM lessons WHERE id = $1`, id)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrLessonNotFound
		}
		return nil
	})
}

// DeleteUnbookedInRange deletes every lesson starting in [from, to) that has
// no confirmed booking. Lessons with a confirmed booking are counted as
// preserved and left untouched.
func (r *repository) DeleteUnbookedInRange(ctx context.Context, from, to time.Time) (int, int, error) {
	var deleted, preserved int
	err := db.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var ids []int64
		if err := tx.SelectContext(ctx, &ids, `
			SELECT l.id FROM lessons l
			WHERE l.start_time >= $1 AND l.start_time < $2
			AND NOT EXISTS (
				SELECT 1 FROM bookings b WHERE b.lesson_id = l.id AND b.status = 'confirmed'
			)
		`, from, to); err != nil {
			return err
		}

		if err := tx.GetContext(ctx, &preserved, `
			SELECT COUNT(*) FROM lessons l
			WHERE l.start_time >= $1 AND l.start_time < $2
			AND EXISTS (
				SELECT 1 FROM bookings b WHERE b.lesson_id = l.id AND b.status = 'confirmed'
			)
		`, from, to); err != nil {
			return err
		}

		if len(ids) == 0 {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM bookings WHERE lesson_id = ANY($1)`, pq.Array(ids)); err != nil {
			return fmt.Errorf("delete bookings: %w", err)
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM lessons WHERE id = ANY($1)`, pq.Array(ids))
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		deleted = int(n)
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return deleted, preserved, nil
}
