package user

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

var ErrUserNotFound = errors.New("user not found")

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const userColumns = `id, name, email, role, stripe_customer_id, created_at`

func (r *repository) get(ctx context.Context, query string, arg interface{}) (*User, error) {
	var u User
	if err := r.db.GetContext(ctx, &u, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *repository) FindByID(ctx context.Context, id int) (*User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *repository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email)
}

func (r *repository) FindByStripeCustomerID(ctx context.Context, customerID string) (*User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE stripe_customer_id = $1`, customerID)
}

func (r *repository) SetStripeCustomerID(ctx context.Context, userID int, customerID string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET stripe_customer_id = $1
		WHERE id = $2
	`, customerID, userID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// HasConfirmedBooking reports whether the user has ever held a confirmed
// booking on any lesson.
func (r *repository) HasConfirmedBooking(ctx context.Context, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `
		SELECT EXISTS(
			SELECT 1 FROM bookings WHERE user_id = $1 AND status = 'confirmed'
		)
	`, userID)
	return exists, err
}
