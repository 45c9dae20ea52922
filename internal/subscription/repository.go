package subscription

import (
	"context"
	"database/sql"
	"errors"

	"studiobook/internal/db"

	"github.com/jmoiron/sqlx"
)

var (
	ErrPlanNotFound         = errors.New("plan not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

const planColumns = `id, name, stripe_product_id, sessions, interval, interval_count, price_json, active, created_at, updated_at`

const subscriptionColumns = `id, user_id, plan_id, status, start_date, end_date, cancel_at, stripe_subscription_id, created_at, updated_at`

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreatePlan(ctx context.Context, p *Plan) error {
	query := `
		INSERT INTO plans (name, stripe_product_id, sessions, interval, interval_count, price_json, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	return r.db.QueryRowxContext(ctx, query,
		p.Name, p.StripeProductID, p.Sessions, p.Interval, p.IntervalCount, p.Price, p.Active,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (r *repository) UpdatePlan(ctx context.Context, p *Plan) error {
	query := `
		UPDATE plans
		SET name = $1, stripe_product_id = $2, sessions = $3, interval = $4,
			interval_count = $5, price_json = $6, active = $7, updated_at = NOW()
		WHERE id = $8
		RETURNING updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		p.Name, p.StripeProductID, p.Sessions, p.Interval, p.IntervalCount, p.Price, p.Active, p.ID,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrPlanNotFound
	}
	return err
}

func (r *repository) getPlan(ctx context.Context, query string, arg any) (*Plan, error) {
	var p Plan
	if err := r.db.GetContext(ctx, &p, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *repository) GetPlan(ctx context.Context, id int) (*Plan, error) {
	return r.getPlan(ctx, `SELECT `+planColumns+` FROM plans WHERE id = $1`, id)
}

func (r *repository) FindPlanByProductID(ctx context.Context, productID string) (*Plan, error) {
	return r.getPlan(ctx, `SELECT `+planColumns+` FROM plans WHERE stripe_product_id = $1`, productID)
}

func (r *repository) ListPlans(ctx context.Context, activeOnly bool) ([]Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans`
	if activeOnly {
		query += ` WHERE active = TRUE`
	}
	query += ` ORDER BY name`

	plans := []Plan{}
	err := r.db.SelectContext(ctx, &plans, query)
	return plans, err
}

// UpsertByStripeID inserts the subscription or overwrites the row that
// already mirrors the same provider subscription.
func (r *repository) UpsertByStripeID(ctx context.Context, s *Subscription) error {
	query := `
		INSERT INTO subscriptions (user_id, plan_id, status, start_date, end_date, cancel_at, stripe_subscription_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (stripe_subscription_id) DO UPDATE
		SET user_id = EXCLUDED.user_id,
			plan_id = EXCLUDED.plan_id,
			status = EXCLUDED.status,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			cancel_at = EXCLUDED.cancel_at,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	return r.db.QueryRowxContext(ctx, query,
		s.User, s.Plan, s.Status, s.StartDate, s.EndDate, s.CancelAt, s.StripeSubscriptionID,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

func (r *repository) getSubscription(ctx context.Context, query string, arg any) (*Subscription, error) {
	var s Subscription
	if err := r.db.GetContext(ctx, &s, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *repository) FindByStripeID(ctx context.Context, stripeID string) (*Subscription, error) {
	return r.getSubscription(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE stripe_subscription_id = $1`, stripeID)
}

func (r *repository) GetByID(ctx context.Context, id int) (*Subscription, error) {
	return r.getSubscription(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id)
}

// Update writes status, dates and plan in one statement.
func (r *repository) Update(ctx context.Context, s *Subscription) error {
	query := `
		UPDATE subscriptions
		SET user_id = $1, plan_id = $2, status = $3, start_date = $4, end_date = $5, cancel_at = $6, updated_at = NOW()
		WHERE id = $7
		RETURNING updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		s.User, s.Plan, s.Status, s.StartDate, s.EndDate, s.CancelAt, s.ID,
	).Scan(&s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSubscriptionNotFound
	}
	return err
}

func (r *repository) ListByUser(ctx context.Context, userID int) ([]Subscription, error) {
	subs := []Subscription{}
	err := r.db.SelectContext(ctx, &subs, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	return subs, err
}

// HasActiveForClassOption reports whether the user holds an active or
// trialing subscription on a plan the class option accepts.
func (r *repository) HasActiveForClassOption(ctx context.Context, userID, classOptionID int) (bool, error) {
	return db.Exists(ctx, r.db, `
		SELECT EXISTS(
			SELECT 1
			FROM subscriptions s
			JOIN class_option_plans cop ON cop.plan_id = s.plan_id
			WHERE s.user_id = $1
				AND cop.class_option_id = $2
				AND s.status IN ('active', 'trialing')
				AND (s.end_date IS NULL OR s.end_date > NOW())
		)
	`, userID, classOptionID)
}
