package lesson

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"studiobook/internal/ref"
	"studiobook/internal/user"
)

const (
	TypeAdult  = "adult"
	TypeChild  = "child"
	TypeFamily = "family"
)

const (
	TierNormal = "normal"
	TierTrial  = "trial"
)

type DiscountTier struct {
	MinQuantity int     `json:"min_quantity"`
	Discount    float64 `json:"discount"`
	Type        string  `json:"type"`
}

// DiscountTiers is stored as a JSONB array.
type DiscountTiers []DiscountTier

func (t DiscountTiers) Value() (driver.Value, error) {
	if t == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(t)
}

func (t *DiscountTiers) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*t = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("discount tiers: cannot scan %T", src)
	}
	return json.Unmarshal(data, t)
}

type DropIn struct {
	ID            int           `db:"id" json:"id"`
	Name          string        `db:"name" json:"name"`
	PriceCents    int64         `db:"price_cents" json:"price_cents"`
	Currency      string        `db:"currency" json:"currency"`
	DiscountTiers DiscountTiers `db:"discount_tiers" json:"discount_tiers"`
	Active        bool          `db:"active" json:"active"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
}

func (d *DropIn) HasTrialTier() bool {
	for _, tier := range d.DiscountTiers {
		if tier.Type == TierTrial {
			return true
		}
	}
	return false
}

type ClassOption struct {
	ID           int             `db:"id" json:"id"`
	Name         string          `db:"name" json:"name"`
	Description  string          `db:"description" json:"description"`
	Places       int             `db:"places" json:"places"`
	Type         string          `db:"type" json:"type"`
	DropIn       ref.Ref[DropIn] `db:"drop_in_id" json:"drop_in"`
	AllowedPlans []int           `db:"-" json:"allowed_plans"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// Trialable reports whether the option's drop-in carries a trial-priced tier.
// The drop-in must be expanded.
func (o *ClassOption) Trialable() bool {
	d, ok := o.DropIn.Get()
	return ok && d.HasTrialTier()
}

func (o *ClassOption) AllowsPlan(planID int) bool {
	for _, id := range o.AllowedPlans {
		if id == planID {
			return true
		}
	}
	return false
}

func (o *ClassOption) Validate() error {
	if o.Name == "" {
		return errors.New("name is required")
	}
	if o.Places < 1 {
		return errors.New("places must be at least 1")
	}
	switch o.Type {
	case TypeAdult, TypeChild, TypeFamily:
	default:
		return fmt.Errorf("unknown class type %q", o.Type)
	}
	return nil
}

type Lesson struct {
	ID          int                  `db:"id" json:"id"`
	Date        time.Time            `db:"date" json:"date"`
	StartTime   time.Time            `db:"start_time" json:"start_time"`
	EndTime     time.Time            `db:"end_time" json:"end_time"`
	LockOutTime int                  `db:"lock_out_time" json:"lock_out_time"`
	Location    string               `db:"location" json:"location"`
	Instructor  ref.Ref[user.User]   `db:"instructor_id" json:"instructor"`
	ClassOption ref.Ref[ClassOption] `db:"class_option_id" json:"class_option"`
	Active      bool                 `db:"active" json:"active"`
	CreatedAt   time.Time            `db:"created_at" json:"created_at"`
}

// LockOutAt is the instant after which check-in closes.
func (l *Lesson) LockOutAt() time.Time {
	return l.StartTime.Add(-time.Duration(l.LockOutTime) * time.Minute)
}

func (l *Lesson) Overlaps(start, end time.Time) bool {
	return l.StartTime.Before(end) && start.Before(l.EndTime)
}

type CreateDropInRequest struct {
	Name          string         `json:"name" binding:"required"`
	PriceCents    int64          `json:"price_cents" binding:"min=0"`
	Currency      string         `json:"currency"`
	DiscountTiers []DiscountTier `json:"discount_tiers"`
}

type ClassOptionRequest struct {
	Name         string `json:"name" binding:"required"`
	Description  string `json:"description"`
	Places       int    `json:"places" binding:"required,min=1"`
	Type         string `json:"type" binding:"required,oneof=adult child family"`
	DropInID     int    `json:"drop_in_id"`
	AllowedPlans []int  `json:"allowed_plans"`
}

type CreateLessonRequest struct {
	StartTime     time.Time `json:"start_time" binding:"required"`
	EndTime       time.Time `json:"end_time" binding:"required"`
	LockOutTime   int       `json:"lock_out_time" binding:"min=0"`
	Location      string    `json:"location"`
	InstructorID  int       `json:"instructor_id"`
	ClassOptionID int       `json:"class_option_id" binding:"required"`
}
