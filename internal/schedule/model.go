package schedule

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const DaysPerWeek = 7

// TimeOfDay is a wall-clock time with no date attached. It decodes from
// "HH:MM" or from a full RFC3339 instant, in which case the UTC hour and
// minute are used.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if t, err := time.Parse("15:04", s); err == nil {
		return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
	}
	t = t.UTC()
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) minutes() int {
	return t.Hour*60 + t.Minute
}

// On places t on the calendar day of day, read in loc.
func (t TimeOfDay) On(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.In(loc).Date()
	return time.Date(y, m, d, t.Hour, t.Minute, 0, 0, loc)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("time of day must be a string: %w", err)
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Slot is one recurring lesson in a weekday bucket. Nil overrides fall back
// to the request defaults.
type Slot struct {
	StartTime     TimeOfDay `json:"start_time"`
	EndTime       TimeOfDay `json:"end_time"`
	Location      string    `json:"location" validate:"required"`
	ClassOptionID *int      `json:"class_option_id,omitempty" validate:"omitempty,min=1"`
	InstructorID  *int      `json:"instructor_id,omitempty" validate:"omitempty,min=1"`
	LockOutTime   *int      `json:"lock_out_time,omitempty" validate:"omitempty,min=0"`
}

type Day struct {
	Slots []Slot `json:"slots" validate:"dive"`
}

// Week holds seven day buckets, Monday first.
type Week struct {
	Days []Day `json:"days" validate:"len=7,dive"`
}

// DayIndex maps a weekday onto the Monday-first bucket index.
func DayIndex(wd time.Weekday) int {
	return (int(wd) + 6) % DaysPerWeek
}

func (w Week) checkSlots() error {
	for i, day := range w.Days {
		for j, slot := range day.Slots {
			if slot.EndTime.minutes() <= slot.StartTime.minutes() {
				return fmt.Errorf("%w: day %d slot %d ends before it starts", ErrInvalidRequest, i, j)
			}
		}
	}
	return nil
}

func (w Week) Value() (driver.Value, error) {
	return json.Marshal(w)
}

func (w *Week) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, w)
	case string:
		return json.Unmarshal([]byte(v), w)
	case nil:
		*w = Week{}
		return nil
	default:
		return fmt.Errorf("schedule: cannot scan %T into Week", src)
	}
}

// Request is the input of one generation run. Dates are calendar days in
// the studio timezone ("2006-01-02") or RFC3339 instants; the range is
// inclusive of both ends.
type Request struct {
	StartDate          string `json:"start_date" validate:"required"`
	EndDate            string `json:"end_date" validate:"required"`
	Week               Week   `json:"week"`
	ClearExisting      bool   `json:"clear_existing"`
	DefaultClassOption int    `json:"default_class_option" validate:"required,min=1"`
	LockOutTime        int    `json:"lock_out_time" validate:"min=0"`
}

type Result struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Created   int    `json:"created"`
	Skipped   int    `json:"skipped"`
	Conflicts int    `json:"conflicts"`
	Deleted   int    `json:"deleted"`
	Preserved int    `json:"preserved"`
}

func failure(msg string, partial Result) Result {
	partial.Success = false
	partial.Message = msg
	return partial
}

// Template is a stored weekly timetable that the nightly job rolls forward.
type Template struct {
	ID                   int       `db:"id" json:"id"`
	Name                 string    `db:"name" json:"name"`
	Week                 Week      `db:"week" json:"week"`
	DefaultClassOptionID int       `db:"default_class_option_id" json:"default_class_option_id"`
	LockOutTime          int       `db:"lock_out_time" json:"lock_out_time"`
	Active               bool      `db:"active" json:"active"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
}

type CreateTemplateRequest struct {
	Name                 string `json:"name" validate:"required"`
	Week                 Week   `json:"week"`
	DefaultClassOptionID int    `json:"default_class_option_id" validate:"required,min=1"`
	LockOutTime          int    `json:"lock_out_time" validate:"min=0"`
}

// Request builds a non-destructive generation run over [from, to].
func (t *Template) Request(from, to time.Time) Request {
	return Request{
		StartDate:          from.Format(time.RFC3339),
		EndDate:            to.Format(time.RFC3339),
		Week:               t.Week,
		DefaultClassOption: t.DefaultClassOptionID,
		LockOutTime:        t.LockOutTime,
	}
}

var (
	ErrInvalidRequest   = errors.New("invalid schedule request")
	ErrTemplateNotFound = errors.New("schedule template not found")
	ErrTaskNotFound     = errors.New("schedule task not found")
)
