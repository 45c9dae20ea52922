package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"studiobook/internal/lesson"
	"studiobook/internal/logger"
	"studiobook/internal/metrics"
	"studiobook/internal/ref"
	"studiobook/internal/user"

	"github.com/go-playground/validator/v10"
)

// LessonStore is the part of lesson.Repository the generator reads and prunes.
type LessonStore interface {
	FindOverlapping(ctx context.Context, location string, start, end time.Time) ([]lesson.Lesson, error)
	DeleteUnbookedInRange(ctx context.Context, from, to time.Time) (deleted, preserved int, err error)
}

// LessonCreator is satisfied by lesson.Service.
type LessonCreator interface {
	CreateLesson(ctx context.Context, l *lesson.Lesson) error
}

type Generator struct {
	store    LessonStore
	creator  LessonCreator
	location *time.Location
	validate *validator.Validate
}

func NewGenerator(store LessonStore, creator LessonCreator, loc *time.Location) *Generator {
	if loc == nil {
		loc = time.UTC
	}
	return &Generator{
		store:    store,
		creator:  creator,
		location: loc,
		validate: validator.New(),
	}
}

// Validate checks req and returns the first and last calendar day of the
// range as local midnights.
func (g *Generator) Validate(req Request) (time.Time, time.Time, error) {
	if err := g.validate.Struct(req); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	first, err := g.parseDay(req.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start_date: %v", ErrInvalidRequest, err)
	}
	last, err := g.parseDay(req.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end_date: %v", ErrInvalidRequest, err)
	}
	if last.Before(first) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end_date is before start_date", ErrInvalidRequest)
	}

	if err := req.Week.checkSlots(); err != nil {
		return time.Time{}, time.Time{}, err
	}
	return first, last, nil
}

func (g *Generator) parseDay(s string) (time.Time, error) {
	t, err := time.ParseInLocation(time.DateOnly, s, g.location)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date %q", s)
		}
	}
	y, m, d := t.In(g.location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, g.location), nil
}

// Generate materialises the weekly template over the requested range. It
// never returns an error; failures are reported in the Result along with
// whatever was done before the failure.
func (g *Generator) Generate(ctx context.Context, req Request) Result {
	first, last, err := g.Validate(req)
	if err != nil {
		metrics.RecordScheduleRun("invalid")
		return failure(err.Error(), Result{})
	}

	res := g.run(ctx, req, first, last)
	metrics.RecordLessonsGenerated(res.Created, res.Skipped, res.Conflicts, res.Deleted)
	if res.Success {
		metrics.RecordScheduleRun("success")
	} else {
		metrics.RecordScheduleRun("failed")
	}
	return res
}

func (g *Generator) run(ctx context.Context, req Request, first, last time.Time) Result {
	var res Result
	end := last.AddDate(0, 0, 1)

	if req.ClearExisting {
		deleted, preserved, err := g.store.DeleteUnbookedInRange(ctx, first, end)
		if err != nil {
			logger.Error("failed to clear lessons", "from", first, "to", end, "error", err)
			return failure(fmt.Sprintf("clearing existing lessons: %v", err), res)
		}
		res.Deleted = deleted
		res.Preserved = preserved
		logger.Info("cleared unbooked lessons", "deleted", deleted, "preserved", preserved)
	}

	for day := first; day.Before(end); day = day.AddDate(0, 0, 1) {
		bucket := req.Week.Days[DayIndex(day.Weekday())]
		for _, slot := range bucket.Slots {
			if err := ctx.Err(); err != nil {
				return failure(fmt.Sprintf("generation interrupted: %v", err), res)
			}
			if err := g.place(ctx, req, day, slot, &res); err != nil {
				logger.Error("failed to create lesson",
					"day", day.Format(time.DateOnly), "start", slot.StartTime.String(), "location", slot.Location, "error", err)
				return failure(fmt.Sprintf("creating lesson on %s at %s: %v", day.Format(time.DateOnly), slot.StartTime, err), res)
			}
		}
	}

	res.Success = true
	res.Message = fmt.Sprintf("created %d lessons, skipped %d, %d conflicts", res.Created, res.Skipped, res.Conflicts)
	return res
}

func (g *Generator) place(ctx context.Context, req Request, day time.Time, slot Slot, res *Result) error {
	start := slot.StartTime.On(day, g.location)
	end := slot.EndTime.On(day, g.location)

	existing, err := g.store.FindOverlapping(ctx, slot.Location, start, end)
	if err != nil {
		return err
	}
	for _, l := range existing {
		if l.StartTime.Equal(start) && l.EndTime.Equal(end) {
			res.Skipped++
			return nil
		}
	}
	if len(existing) > 0 {
		logger.Warn("lesson overlaps an existing lesson",
			"location", slot.Location, "start", start, "existing_id", existing[0].ID)
		res.Conflicts++
		return nil
	}

	l := &lesson.Lesson{
		StartTime:   start,
		EndTime:     end,
		Location:    slot.Location,
		LockOutTime: req.LockOutTime,
		ClassOption: ref.ID[lesson.ClassOption](req.DefaultClassOption),
	}
	if slot.ClassOptionID != nil {
		l.ClassOption = ref.ID[lesson.ClassOption](*slot.ClassOptionID)
	}
	if slot.InstructorID != nil {
		l.Instructor = ref.ID[user.User](*slot.InstructorID)
	}
	if slot.LockOutTime != nil {
		l.LockOutTime = *slot.LockOutTime
	}

	if err := g.creator.CreateLesson(ctx, l); err != nil {
		if errors.Is(err, lesson.ErrClassOptionNotFound) {
			return fmt.Errorf("class option %d: %w", l.ClassOption.ID(), err)
		}
		return err
	}
	res.Created++
	return nil
}
