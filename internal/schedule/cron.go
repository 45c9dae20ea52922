package schedule

import (
	"context"
	"fmt"
	"time"

	"studiobook/internal/logger"

	"github.com/robfig/cron/v3"
)

// Enqueuer is satisfied by *Queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, req Request, source string) (string, error)
}

// Roller keeps the timetable filled a fixed number of weeks ahead by
// queueing a non-destructive run for every active template.
type Roller struct {
	templates Repository
	queue     Enqueuer
	location  *time.Location
	horizon   int
	now       func() time.Time
}

func NewRoller(templates Repository, queue Enqueuer, loc *time.Location, horizonWeeks int) *Roller {
	if loc == nil {
		loc = time.UTC
	}
	return &Roller{
		templates: templates,
		queue:     queue,
		location:  loc,
		horizon:   horizonWeeks,
		now:       time.Now,
	}
}

// Window returns tomorrow and the last day covered by the horizon, both as
// local midnights. Today is left alone so no lesson is created in the past.
func (r *Roller) Window() (time.Time, time.Time) {
	y, m, d := r.now().In(r.location).Date()
	from := time.Date(y, m, d+1, 0, 0, 0, 0, r.location)
	return from, from.AddDate(0, 0, 7*r.horizon)
}

// RollForward returns the ids of the queued tasks.
func (r *Roller) RollForward(ctx context.Context) ([]string, error) {
	templates, err := r.templates.ListTemplates(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedule templates: %w", err)
	}

	from, to := r.Window()
	ids := make([]string, 0, len(templates))
	for i := range templates {
		t := &templates[i]
		id, err := r.queue.Enqueue(ctx, t.Request(from, to), fmt.Sprintf("cron:template:%d", t.ID))
		if err != nil {
			return ids, fmt.Errorf("failed to queue template %d: %w", t.ID, err)
		}
		ids = append(ids, id)
	}

	logger.Info("schedule roll-forward queued", "templates", len(ids), "from", from.Format(time.DateOnly), "to", to.Format(time.DateOnly))
	return ids, nil
}

// Start schedules RollForward on the cron expression expr, evaluated in the studio timezone.
// Stop the returned cron to shut it down.
func (r *Roller) Start(expr string) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(r.location))
	_, err := c.AddFunc(expr, func() {
		if _, err := r.RollForward(context.Background()); err != nil {
			logger.Error("schedule roll-forward failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid schedule cron %q: %w", expr, err)
	}

	c.Start()
	logger.Info("schedule roll-forward started", "cron", expr, "horizon_weeks", r.horizon)
	return c, nil
}
