package booking

import (
	"context"
	"errors"
	"time"

	"studiobook/internal/lesson"
	"studiobook/internal/viewer"

	"golang.org/x/sync/errgroup"
)

// LessonView is a lesson as seen by one viewer at one instant. Capacity and
// status are recomputed on every read.
type LessonView struct {
	Lesson            *lesson.Lesson `json:"lesson"`
	RemainingCapacity int            `json:"remaining_capacity"`
	Status            LessonStatus   `json:"booking_status"`
	Booking           *Booking       `json:"booking,omitempty"`
}

func (s *service) LessonView(ctx context.Context, rc viewer.RequestContext, lessonID int) (*LessonView, error) {
	l, err := s.lessons.GetLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	return s.buildView(ctx, rc, l, nil)
}

// ListLessonViews builds views for every active lesson starting in
// [from, to), a bounded number at a time.
func (s *service) ListLessonViews(ctx context.Context, rc viewer.RequestContext, from, to time.Time) ([]LessonView, error) {
	lessons, err := s.lessons.ListLessons(ctx, from, to)
	if err != nil {
		return nil, err
	}

	var hasConfirmed *bool
	if !rc.IsAnonymous() {
		v, err := s.users.HasConfirmedBooking(ctx, rc.UserID())
		if err != nil {
			return nil, err
		}
		hasConfirmed = &v
	}

	views := make([]LessonView, len(lessons))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.viewWorkers)

	for i := range lessons {
		i := i
		g.Go(func() error {
			v, err := s.buildView(gctx, rc, &lessons[i], hasConfirmed)
			if err != nil {
				return err
			}
			views[i] = *v
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return views, nil
}

func (s *service) buildView(ctx context.Context, rc viewer.RequestContext, l *lesson.Lesson, hasConfirmed *bool) (*LessonView, error) {
	opt, err := s.classOption(ctx, l)
	if err != nil {
		return nil, err
	}

	confirmed, err := s.repo.CountConfirmed(ctx, l.ID)
	if err != nil {
		return nil, err
	}

	in := StatusInput{
		Now:            rc.Now,
		Start:          l.StartTime,
		LockOutMinutes: l.LockOutTime,
		Places:         opt.Places,
		Confirmed:      confirmed,
		Trialable:      opt.Trialable(),
		Anonymous:      rc.IsAnonymous(),
	}

	view := &LessonView{
		Lesson:            l,
		RemainingCapacity: RemainingCapacity(opt.Places, confirmed),
	}

	if !rc.IsAnonymous() {
		mine, err := s.repo.FindByUserAndLesson(ctx, rc.UserID(), l.ID)
		switch {
		case err == nil:
			view.Booking = mine
			in.ViewerBooked = mine.Status == StatusConfirmed
		case !errors.Is(err, ErrBookingNotFound):
			return nil, err
		}

		if in.Trialable {
			if hasConfirmed == nil {
				v, err := s.users.HasConfirmedBooking(ctx, rc.UserID())
				if err != nil {
					return nil, err
				}
				hasConfirmed = &v
			}
			in.ViewerHasConfirmed = *hasConfirmed
		}
	}

	view.Status = ComputeStatus(in)
	return view, nil
}
