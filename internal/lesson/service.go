package lesson

import (
	"context"
	"errors"
	"fmt"
	"time"

	"studiobook/internal/logger"
	"studiobook/internal/ref"
	"studiobook/internal/user"
)

var (
	ErrInvalidLesson      = errors.New("invalid lesson")
	ErrInvalidClassOption = errors.New("invalid class option")
)

type Service interface {
	CreateDropIn(ctx context.Context, req CreateDropInRequest) (*DropIn, error)

	CreateClassOption(ctx context.Context, req ClassOptionRequest) (*ClassOption, error)
	UpdateClassOption(ctx context.Context, id int, req ClassOptionRequest) (*ClassOption, error)
	GetClassOption(ctx context.Context, id int) (*ClassOption, error)

	CreateLesson(ctx context.Context, l *Lesson) error
	CreateLessonFromRequest(ctx context.Context, req CreateLessonRequest) (*Lesson, error)
	GetLesson(ctx context.Context, id int) (*Lesson, error)
	ListLessons(ctx context.Context, from, to time.Time) ([]Lesson, error)
	DeleteLesson(ctx context.Context, id int) error
}

type service struct {
	repo     Repository
	cache    *OptionCache
	location *time.Location
}

func NewService(repo Repository, cache *OptionCache, loc *time.Location) Service {
	if cache == nil {
		cache = NewOptionCache(0, 0)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &service{
		repo:     repo,
		cache:    cache,
		location: loc,
	}
}

func (s *service) CreateDropIn(ctx context.Context, req CreateDropInRequest) (*DropIn, error) {
	d := &DropIn{
		Name:          req.Name,
		PriceCents:    req.PriceCents,
		Currency:      req.Currency,
		DiscountTiers: req.DiscountTiers,
		Active:        true,
	}
	if d.Currency == "" {
		d.Currency = "eur"
	}
	if err := s.repo.CreateDropIn(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *service) optionFromRequest(ctx context.Context, req ClassOptionRequest) (*ClassOption, error) {
	o := &ClassOption{
		Name:         req.Name,
		Description:  req.Description,
		Places:       req.Places,
		Type:         req.Type,
		AllowedPlans: req.AllowedPlans,
	}
	if o.Type == "" {
		o.Type = TypeAdult
	}
	if err := o.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidClassOption, err)
	}
	if req.DropInID != 0 {
		d, err := s.repo.GetDropIn(ctx, req.DropInID)
		if err != nil {
			return nil, err
		}
		o.DropIn = ref.Expanded(d.ID, d)
	}
	return o, nil
}

func (s *service) CreateClassOption(ctx context.Context, req ClassOptionRequest) (*ClassOption, error) {
	o, err := s.optionFromRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateClassOption(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *service) UpdateClassOption(ctx context.Context, id int, req ClassOptionRequest) (*ClassOption, error) {
	o, err := s.optionFromRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	o.ID = id

	if err := s.repo.UpdateClassOption(ctx, o); err != nil {
		return nil, err
	}
	s.cache.Invalidate(id)
	logger.Info("class option updated", "class_option_id", id, "places", o.Places)

	return s.GetClassOption(ctx, id)
}

func (s *service) GetClassOption(ctx context.Context, id int) (*ClassOption, error) {
	if o, ok := s.cache.Get(id); ok {
		return o, nil
	}

	o, err := s.repo.GetClassOption(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Add(o)
	return o, nil
}

// CreateLesson validates l and stores it. Date is derived from the start
// time in the studio's timezone.
func (s *service) CreateLesson(ctx context.Context, l *Lesson) error {
	if !l.EndTime.After(l.StartTime) {
		return fmt.Errorf("%w: end time must be after start time", ErrInvalidLesson)
	}
	if l.LockOutTime < 0 {
		return fmt.Errorf("%w: lock-out time cannot be negative", ErrInvalidLesson)
	}
	if l.ClassOption.IsZero() {
		return fmt.Errorf("%w: class option is required", ErrInvalidLesson)
	}

	opt, err := s.GetClassOption(ctx, l.ClassOption.ID())
	if err != nil {
		return err
	}
	if opt.Places < 1 {
		return fmt.Errorf("%w: class option has no places", ErrInvalidLesson)
	}

	local := l.StartTime.In(s.location)
	l.Date = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	l.Active = true

	if err := s.repo.CreateLesson(ctx, l); err != nil {
		return err
	}
	l.ClassOption = l.ClassOption.Expand(opt)
	return nil
}

func (s *service) CreateLessonFromRequest(ctx context.Context, req CreateLessonRequest) (*Lesson, error) {
	l := &Lesson{
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		LockOutTime: req.LockOutTime,
		Location:    req.Location,
		ClassOption: ref.ID[ClassOption](req.ClassOptionID),
	}
	if req.InstructorID != 0 {
		l.Instructor = ref.ID[user.User](req.InstructorID)
	}
	if err := s.CreateLesson(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// GetLesson returns the lesson with its class option expanded.
func (s *service) GetLesson(ctx context.Context, id int) (*Lesson, error) {
	l, err := s.repo.GetLesson(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.expand(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *service) ListLessons(ctx context.Context, from, to time.Time) ([]Lesson, error) {
	lessons, err := s.repo.ListLessons(ctx, from, to)
	if err != nil {
		return nil, err
	}
	for i := range lessons {
		if err := s.expand(ctx, &lessons[i]); err != nil {
			return nil, err
		}
	}
	return lessons, nil
}

func (s *service) expand(ctx context.Context, l *Lesson) error {
	opt, err := l.ClassOption.Resolve(ctx, s.GetClassOption)
	if err != nil {
		return fmt.Errorf("lesson %d: %w", l.ID, err)
	}
	l.ClassOption = l.ClassOption.Expand(opt)
	return nil
}

func (s *service) DeleteLesson(ctx context.Context, id int) error {
	if err := s.repo.DeleteLesson(ctx, id); err != nil {
		return err
	}
	logger.Info("lesson deleted", "lesson_id", id)
	return nil
}
