package lesson

import (
	"context"
	"time"
)

type Repository interface {
	CreateDropIn(ctx context.Context, d *DropIn) error
	GetDropIn(ctx context.Context, id int) (*DropIn, error)

	CreateClassOption(ctx context.Context, o *ClassOption) error
	UpdateClassOption(ctx context.Context, o *ClassOption) error
	GetClassOption(ctx context.Context, id int) (*ClassOption, error)

	CreateLesson(ctx context.Context, l *Lesson) error
	GetLesson(ctx context.Context, id int) (*Lesson, error)
	ListLessons(ctx context.Context, from, to time.Time) ([]Lesson, error)
	FindOverlapping(ctx context.Context, location string, start, end time.Time) ([]Lesson, error)
	DeleteLesson(ctx context.Context, id int) error
	DeleteUnbookedInRange(ctx context.Context, from, to time.Time) (deleted, preserved int, err error)
}
