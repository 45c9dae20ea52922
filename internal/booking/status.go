package booking

import "time"

// LessonStatus is what a viewer may do with a lesson right now.
type LessonStatus string

const (
	LessonBooked    LessonStatus = "booked"
	LessonClosed    LessonStatus = "closed"
	LessonWaitlist  LessonStatus = "waitlist"
	LessonTrialable LessonStatus = "trialable"
	LessonActive    LessonStatus = "active"
)

type StatusInput struct {
	Now            time.Time
	Start          time.Time
	LockOutMinutes int
	Places         int
	Confirmed      int
	// Trialable is set when the class option has a trial-priced drop-in tier.
	Trialable bool
	Anonymous bool
	// ViewerBooked is set when the viewer holds a confirmed booking on this lesson.
	ViewerBooked bool
	// ViewerHasConfirmed is set when the viewer has ever held a confirmed
	// booking on any lesson.
	ViewerHasConfirmed bool
}

// ComputeStatus evaluates the rules in priority order; the first match wins.
// A confirmed booking reads as booked until the lesson starts, even inside
// the lock-out window, so it can still be cancelled.
func ComputeStatus(in StatusInput) LessonStatus {
	if in.ViewerBooked && in.Now.Before(in.Start) {
		return LessonBooked
	}

	lockOut := in.Start.Add(-time.Duration(in.LockOutMinutes) * time.Minute)
	if !in.Now.Before(lockOut) {
		return LessonClosed
	}

	if in.Confirmed >= in.Places {
		return LessonWaitlist
	}

	if in.Trialable && (in.Anonymous || !in.ViewerHasConfirmed) {
		return LessonTrialable
	}

	return LessonActive
}
