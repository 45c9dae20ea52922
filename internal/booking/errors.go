package booking

import "errors"

var (
	ErrBookingNotFound  = errors.New("booking not found")
	ErrLessonFull       = errors.New("lesson fully booked")
	ErrDuplicateBooking = errors.New("a booking for this user and lesson already exists")
	ErrLessonClosed     = errors.New("lesson is closed for check-in")
	ErrAlreadyBooked    = errors.New("already booked on this lesson")
	ErrForbidden        = errors.New("not allowed to change this booking")
	ErrInvalidStatus    = errors.New("invalid booking status")
)
