package booking

// RemainingCapacity is places minus confirmed bookings. It is not clamped:
// a negative value means the class option was shrunk below its bookings.
func RemainingCapacity(places, confirmed int) int {
	return places - confirmed
}

// HasSpace reports whether one more booking can be confirmed.
func HasSpace(places, confirmed int) bool {
	return RemainingCapacity(places, confirmed) > 0
}
