package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"studiobook/internal/lesson"
	"studiobook/internal/user"
)

// Confirmation is everything a confirmation message may mention.
type Confirmation struct {
	User        *user.User
	Lesson      *lesson.Lesson
	Booking     *Booking
	Transaction *Transaction
}

type Notifier interface {
	BookingConfirmed(ctx context.Context, c Confirmation) error
}

// ConfirmationSender is satisfied by email.Service.
type ConfirmationSender interface {
	SendBookingConfirmation(ctx context.Context, to, name, className, details string, when time.Time) error
}

type EmailNotifier struct {
	sender   ConfirmationSender
	location *time.Location
}

func NewEmailNotifier(sender ConfirmationSender, loc *time.Location) *EmailNotifier {
	if loc == nil {
		loc = time.UTC
	}
	return &EmailNotifier{sender: sender, location: loc}
}

func (n *EmailNotifier) BookingConfirmed(ctx context.Context, c Confirmation) error {
	className := "Class"
	if opt, ok := c.Lesson.ClassOption.Get(); ok && opt.Name != "" {
		className = opt.Name
	}
	return n.sender.SendBookingConfirmation(ctx, c.User.Email, c.User.Name, className, n.details(c, className), c.Lesson.StartTime.In(n.location))
}

func (n *EmailNotifier) details(c Confirmation, className string) string {
	start := c.Lesson.StartTime.In(n.location)
	end := c.Lesson.EndTime.In(n.location)

	var b strings.Builder
	fmt.Fprintf(&b, "%s on %s, %s to %s\n", className, start.Format("Monday 2 January 2006"), start.Format("15:04"), end.Format("15:04"))
	if c.Lesson.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", c.Lesson.Location)
	}
	if c.Lesson.LockOutTime > 0 {
		fmt.Fprintf(&b, "Check-in closes %d minutes before the start.\n", c.Lesson.LockOutTime)
	}
	fmt.Fprintf(&b, "Booking reference: #%d\n", c.Booking.ID)
	if tx := c.Transaction; tx != nil {
		fmt.Fprintf(&b, "Paid: %.2f %s by %s\n", float64(tx.AmountCents)/100, strings.ToUpper(tx.Currency), tx.PaymentMethod)
	}
	return b.String()
}
