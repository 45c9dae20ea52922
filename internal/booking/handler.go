package booking

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"studiobook/internal/api"
	"studiobook/internal/auth"
	"studiobook/internal/lesson"
	"studiobook/internal/logger"

	"github.com/gin-gonic/gin"
)

const defaultListDays = 7

type Handler struct {
	service  Service
	location *time.Location
}

func NewHandler(service Service, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		service:  service,
		location: loc,
	}
}

// ListLessons returns lessons with capacity and status for the caller.
// Anonymous callers are allowed.
func (h *Handler) ListLessons(c *gin.Context) {
	from, to, err := h.parseRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.BindError(err))
		return
	}

	views, err := h.service.ListLessonViews(c.Request.Context(), auth.RequestContext(c), from, to)
	if err != nil {
		writeError(c, err, "Failed to fetch lessons")
		return
	}

	c.JSON(http.StatusOK, views)
}

func (h *Handler) GetLesson(c *gin.Context) {
	lessonID, ok := paramID(c, "lessonID", "Invalid lesson ID")
	if !ok {
		return
	}

	view, err := h.service.LessonView(c.Request.Context(), auth.RequestContext(c), lessonID)
	if err != nil {
		writeError(c, err, "Failed to fetch lesson")
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *Handler) CheckIn(c *gin.Context) {
	lessonID, ok := paramID(c, "lessonID", "Invalid lesson ID")
	if !ok {
		return
	}

	b, err := h.service.CheckIn(c.Request.Context(), auth.RequestContext(c), lessonID)
	if err != nil {
		writeError(c, err, "Failed to check in")
		return
	}

	c.JSON(http.StatusCreated, b)
}

func (h *Handler) CancelBooking(c *gin.Context) {
	bookingID, ok := paramID(c, "bookingID", "Invalid booking ID")
	if !ok {
		return
	}

	b, err := h.service.UpdateStatus(c.Request.Context(), auth.RequestContext(c), bookingID, StatusCancelled)
	if err != nil && b == nil {
		writeError(c, err, "Failed to cancel booking")
		return
	}
	if err != nil {
		logger.Error("booking cancelled but cascade failed", "booking_id", bookingID, "error", err)
	}

	c.JSON(http.StatusOK, b)
}

func (h *Handler) ListMyBookings(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "User not authenticated"})
		return
	}

	bookings, err := h.service.ListForUser(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err, "Failed to fetch bookings")
		return
	}

	c.JSON(http.StatusOK, bookings)
}

func (h *Handler) CreateBooking(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.BindError(err))
		return
	}

	b, err := h.service.Create(c.Request.Context(), auth.RequestContext(c), req)
	if err != nil {
		writeError(c, err, "Failed to create booking")
		return
	}

	c.JSON(http.StatusCreated, b)
}

func (h *Handler) UpdateBookingStatus(c *gin.Context) {
	bookingID, ok := paramID(c, "bookingID", "Invalid booking ID")
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.BindError(err))
		return
	}

	b, err := h.service.UpdateStatus(c.Request.Context(), auth.RequestContext(c), bookingID, req.Status)
	if err != nil && b == nil {
		writeError(c, err, "Failed to update booking")
		return
	}
	if err != nil {
		logger.Error("booking updated but cascade failed", "booking_id", bookingID, "error", err)
	}

	c.JSON(http.StatusOK, b)
}

func (h *Handler) ListLessonBookings(c *gin.Context) {
	lessonID, ok := paramID(c, "lessonID", "Invalid lesson ID")
	if !ok {
		return
	}

	bookings, err := h.service.ListForLesson(c.Request.Context(), lessonID)
	if err != nil {
		writeError(c, err, "Failed to fetch bookings")
		return
	}

	c.JSON(http.StatusOK, bookings)
}

// parseRange reads from/to as dates in the studio timezone or RFC3339
// instants. The default window is the next seven days from today.
func (h *Handler) parseRange(c *gin.Context) (time.Time, time.Time, error) {
	now := time.Now().In(h.location)
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, h.location)
	to := from.AddDate(0, 0, defaultListDays)

	if v := c.Query("from"); v != "" {
		t, err := h.parseBound(v)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid from parameter")
		}
		from = t
		to = from.AddDate(0, 0, defaultListDays)
	}
	if v := c.Query("to"); v != "" {
		t, err := h.parseBound(v)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid to parameter")
		}
		to = t
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, errors.New("to must be after from")
	}
	return from, to, nil
}

func (h *Handler) parseBound(v string) (time.Time, error) {
	if t, err := time.ParseInLocation("2006-01-02", v, h.location); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, v)
}

func paramID(c *gin.Context, name, message string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: message})
		return 0, false
	}
	return id, true
}

func writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrLessonFull),
		errors.Is(err, ErrDuplicateBooking),
		errors.Is(err, ErrAlreadyBooked),
		errors.Is(err, ErrLessonClosed):
		c.JSON(http.StatusConflict, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, api.BindError(err))
	case errors.Is(err, ErrBookingNotFound):
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "Booking not found"})
	case errors.Is(err, lesson.ErrLessonNotFound):
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "Lesson not found"})
	default:
		logger.Error(fallback, "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: fallback})
	}
}
