package lesson

import (
	"errors"
	"net/http"
	"strconv"

	"studiobook/internal/api"
	"studiobook/internal/logger"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{
		service: service,
	}
}

func (h *Handler) CreateDropIn(c *gin.Context) {
	var req CreateDropInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.BindError(err))
		return
	}

	d, err := h.service.CreateDropIn(c.Request.Context(), req)
	if err != nil {
		logger.Error("failed to create drop-in", "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Failed to create drop-in"})
		return
	}

	c.JSON(http.StatusCreated, d)
}

func (h *Handler) CreateClassOption(c *gin.Context) {
	var req ClassOptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.BindError(err))
		return
	}

	o, err := h.service.CreateClassOption(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err, "Failed to create class option")
		return
	}

	c.JSON(http.StatusCreated, o)
}

func (h *Handler) UpdateClassOption(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid class option ID"})
		return
	}

	var req ClassOptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.BindError(err))
		return
	}

	o, err := h.service.UpdateClassOption(c.Request.Context(), id, req)
	if err != nil {
		h.writeError(c, err, "Failed to update class option")
		return
	}

	c.JSON(http.StatusOK, o)
}

func (h *Handler) CreateLesson(c *gin.Context) {
	var req CreateLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.BindError(err))
		return
	}

	l, err := h.service.CreateLessonFromRequest(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err, "Failed to create lesson")
		return
	}

	c.JSON(http.StatusCreated, l)
}

// DeleteLesson removes a lesson and every booking on it.
func (h *Handler) DeleteLesson(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("lessonID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid lesson ID"})
		return
	}

	if err := h.service.DeleteLesson(c.Request.Context(), id); err != nil {
		h.writeError(c, err, "Failed to delete lesson")
		return
	}

	c.JSON(http.StatusOK, api.MessageResponse{Message: "Lesson deleted"})
}

func (h *Handler) writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrInvalidLesson), errors.Is(err, ErrInvalidClassOption):
		c.JSON(http.StatusBadRequest, api.BindError(err))
	case errors.Is(err, ErrLessonNotFound):
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "Lesson not found"})
	case errors.Is(err, ErrClassOptionNotFound):
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "Class option not found"})
	case errors.Is(err, ErrDropInNotFound):
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "Drop-in not found"})
	default:
		logger.Error(fallback, "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: fallback})
	}
}
