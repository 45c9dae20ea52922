package schedule

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"studiobook/internal/api"
	"studiobook/internal/auth"
	"studiobook/internal/logger"

	"github.com/gin-gonic/gin"
)

type TaskQueue interface {
	Enqueuer
	Status(ctx context.Context, taskID string) (*TaskStatus, error)
}

type Handler struct {
	generator *Generator
	queue     TaskQueue
	templates Repository
	roller    *Roller
}

func NewHandler(generator *Generator, queue TaskQueue, templates Repository, roller *Roller) *Handler {
	return &Handler{
		generator: generator,
		queue:     queue,
		templates: templates,
		roller:    roller,
	}
}

type taskResponse struct {
	TaskID string `json:"task_id"`
}

// Generate validates the request up front and queues it for the worker.
func (h *Handler) Generate(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.BindError(err))
		return
	}
	if _, _, err := h.generator.Validate(req); err != nil {
		c.JSON(http.StatusBadRequest, api.BindError(err))
		return
	}

	source := "admin"
	if userID, ok := auth.GetUserID(c); ok {
		source = "admin:" + strconv.Itoa(userID)
	}

	taskID, err := h.queue.Enqueue(c.Request.Context(), req, source)
	if err != nil {
		logger.Error("failed to queue schedule task", "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Failed to queue schedule task"})
		return
	}

	c.JSON(http.StatusAccepted, taskResponse{TaskID: taskID})
}

func (h *Handler) GetTask(c *gin.Context) {
	st, err := h.queue.Status(c.Request.Context(), c.Param("taskID"))
	if errors.Is(err, ErrTaskNotFound) {
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "Task not found"})
		return
	}
	if err != nil {
		logger.Error("failed to read schedule task", "task_id", c.Param("taskID"), "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Failed to read task"})
		return
	}

	c.JSON(http.StatusOK, st)
}

func (h *Handler) CreateTemplate(c *gin.Context) {
	var req CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.BindError(err))
		return
	}
	if err := h.generator.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, api.BindError(err))
		return
	}
	if err := req.Week.checkSlots(); err != nil {
		c.JSON(http.StatusBadRequest, api.BindError(err))
		return
	}

	t := &Template{
		Name:                 req.Name,
		Week:                 req.Week,
		DefaultClassOptionID: req.DefaultClassOptionID,
		LockOutTime:          req.LockOutTime,
		Active:               true,
	}
	if err := h.templates.CreateTemplate(c.Request.Context(), t); err != nil {
		logger.Error("failed to create schedule template", "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Failed to create schedule"})
		return
	}

	c.JSON(http.StatusCreated, t)
}

func (h *Handler) ListTemplates(c *gin.Context) {
	templates, err := h.templates.ListTemplates(c.Request.Context(), c.Query("active") == "true")
	if err != nil {
		logger.Error("failed to list schedule templates", "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Failed to fetch schedules"})
		return
	}

	c.JSON(http.StatusOK, templates)
}

// RollForward queues the nightly run immediately.
func (h *Handler) RollForward(c *gin.Context) {
	ids, err := h.roller.RollForward(c.Request.Context())
	if err != nil {
		logger.Error("manual roll-forward failed", "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Failed to queue schedules"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"task_ids": ids})
}

type setActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

func (h *Handler) SetTemplateActive(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("scheduleID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid schedule ID"})
		return
	}

	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.BindError(err))
		return
	}

	if err := h.templates.SetTemplateActive(c.Request.Context(), id, *req.Active); err != nil {
		h.templateError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type templateRunRequest struct {
	StartDate     string `json:"start_date" binding:"required"`
	EndDate       string `json:"end_date" binding:"required"`
	ClearExisting bool   `json:"clear_existing"`
}

// GenerateFromTemplate queues a run of a stored template over an explicit range.
func (h *Handler) GenerateFromTemplate(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("scheduleID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid schedule ID"})
		return
	}

	var body templateRunRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, api.BindError(err))
		return
	}

	t, err := h.templates.GetTemplate(c.Request.Context(), id)
	if err != nil {
		h.templateError(c, err)
		return
	}

	req := Request{
		StartDate:          body.StartDate,
		EndDate:            body.EndDate,
		Week:               t.Week,
		ClearExisting:      body.ClearExisting,
		DefaultClassOption: t.DefaultClassOptionID,
		LockOutTime:        t.LockOutTime,
	}
	if _, _, err := h.generator.Validate(req); err != nil {
		c.JSON(http.StatusBadRequest, api.BindError(err))
		return
	}

	taskID, err := h.queue.Enqueue(c.Request.Context(), req, "template:"+strconv.Itoa(t.ID))
	if err != nil {
		logger.Error("failed to queue schedule task", "schedule_id", t.ID, "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Failed to queue schedule task"})
		return
	}

	c.JSON(http.StatusAccepted, taskResponse{TaskID: taskID})
}

func (h *Handler) templateError(c *gin.Context, err error) {
	if errors.Is(err, ErrTemplateNotFound) {
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "Schedule not found"})
		return
	}
	logger.Error("schedule template operation failed", "error", err)
	c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Failed to update schedule"})
}
