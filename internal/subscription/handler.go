package subscription

import (
	"errors"
	"net/http"
	"strconv"

	"studiobook/internal/api"
	"studiobook/internal/auth"
	"studiobook/internal/logger"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	plans         PlanService
	subscriptions Service
}

func NewHandler(plans PlanService, subscriptions Service) *Handler {
	return &Handler{
		plans:         plans,
		subscriptions: subscriptions,
	}
}

func (h *Handler) ListMy(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "User not authenticated"})
		return
	}

	subs, err := h.subscriptions.ListForUser(c.Request.Context(), userID)
	if err != nil {
		logger.Error("failed to load subscriptions", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Failed to load subscriptions"})
		return
	}

	c.JSON(http.StatusOK, subs)
}

func (h *Handler) ListPlans(c *gin.Context) {
	plans, err := h.plans.List(c.Request.Context(), true)
	if err != nil {
		logger.Error("failed to load plans", "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Failed to load plans"})
		return
	}

	c.JSON(http.StatusOK, plans)
}

func (h *Handler) CreatePlan(c *gin.Context) {
	var req CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.BindError(err))
		return
	}

	p := &Plan{
		Name:            req.Name,
		StripeProductID: req.StripeProductID,
		Sessions:        req.Sessions,
		Interval:        req.Interval,
		IntervalCount:   req.IntervalCount,
		Active:          true,
	}
	if err := h.plans.Save(c.Request.Context(), p); err != nil {
		logger.Error("failed to create plan", "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Failed to create plan"})
		return
	}

	c.JSON(http.StatusCreated, p)
}

func (h *Handler) SyncPlan(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("planID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid plan ID"})
		return
	}

	p, err := h.plans.Sync(c.Request.Context(), id)
	if errors.Is(err, ErrPlanNotFound) {
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "Plan not found"})
		return
	}
	if err != nil {
		logger.Error("failed to sync plan", "plan_id", id, "error", err)
		c.JSON(http.StatusBadGateway, api.ErrorResponse{Error: "Failed to sync plan"})
		return
	}

	c.JSON(http.StatusOK, p)
}

// UpdateSubscription lets staff cancel, pause or resume a subscription. The
// change is pushed to the provider before it is stored.
func (h *Handler) UpdateSubscription(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid subscription ID"})
		return
	}

	var req UpdateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.BindError(err))
		return
	}

	sub, err := h.subscriptions.Get(c.Request.Context(), id)
	if errors.Is(err, ErrSubscriptionNotFound) {
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "Subscription not found"})
		return
	}
	if err != nil {
		logger.Error("failed to load subscription", "subscription_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Failed to update subscription"})
		return
	}

	sub.Status = req.Status
	if err := h.subscriptions.Update(c.Request.Context(), sub); err != nil {
		logger.Error("failed to update subscription", "subscription_id", id, "error", err)
		c.JSON(http.StatusBadGateway, api.ErrorResponse{Error: "Failed to update subscription"})
		return
	}

	c.JSON(http.StatusOK, sub)
}
