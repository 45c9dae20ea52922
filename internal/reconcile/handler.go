package reconcile

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"studiobook/internal/api"
	"studiobook/internal/billing"
	"studiobook/internal/logger"
	"studiobook/internal/subscription"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v78/webhook"
)

const maxPayloadBytes = 65536

type Handler struct {
	router *Router
	secret string
}

func NewHandler(router *Router, webhookSecret string) *Handler {
	return &Handler{router: router, secret: webhookSecret}
}

// Webhook verifies and applies a provider event. Retryable and
// configuration failures answer 500 so the provider redelivers.
func (h *Handler) Webhook(c *gin.Context) {
	if h.secret == "" {
		c.JSON(http.StatusServiceUnavailable, api.ErrorResponse{Error: "Webhooks are not configured"})
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxPayloadBytes))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		logger.Error("webhook payload exceeds limit", "limit_bytes", tooLarge.Limit)
		c.JSON(http.StatusRequestEntityTooLarge, api.ErrorResponse{Error: "Payload too large"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Failed to read body"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, c.GetHeader("Stripe-Signature"), h.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		logger.Warn("webhook signature rejected", "error", err)
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid signature"})
		return
	}

	outcome, err := h.router.Handle(c.Request.Context(), event)
	switch {
	case errors.Is(err, ErrMalformedEvent):
		logger.Error("malformed webhook event", "event_id", event.ID, "type", event.Type, "error", err)
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Malformed event"})
		return
	case err != nil:
		logger.Error("webhook event failed", "event_id", event.ID, "type", event.Type, "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Event not processed"})
		return
	}

	logger.Info("webhook event processed", "event_id", event.ID, "type", event.Type, "outcome", outcome)
	c.JSON(http.StatusOK, gin.H{"received": true, "outcome": outcome})
}

func (h *Handler) Resync(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid subscription ID"})
		return
	}

	sub, err := h.router.Resync(c.Request.Context(), id)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, sub)
	case errors.Is(err, subscription.ErrSubscriptionNotFound), errors.Is(err, billing.ErrNotFound):
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "Subscription not found"})
	case errors.Is(err, billing.ErrNotConfigured):
		c.JSON(http.StatusServiceUnavailable, api.ErrorResponse{Error: "Billing is not configured"})
	default:
		logger.Error("subscription resync failed", "subscription_id", id, "error", err)
		c.JSON(http.StatusBadGateway, api.ErrorResponse{Error: "Failed to resync subscription"})
	}
}
