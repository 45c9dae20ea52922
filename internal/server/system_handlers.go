package server

import (
	"context"
	"net/http"
	"time"

	"studiobook/internal/api"
	"studiobook/internal/email"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

// Health answers 503 when any check fails.
func Health(checks map[string]Check) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		resp := api.HealthResponse{Status: "ok"}
		code := http.StatusOK
		for name, check := range checks {
			if resp.Checks == nil {
				resp.Checks = map[string]string{}
			}
			if err := check(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		c.JSON(code, resp)
	}
}

type MessageQueue interface {
	Send(ctx context.Context, msg email.Message) error
}

func TestEmail(mail MessageQueue) gin.HandlerFunc {
	return func(c *gin.Context) {
		to := c.Query("email")
		if to == "" {
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "email parameter required"})
			return
		}

		msg := email.Message{To: to, Subject: "Test email", Body: "Email delivery is working.", Tag: "test"}
		if err := mail.Send(c.Request.Context(), msg); err != nil {
			c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Failed to queue email"})
			return
		}

		c.JSON(http.StatusOK, api.MessageResponse{Message: "Email queued successfully"})
	}
}

func Metrics() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
