package server

import (
	"context"
	"net/http"
	"time"

	"studiobook/internal/auth"
	"studiobook/internal/booking"
	"studiobook/internal/config"
	"studiobook/internal/lesson"
	"studiobook/internal/reconcile"
	"studiobook/internal/schedule"
	"studiobook/internal/subscription"
	"studiobook/internal/user"
	"studiobook/internal/viewer"

	"github.com/gin-gonic/gin"
)

// Handlers groups the HTTP handlers the router mounts.
type Handlers struct {
	Users         *user.Handler
	Lessons       *lesson.Handler
	Bookings      *booking.Handler
	Schedule      *schedule.Handler
	Subscriptions *subscription.Handler
	Webhooks      *reconcile.Handler
	Mail          MessageQueue
	Checks        map[string]Check
}

type Server struct {
	router *gin.Engine
	http   *http.Server
}

func New(cfg *config.Config, h Handlers) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLoggingMiddleware(), MetricsMiddleware(), corsMiddleware())

	router.GET("/health", Health(h.Checks))
	router.GET("/metrics", Metrics())
	router.POST("/webhooks/stripe", h.Webhooks.Webhook)

	authMiddleware := auth.AuthMiddleware(cfg.JWTSecret)
	limited := RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst)

	public := router.Group("/")
	public.Use(limited, auth.OptionalAuth(cfg.JWTSecret))
	{
		public.GET("/lessons", h.Bookings.ListLessons)
		public.GET("/lessons/:lessonID", h.Bookings.GetLesson)
		public.GET("/plans", h.Subscriptions.ListPlans)
	}

	member := router.Group("/")
	member.Use(limited, authMiddleware)
	{
		member.GET("/me", h.Users.GetMe)
		member.POST("/lessons/:lessonID/check-in", h.Bookings.CheckIn)
		member.POST("/bookings/:bookingID/cancel", h.Bookings.CancelBooking)
		member.GET("/bookings", h.Bookings.ListMyBookings)
		member.GET("/subscriptions", h.Subscriptions.ListMy)
	}

	admin := router.Group("/admin")
	admin.Use(authMiddleware, auth.RequireRole(viewer.RoleAdmin))
	{
		admin.POST("/drop-ins", h.Lessons.CreateDropIn)
		admin.POST("/class-options", h.Lessons.CreateClassOption)
		admin.PUT("/class-options/:id", h.Lessons.UpdateClassOption)
		admin.POST("/lessons", h.Lessons.CreateLesson)
		admin.DELETE("/lessons/:lessonID", h.Lessons.DeleteLesson)
		admin.GET("/lessons/:lessonID/bookings", h.Bookings.ListLessonBookings)

		admin.POST("/bookings", h.Bookings.CreateBooking)
		admin.PATCH("/bookings/:bookingID", h.Bookings.UpdateBookingStatus)

		admin.POST("/schedule/generate", h.Schedule.Generate)
		admin.GET("/schedule/tasks/:taskID", h.Schedule.GetTask)
		admin.POST("/schedules", h.Schedule.CreateTemplate)
		admin.GET("/schedules", h.Schedule.ListTemplates)
		admin.POST("/schedules/roll", h.Schedule.RollForward)
		admin.PATCH("/schedules/:scheduleID", h.Schedule.SetTemplateActive)
		admin.POST("/schedules/:scheduleID/generate", h.Schedule.GenerateFromTemplate)

		admin.POST("/plans", h.Subscriptions.CreatePlan)
		admin.POST("/plans/:planID/sync", h.Subscriptions.SyncPlan)
		admin.PATCH("/subscriptions/:id", h.Subscriptions.UpdateSubscription)
		admin.POST("/subscriptions/:id/resync", h.Webhooks.Resync)

		if h.Mail != nil {
			admin.POST("/test-email", TestEmail(h.Mail))
		}
	}

	return &Server{
		router: router,
		http: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
