package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"studiobook/internal/async"
	"studiobook/internal/billing"
	"studiobook/internal/booking"
	"studiobook/internal/config"
	"studiobook/internal/db"
	"studiobook/internal/email"
	"studiobook/internal/lesson"
	"studiobook/internal/logger"
	"studiobook/internal/reconcile"
	"studiobook/internal/schedule"
	"studiobook/internal/server"
	"studiobook/internal/subscription"
	"studiobook/internal/user"

	"github.com/redis/go-redis/v9"
)

func main() {
	logger.Init()
	logger.Info("Starting studiobook")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	loc := cfg.Location()

	logger.Info("Connecting to database...")
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := db.RunMigrations(database, "migrations"); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Migrations completed")

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	sender, err := email.NewSender(
		cfg.PostmarkServerToken,
		cfg.PostmarkAccountToken,
		cfg.SMTPHost,
		cfg.SMTPPort,
		cfg.SMTPUser,
		cfg.SMTPPass,
		cfg.EmailFrom,
		cfg.EmailFromName,
	)
	if err != nil {
		logger.Fatalf("Failed to configure email: %v", err)
	}
	emailService := email.New(rdb, sender)
	defer emailService.Close()

	stripeProvider := billing.NewStripe(cfg.StripeSecretKey)
	if !cfg.StripeEnabled() {
		logger.Warn("STRIPE_SECRET_KEY not set, billing sync is disabled")
	}

	users := user.NewRepository(database)

	lessonRepo := lesson.NewRepository(database)
	lessons := lesson.NewService(lessonRepo, lesson.NewOptionCache(256, 5*time.Minute), loc)

	subRepo := subscription.NewRepository(database)
	plans := subscription.NewPlanService(subRepo, stripeProvider)
	subscriptions := subscription.NewService(subRepo, stripeProvider)

	tasks := &async.Group{}
	bookings := booking.NewService(
		booking.NewRepository(database),
		lessons,
		users,
		subscriptions,
		booking.NewEmailNotifier(emailService, loc),
		tasks,
	)

	generator := schedule.NewGenerator(lessonRepo, lessons, loc)
	queue := schedule.NewQueue(rdb)
	templates := schedule.NewRepository(database)
	roller := schedule.NewRoller(templates, queue, loc, cfg.ScheduleHorizonWeeks)

	router := reconcile.NewRouter(users, plans, subscriptions, bookings, lessons, stripeProvider)

	srv := server.New(cfg, server.Handlers{
		Users:         user.NewHandler(users),
		Lessons:       lesson.NewHandler(lessons),
		Bookings:      booking.NewHandler(bookings, loc),
		Schedule:      schedule.NewHandler(generator, queue, templates, roller),
		Subscriptions: subscription.NewHandler(plans, subscriptions),
		Webhooks:      reconcile.NewHandler(router, cfg.StripeWebhookSecret),
		Mail:          emailService,
		Checks: map[string]server.Check{
			"postgres": database.PingContext,
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	workersDone := make(chan struct{}, 2)
	go func() {
		emailService.Start(ctx)
		workersDone <- struct{}{}
	}()
	go func() {
		schedule.NewWorker(queue, generator).Start(ctx)
		workersDone <- struct{}{}
	}()

	scheduler, err := roller.Start(cfg.ScheduleCron)
	if err != nil {
		logger.Fatalf("Failed to start schedule cron: %v", err)
	}

	serverErrChan := make(chan error, 1)
	go func() {
		logger.Infof("Server starting on port %s", cfg.Port)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Infof("Received signal: %v", sig)
	case err := <-serverErrChan:
		logger.Errorf("Server error: %v", err)
	}

	logger.Info("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Error during server shutdown: %v", err)
	}

	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
	}

	cancel()
	for i := 0; i < 2; i++ {
		select {
		case <-workersDone:
		case <-shutdownCtx.Done():
		}
	}

	if err := tasks.Wait(shutdownCtx); err != nil {
		logger.Warn("Detached tasks still running at shutdown", "error", err)
	}

	logger.Info("Server stopped")
}
