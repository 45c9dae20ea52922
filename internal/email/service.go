package email

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"studiobook/internal/logger"
	"studiobook/internal/metrics"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	queueKey   = "emails"
	failedKey  = "emails:failed"
	maxTries   = 3
	popTimeout = 2 * time.Second
)

type Job struct {
	ID      string    `json:"id"`
	Message Message   `json:"message"`
	Tries   int       `json:"tries"`
	Created time.Time `json:"created"`
}

// Service queues emails in Redis and delivers them from a worker loop.
type Service struct {
	redis      *redis.Client
	sender     Sender
	retryDelay time.Duration
}

func New(rdb *redis.Client, sender Sender) *Service {
	return &Service{
		redis:      rdb,
		sender:     sender,
		retryDelay: 5 * time.Second,
	}
}

func (s *Service) Send(ctx context.Context, msg Message) error {
	job := Job{
		ID:      uuid.NewString(),
		Message: msg,
		Created: time.Now(),
	}

	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	if err := s.redis.LPush(ctx, queueKey, string(data)).Err(); err != nil {
		logger.Error("failed to queue email", "to", msg.To, "error", err)
		metrics.RecordEmail(msg.Tag, "queue_failed")
		return err
	}

	metrics.RecordEmail(msg.Tag, "queued")
	logger.Info("email queued", "job_id", job.ID, "subject", msg.Subject, "to", msg.To)
	return nil
}

func (s *Service) Start(ctx context.Context) {
	logger.Info("email worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("email worker stopped")
			return
		default:
			s.processNext(ctx)
			metrics.EmailQueueLength.Set(float64(s.QueueLength(ctx)))
		}
	}
}

func (s *Service) processNext(ctx context.Context) {
	result, err := s.redis.BRPop(ctx, popTimeout, queueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			logger.Warn("email queue pop failed", "error", err)
			time.Sleep(popTimeout)
		}
		return
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		logger.Error("bad email job data", "error", err)
		return
	}

	job.Tries++
	err = s.sender.Deliver(ctx, job.Message)
	if err == nil {
		metrics.RecordEmail(job.Message.Tag, "sent")
		logger.Info("email sent", "job_id", job.ID, "to", job.Message.To, "attempt", job.Tries)
		return
	}

	logger.Error("failed to send email", "job_id", job.ID, "to", job.Message.To, "attempt", job.Tries, "error", err)
	if job.Tries >= maxTries {
		metrics.RecordEmail(job.Message.Tag, "failed")
		s.saveFailed(ctx, job, err)
		return
	}

	if s.retryDelay > 0 {
		time.Sleep(s.retryDelay)
	}
	data, _ := json.Marshal(job)
	if err := s.redis.LPush(context.WithoutCancel(ctx), queueKey, string(data)).Err(); err != nil {
		logger.Error("failed to requeue email", "job_id", job.ID, "error", err)
	}
}

func (s *Service) saveFailed(ctx context.Context, job Job, cause error) {
	failed := map[string]any{
		"job":   job,
		"error": cause.Error(),
		"time":  time.Now(),
	}
	data, _ := json.Marshal(failed)
	if err := s.redis.LPush(context.WithoutCancel(ctx), failedKey, string(data)).Err(); err != nil {
		logger.Error("failed to store failed email", "job_id", job.ID, "error", err)
		return
	}
	logger.Warn("email moved to failed queue", "job_id", job.ID, "to", job.Message.To)
}

func (s *Service) QueueLength(ctx context.Context) int64 {
	length, _ := s.redis.LLen(ctx, queueKey).Result()
	return length
}

func (s *Service) Close() error {
	return s.redis.Close()
}

// SendBookingConfirmation queues the confirmation for a booking. details
// is preformatted by the caller.
func (s *Service) SendBookingConfirmation(ctx context.Context, to, name, className, details string, when time.Time) error {
	body := fmt.Sprintf(`Hi %s,

Your place is confirmed.

%s
Starts: %s

See you in the studio!
`, name, details, when.Format("Mon 2 Jan 2006, 15:04 MST"))

	return s.Send(ctx, Message{
		To:      to,
		Name:    name,
		Subject: "Booking confirmed: " + className,
		Body:    body,
		Tag:     "booking_confirmation",
	})
}
