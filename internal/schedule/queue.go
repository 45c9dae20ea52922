package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"studiobook/internal/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	tasksKey        = "schedule:tasks"
	resultKeyPrefix = "schedule:results:"
	resultTTL       = 24 * time.Hour
	popTimeout      = 2 * time.Second
)

const (
	TaskQueued  = "queued"
	TaskRunning = "running"
	TaskDone    = "done"
	TaskFailed  = "failed"
)

type Task struct {
	ID         string    `json:"id"`
	Request    Request   `json:"request"`
	Source     string    `json:"source"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

type TaskStatus struct {
	ID         string     `json:"id"`
	State      string     `json:"state"`
	Source     string     `json:"source"`
	Result     *Result    `json:"result,omitempty"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Queue hands generation runs to a background worker through Redis.
type Queue struct {
	redis *redis.Client
}

func NewQueue(rdb *redis.Client) *Queue {
	return &Queue{redis: rdb}
}

// Enqueue stores req for the worker and returns the task id.
func (q *Queue) Enqueue(ctx context.Context, req Request, source string) (string, error) {
	task := Task{
		ID:         uuid.NewString(),
		Request:    req,
		Source:     source,
		EnqueuedAt: time.Now().UTC(),
	}

	if err := q.setStatus(ctx, TaskStatus{ID: task.ID, State: TaskQueued, Source: source, EnqueuedAt: task.EnqueuedAt}); err != nil {
		return "", err
	}

	data, err := json.Marshal(task)
	if err != nil {
		return "", err
	}
	if err := q.redis.LPush(ctx, tasksKey, data).Err(); err != nil {
		return "", fmt.Errorf("failed to queue schedule task: %w", err)
	}

	logger.Info("schedule task queued", "task_id", task.ID, "source", source)
	return task.ID, nil
}

func (q *Queue) Status(ctx context.Context, taskID string) (*TaskStatus, error) {
	data, err := q.redis.Get(ctx, resultKeyPrefix+taskID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}

	var st TaskStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("bad task status for %s: %w", taskID, err)
	}
	return &st, nil
}

func (q *Queue) Length(ctx context.Context) int64 {
	n, _ := q.redis.LLen(ctx, tasksKey).Result()
	return n
}

func (q *Queue) setStatus(ctx context.Context, st TaskStatus) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return q.redis.Set(ctx, resultKeyPrefix+st.ID, data, resultTTL).Err()
}

// Worker runs queued tasks one at a time. Each task gets a single attempt.
type Worker struct {
	queue     *Queue
	generator *Generator
}

func NewWorker(queue *Queue, generator *Generator) *Worker {
	return &Worker{queue: queue, generator: generator}
}

func (w *Worker) Start(ctx context.Context) {
	logger.Info("schedule worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("schedule worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

// processNext reports whether a task was taken off the queue.
func (w *Worker) processNext(ctx context.Context) bool {
	result, err := w.queue.redis.BRPop(ctx, popTimeout, tasksKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			logger.Warn("schedule queue pop failed", "error", err)
			time.Sleep(popTimeout)
		}
		return false
	}

	var task Task
	if err := json.Unmarshal([]byte(result[1]), &task); err != nil {
		logger.Error("bad schedule task data", "error", err)
		return true
	}

	w.run(ctx, task)
	return true
}

func (w *Worker) run(ctx context.Context, task Task) {
	st := TaskStatus{ID: task.ID, State: TaskRunning, Source: task.Source, EnqueuedAt: task.EnqueuedAt}
	if err := w.queue.setStatus(ctx, st); err != nil {
		logger.Warn("failed to mark schedule task running", "task_id", task.ID, "error", err)
	}

	res := w.generate(ctx, task)

	now := time.Now().UTC()
	st.State = TaskDone
	if !res.Success {
		st.State = TaskFailed
	}
	st.Result = &res
	st.FinishedAt = &now

	// The run may have been cut short by shutdown; the status still lands.
	if err := w.queue.setStatus(context.WithoutCancel(ctx), st); err != nil {
		logger.Error("failed to store schedule task result", "task_id", task.ID, "error", err)
	}
	logger.Info("schedule task finished",
		"task_id", task.ID,
		"success", res.Success,
		"created", res.Created,
		"skipped", res.Skipped,
		"conflicts", res.Conflicts,
		"deleted", res.Deleted,
		"preserved", res.Preserved,
	)
}

func (w *Worker) generate(ctx context.Context, task Task) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in schedule task", "task_id", task.ID, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			res = failure(fmt.Sprintf("internal error: %v", r), res)
		}
	}()
	return w.generator.Generate(ctx, task.Request)
}
