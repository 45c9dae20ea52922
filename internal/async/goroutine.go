// Package async runs best-effort side effects off the request path.
package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"studiobook/internal/logger"
	"studiobook/internal/metrics"
)

// SafeGo executes fn in a goroutine with panic recovery, a timeout and error
// logging. The goroutine keeps parentCtx's values but not its cancellation,
// so it outlives the request that spawned it.
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go run(parentCtx, timeout, taskName, fn)
}

func run(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parentCtx), timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			metrics.RecordDetachedTaskFailure(taskName)
			logger.Error("panic in detached task",
				"task", taskName,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()

	if err := fn(ctx); err != nil {
		metrics.RecordDetachedTaskFailure(taskName)
		logger.Warn("detached task failed", "task", taskName, "error", err)
	}
}

// Group tracks detached tasks so shutdown can wait for them to drain.
type Group struct {
	wg sync.WaitGroup
}

func (g *Group) Go(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		run(parentCtx, timeout, taskName, fn)
	}()
}

// Wait blocks until every task started with Go has returned or ctx is done.
func (g *Group) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for detached tasks: %w", ctx.Err())
	}
}
