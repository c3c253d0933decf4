package crawler

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// TaskGroup runs detached work with a concurrency cap and lets the owner
// wait for all of it. Go never blocks the caller.
type TaskGroup struct {
	ctx     context.Context
	sem     *semaphore.Weighted
	wg      sync.WaitGroup
	started atomic.Int64
	skipped atomic.Int64
}

// NewTaskGroup builds a group whose tasks run with ctx, at most limit at a time.
func NewTaskGroup(ctx context.Context, limit int) *TaskGroup {
	if limit <= 0 {
		limit = 1
	}
	return &TaskGroup{
		ctx: ctx,
		sem: semaphore.NewWeighted(int64(limit)),
	}
}

// Go schedules fn. Tasks still waiting for a slot when the context ends are skipped.
func (g *TaskGroup) Go(fn func(ctx context.Context)) {
	g.started.Add(1)
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := g.sem.Acquire(g.ctx, 1); err != nil {
			g.skipped.Add(1)
			return
		}
		defer g.sem.Release(1)
		fn(g.ctx)
	}()
}

// Wait blocks until every scheduled task has returned or been skipped.
func (g *TaskGroup) Wait() {
	g.wg.Wait()
}

// Started reports how many tasks were scheduled.
func (g *TaskGroup) Started() int {
	return int(g.started.Load())
}

// Skipped reports how many tasks never ran because the context ended.
func (g *TaskGroup) Skipped() int {
	return int(g.skipped.Load())
}
