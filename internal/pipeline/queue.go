package pipeline

import (
	"context"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"golang.org/x/sync/errgroup"
)

const taskTimeout = 60 * time.Second

type task struct {
	name string
	ctx  context.Context
	fn   func(context.Context)
}

// DispatchQueue runs fire-and-forget follow-up work (notification fan-out,
// embedding upserts) on a bounded worker pool. The happens-before guarantee
// between an incident write and its notification is enforced by sequencing:
// tasks are only enqueued after the insert that produced them has returned.
type DispatchQueue struct {
	tasks  chan task
	g      *errgroup.Group
	logger log.Logger

	// Hooks wired to metrics by main.
	OnDepth   func(depth int)
	OnDropped func()
}

// NewDispatchQueue starts workers goroutines draining a queue of the given
// depth.
func NewDispatchQueue(workers, depth int, logger log.Logger) *DispatchQueue {
	if logger == nil {
		logger = log.Nop()
	}
	q := &DispatchQueue{
		tasks:  make(chan task, depth),
		g:      &errgroup.Group{},
		logger: logger,
	}
	for i := 0; i < workers; i++ {
		q.g.Go(q.run)
	}
	return q
}

// Enqueue submits a task. The task runs detached from the caller's
// cancellation (the triggering request may return first) but inherits its
// values for log/trace correlation. Returns false if the queue is full, in
// which case the task is dropped and logged.
func (q *DispatchQueue) Enqueue(ctx context.Context, name string, fn func(context.Context)) bool {
	t := task{name: name, ctx: context.WithoutCancel(ctx), fn: fn}
	select {
	case q.tasks <- t:
		if q.OnDepth != nil {
			q.OnDepth(len(q.tasks))
		}
		return true
	default:
		q.logger.Warn(ctx, "dispatch queue full, task dropped", "task", name)
		if q.OnDropped != nil {
			q.OnDropped()
		}
		return false
	}
}

func (q *DispatchQueue) run() error {
	for t := range q.tasks {
		q.runTask(t)
	}
	return nil
}

func (q *DispatchQueue) runTask(t task) {
	ctx, cancel := context.WithTimeout(t.ctx, taskTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			q.logger.Warn(ctx, "dispatch task panicked", "task", t.name, "panic", r)
		}
	}()

	t.fn(ctx)
}

// Close stops accepting tasks and waits for in-flight and queued tasks to
// finish, bounded by the context.
func (q *DispatchQueue) Close(ctx context.Context) error {
	close(q.tasks)

	done := make(chan struct{})
	go func() {
		_ = q.g.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
