// Package opqueue serializes mutating remote calls through a single
// consumer goroutine. Every account mutation in the daemon goes through one
// Queue, which is what makes the no-concurrent-mutations guarantee hold
// regardless of how many callers there are.
package opqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"resave/internal/logging"
)

type task struct {
	label string
	opID  string
	fn    func(context.Context) error
	done  chan struct{}
	err   error
}

// Future resolves when a submitted operation has executed.
type Future struct {
	task *task
}

// Wait blocks until the operation has run and returns its error. A
// cancelled context abandons the wait, not the operation.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.task.done:
		return f.task.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done exposes the completion channel for select loops.
func (f *Future) Done() <-chan struct{} {
	return f.task.done
}

// Queue is a FIFO single-flight operation queue. Submissions from any
// goroutine execute one at a time, in order, on the Run goroutine.
type Queue struct {
	logger      *slog.Logger
	submissions chan *task
	executing   atomic.Bool
}

// New constructs a queue. The backlog bound only limits how many
// submissions can be parked before Submit blocks.
func New(logger *slog.Logger) *Queue {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Queue{
		logger:      logging.NewComponentLogger(logger, "opqueue"),
		submissions: make(chan *task, 128),
	}
}

// Submit enqueues an operation and returns a Future for its completion.
// It blocks only when the backlog is full.
func (q *Queue) Submit(ctx context.Context, label string, fn func(context.Context) error) (*Future, error) {
	t := &task{
		label: label,
		opID:  uuid.NewString(),
		fn:    fn,
		done:  make(chan struct{}),
	}
	select {
	case q.submissions <- t:
		return &Future{task: t}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Do submits an operation and waits for it to execute.
func (q *Queue) Do(ctx context.Context, label string, fn func(context.Context) error) error {
	future, err := q.Submit(ctx, label, fn)
	if err != nil {
		return err
	}
	return future.Wait(ctx)
}

// Busy reports whether an operation is executing or queued. Scheduled
// maintenance uses this to yield to transfer work.
func (q *Queue) Busy() bool {
	return q.executing.Load() || len(q.submissions) > 0
}

// Run consumes the queue until ctx is cancelled. Exactly one Run loop may
// be active per queue. On shutdown, parked submissions resolve with the
// context error rather than hanging their futures.
func (q *Queue) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			q.drain(err)
			return err
		}
		select {
		case <-ctx.Done():
			q.drain(ctx.Err())
			return ctx.Err()
		case t := <-q.submissions:
			q.executing.Store(true)
			started := time.Now()
			t.err = q.execute(ctx, t)
			q.executing.Store(false)

			attrs := []logging.Attr{
				logging.String("op", t.label),
				logging.String(logging.FieldOpID, t.opID),
				logging.Duration("elapsed", time.Since(started)),
			}
			if t.err != nil {
				attrs = append(attrs, logging.Error(t.err))
				q.logger.Warn("operation failed", logging.Args(attrs...)...)
			} else {
				q.logger.Debug("operation finished", logging.Args(attrs...)...)
			}
			close(t.done)
		}
	}
}

func (q *Queue) execute(ctx context.Context, t *task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("operation %s panicked: %v", t.label, r)
		}
	}()
	return t.fn(ctx)
}

func (q *Queue) drain(cause error) {
	for {
		select {
		case t := <-q.submissions:
			t.err = cause
			close(t.done)
		default:
			return
		}
	}
}
