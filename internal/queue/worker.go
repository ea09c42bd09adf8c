// Package queue feeds content refresh jobs to a single worker goroutine.
// Jobs arrive from an inbox directory, a cron sweep or a Redis list.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ak125/contentgate/internal/content"
)

// ErrStopped is returned by Enqueue once the worker has stopped.
var ErrStopped = errors.New("queue: worker stopped")

// #region job

// Job is one (item, role) refresh request.
type Job struct {
	ID     string       `json:"id"`
	ItemID string       `json:"item_id"`
	Role   content.Role `json:"role"`
}

func (j Job) validate() error {
	if j.ItemID == "" {
		return errors.New("job without item_id")
	}
	if !j.Role.Valid() {
		return fmt.Errorf("job %s: unknown role %q", j.ItemID, j.Role)
	}
	return nil
}

// Handler processes one job. A returned error is logged; it never stops the worker.
type Handler func(ctx context.Context, job Job) error

// EnqueueFunc hands a job to the worker.
type EnqueueFunc func(ctx context.Context, job Job) error

// Source produces jobs until ctx is done.
type Source interface {
	Run(ctx context.Context, enqueue EnqueueFunc) error
}

// #endregion job

// #region worker

// Worker runs jobs strictly one at a time, in arrival order.
type Worker struct {
	jobs    chan Job
	done    chan struct{}
	handler Handler
	log     *zap.Logger

	processed atomic.Int64
	failed    atomic.Int64
}

func NewWorker(handler Handler, buffer int, log *zap.Logger) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	if buffer < 0 {
		buffer = 0
	}
	return &Worker{
		jobs:    make(chan Job, buffer),
		done:    make(chan struct{}),
		handler: handler,
		log:     log,
	}
}

// Enqueue blocks until the job is accepted, ctx is done or the worker stops.
// A job without an id gets one.
func (w *Worker) Enqueue(ctx context.Context, job Job) error {
	if err := job.validate(); err != nil {
		return err
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	select {
	case w.jobs <- job:
		return nil
	case <-w.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run consumes jobs until ctx is done. Jobs still buffered are dropped.
func (w *Worker) Run(ctx context.Context) error {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return nil
		case job := <-w.jobs:
			w.handle(ctx, job)
		}
	}
}

func (w *Worker) handle(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			w.failed.Add(1)
			w.log.Error("job panicked", zap.String("job_id", job.ID), zap.Any("panic", r))
		}
		w.processed.Add(1)
	}()
	if err := w.handler(ctx, job); err != nil {
		w.failed.Add(1)
		w.log.Warn("job failed", zap.String("job_id", job.ID), zap.String("item_id", job.ItemID),
			zap.String("role", string(job.Role)), zap.Error(err))
	}
}

// Stats returns processed and failed job counts.
func (w *Worker) Stats() (processed, failed int64) {
	return w.processed.Load(), w.failed.Load()
}

// #endregion worker
