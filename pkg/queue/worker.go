package queue

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/message"
)

const pollInterval = 2 * time.Second

// Executor runs one deferred job to completion. It owns its own error
// reporting toward the user; the returned error only decides the job's
// terminal status.
type Executor func(ctx context.Context, job *message.DeferredJob) error

// Pool runs N workers against a Queue. Workers share no mutable state;
// each claims, executes, and finishes jobs independently.
type Pool struct {
	queue   *Queue
	workers int
	exec    Executor
	group   *errgroup.Group
	cancel  context.CancelFunc
}

func NewPool(q *Queue, workers int, exec Executor) *Pool {
	if workers <= 0 {
		workers = 4
	}
	return &Pool{queue: q, workers: workers, exec: exec}
}

func (p *Pool) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.group, runCtx = errgroup.WithContext(runCtx)

	logger.InfoCF("queue", "Starting worker pool", map[string]interface{}{
		"workers": p.workers,
	})
	for i := 0; i < p.workers; i++ {
		id := i
		p.group.Go(func() error {
			p.runWorker(runCtx, id)
			return nil
		})
	}
}

func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	if p.group != nil {
		_ = p.group.Wait()
	}
	logger.InfoC("queue", "Worker pool stopped")
}

func (p *Pool) runWorker(ctx context.Context, id int) {
	for {
		job, err := p.queue.Claim(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.ErrorCF("queue", "Failed to claim job", map[string]interface{}{
				"worker":          id,
				logger.FieldError: err.Error(),
			})
		}

		if job == nil {
			select {
			case <-ctx.Done():
				return
			case <-p.queue.notify:
			case <-time.After(pollInterval):
			}
			continue
		}

		p.runJob(ctx, id, job)
	}
}

// runJob isolates one execution. A panicking or failing executor marks the
// job failed and the worker moves on to the next one.
func (p *Pool) runJob(ctx context.Context, workerID int, job *message.DeferredJob) {
	failed := false
	func() {
		defer func() {
			if r := recover(); r != nil {
				failed = true
				logger.ErrorCF("queue", "Recovered panic in job executor", map[string]interface{}{
					"worker":          workerID,
					logger.FieldJobID: job.ID,
					logger.FieldError: fmt.Sprintf("%v", r),
				})
			}
		}()
		if err := p.exec(ctx, job); err != nil {
			failed = true
			logger.ErrorCF("queue", "Job execution failed", map[string]interface{}{
				"worker":             workerID,
				logger.FieldJobID:    job.ID,
				logger.FieldProvider: job.Provider,
				logger.FieldError:    err.Error(),
			})
		}
	}()

	var err error
	if failed {
		err = p.queue.MarkFailed(job.ID)
	} else {
		err = p.queue.MarkDone(job.ID)
	}
	if err != nil {
		logger.ErrorCF("queue", "Failed to finish job", map[string]interface{}{
			logger.FieldJobID: job.ID,
			logger.FieldError: err.Error(),
		})
	}
}
