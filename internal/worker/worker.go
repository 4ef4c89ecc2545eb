// Package worker implements the Worker pool (component E): a bounded
// producer/consumer loop over the Scheduler's lease, built the way the
// teacher's control_plane/scheduler.Scheduler.worker/poller pair drives
// dispatch — a single lease loop feeding a semaphore-bounded pool of
// goroutines, directly realizing spec §9's "channel between a producer
// (scheduler lease loop) and N consumer workers; bound by a semaphore"
// re-architecture hint (golang.org/x/sync/semaphore, per SPEC_FULL §8).
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/itskum47/mailforge/internal/handlers"
	"github.com/itskum47/mailforge/internal/observability"
	"github.com/itskum47/mailforge/internal/scheduler"
	"github.com/itskum47/mailforge/internal/task"
)

// ErrWorkerStopped is the failure message the worker attaches to its
// in-flight task on graceful shutdown (spec §4.3: "the worker marks its
// current task as failed with message 'worker stopped'").
var ErrWorkerStopped = errors.New("worker stopped")

// Pool runs a cooperative lease loop against sched, dispatching each leased
// task to the registered handler under a bounded semaphore.
type Pool struct {
	sched        *scheduler.Scheduler
	registry     *handlers.Registry
	sem          *semaphore.Weighted
	capacity     int64
	inUse        atomic.Int64
	pollInterval time.Duration
	log          *zap.Logger
}

// New builds a Pool with the given concurrency (semaphore weight) and the
// interval the lease loop sleeps for when the queue is empty.
func New(sched *scheduler.Scheduler, registry *handlers.Registry, concurrency int64, pollInterval time.Duration, log *zap.Logger) *Pool {
	if log == nil {
		log = observability.Nop()
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Pool{
		sched:        sched,
		registry:     registry,
		sem:          semaphore.NewWeighted(concurrency),
		capacity:     concurrency,
		pollInterval: pollInterval,
		log:          log,
	}
}

// Run blocks in the lease loop until ctx is cancelled, then waits for
// in-flight dispatches to observe cancellation and settle before returning.
func (p *Pool) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		t, err := p.sched.Lease(ctx)
		if err != nil {
			p.log.Warn("lease failed", zap.Error(err))
			if !sleep(ctx, p.pollInterval) {
				return ctx.Err()
			}
			continue
		}
		if t == nil {
			if !sleep(ctx, p.pollInterval) {
				return ctx.Err()
			}
			continue
		}

		if err := p.sem.Acquire(ctx, 1); err != nil {
			// Context cancelled while waiting for a slot: the task was
			// already leased but never dispatched, so fail it outright.
			p.stopInFlight(t)
			return ctx.Err()
		}

		inUse := p.inUse.Add(1)
		observability.WorkerSaturation.Set(float64(inUse) / float64(p.capacity))

		wg.Add(1)
		go func(t *task.Task) {
			defer wg.Done()
			defer func() {
				p.sem.Release(1)
				observability.WorkerSaturation.Set(float64(p.inUse.Add(-1)) / float64(p.capacity))
			}()
			p.dispatch(ctx, t)
		}(t)
	}
}

// dispatch executes the registered handler under a per-task timeout and
// reports the outcome to the scheduler (spec §4.3 steps 3-6).
func (p *Pool) dispatch(ctx context.Context, t *task.Task) {
	h, ok := p.registry.Resolve(t.Kind)
	if !ok {
		p.failTask(t, task.ErrUnsupportedKind, false)
		return
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	progress := func(percent int) {
		if err := p.sched.UpdateProgress(context.Background(), t.ID, percent); err != nil {
			p.log.Warn("progress update failed", zap.String("id", t.ID), zap.Error(err))
		}
	}

	start := time.Now()
	err := h.Handle(taskCtx, t, progress)
	observability.TaskLatency.WithLabelValues(string(t.Kind)).Observe(time.Since(start).Seconds())

	if err != nil {
		if ctx.Err() != nil {
			p.stopInFlight(t)
			return
		}
		p.failTask(t, err, task.KindOf(err).Retryable())
		return
	}

	if cerr := p.sched.Complete(context.Background(), t); cerr != nil {
		p.log.Error("complete failed", zap.String("id", t.ID), zap.Error(cerr))
	}
}

func (p *Pool) failTask(t *task.Task, cause error, retryable bool) {
	if err := p.sched.Fail(context.Background(), t, cause, retryable); err != nil {
		p.log.Error("fail failed", zap.String("id", t.ID), zap.Error(err))
	}
}

// stopInFlight implements spec §4.3's graceful-shutdown contract: the
// in-flight task is marked failed with "worker stopped", and ordinary
// backoff/attempts logic decides whether it gets rescheduled.
func (p *Pool) stopInFlight(t *task.Task) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.sched.Fail(ctx, t, ErrWorkerStopped, true); err != nil {
		p.log.Error("failed to mark in-flight task stopped", zap.String("id", t.ID), zap.Error(err))
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
