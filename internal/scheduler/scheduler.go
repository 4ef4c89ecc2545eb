// Package scheduler implements the Task Queue & Scheduler (component D): the
// durable, priority-ordered, retry-aware admission and lifecycle state
// machine described in spec §4.1. It is built the way the teacher's
// control_plane/scheduler.Scheduler drives its ThreadSafeQueue and
// coordination/leader.go drives its lock — but the partitions here are
// themselves durable KV sorted sets rather than an in-process heap, since
// spec §3 requires the queue to survive a process restart.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/itskum47/mailforge/internal/kv"
	"github.com/itskum47/mailforge/internal/lock"
	"github.com/itskum47/mailforge/internal/observability"
	"github.com/itskum47/mailforge/internal/task"
)

// Scheduler owns the ready/scheduled/processing/failed partitions and the
// status/job mirrors, all addressed through kv.Store (spec §6's persisted
// key layout).
type Scheduler struct {
	store  kv.Store
	locks  *lock.Manager
	log    *zap.Logger

	leaseTimeout time.Duration

	backoffInitial time.Duration
	backoffCap     time.Duration

	onDeadLetter func(*task.Task)
}

// New builds a Scheduler. leaseTimeout is the duration after which a
// processing entry is considered abandoned by the Stale-Lease Reaper.
// backoffInitial/backoffCap parameterize spec §4.1's retry backoff (default
// 1s/30s, configurable via config.Config.BackoffInitial/BackoffCap); a
// zero backoffInitial falls back to that 1s default so existing callers
// that don't care about backoff tuning (tests) don't need to specify it.
func New(store kv.Store, locks *lock.Manager, log *zap.Logger, leaseTimeout time.Duration, backoffInitial, backoffCap time.Duration) *Scheduler {
	if log == nil {
		log = observability.Nop()
	}
	if backoffInitial <= 0 {
		backoffInitial = time.Second
	}
	if backoffCap <= 0 {
		backoffCap = 30 * time.Second
	}
	return &Scheduler{store: store, locks: locks, log: log, leaseTimeout: leaseTimeout, backoffInitial: backoffInitial, backoffCap: backoffCap}
}

// OnDeadLetter registers a callback invoked (best-effort, synchronously)
// whenever a high-priority task exhausts its attempts budget — the Alert
// Monitor (component J) wires itself in here rather than the scheduler
// importing the alert package, to keep the dependency direction spec §6
// implies (alerting observes the scheduler, not the reverse).
func (s *Scheduler) OnDeadLetter(fn func(*task.Task)) {
	s.onDeadLetter = fn
}

// Enqueue admits a new task, placing it in `ready` if due now or `scheduled`
// if scheduled_for is in the future (spec §4.1 step 1-3).
func (s *Scheduler) Enqueue(ctx context.Context, kind task.Kind, payload []byte, opts task.EnqueueOptions) (string, error) {
	if !task.KnownKinds[kind] {
		return "", fmt.Errorf("%w: unknown kind %q", task.ErrInvalidArgument, kind)
	}
	// opts.MaxAttempts == 0 means "unspecified" (EnqueueOptions' zero
	// value) and is defaulted before validation, so spec §4.1's "fail with
	// InvalidArgument if max_attempts < 1" only ever rejects a genuinely
	// invalid explicit value, never the caller omitting the field.
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = task.DefaultMaxAttempts
	}
	if opts.MaxAttempts < 1 {
		return "", fmt.Errorf("%w: max_attempts must be >= 1", task.ErrInvalidArgument)
	}

	t := task.New(kind, payload, opts)
	envelope, err := injectEnvelope(t.Payload, t.CorrelationID, t.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("scheduler: enqueue: %w", err)
	}
	t.Payload = envelope

	now := time.Now()
	partition := keyReady
	score := priorityScore(t, now)
	if t.ScheduledFor.After(now) {
		t.Status = task.StatusScheduled
		partition = keyScheduled
		score = float64(t.ScheduledFor.UnixMilli())
	}

	rec, err := task.Encode(t)
	if err != nil {
		return "", fmt.Errorf("scheduler: enqueue: %w", err)
	}

	p := s.store.Pipeline()
	p.ZAdd(partition, rec, score)
	p.HSet(keyStatus, t.ID, mustEncodeStatus(t))
	p.Set(jobKey(t.ID), rec, 0)
	if err := p.Exec(ctx); err != nil {
		return "", fmt.Errorf("scheduler: enqueue: %w", err)
	}

	observability.TasksEnqueued.WithLabelValues(string(kind), string(t.Priority)).Inc()
	s.log.Debug("task enqueued", zap.String("id", t.ID), zap.String("kind", string(kind)), zap.String("partition", partition))
	return t.ID, nil
}

// Lease promotes any due `scheduled` entries into `ready`, then pops the
// single lowest-scored `ready` entry into `processing` and returns it. It
// returns (nil, nil) when nothing is ready (spec §4.1 step 4-7).
func (s *Scheduler) Lease(ctx context.Context) (*task.Task, error) {
	if err := s.promoteScheduled(ctx); err != nil {
		return nil, fmt.Errorf("scheduler: lease: %w", err)
	}

	popped, err := s.store.ZPopMin(ctx, keyReady, 1)
	if err != nil {
		return nil, fmt.Errorf("scheduler: lease: %w", err)
	}
	if len(popped) == 0 {
		return nil, nil
	}

	t, err := task.Decode(popped[0].Value)
	if err != nil {
		return nil, fmt.Errorf("scheduler: lease: %w", err)
	}

	now := time.Now()
	t.Status = task.StatusProcessing
	t.LastAttemptAt = &now
	t.Attempts++

	rec, err := task.Encode(t)
	if err != nil {
		return nil, fmt.Errorf("scheduler: lease: %w", err)
	}

	p := s.store.Pipeline()
	p.ZAdd(keyProcessing, rec, float64(now.UnixMilli()))
	p.HSet(keyStatus, t.ID, mustEncodeStatus(t))
	p.Set(jobKey(t.ID), rec, 0)
	if err := p.Exec(ctx); err != nil {
		return nil, fmt.Errorf("scheduler: lease: %w", err)
	}

	return t, nil
}

// promoteScheduled moves every `scheduled` entry whose scheduled_for has
// arrived into `ready`, recomputing its priority_score at promotion time.
func (s *Scheduler) promoteScheduled(ctx context.Context) error {
	now := time.Now()
	due, err := s.store.ZRangeByScore(ctx, keyScheduled, 0, float64(now.UnixMilli()), 0, 0)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	p := s.store.Pipeline()
	for _, m := range due {
		t, err := task.Decode(m.Value)
		if err != nil {
			s.log.Warn("dropping unparseable scheduled entry", zap.Error(err))
			p.ZRem(keyScheduled, m.Value)
			continue
		}
		t.Status = task.StatusPending
		rec, err := task.Encode(t)
		if err != nil {
			return err
		}
		p.ZRem(keyScheduled, m.Value)
		p.ZAdd(keyReady, rec, priorityScore(t, now))
		p.HSet(keyStatus, t.ID, mustEncodeStatus(t))
		p.Set(jobKey(t.ID), rec, 0)
	}
	return p.Exec(ctx)
}

// Complete marks t as completed, removes it from `processing`, and
// best-effort enqueues any declared dependent tasks (spec §4.1 completion
// hook, resolved per the Open Question: failures are logged and counted,
// never block the completing task).
func (s *Scheduler) Complete(ctx context.Context, t *task.Task) error {
	if err := s.removeFromPartition(ctx, keyProcessing, t.ID); err != nil {
		return fmt.Errorf("scheduler: complete: %w", err)
	}

	now := time.Now()
	t.Status = task.StatusCompleted
	t.CompletedAt = &now
	t.Progress = 100

	rec, err := task.Encode(t)
	if err != nil {
		return fmt.Errorf("scheduler: complete: %w", err)
	}
	p := s.store.Pipeline()
	p.HSet(keyStatus, t.ID, mustEncodeStatus(t))
	p.Set(jobKey(t.ID), rec, 0)
	if err := p.Exec(ctx); err != nil {
		return fmt.Errorf("scheduler: complete: %w", err)
	}

	observability.TasksCompleted.WithLabelValues(string(t.Kind), "completed").Inc()
	observability.TaskAttempts.Observe(float64(t.Attempts))

	s.runCompletionHook(ctx, t)
	return nil
}

func (s *Scheduler) runCompletionHook(ctx context.Context, t *task.Task) {
	deps, err := t.DependentTasks()
	if err != nil {
		s.log.Warn("completion hook: decoding dependent_tasks", zap.String("id", t.ID), zap.Error(err))
		return
	}
	for _, d := range deps {
		if _, err := s.Enqueue(ctx, d.Kind, d.Payload, d.Opts); err != nil {
			observability.DependentEnqueueFailures.Inc()
			s.log.Warn("completion hook: dependent enqueue failed",
				zap.String("parent", t.ID), zap.String("kind", string(d.Kind)), zap.Error(err))
		}
	}
}

// Fail records a failed attempt. If attempts remain and the error is
// retryable, t is rescheduled with exponential backoff; otherwise it moves
// to `failed` (spec §4.1 step: retry-vs-DLQ, and §9's error taxonomy).
func (s *Scheduler) Fail(ctx context.Context, t *task.Task, handlerErr error, retryable bool) error {
	if err := s.removeFromPartition(ctx, keyProcessing, t.ID); err != nil {
		return fmt.Errorf("scheduler: fail: %w", err)
	}

	now := time.Now()
	if handlerErr != nil {
		t.Error = handlerErr.Error()
	}

	if retryable && t.Attempts < t.MaxAttempts {
		delay := backoffDelay(t.Attempts, s.backoffInitial, s.backoffCap)
		t.Status = task.StatusScheduled
		t.ScheduledFor = now.Add(delay)

		rec, err := task.Encode(t)
		if err != nil {
			return fmt.Errorf("scheduler: fail: %w", err)
		}
		p := s.store.Pipeline()
		p.ZAdd(keyScheduled, rec, float64(t.ScheduledFor.UnixMilli()))
		p.HSet(keyStatus, t.ID, mustEncodeStatus(t))
		p.Set(jobKey(t.ID), rec, 0)
		if err := p.Exec(ctx); err != nil {
			return fmt.Errorf("scheduler: fail: %w", err)
		}
		s.log.Debug("task rescheduled after failure", zap.String("id", t.ID), zap.Int("attempts", t.Attempts), zap.Duration("delay", delay))
		return nil
	}

	t.Status = task.StatusFailed
	rec, err := task.Encode(t)
	if err != nil {
		return fmt.Errorf("scheduler: fail: %w", err)
	}
	p := s.store.Pipeline()
	p.ZAdd(keyFailed, rec, float64(now.UnixMilli()))
	p.HSet(keyStatus, t.ID, mustEncodeStatus(t))
	p.Set(jobKey(t.ID), rec, 0)
	if err := p.Exec(ctx); err != nil {
		return fmt.Errorf("scheduler: fail: %w", err)
	}

	observability.TasksCompleted.WithLabelValues(string(t.Kind), "dead_letter").Inc()
	observability.TaskAttempts.Observe(float64(t.Attempts))

	if t.Priority == task.PriorityHigh && s.onDeadLetter != nil {
		s.onDeadLetter(t)
	}
	return nil
}

// UpdateProgress clamps percent to [0,100] and records it against the task's
// status record and job mirror (spec §4.1's progress reporting operation).
func (s *Scheduler) UpdateProgress(ctx context.Context, id string, percent int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	raw, ok, err := s.store.Get(ctx, jobKey(id))
	if err != nil {
		return fmt.Errorf("scheduler: update progress: %w", err)
	}
	if !ok {
		return fmt.Errorf("scheduler: update progress: %w: task %q not found", task.ErrInvalidArgument, id)
	}
	t, err := task.Decode(raw)
	if err != nil {
		return fmt.Errorf("scheduler: update progress: %w", err)
	}
	t.Progress = percent

	rec, err := task.Encode(t)
	if err != nil {
		return fmt.Errorf("scheduler: update progress: %w", err)
	}
	p := s.store.Pipeline()
	p.Set(jobKey(id), rec, 0)
	p.HSet(keyStatus, id, mustEncodeStatus(t))
	return p.Exec(ctx)
}

// GetStatus returns the current StatusRecord for id.
func (s *Scheduler) GetStatus(ctx context.Context, id string) (task.StatusRecord, bool, error) {
	raw, ok, err := s.store.HGet(ctx, keyStatus, id)
	if err != nil || !ok {
		return task.StatusRecord{}, ok, err
	}
	return decodeStatus(raw)
}

// ListFailed returns failed tasks ordered by failure time, newest first when
// newestFirst is true (spec §4.1's dead-letter listing operation).
func (s *Scheduler) ListFailed(ctx context.Context, offset, limit int64, newestFirst bool) ([]*task.Task, error) {
	var members []kv.Member
	var err error
	if newestFirst {
		members, err = s.store.ZRevRange(ctx, keyFailed, offset, offset+limit-1)
	} else {
		members, err = s.store.ZRange(ctx, keyFailed, offset, offset+limit-1)
	}
	if err != nil {
		return nil, fmt.Errorf("scheduler: list failed: %w", err)
	}
	out := make([]*task.Task, 0, len(members))
	for _, m := range members {
		t, err := task.Decode(m.Value)
		if err != nil {
			s.log.Warn("skipping unparseable failed entry", zap.Error(err))
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// removeFromPartition finds and removes the entry for taskID in key. The
// partitions hold serialized task records as members, so locating the exact
// byte string to ZREM requires a linear scan-and-decode rather than a direct
// key lookup; this is acceptable at the scale of `processing` (bounded by
// worker concurrency) but would need an id->member index if `failed` or
// `scheduled` ever grew past a few thousand entries.
func (s *Scheduler) removeFromPartition(ctx context.Context, partition, taskID string) error {
	members, err := s.store.ZRange(ctx, partition, 0, -1)
	if err != nil {
		return err
	}
	for _, m := range members {
		t, err := task.Decode(m.Value)
		if err != nil {
			continue
		}
		if t.ID == taskID {
			return s.store.ZRem(ctx, partition, m.Value)
		}
	}
	return nil
}

// Snapshot reports the current depth of every partition, for health checks
// and metrics (spec §4.9's queue-depth signal).
type Snapshot struct {
	Ready      int64
	Scheduled  int64
	Processing int64
	Failed     int64
}

func (s *Scheduler) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	var err error
	if snap.Ready, err = s.store.ZCard(ctx, keyReady); err != nil {
		return snap, err
	}
	if snap.Scheduled, err = s.store.ZCard(ctx, keyScheduled); err != nil {
		return snap, err
	}
	if snap.Processing, err = s.store.ZCard(ctx, keyProcessing); err != nil {
		return snap, err
	}
	if snap.Failed, err = s.store.ZCard(ctx, keyFailed); err != nil {
		return snap, err
	}
	observability.QueueDepth.WithLabelValues("ready").Set(float64(snap.Ready))
	observability.QueueDepth.WithLabelValues("scheduled").Set(float64(snap.Scheduled))
	observability.QueueDepth.WithLabelValues("processing").Set(float64(snap.Processing))
	observability.QueueDepth.WithLabelValues("failed").Set(float64(snap.Failed))
	return snap, nil
}
