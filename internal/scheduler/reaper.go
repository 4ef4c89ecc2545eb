package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/itskum47/mailforge/internal/observability"
	"github.com/itskum47/mailforge/internal/task"
)

// Reaper periodically reclaims `processing` entries whose lease has expired
// without a Complete/Fail call — a crashed or killed worker, typically.
// Adapted from the teacher's coordination/janitor.go, which scans
// fluxforge:lock:* for fenced/stale locks on a tick and force-releases them;
// here the scan target is the `processing` partition and "release" means
// "return to scheduled with attempts already incremented by the lease that
// abandoned it" (spec §9 Open Question: lease supervision, resolved).
type Reaper struct {
	sched    *Scheduler
	interval time.Duration
	log      *zap.Logger
}

// NewReaper builds a Reaper that sweeps every interval.
func NewReaper(sched *Scheduler, interval time.Duration, log *zap.Logger) *Reaper {
	if log == nil {
		log = observability.Nop()
	}
	return &Reaper{sched: sched, interval: interval, log: log}
}

// Run blocks, sweeping on a ticker until ctx is cancelled. A single global
// lock guards each sweep so that multiple scheduler processes never
// double-reap the same stale lease.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reaper) sweep(ctx context.Context) {
	held, err := r.sched.locks.WithLock(ctx, "scheduler:reaper", 30*time.Second, func(ctx context.Context) error {
		return r.reapOnce(ctx)
	})
	if err != nil {
		r.log.Warn("reaper sweep failed", zap.Error(err))
		return
	}
	if !held {
		r.log.Debug("reaper sweep skipped, lock held elsewhere")
	}
}

func (r *Reaper) reapOnce(ctx context.Context) error {
	cutoff := time.Now().Add(-r.sched.leaseTimeout)
	stale, err := r.sched.store.ZRangeByScore(ctx, keyProcessing, 0, float64(cutoff.UnixMilli()), 0, 0)
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	now := time.Now()
	for _, m := range stale {
		t, err := task.Decode(m.Value)
		if err != nil {
			r.log.Warn("reaper: dropping unparseable processing entry", zap.Error(err))
			_ = r.sched.store.ZRem(ctx, keyProcessing, m.Value)
			continue
		}

		if t.Attempts >= t.MaxAttempts {
			t.Status = task.StatusFailed
			t.Error = "lease expired: worker did not report completion"
			rec, err := task.Encode(t)
			if err != nil {
				return err
			}
			p := r.sched.store.Pipeline()
			p.ZRem(keyProcessing, m.Value)
			p.ZAdd(keyFailed, rec, float64(now.UnixMilli()))
			p.HSet(keyStatus, t.ID, mustEncodeStatus(t))
			p.Set(jobKey(t.ID), rec, 0)
			if err := p.Exec(ctx); err != nil {
				return err
			}
			if t.Priority == task.PriorityHigh && r.sched.onDeadLetter != nil {
				r.sched.onDeadLetter(t)
			}
			observability.LeaseReaped.Inc()
			continue
		}

		delay := backoffDelay(t.Attempts, r.sched.backoffInitial, r.sched.backoffCap)
		t.Status = task.StatusScheduled
		t.ScheduledFor = now.Add(delay)
		t.Error = "lease expired: worker did not report completion"
		rec, err := task.Encode(t)
		if err != nil {
			return err
		}
		p := r.sched.store.Pipeline()
		p.ZRem(keyProcessing, m.Value)
		p.ZAdd(keyScheduled, rec, float64(t.ScheduledFor.UnixMilli()))
		p.HSet(keyStatus, t.ID, mustEncodeStatus(t))
		p.Set(jobKey(t.ID), rec, 0)
		if err := p.Exec(ctx); err != nil {
			return err
		}
		observability.LeaseReaped.Inc()
		r.log.Info("reaped stale lease", zap.String("id", t.ID), zap.Int("attempts", t.Attempts))
	}
	return nil
}
