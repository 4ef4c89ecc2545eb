package scheduler

import (
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/itskum47/mailforge/internal/task"
)

// priorityScore implements spec §4.1's priority_score formula: a ready-queue
// member with a lower score pops first, so higher priority and earlier
// scheduling both push the score down.
func priorityScore(t *task.Task, now time.Time) float64 {
	return float64(t.ScheduledFor.UnixMilli()-now.UnixMilli()) - t.Priority.Weight()
}

// backoffDelay computes the retry delay after `attempt` attempts have been
// made (so attempt=1 is the first retry): exponential, capped at maxDelay, per spec
// §4.1's default base=1s/cap=30s (wired from config.Config.BackoffInitial/
// BackoffCap rather than hardcoded, since §4.1 states the cap is
// configurable). Jitter is added on top rather than folded into the
// library's RandomizationFactor: that factor scales the nominal delay in
// both directions, which can push scheduled_for below the lower bound
// min(B·2^(n-1), C) spec §8's backoff-bound property requires. Adding a
// small additive-only jitter on top of the nominal delay preserves that
// bound.
func backoffDelay(attempt int, initial, maxDelay time.Duration) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.Multiplier = 2
	b.MaxInterval = maxDelay
	b.RandomizationFactor = 0
	b.Reset()

	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	if d == backoff.Stop {
		d = maxDelay
	}

	jitter := time.Duration(rand.Int63n(int64(d/5 + 1)))
	return d + jitter
}
