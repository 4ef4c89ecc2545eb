// Package optimizer implements the Index Optimizer / Health component (I):
// three lock-gated maintenance passes over the inverted index, plus cached
// health analysis (spec §4.8).
package optimizer

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/itskum47/mailforge/internal/index"
	"github.com/itskum47/mailforge/internal/kv"
	"github.com/itskum47/mailforge/internal/lock"
	"github.com/itskum47/mailforge/internal/observability"
	"github.com/itskum47/mailforge/internal/query"
)

const (
	lockName       = "search:optimization:lock"
	lockTTL        = time.Hour
	batchSize      = 50
	batchPause     = 100 * time.Millisecond
	maxMetaLen     = 1000
	healthCacheTTL = time.Hour
)

// Optimizer runs maintenance passes and health analysis over the KV
// Substrate's inverted index, all gated by a single global lock.
type Optimizer struct {
	store    kv.Store
	locks    *lock.Manager
	trigrams *query.TrigramIndex
	log      *zap.Logger

	healthMu    sync.Mutex
	healthCache *Report
}

func New(store kv.Store, locks *lock.Manager, trigrams *query.TrigramIndex, log *zap.Logger) *Optimizer {
	if log == nil {
		log = observability.Nop()
	}
	return &Optimizer{store: store, locks: locks, trigrams: trigrams, log: log}
}

// RunMaintenance acquires search:optimization:lock and, if held, runs all
// three passes in sequence. Lock contention is not an error — it just means
// another optimizer instance is already running this pass (spec §7).
func (o *Optimizer) RunMaintenance(ctx context.Context) error {
	held, err := o.locks.WithLock(ctx, lockName, lockTTL, func(ctx context.Context) error {
		if err := o.timedPass(ctx, "cleanup_empty_postings", o.cleanupEmptyPostings); err != nil {
			return err
		}
		if err := o.timedPass(ctx, "recompute_term_frequencies", o.recomputeTermFrequencies); err != nil {
			return err
		}
		return o.timedPass(ctx, "optimize_metadata", o.optimizeMetadata)
	})
	if err != nil {
		return err
	}
	if !held {
		o.log.Debug("optimizer pass skipped, lock held elsewhere")
	}
	return nil
}

func (o *Optimizer) timedPass(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	observability.OptimizerPassDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	return err
}

// cleanupEmptyPostings scans posting:* in batches, deleting any with zero
// members (spec §4.8 pass 1).
func (o *Optimizer) cleanupEmptyPostings(ctx context.Context) error {
	keys, err := o.store.Scan(ctx, "posting:*")
	if err != nil {
		return fmt.Errorf("optimizer: scanning postings: %w", err)
	}
	return inBatches(ctx, keys, func(ctx context.Context, batch []string) error {
		for _, key := range batch {
			card, err := o.store.ZCard(ctx, key)
			if err != nil {
				return err
			}
			if card == 0 {
				if err := o.store.Del(ctx, key); err != nil {
					return err
				}
				if o.trigrams != nil {
					o.trigrams.RemoveTerm(strings.TrimPrefix(key, "posting:"))
				}
			} else if o.trigrams != nil {
				o.trigrams.AddTerm(strings.TrimPrefix(key, "posting:"))
			}
		}
		return nil
	})
}

// recomputeTermFrequencies rewrites each posting's scores using a fresh
// IDF recalibration: idf = log(n+1), new_score = (score/n) * idf (spec
// §4.8 pass 2).
func (o *Optimizer) recomputeTermFrequencies(ctx context.Context) error {
	keys, err := o.store.Scan(ctx, "posting:*")
	if err != nil {
		return fmt.Errorf("optimizer: scanning postings: %w", err)
	}
	return inBatches(ctx, keys, func(ctx context.Context, batch []string) error {
		for _, key := range batch {
			members, err := o.store.ZRange(ctx, key, 0, -1)
			if err != nil {
				return err
			}
			n := len(members)
			if n == 0 {
				continue
			}
			idf := math.Log(float64(n) + 1)
			p := o.store.Pipeline()
			for _, m := range members {
				p.ZAdd(key, m.Value, (m.Score/float64(n))*idf)
			}
			if err := p.Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

// optimizeMetadata strips nulls and truncates string values over 1000
// chars, in a pipelined delete-then-re-set (spec §4.8 pass 3).
func (o *Optimizer) optimizeMetadata(ctx context.Context) error {
	keys, err := o.store.Scan(ctx, "meta:*")
	if err != nil {
		return fmt.Errorf("optimizer: scanning meta: %w", err)
	}
	return inBatches(ctx, keys, func(ctx context.Context, batch []string) error {
		for _, key := range batch {
			docType := strings.TrimPrefix(key, "meta:")
			fields, err := o.store.HGetAll(ctx, key)
			if err != nil {
				return err
			}
			for id, raw := range fields {
				meta, err := decodeAndTrim(raw)
				if err != nil {
					o.log.Warn("optimizer: dropping malformed meta entry", zap.String("key", key), zap.String("id", id), zap.Error(err))
					continue
				}
				rewritten, err := encode(meta)
				if err != nil {
					return err
				}
				p := o.store.Pipeline()
				p.HDel(index.MetaKey(docType), id)
				p.HSet(index.MetaKey(docType), id, rewritten)
				if err := p.Exec(ctx); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func inBatches(ctx context.Context, items []string, fn func(ctx context.Context, batch []string) error) error {
	for i := 0; i < len(items); i += batchSize {
		end := i + batchSize
		if end > len(items) {
			end = len(items)
		}
		if err := fn(ctx, items[i:end]); err != nil {
			return err
		}
		if end < len(items) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(batchPause):
			}
		}
	}
	return nil
}
