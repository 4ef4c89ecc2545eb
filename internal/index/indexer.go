// Package index implements the Indexer (component G): tokenization, the
// inverted postings/meta/doc write path, chunked indexing for long
// documents, deletion, and re-indexing (spec §4.6). Grounded on the
// teacher's per-resource locking idiom (coordination/leader.go's
// acquire-work-release shape) generalized to per-document granularity.
package index

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/itskum47/mailforge/internal/kv"
	"github.com/itskum47/mailforge/internal/lock"
	"github.com/itskum47/mailforge/internal/observability"
	"github.com/itskum47/mailforge/internal/task"
)

const docLockTTL = 30 * time.Second

// Indexer owns the inverted index's write path over the KV Substrate.
type Indexer struct {
	store kv.Store
	locks *lock.Manager
	log   *zap.Logger
}

func New(store kv.Store, locks *lock.Manager, log *zap.Logger) *Indexer {
	if log == nil {
		log = observability.Nop()
	}
	return &Indexer{store: store, locks: locks, log: log}
}

// score implements spec §4.6's TF-saturation + length-normalization
// formula: score(f, d) = log(1+f) * (1 / sqrt(len(d.content))).
func score(f int, contentLen int) float64 {
	if contentLen <= 0 {
		contentLen = 1
	}
	return math.Log(1+float64(f)) * (1 / math.Sqrt(float64(contentLen)))
}

// IndexDocument runs the per-document indexing algorithm (spec §4.6 steps
// 1-7). lang selects the tokenizer's stop-word set; "" falls back to
// English per the closed language set.
func (ix *Indexer) IndexDocument(ctx context.Context, docType, id, content string, metadata map[string]any, lang string) error {
	if err := task.ValidateLanguage(lang); err != nil {
		return task.NewValidationError("index: %w", err)
	}

	token, ok, err := ix.locks.Acquire(ctx, lockName(id), docLockTTL)
	if err != nil {
		return task.NewTransientError(fmt.Errorf("index: acquiring lock: %w", err))
	}
	if !ok {
		observability.LockContention.WithLabelValues("doc").Inc()
		return task.NewLockContentionError(lockName(id))
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = ix.locks.Release(releaseCtx, lockName(id), token)
	}()

	start := time.Now()
	err = ix.indexDocumentLocked(ctx, docType, id, content, metadata, lang)
	observability.IndexingDuration.Observe(time.Since(start).Seconds())
	return err
}

func (ix *Indexer) indexDocumentLocked(ctx context.Context, docType, id, content string, metadata map[string]any, lang string) error {
	doc := &Document{Type: docType, ID: id, Content: content, Metadata: metadata}
	docRec, err := encodeDocument(doc)
	if err != nil {
		return task.NewIntegrityError(err)
	}

	tokens := Tokenize(content, lang)
	tf := TermFrequencies(tokens)
	mem := member(docType, id)

	p := ix.store.Pipeline()
	p.HSet(docKey(docType), id, docRec)
	for term, f := range tf {
		p.ZAdd(postingKey(term), mem, score(f, len(content)))
	}

	meta := &Meta{Metadata: metadata, LastIndexed: time.Now().UnixMilli()}
	metaRec, err := encodeMeta(meta)
	if err != nil {
		return task.NewIntegrityError(err)
	}
	p.HSet(metaKey(docType), id, metaRec)

	if err := p.Exec(ctx); err != nil {
		return task.NewTransientError(fmt.Errorf("index: writing document: %w", err))
	}

	observability.IndexedDocuments.WithLabelValues(docType).Inc()
	return nil
}

// Delete implements spec §4.6's deletion algorithm: read the document,
// re-tokenize to find which postings reference it, remove the doc's member
// from each, and delete doc/meta in one pipelined write.
func (ix *Indexer) Delete(ctx context.Context, docType, id, lang string) error {
	token, ok, err := ix.locks.Acquire(ctx, lockName(id), docLockTTL)
	if err != nil {
		return task.NewTransientError(fmt.Errorf("index: acquiring lock: %w", err))
	}
	if !ok {
		observability.LockContention.WithLabelValues("doc").Inc()
		return task.NewLockContentionError(lockName(id))
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = ix.locks.Release(releaseCtx, lockName(id), token)
	}()
	return ix.deleteLocked(ctx, docType, id, lang)
}

func (ix *Indexer) deleteLocked(ctx context.Context, docType, id, lang string) error {
	raw, ok, err := ix.store.HGet(ctx, docKey(docType), id)
	if err != nil {
		return task.NewTransientError(err)
	}
	if !ok {
		return nil
	}
	doc, err := decodeDocument(raw)
	if err != nil {
		return task.NewIntegrityError(err)
	}

	tokens := Tokenize(doc.Content, lang)
	seen := make(map[string]struct{}, len(tokens))
	mem := member(docType, id)

	p := ix.store.Pipeline()
	for _, term := range tokens {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		p.ZRem(postingKey(term), mem)
	}
	p.HDel(docKey(docType), id)
	p.HDel(metaKey(docType), id)

	if err := p.Exec(ctx); err != nil {
		return task.NewTransientError(fmt.Errorf("index: deleting document: %w", err))
	}
	observability.IndexedDocuments.WithLabelValues(docType).Dec()
	return nil
}

// ReIndex implements spec §4.6's "delete then index under the same lock"
// re-index path: both operations hold a single lock acquisition.
func (ix *Indexer) ReIndex(ctx context.Context, docType, id, oldLang, content string, metadata map[string]any, lang string) error {
	if err := task.ValidateLanguage(lang); err != nil {
		return task.NewValidationError("index: %w", err)
	}

	token, ok, err := ix.locks.Acquire(ctx, lockName(id), docLockTTL)
	if err != nil {
		return task.NewTransientError(fmt.Errorf("index: acquiring lock: %w", err))
	}
	if !ok {
		observability.LockContention.WithLabelValues("doc").Inc()
		return task.NewLockContentionError(lockName(id))
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = ix.locks.Release(releaseCtx, lockName(id), token)
	}()

	if err := ix.deleteLocked(ctx, docType, id, oldLang); err != nil {
		return err
	}
	return ix.indexDocumentLocked(ctx, docType, id, content, metadata, lang)
}
