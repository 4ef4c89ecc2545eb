// Package query implements the Query Engine (component H): tokenizes the
// query text, resolves postings, optionally expands fuzzy candidates via a
// bounded trigram index, sums scores, applies metadata filters, paginates,
// and highlights (spec §4.7).
package query

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/itskum47/mailforge/internal/index"
	"github.com/itskum47/mailforge/internal/kv"
	"github.com/itskum47/mailforge/internal/observability"
)

const fuzzyWeight = 0.5
const fuzzyMaxDistance = 2
const highlightLen = 160

// Options controls query resolution (spec §4.7's input shape).
type Options struct {
	From      int
	Size      int
	Filters   map[string]string
	Highlight bool
	Fuzzy     bool
	Language  string
}

// Hit is one result row.
type Hit struct {
	Type      string
	ID        string
	Score     float64
	Document  *index.Document
	Highlight string
}

// Result is a page of query resolution.
type Result struct {
	Hits  []Hit
	Total int
}

// Engine resolves search queries against the KV Substrate's inverted index.
type Engine struct {
	store    kv.Store
	trigrams *TrigramIndex
	log      *zap.Logger
}

func New(store kv.Store, trigrams *TrigramIndex, log *zap.Logger) *Engine {
	if log == nil {
		log = observability.Nop()
	}
	if trigrams == nil {
		trigrams = NewTrigramIndex()
	}
	return &Engine{store: store, trigrams: trigrams, log: log}
}

// Trigrams exposes the engine's trigram index. Terms are added to it by the
// Optimizer's cleanup pass as it scans postings; the Indexer does not add
// terms on write.
func (e *Engine) Trigrams() *TrigramIndex { return e.trigrams }

// Search runs the algorithm from spec §4.7.
func (e *Engine) Search(ctx context.Context, queryText string, opts Options) (Result, error) {
	start := time.Now()
	defer func() { observability.QueryLatency.Observe(time.Since(start).Seconds()) }()

	size := opts.Size
	if size <= 0 {
		size = 10
	}

	tokens := index.Tokenize(queryText, opts.Language)
	scores := make(map[string]float64) // member "type:id" -> summed score

	for _, tok := range tokens {
		if err := e.accumulatePosting(ctx, tok, 1.0, scores); err != nil {
			return Result{}, err
		}
		if opts.Fuzzy {
			for _, candidate := range e.trigrams.Candidates(tok) {
				if candidate == tok {
					continue
				}
				if levenshtein(tok, candidate) <= fuzzyMaxDistance {
					if err := e.accumulatePosting(ctx, candidate, fuzzyWeight, scores); err != nil {
						return Result{}, err
					}
				}
			}
		}
	}

	type scored struct {
		member string
		score  float64
	}
	candidates := make([]scored, 0, len(scores))
	for m, s := range scores {
		candidates = append(candidates, scored{member: m, score: s})
	}

	var filtered []scored
	for _, c := range candidates {
		docType, id := index.SplitMember(c.member)
		meta, ok, err := index.GetMeta(ctx, e.store, docType, id)
		if err != nil {
			e.log.Warn("query: malformed metadata, dropping", zap.String("member", c.member), zap.Error(err))
			continue
		}
		if !ok {
			// Missing metadata for a scored doc: treated as "does not
			// match any filter" (spec §4.7 failure modes).
			continue
		}
		if !matchesFilters(meta.Metadata, opts.Filters) {
			continue
		}
		filtered = append(filtered, c)
	}

	sort.Slice(filtered, func(i, j int) bool { return filtered[i].score > filtered[j].score })

	total := len(filtered)
	from := opts.From
	if from > total {
		from = total
	}
	to := from + size
	if to > total {
		to = total
	}
	page := filtered[from:to]

	hits := make([]Hit, 0, len(page))
	for _, c := range page {
		docType, id := index.SplitMember(c.member)
		doc, ok, err := index.GetDocument(ctx, e.store, docType, id)
		if err != nil || !ok {
			continue
		}
		hit := Hit{Type: docType, ID: id, Score: c.score, Document: doc}
		if opts.Highlight {
			hit.Highlight = highlight(doc.Content)
		}
		hits = append(hits, hit)
	}

	return Result{Hits: hits, Total: total}, nil
}

func (e *Engine) accumulatePosting(ctx context.Context, term string, weight float64, scores map[string]float64) error {
	members, err := e.store.ZRange(ctx, index.PostingKey(term), 0, -1)
	if err != nil {
		return fmt.Errorf("query: reading postings for %q: %w", term, err)
	}
	for _, m := range members {
		scores[m.Value] += m.Score * weight
	}
	return nil
}

func matchesFilters(metadata map[string]any, filters map[string]string) bool {
	for k, want := range filters {
		got, ok := metadata[k]
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", got) != want {
			return false
		}
	}
	return true
}

func highlight(content string) string {
	trimmed := strings.TrimSpace(content)
	if len(trimmed) <= highlightLen {
		return trimmed
	}
	return trimmed[:highlightLen] + "..."
}
