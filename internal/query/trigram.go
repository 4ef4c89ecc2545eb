package query

import "sync"

// TrigramIndex maintains an in-memory term->trigrams index so fuzzy
// expansion can generate candidates in O(matching trigrams) instead of
// O(vocabulary) per query — the bounded resolution of spec §9's "Open
// Question #2" (fuzzy candidate set). It is populated through AddTerm, which
// the Optimizer's cleanup pass calls for each posting term it scans; the
// Indexer does not add terms when it writes postings.
type TrigramIndex struct {
	mu       sync.RWMutex
	terms    map[string]struct{}
	trigrams map[string]map[string]struct{} // trigram -> set of terms containing it
}

func NewTrigramIndex() *TrigramIndex {
	return &TrigramIndex{
		terms:    make(map[string]struct{}),
		trigrams: make(map[string]map[string]struct{}),
	}
}

// AddTerm registers term if not already known.
func (idx *TrigramIndex) AddTerm(term string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, ok := idx.terms[term]; ok {
		return
	}
	idx.terms[term] = struct{}{}
	for _, tg := range trigramsOf(term) {
		set, ok := idx.trigrams[tg]
		if !ok {
			set = make(map[string]struct{})
			idx.trigrams[tg] = set
		}
		set[term] = struct{}{}
	}
}

// RemoveTerm drops term from the index (used when the optimizer's cleanup
// pass finds a posting has gone empty).
func (idx *TrigramIndex) RemoveTerm(term string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, ok := idx.terms[term]; !ok {
		return
	}
	delete(idx.terms, term)
	for _, tg := range trigramsOf(term) {
		if set, ok := idx.trigrams[tg]; ok {
			delete(set, term)
			if len(set) == 0 {
				delete(idx.trigrams, tg)
			}
		}
	}
}

// Candidates returns known terms sharing at least one trigram with query —
// the bounded candidate set a caller then filters by exact edit distance.
func (idx *TrigramIndex) Candidates(query string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, tg := range trigramsOf(query) {
		for term := range idx.trigrams[tg] {
			seen[term] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for term := range seen {
		out = append(out, term)
	}
	return out
}

func trigramsOf(s string) []string {
	padded := "  " + s + "  "
	runes := []rune(padded)
	if len(runes) < 3 {
		return []string{padded}
	}
	out := make([]string, 0, len(runes)-2)
	for i := 0; i+3 <= len(runes); i++ {
		out = append(out, string(runes[i:i+3]))
	}
	return out
}
