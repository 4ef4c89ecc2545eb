package index

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"time"
)

const (
	defaultChunkSize = 1000
	vectorDims       = 1536
)

// ChunkType is the synthetic document type chunked indexing writes under
// (spec §4.6: "indexed as a synthetic document of type document_chunk").
const ChunkType = "document_chunk"

// ProgressFunc reports chunked-indexing progress as a percentage.
type ProgressFunc func(percent int)

// IndexChunked implements spec §4.6's chunked indexing: split content into
// fixed-size chunks, index each as a document_chunk, and attach a
// bag-of-words dense vector (truncated/padded to 1536 dims, L2-normalized)
// to each chunk document.
func (ix *Indexer) IndexChunked(ctx context.Context, docID, content, lang string, chunkSize int, progress ProgressFunc) error {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	chunks := splitChunks(content, chunkSize)
	n := len(chunks)
	if n == 0 {
		return nil
	}

	for i, chunk := range chunks {
		chunkID := fmt.Sprintf("%s_chunk_%d", docID, i)
		if err := ix.indexChunk(ctx, chunkID, i, docID, chunk, lang); err != nil {
			return err
		}
		if progress != nil {
			progress(int(float64(i+1) / float64(n) * 100))
		}
	}
	return nil
}

func (ix *Indexer) indexChunk(ctx context.Context, chunkID string, pos int, docID, content, lang string) error {
	token, ok, err := ix.locks.Acquire(ctx, lockName(chunkID), docLockTTL)
	if err != nil {
		return fmt.Errorf("index: acquiring chunk lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("index: chunk lock %q held elsewhere", chunkID)
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = ix.locks.Release(releaseCtx, lockName(chunkID), token)
	}()

	vector := bagOfWordsVector(content, lang)

	doc := &Document{Type: ChunkType, ID: chunkID, Content: content, ChunkOf: docID, ChunkPos: pos, Vector: vector}
	docRec, err := encodeDocument(doc)
	if err != nil {
		return err
	}

	tokens := Tokenize(content, lang)
	tf := TermFrequencies(tokens)
	mem := member(ChunkType, chunkID)

	p := ix.store.Pipeline()
	p.HSet(docKey(ChunkType), chunkID, docRec)
	for term, f := range tf {
		p.ZAdd(postingKey(term), mem, score(f, len(content)))
	}
	meta := &Meta{Metadata: map[string]any{"chunk_of": docID, "chunk_pos": pos}, LastIndexed: time.Now().UnixMilli()}
	metaRec, err := encodeMeta(meta)
	if err != nil {
		return err
	}
	p.HSet(metaKey(ChunkType), chunkID, metaRec)

	return p.Exec(ctx)
}

// splitChunks splits content into fixed-size rune chunks.
func splitChunks(content string, chunkSize int) []string {
	runes := []rune(content)
	if len(runes) == 0 {
		return nil
	}
	var chunks []string
	for i := 0; i < len(runes); i += chunkSize {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}

// bagOfWordsVector hashes each token into one of vectorDims buckets,
// accumulates frequency, then L2-normalizes — a fixed-width dense
// representation with no external embedding model dependency (spec §4.6).
func bagOfWordsVector(content, lang string) []float64 {
	vec := make([]float64, vectorDims)
	for _, tok := range Tokenize(content, lang) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		vec[int(h.Sum32())%vectorDims]++
	}

	var sumSquares float64
	for _, v := range vec {
		sumSquares += v * v
	}
	if sumSquares == 0 {
		return vec
	}
	norm := math.Sqrt(sumSquares)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
