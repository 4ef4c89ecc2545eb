package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/itskum47/mailforge/internal/kv"
	"github.com/itskum47/mailforge/internal/lock"
	"github.com/itskum47/mailforge/internal/observability"
)

func newTestIndexer() (*Indexer, kv.Store) {
	store := kv.NewMemoryStore()
	return New(store, lock.NewManager(store), observability.Nop()), store
}

func TestIndexDocumentWritesPostingsAndMeta(t *testing.T) {
	ix, store := newTestIndexer()
	ctx := context.Background()

	err := ix.IndexDocument(ctx, "email", "e1", "The quick brown fox jumps over the lazy dog", map[string]any{"from": "a@b.com"}, "en")
	require.NoError(t, err)

	members, err := store.ZRange(ctx, postingKey("quick"), 0, -1)
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.Equal(t, "email:e1", members[0].Value)

	raw, ok, err := store.HGet(ctx, metaKey("email"), "e1")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, raw)
}

func TestDeleteRemovesPostingsAndDoc(t *testing.T) {
	ix, store := newTestIndexer()
	ctx := context.Background()

	require.NoError(t, ix.IndexDocument(ctx, "email", "e1", "unique wombat content", nil, "en"))
	require.NoError(t, ix.Delete(ctx, "email", "e1", "en"))

	card, err := store.ZCard(ctx, postingKey("wombat"))
	require.NoError(t, err)
	require.Zero(t, card)

	_, ok, err := store.HGet(ctx, docKey("email"), "e1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReIndexReplacesStaleTerms(t *testing.T) {
	ix, store := newTestIndexer()
	ctx := context.Background()

	require.NoError(t, ix.IndexDocument(ctx, "email", "e1", "original zebra content", nil, "en"))
	require.NoError(t, ix.ReIndex(ctx, "email", "e1", "en", "updated giraffe content", nil, "en"))

	zebraCard, err := store.ZCard(ctx, postingKey("zebra"))
	require.NoError(t, err)
	require.Zero(t, zebraCard)

	giraffeMembers, err := store.ZRange(ctx, postingKey("giraffe"), 0, -1)
	require.NoError(t, err)
	require.Len(t, giraffeMembers, 1)
}

func TestIndexChunkedReportsProgress(t *testing.T) {
	ix, store := newTestIndexer()
	ctx := context.Background()

	content := make([]byte, 2500)
	for i := range content {
		content[i] = 'a'
	}

	var percents []int
	require.NoError(t, ix.IndexChunked(ctx, "doc1", string(content), "en", 1000, func(p int) {
		percents = append(percents, p)
	}))
	require.Equal(t, []int{33, 66, 100}, percents)

	card, err := store.HLen(ctx, docKey(ChunkType))
	require.NoError(t, err)
	require.EqualValues(t, 3, card)
}

func TestUnsupportedLanguageIsFatal(t *testing.T) {
	ix, _ := newTestIndexer()
	err := ix.IndexDocument(context.Background(), "email", "e1", "hola", nil, "xx")
	require.Error(t, err)
}
