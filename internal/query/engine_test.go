package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/itskum47/mailforge/internal/index"
	"github.com/itskum47/mailforge/internal/kv"
	"github.com/itskum47/mailforge/internal/lock"
	"github.com/itskum47/mailforge/internal/observability"
)

func TestSearchRanksAndFilters(t *testing.T) {
	store := kv.NewMemoryStore()
	ix := index.New(store, lock.NewManager(store), observability.Nop())
	ctx := context.Background()

	require.NoError(t, ix.IndexDocument(ctx, "email", "e1", "quick quick quick fox", map[string]any{"category": "inbox"}, "en"))
	require.NoError(t, ix.IndexDocument(ctx, "email", "e2", "quick fox", map[string]any{"category": "spam"}, "en"))

	trigrams := NewTrigramIndex()
	trigrams.AddTerm("quick")
	trigrams.AddTerm("fox")

	engine := New(store, trigrams, observability.Nop())

	res, err := engine.Search(ctx, "quick", Options{Size: 10})
	require.NoError(t, err)
	require.Len(t, res.Hits, 2)
	require.Equal(t, "e1", res.Hits[0].ID) // higher tf scores first

	res, err = engine.Search(ctx, "quick", Options{Size: 10, Filters: map[string]string{"category": "spam"}})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	require.Equal(t, "e2", res.Hits[0].ID)
}

func TestSearchFuzzyExpansion(t *testing.T) {
	store := kv.NewMemoryStore()
	ix := index.New(store, lock.NewManager(store), observability.Nop())
	ctx := context.Background()

	require.NoError(t, ix.IndexDocument(ctx, "email", "e1", "wombat sighting report", nil, "en"))

	trigrams := NewTrigramIndex()
	trigrams.AddTerm("wombat")

	engine := New(store, trigrams, observability.Nop())

	res, err := engine.Search(ctx, "wombta", Options{Size: 10, Fuzzy: true})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	require.Equal(t, "e1", res.Hits[0].ID)
}

func TestSearchPagination(t *testing.T) {
	store := kv.NewMemoryStore()
	ix := index.New(store, lock.NewManager(store), observability.Nop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		require.NoError(t, ix.IndexDocument(ctx, "email", id, "shared term content", nil, "en"))
	}

	trigrams := NewTrigramIndex()
	engine := New(store, trigrams, observability.Nop())

	res, err := engine.Search(ctx, "shared", Options{From: 0, Size: 2})
	require.NoError(t, err)
	require.Len(t, res.Hits, 2)
	require.Equal(t, 5, res.Total)
}
