package optimizer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/itskum47/mailforge/internal/index"
	"github.com/itskum47/mailforge/internal/kv"
	"github.com/itskum47/mailforge/internal/lock"
	"github.com/itskum47/mailforge/internal/observability"
	"github.com/itskum47/mailforge/internal/query"
)

func TestCleanupEmptyPostingsDeletesZeroCardinality(t *testing.T) {
	store := kv.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.ZAdd(ctx, "posting:ghost", "email:e1", 1.0))
	require.NoError(t, store.ZRem(ctx, "posting:ghost", "email:e1"))
	require.NoError(t, store.ZAdd(ctx, "posting:alive", "email:e2", 1.0))

	opt := New(store, lock.NewManager(store), query.NewTrigramIndex(), observability.Nop())
	require.NoError(t, opt.RunMaintenance(ctx))

	keys, err := store.Scan(ctx, "posting:*")
	require.NoError(t, err)
	require.NotContains(t, keys, "posting:ghost")
	require.Contains(t, keys, "posting:alive")
}

func TestHealthAnalyzeReportsHealthy(t *testing.T) {
	store := kv.NewMemoryStore()
	ix := index.New(store, lock.NewManager(store), observability.Nop())
	ctx := context.Background()
	require.NoError(t, ix.IndexDocument(ctx, "email", "e1", "hello world example text", nil, "en"))

	opt := New(store, lock.NewManager(store), query.NewTrigramIndex(), observability.Nop())
	report, err := opt.Analyze(ctx)
	require.NoError(t, err)
	require.Equal(t, StatusHealthy, report.Status)
	require.Equal(t, 1, report.TotalDocuments)
}
