package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/itskum47/mailforge/internal/collaborators/docstore"
	"github.com/itskum47/mailforge/internal/index"
	"github.com/itskum47/mailforge/internal/kv"
	"github.com/itskum47/mailforge/internal/lock"
	"github.com/itskum47/mailforge/internal/observability"
	"github.com/itskum47/mailforge/internal/scheduler"
	"github.com/itskum47/mailforge/internal/task"
)

type capturingDocs struct {
	*docstore.MemoryStore
	records []*docstore.AnalyticsRecord
}

func (c *capturingDocs) PutAnalytics(ctx context.Context, r *docstore.AnalyticsRecord) error {
	c.records = append(c.records, r)
	return c.MemoryStore.PutAnalytics(ctx, r)
}

func TestGenerateAnalyticsHandlerCountsWithinWindow(t *testing.T) {
	ctx := context.Background()
	docs := &capturingDocs{MemoryStore: docstore.NewMemoryStore()}
	require.NoError(t, docs.PutEmail(ctx, &docstore.Email{ID: "e1", MessageID: "m1", CreatedAt: 1500}))
	require.NoError(t, docs.PutEmail(ctx, &docstore.Email{ID: "e2", MessageID: "m2", CreatedAt: 500}))

	h := &GenerateAnalyticsHandler{Docs: docs, Log: observability.Nop()}
	payload := task.GenerateAnalyticsPayload{Start: 1000, End: 2000, Scope: "daily"}
	tk := &task.Task{ID: "ta1", Payload: encodePayload(t, payload)}
	require.NoError(t, h.Handle(ctx, tk, noProgress))
	require.Len(t, docs.records, 1)
	require.Equal(t, int64(1), docs.records[0].Counts["total"])
}

func TestIndexSearchHandlerIndexesWholeDocument(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	ix := index.New(store, lock.NewManager(store), observability.Nop())
	h := &IndexSearchHandler{Index: ix, Log: observability.Nop()}

	payload := task.IndexSearchPayload{
		DocID:   "doc-1",
		DocType: "email",
		Content: "quarterly report figures",
		Options: task.IndexOptions{Language: "en"},
	}
	tk := &task.Task{ID: "ts1", Payload: encodePayload(t, payload)}
	require.NoError(t, h.Handle(ctx, tk, noProgress))

	_, ok, err := index.GetDocument(ctx, store, "email", "doc-1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestUpdateThreadHandlerAppliesMutationAndReindexes(t *testing.T) {
	ctx := context.Background()
	docs := docstore.NewMemoryStore()
	require.NoError(t, docs.PutThread(ctx, &docstore.Thread{ID: "th1", Subject: "old subject"}))

	kvStore := kv.NewMemoryStore()
	locks := lock.NewManager(kvStore)
	ix := index.New(kvStore, locks, observability.Nop())
	sched := scheduler.New(kvStore, locks, observability.Nop(), 0, 0, 0)

	h := &UpdateThreadHandler{Docs: docs, Locks: locks, Scheduler: sched, Index: ix, Log: observability.Nop()}
	payload := task.UpdateThreadPayload{
		ThreadID: "th1",
		Mutation: map[string]any{"subject": "new subject"},
		Reindex:  true,
	}
	tk := &task.Task{ID: "tu1", Payload: encodePayload(t, payload)}
	require.NoError(t, h.Handle(ctx, tk, noProgress))

	th, ok, err := docs.GetThread(ctx, "th1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "new subject", th.Subject)

	snap, err := sched.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), snap.Ready+snap.Scheduled)
}
