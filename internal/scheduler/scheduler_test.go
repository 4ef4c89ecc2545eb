package scheduler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/itskum47/mailforge/internal/kv"
	"github.com/itskum47/mailforge/internal/lock"
	"github.com/itskum47/mailforge/internal/observability"
	"github.com/itskum47/mailforge/internal/task"
)

func newTestScheduler() *Scheduler {
	store := kv.NewMemoryStore()
	return New(store, lock.NewManager(store), observability.Nop(), time.Minute, 0, 0)
}

func TestEnqueueRejectsUnknownKind(t *testing.T) {
	s := newTestScheduler()
	_, err := s.Enqueue(context.Background(), task.Kind("bogus"), []byte(`{}`), task.EnqueueOptions{})
	require.ErrorIs(t, err, task.ErrInvalidArgument)
}

func TestEnqueueLeaseComplete(t *testing.T) {
	s := newTestScheduler()
	ctx := context.Background()

	id, err := s.Enqueue(ctx, task.KindSendEmail, []byte(`{"message_id":"m1","from":"a@x.com","to":["b@x.com"],"subject":"hi"}`), task.EnqueueOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	leased, err := s.Lease(ctx)
	require.NoError(t, err)
	require.NotNil(t, leased)
	require.Equal(t, id, leased.ID)
	require.Equal(t, task.StatusProcessing, leased.Status)
	require.Equal(t, 1, leased.Attempts)

	// Envelope fields were injected.
	var fields map[string]any
	require.NoError(t, json.Unmarshal(leased.Payload, &fields))
	require.NotEmpty(t, fields["correlation_id"])
	require.NotZero(t, fields["timestamp"])

	// Nothing else to lease.
	none, err := s.Lease(ctx)
	require.NoError(t, err)
	require.Nil(t, none)

	require.NoError(t, s.Complete(ctx, leased))

	rec, ok, err := s.GetStatus(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, task.StatusCompleted, rec.Status)
	require.Equal(t, 100, rec.Progress)

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Zero(t, snap.Ready)
	require.Zero(t, snap.Processing)
}

func TestPriorityOrdering(t *testing.T) {
	s := newTestScheduler()
	ctx := context.Background()

	lowID, err := s.Enqueue(ctx, task.KindSendNotification, []byte(`{"user_id":"u1","channel":"email","title":"t"}`), task.EnqueueOptions{Priority: task.PriorityLow})
	require.NoError(t, err)
	_, err = s.Enqueue(ctx, task.KindSendNotification, []byte(`{"user_id":"u2","channel":"email","title":"t"}`), task.EnqueueOptions{Priority: task.PriorityNormal})
	require.NoError(t, err)
	highID, err := s.Enqueue(ctx, task.KindSendNotification, []byte(`{"user_id":"u3","channel":"email","title":"t"}`), task.EnqueueOptions{Priority: task.PriorityHigh})
	require.NoError(t, err)

	first, err := s.Lease(ctx)
	require.NoError(t, err)
	require.Equal(t, highID, first.ID)

	second, err := s.Lease(ctx)
	require.NoError(t, err)
	require.NotEqual(t, lowID, second.ID)

	third, err := s.Lease(ctx)
	require.NoError(t, err)
	require.Equal(t, lowID, third.ID)
}

func TestFailRetriesThenDeadLetters(t *testing.T) {
	s := newTestScheduler()
	ctx := context.Background()

	var deadLettered *task.Task
	s.OnDeadLetter(func(t *task.Task) { deadLettered = t })

	id, err := s.Enqueue(ctx, task.KindSendEmail, []byte(`{"message_id":"m1","from":"a@x.com","to":["b@x.com"],"subject":"hi"}`), task.EnqueueOptions{MaxAttempts: 2, Priority: task.PriorityHigh})
	require.NoError(t, err)

	leased, err := s.Lease(ctx)
	require.NoError(t, err)
	require.Equal(t, id, leased.ID)
	require.Equal(t, 1, leased.Attempts)

	require.NoError(t, s.Fail(ctx, leased, task.NewTransientError(assertErr{}), true))

	rec, _, err := s.GetStatus(ctx, id)
	require.NoError(t, err)
	require.Equal(t, task.StatusScheduled, rec.Status)
	require.Nil(t, deadLettered)

	// Force the retry to be due, then lease again.
	leased.ScheduledFor = time.Now().Add(-time.Second)
	snapshotDue(t, s, leased)

	leased2, err := s.Lease(ctx)
	require.NoError(t, err)
	require.Equal(t, id, leased2.ID)
	require.Equal(t, 2, leased2.Attempts)

	require.NoError(t, s.Fail(ctx, leased2, task.NewTransientError(assertErr{}), true))

	rec2, _, err := s.GetStatus(ctx, id)
	require.NoError(t, err)
	require.Equal(t, task.StatusFailed, rec2.Status)
	require.NotNil(t, deadLettered)
	require.Equal(t, id, deadLettered.ID)

	failed, err := s.ListFailed(ctx, 0, 10, true)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Equal(t, id, failed[0].ID)
}

func TestValidationErrorSkipsRetry(t *testing.T) {
	s := newTestScheduler()
	ctx := context.Background()

	id, err := s.Enqueue(ctx, task.KindSendEmail, []byte(`{"message_id":"m1","from":"a@x.com","to":["b@x.com"],"subject":"hi"}`), task.EnqueueOptions{MaxAttempts: 5})
	require.NoError(t, err)

	leased, err := s.Lease(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Fail(ctx, leased, task.NewValidationError("bad payload"), false))

	rec, _, err := s.GetStatus(ctx, id)
	require.NoError(t, err)
	require.Equal(t, task.StatusFailed, rec.Status)
}

func TestUpdateProgressClamps(t *testing.T) {
	s := newTestScheduler()
	ctx := context.Background()

	id, err := s.Enqueue(ctx, task.KindGenerateAnalytics, []byte(`{"start":1,"end":2}`), task.EnqueueOptions{})
	require.NoError(t, err)

	require.NoError(t, s.UpdateProgress(ctx, id, 250))
	rec, _, err := s.GetStatus(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 100, rec.Progress)

	require.NoError(t, s.UpdateProgress(ctx, id, -5))
	rec, _, err = s.GetStatus(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 0, rec.Progress)
}

func TestCompletionHookEnqueuesDependents(t *testing.T) {
	s := newTestScheduler()
	ctx := context.Background()

	depPayload, err := json.Marshal(map[string]any{"doc_id": "d1", "doc_type": "email", "content": "hello"})
	require.NoError(t, err)
	dep := task.DependentTask{Kind: task.KindIndexSearch, Payload: depPayload}
	metaBytes, err := json.Marshal([]task.DependentTask{dep})
	require.NoError(t, err)
	var metaDeps any
	require.NoError(t, json.Unmarshal(metaBytes, &metaDeps))

	id, err := s.Enqueue(ctx, task.KindSendEmail, []byte(`{"message_id":"m1","from":"a@x.com","to":["b@x.com"],"subject":"hi"}`),
		task.EnqueueOptions{Metadata: map[string]any{"dependent_tasks": metaDeps}})
	require.NoError(t, err)

	leased, err := s.Lease(ctx)
	require.NoError(t, err)
	require.Equal(t, id, leased.ID)

	require.NoError(t, s.Complete(ctx, leased))

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, snap.Ready)
}

// assertErr is a minimal error used to build HandlerErrors in tests.
type assertErr struct{}

func (assertErr) Error() string { return "boom" }

// snapshotDue re-persists a task whose ScheduledFor was moved into the past,
// so the next Lease's promotion sweep picks it up.
func snapshotDue(t *testing.T, s *Scheduler, tk *task.Task) {
	t.Helper()
	rec, err := task.Encode(tk)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.store.ZRem(ctx, keyScheduled, oldMember(t, s, tk.ID)))
	require.NoError(t, s.store.ZAdd(ctx, keyScheduled, rec, float64(tk.ScheduledFor.UnixMilli())))
}

func oldMember(t *testing.T, s *Scheduler, id string) string {
	t.Helper()
	members, err := s.store.ZRange(context.Background(), keyScheduled, 0, -1)
	require.NoError(t, err)
	for _, m := range members {
		dec, err := task.Decode(m.Value)
		require.NoError(t, err)
		if dec.ID == id {
			return m.Value
		}
	}
	t.Fatalf("task %s not found in scheduled partition", id)
	return ""
}
