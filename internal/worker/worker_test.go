package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/itskum47/mailforge/internal/handlers"
	"github.com/itskum47/mailforge/internal/kv"
	"github.com/itskum47/mailforge/internal/lock"
	"github.com/itskum47/mailforge/internal/observability"
	"github.com/itskum47/mailforge/internal/scheduler"
	"github.com/itskum47/mailforge/internal/task"
)

func TestPoolCompletesTask(t *testing.T) {
	store := kv.NewMemoryStore()
	sched := scheduler.New(store, lock.NewManager(store), observability.Nop(), time.Minute, 0, 0)
	registry := handlers.NewRegistry()

	done := make(chan struct{})
	registry.Register(task.KindSendNotification, handlers.HandlerFunc(func(ctx context.Context, tk *task.Task, progress handlers.ProgressFunc) error {
		progress(100)
		close(done)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id, err := sched.Enqueue(ctx, task.KindSendNotification, []byte(`{"user_id":"u1","channel":"email","title":"hi"}`), task.EnqueueOptions{})
	require.NoError(t, err)

	pool := New(sched, registry, 2, 10*time.Millisecond, observability.Nop())
	go func() { _ = pool.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never ran")
	}

	require.Eventually(t, func() bool {
		rec, ok, err := sched.GetStatus(context.Background(), id)
		return err == nil && ok && rec.Status == task.StatusCompleted
	}, time.Second, 10*time.Millisecond)
}

func TestPoolFailsUnknownKind(t *testing.T) {
	store := kv.NewMemoryStore()
	sched := scheduler.New(store, lock.NewManager(store), observability.Nop(), time.Minute, 0, 0)
	registry := handlers.NewRegistry()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id, err := sched.Enqueue(ctx, task.KindSendNotification, []byte(`{"user_id":"u1","channel":"email","title":"hi"}`), task.EnqueueOptions{MaxAttempts: 1})
	require.NoError(t, err)

	pool := New(sched, registry, 1, 10*time.Millisecond, observability.Nop())
	go func() { _ = pool.Run(ctx) }()

	require.Eventually(t, func() bool {
		rec, ok, err := sched.GetStatus(context.Background(), id)
		return err == nil && ok && rec.Status == task.StatusFailed
	}, time.Second, 10*time.Millisecond)
}
