package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/itskum47/mailforge/internal/collaborators/docstore"
	"github.com/itskum47/mailforge/internal/index"
	"github.com/itskum47/mailforge/internal/lock"
	"github.com/itskum47/mailforge/internal/scheduler"
	"github.com/itskum47/mailforge/internal/task"
)

const threadLockTTL = 30 * time.Second

// UpdateThreadHandler implements spec §4.5's update_thread: a partial
// mutation applied under a held lock (serializing concurrent updates to the
// same thread, since docstore.Thread carries no version field to compare
// against), with an optional index_search re-enqueue afterward.
type UpdateThreadHandler struct {
	Docs      docstore.Store
	Locks     *lock.Manager
	Scheduler *scheduler.Scheduler
	Index     *index.Indexer
	Log       *zap.Logger
}

func (h *UpdateThreadHandler) Handle(ctx context.Context, t *task.Task, progress ProgressFunc) error {
	var p task.UpdateThreadPayload
	if err := task.DecodeAndValidate(t.Payload, &p); err != nil {
		return err
	}

	lockName := "thread:" + p.ThreadID
	var handlerErr error
	held, err := h.Locks.WithLock(ctx, lockName, threadLockTTL, func(ctx context.Context) error {
		th, ok, err := h.Docs.GetThread(ctx, p.ThreadID)
		if err != nil {
			handlerErr = task.NewTransientError(fmt.Errorf("loading thread: %w", err))
			return handlerErr
		}
		if !ok {
			handlerErr = task.NewValidationError("thread %q does not exist", p.ThreadID)
			return handlerErr
		}
		if th.Mutation == nil {
			th.Mutation = make(map[string]any)
		}
		for k, v := range p.Mutation {
			th.Mutation[k] = v
			if k == "subject" {
				if s, ok := v.(string); ok {
					th.Subject = s
				}
			}
		}
		progress(50)
		if err := h.Docs.PutThread(ctx, th); err != nil {
			handlerErr = task.NewTransientError(fmt.Errorf("persisting thread: %w", err))
			return handlerErr
		}
		if p.Reindex && h.Index != nil && h.Scheduler != nil {
			payload, err := json.Marshal(task.IndexSearchPayload{
				DocID:   th.ID,
				DocType: "thread",
				Content: th.Subject,
				Options: task.IndexOptions{Language: "en"},
			})
			if err != nil {
				h.Log.Warn("update_thread: encoding reindex payload failed", zap.Error(err))
				return nil
			}
			if _, err := h.Scheduler.Enqueue(ctx, task.KindIndexSearch, payload, task.EnqueueOptions{}); err != nil {
				h.Log.Warn("update_thread: reindex enqueue failed", zap.String("thread_id", p.ThreadID), zap.Error(err))
			}
		}
		return nil
	})
	if handlerErr != nil {
		return handlerErr
	}
	if err != nil {
		return task.NewTransientError(err)
	}
	if !held {
		return task.NewLockContentionError(lockName)
	}
	progress(100)
	return nil
}
