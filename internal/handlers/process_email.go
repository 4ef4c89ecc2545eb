package handlers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/itskum47/mailforge/internal/classify"
	"github.com/itskum47/mailforge/internal/collaborators/docstore"
	"github.com/itskum47/mailforge/internal/index"
	"github.com/itskum47/mailforge/internal/task"
)

// ProcessEmailHandler implements spec §4.5's process_email pipeline:
// normalize, detect thread, classify, persist, index.
type ProcessEmailHandler struct {
	Docs  docstore.Store
	Index *index.Indexer
	Log   *zap.Logger
}

func (h *ProcessEmailHandler) Handle(ctx context.Context, t *task.Task, progress ProgressFunc) error {
	var p task.ProcessEmailPayload
	if err := task.DecodeAndValidate(t.Payload, &p); err != nil {
		return err
	}

	if existing, ok, err := h.Docs.GetEmailByMessageID(ctx, p.MessageID); err != nil {
		return task.NewTransientError(fmt.Errorf("checking message-id uniqueness: %w", err))
	} else if ok {
		h.Log.Debug("process_email: message-id already processed, skipping", zap.String("message_id", p.MessageID))
		progress(100)
		_ = existing
		return nil
	}
	progress(10)

	threadID, err := h.resolveThread(ctx, p)
	if err != nil {
		return task.NewTransientError(fmt.Errorf("resolving thread: %w", err))
	}
	progress(30)

	verdict := classify.Classify(p.From, p.Subject, p.TextContent, 0.5)

	email := &docstore.Email{
		ID:          t.ID,
		MessageID:   p.MessageID,
		ThreadID:    threadID,
		From:        p.From,
		To:          p.To,
		Subject:     p.Subject,
		TextContent: p.TextContent,
		HTMLContent: p.HTMLContent,
		Classification: map[string]any{
			"spam_score": verdict.SpamScore,
			"is_spam":    verdict.IsSpam,
			"categories": verdict.Categories,
			"priority":   verdict.Priority,
		},
		CreatedAt: t.CreatedAt.UnixMilli(),
	}
	if err := h.Docs.PutEmail(ctx, email); err != nil {
		return task.NewTransientError(fmt.Errorf("persisting email: %w", err))
	}
	progress(60)

	if h.Index != nil {
		content := p.Subject + "\n" + p.TextContent
		if err := h.Index.IndexDocument(ctx, "email", email.ID, content, map[string]any{
			"thread_id": threadID,
			"from":      p.From,
			"subject":   p.Subject,
		}, "en"); err != nil {
			if task.KindOf(err) == task.ErrLockContention {
				return err
			}
			h.Log.Warn("process_email: indexing failed, email persisted anyway", zap.String("email_id", email.ID), zap.Error(err))
		}
	}
	progress(100)
	return nil
}

func (h *ProcessEmailHandler) resolveThread(ctx context.Context, p task.ProcessEmailPayload) (string, error) {
	if len(p.References) == 0 && p.InReplyTo == "" {
		th := &docstore.Thread{
			ID:         p.MessageID,
			Subject:    p.Subject,
			MessageIDs: []string{p.MessageID},
		}
		if err := h.Docs.PutThread(ctx, th); err != nil {
			return "", err
		}
		return th.ID, nil
	}

	th, ok, err := h.Docs.FindThreadByReferences(ctx, p.References, p.InReplyTo)
	if err != nil {
		return "", err
	}
	if !ok {
		th = &docstore.Thread{ID: p.MessageID, Subject: p.Subject}
	}
	th.MessageIDs = append(th.MessageIDs, p.MessageID)
	if err := h.Docs.PutThread(ctx, th); err != nil {
		return "", err
	}
	return th.ID, nil
}
