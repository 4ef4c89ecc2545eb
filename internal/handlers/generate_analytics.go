package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/itskum47/mailforge/internal/collaborators/docstore"
	"github.com/itskum47/mailforge/internal/task"
)

// GenerateAnalyticsHandler implements spec §4.5's generate_analytics:
// aggregate email counts over [start, end) and persist the result.
type GenerateAnalyticsHandler struct {
	Docs docstore.Store
	Log  *zap.Logger
}

func (h *GenerateAnalyticsHandler) Handle(ctx context.Context, t *task.Task, progress ProgressFunc) error {
	var p task.GenerateAnalyticsPayload
	if err := task.DecodeAndValidate(t.Payload, &p); err != nil {
		return err
	}

	emails, err := h.Docs.ListEmailsOlderThan(ctx, p.End)
	if err != nil {
		return task.NewTransientError(fmt.Errorf("listing emails: %w", err))
	}
	progress(40)

	counts := map[string]int64{"total": 0, "spam": 0}
	for _, e := range emails {
		if e.CreatedAt < p.Start || e.CreatedAt >= p.End {
			continue
		}
		counts["total"]++
		if isSpam, _ := e.Classification["is_spam"].(bool); isSpam {
			counts["spam"]++
		}
		if cats, ok := e.Classification["categories"].([]any); ok {
			for _, c := range cats {
				if s, ok := c.(string); ok {
					counts["category:"+s]++
				}
			}
		}
	}
	progress(80)

	record := &docstore.AnalyticsRecord{
		ID:        uuid.NewString(),
		Scope:     p.Scope,
		Start:     p.Start,
		End:       p.End,
		Counts:    counts,
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := h.Docs.PutAnalytics(ctx, record); err != nil {
		return task.NewTransientError(fmt.Errorf("persisting analytics: %w", err))
	}
	progress(100)
	return nil
}
