package handlers

import (
	"context"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/itskum47/mailforge/internal/collaborators/blobstore"
	"github.com/itskum47/mailforge/internal/collaborators/docstore"
	"github.com/itskum47/mailforge/internal/task"
)

// CleanupStorageHandler implements spec §4.5's cleanup_storage: delete
// email rows and attachment blobs older than cutoff_ms, honoring
// exclude_patterns (a match on any exclude pattern always wins, even if
// the record would otherwise be eligible) and dry_run (report only, no
// deletes).
type CleanupStorageHandler struct {
	Docs  docstore.Store
	Blobs blobstore.Store
	Log   *zap.Logger
}

func (h *CleanupStorageHandler) Handle(ctx context.Context, t *task.Task, progress ProgressFunc) error {
	var p task.CleanupStoragePayload
	if err := task.DecodeAndValidate(t.Payload, &p); err != nil {
		return err
	}

	emails, err := h.Docs.ListEmailsOlderThan(ctx, p.CutoffMs)
	if err != nil {
		return task.NewTransientError(fmt.Errorf("listing emails older than cutoff: %w", err))
	}
	progress(20)

	wantsType := func(kind string) bool {
		if len(p.Types) == 0 {
			return true
		}
		for _, ty := range p.Types {
			if ty == kind {
				return true
			}
		}
		return false
	}

	deleted := 0
	for i, e := range emails {
		if wantsType("email") && !excluded(e.ID, p.ExcludePatterns) {
			if !p.DryRun {
				if err := h.Docs.DeleteEmail(ctx, e.ID); err != nil {
					return task.NewTransientError(fmt.Errorf("deleting email %q: %w", e.ID, err))
				}
			}
			deleted++
		}
		if len(emails) > 0 {
			progress(20 + (i+1)*50/len(emails))
		}
	}

	if wantsType("attachment") {
		if err := h.cleanupAttachments(ctx, p); err != nil {
			return err
		}
	}
	progress(100)

	h.Log.Info("cleanup_storage completed",
		zap.Int("emails_deleted", deleted),
		zap.Bool("dry_run", p.DryRun))
	return nil
}

func (h *CleanupStorageHandler) cleanupAttachments(ctx context.Context, p task.CleanupStoragePayload) error {
	var cursor string
	for {
		page, err := h.Blobs.List(ctx, "attachments/", cursor, 100)
		if err != nil {
			return task.NewTransientError(fmt.Errorf("listing attachments: %w", err))
		}
		for _, obj := range page.Objects {
			if excluded(obj.Key, p.ExcludePatterns) {
				continue
			}
			full, ok, err := h.Blobs.Get(ctx, obj.Key)
			if err != nil {
				return task.NewTransientError(fmt.Errorf("reading attachment %q: %w", obj.Key, err))
			}
			if !ok || full.UploadedAt.UnixMilli() >= p.CutoffMs {
				continue
			}
			if !p.DryRun {
				if err := h.Blobs.Delete(ctx, obj.Key); err != nil {
					return task.NewTransientError(fmt.Errorf("deleting attachment %q: %w", obj.Key, err))
				}
			}
		}
		if page.Cursor == "" || page.Cursor == cursor {
			return nil
		}
		cursor = page.Cursor
	}
}

// excluded reports whether id matches any of patterns — an exclude match
// always wins over an otherwise-eligible cleanup candidate.
func excluded(id string, patterns []string) bool {
	for _, pat := range patterns {
		if ok, _ := path.Match(pat, id); ok {
			return true
		}
	}
	return false
}
