package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/itskum47/mailforge/internal/collaborators/blobstore"
	"github.com/itskum47/mailforge/internal/task"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	if name == "" {
		return "attachment"
	}
	return name
}

// ProcessAttachmentsHandler implements spec §4.5's process_attachments:
// validate MIME type and size against the caller's allow-list, sanitize the
// filename, checksum the blob, and re-store it under its normative key.
type ProcessAttachmentsHandler struct {
	Blobs blobstore.Store
	Log   *zap.Logger
}

func (h *ProcessAttachmentsHandler) Handle(ctx context.Context, t *task.Task, progress ProgressFunc) error {
	var p task.ProcessAttachmentsPayload
	if err := task.DecodeAndValidate(t.Payload, &p); err != nil {
		return err
	}

	allowed := make(map[string]struct{}, len(p.AllowedMIME))
	for _, m := range p.AllowedMIME {
		allowed[m] = struct{}{}
	}

	total := len(p.Attachments)
	for i, att := range p.Attachments {
		if att.SizeBytes > p.MaxSizeBytes {
			return task.NewValidationError("attachment %q exceeds max size %d bytes", att.Filename, p.MaxSizeBytes)
		}
		if _, ok := allowed[att.ContentType]; !ok {
			return task.NewValidationError("attachment %q has disallowed content type %q", att.Filename, att.ContentType)
		}

		obj, ok, err := h.Blobs.Get(ctx, att.BlobKey)
		if err != nil {
			return task.NewTransientError(fmt.Errorf("reading attachment blob %q: %w", att.BlobKey, err))
		}
		if !ok {
			return task.NewIntegrityError(fmt.Errorf("attachment blob %q not found", att.BlobKey))
		}

		sum := sha256.Sum256(obj.Body)
		checksum := hex.EncodeToString(sum[:])
		finalKey := blobstore.AttachmentKey(uuid.NewString(), sanitizeFilename(att.Filename))

		if err := h.Blobs.Put(ctx, finalKey, obj.Body, map[string]string{"content-type": att.ContentType}, map[string]string{
			"email_id": p.EmailID,
			"sha256":   checksum,
			"filename": sanitizeFilename(att.Filename),
		}); err != nil {
			return task.NewTransientError(fmt.Errorf("storing attachment %q: %w", att.Filename, err))
		}

		progress((i + 1) * 100 / total)
	}
	return nil
}
