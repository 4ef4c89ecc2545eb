package handlers

import (
	"fmt"

	"context"

	"go.uber.org/zap"

	"github.com/itskum47/mailforge/internal/index"
	"github.com/itskum47/mailforge/internal/task"
)

// IndexSearchHandler implements spec §4.5's index_search: write the
// document (chunked or whole) into the inverted index. A positive
// options.chunk_size is passed to Indexer.IndexChunked as is; an unset
// (0) chunk_size indexes the whole document.
type IndexSearchHandler struct {
	Index *index.Indexer
	Log   *zap.Logger
}

func (h *IndexSearchHandler) Handle(ctx context.Context, t *task.Task, progress ProgressFunc) error {
	var p task.IndexSearchPayload
	if err := task.DecodeAndValidate(t.Payload, &p); err != nil {
		return err
	}
	if err := task.ValidateLanguage(p.Options.Language); err != nil {
		return task.NewValidationError("index_search: %w", err)
	}
	lang := p.Options.Language
	if lang == "" {
		lang = "en"
	}

	if p.Options.ChunkSize > 0 {
		if err := h.Index.IndexChunked(ctx, p.DocID, p.Content, lang, p.Options.ChunkSize, index.ProgressFunc(progress)); err != nil {
			return classifyIndexErr(err)
		}
		return nil
	}

	if err := h.Index.IndexDocument(ctx, p.DocType, p.DocID, p.Content, p.Metadata, lang); err != nil {
		return classifyIndexErr(err)
	}
	progress(100)
	return nil
}

func classifyIndexErr(err error) error {
	if task.KindOf(err) != task.ErrTransient {
		return err
	}
	return task.NewTransientError(fmt.Errorf("indexing: %w", err))
}
