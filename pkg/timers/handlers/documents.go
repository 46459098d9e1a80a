package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/applyflow/pkg/models"
	"github.com/dukex/applyflow/pkg/persistence"
)

// DocDeletion removes the documents of a rolled back application unless another application
// still references them. Each document is handled independently.
func (h *Handlers) DocDeletion(ctx context.Context, timer *models.ScheduledTimer) error {
	logger := h.timerLogger(timer)

	var errs []error

	for _, key := range []string{models.TimerMetaResumeID, models.TimerMetaCoverLetterID} {
		id := timer.MetadataString(key)
		if id == "" {
			continue
		}

		err := h.deleteDocument(ctx, id)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to delete document", "document_id", id, "error", err)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (h *Handlers) deleteDocument(ctx context.Context, id string) error {
	repos := h.persistence.Repositories()

	doc, err := repos.Documents.ByID(ctx, id)
	if err != nil {
		if errors.Is(err, persistence.ErrDocumentNotFound) {
			return nil
		}

		return fmt.Errorf("failed to load document %s: %w", id, err)
	}

	refs, err := repos.Applications.CountReferencingDocument(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to count references of document %s: %w", id, err)
	}

	if refs > 0 {
		h.logger.InfoContext(ctx, "Document still referenced, keeping it", "document_id", id, "references", refs)

		return nil
	}

	err = h.storage.Delete(ctx, doc.StorageKey)
	if err != nil {
		return fmt.Errorf("failed to delete stored file of document %s: %w", id, err)
	}

	err = repos.Documents.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}

	h.logger.InfoContext(ctx, "Document deleted", "document_id", id, "kind", doc.Kind)

	return nil
}
