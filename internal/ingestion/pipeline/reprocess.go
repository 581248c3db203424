package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	types "github.com/veridocai/veridoc-backend/internal/domain"
)

// BeginReprocess claims the document and purges its chunks and vector
// entries, leaving it in processing and ready for a fresh Ingest. A
// document still in processing is rejected rather than raced.
func (s *Service) BeginReprocess(ctx context.Context, documentID uuid.UUID) error {
	log := s.deps.Log.With("service", "IngestionPipeline", "document_id", documentID)

	claimed, err := s.deps.Documents.SetStatusIfNot(ctx, nil, documentID,
		types.DocumentStatusProcessing, types.DocumentStatusProcessing)
	if err != nil {
		return fmt.Errorf("claim document: %w", err)
	}
	if !claimed {
		return &ReprocessConflictError{DocumentID: documentID}
	}

	if err := s.purge(ctx, documentID); err != nil {
		s.markError(ctx, log, documentID, err)
		return err
	}
	if err := s.deps.Documents.UpdateFields(ctx, nil, documentID, map[string]interface{}{
		"error_message": "",
		"processed_at":  nil,
	}); err != nil {
		s.markError(ctx, log, documentID, err)
		return err
	}

	log.Info("document reprocess started")
	return nil
}

// Reprocess claims, purges, and re-ingests in one synchronous call.
func (s *Service) Reprocess(ctx context.Context, documentID uuid.UUID) error {
	if err := s.BeginReprocess(ctx, documentID); err != nil {
		return err
	}
	return s.Ingest(ctx, documentID)
}

// Delete removes the document's vector entries, chunk rows, stored
// files, and finally the row itself.
func (s *Service) Delete(ctx context.Context, documentID uuid.UUID) error {
	log := s.deps.Log.With("service", "IngestionPipeline", "document_id", documentID)

	doc, err := s.deps.Documents.GetByID(ctx, nil, documentID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}

	if err := s.purge(ctx, documentID); err != nil {
		return err
	}

	if doc.FilePath != "" {
		if err := os.Remove(doc.FilePath); err != nil && !os.IsNotExist(err) {
			log.Warn("original file removal failed", "path", doc.FilePath, "error", err)
		}
	}
	if doc.ThumbnailPath != "" {
		if err := os.Remove(doc.ThumbnailPath); err != nil && !os.IsNotExist(err) {
			log.Warn("thumbnail removal failed", "path", doc.ThumbnailPath, "error", err)
		}
	}

	if err := s.deps.Documents.Delete(ctx, nil, documentID); err != nil {
		return fmt.Errorf("delete document row: %w", err)
	}
	log.Info("document deleted")
	return nil
}

// purge drops vector entries first, then chunk rows. Order matters: a
// chunk row without a vector entry is recoverable, the reverse leaks
// index entries.
func (s *Service) purge(ctx context.Context, documentID uuid.UUID) error {
	embeddingIDs, err := s.deps.Chunks.ListEmbeddingIDsByDocumentID(ctx, nil, documentID)
	if err != nil {
		return fmt.Errorf("list embedding ids: %w", err)
	}
	if len(embeddingIDs) > 0 {
		if err := s.deps.Vec.DeleteIDs(ctx, s.namespace, embeddingIDs); err != nil {
			return &IndexWriteError{DocumentID: documentID, Cause: err}
		}
	}
	if err := s.deps.Chunks.DeleteByDocumentID(ctx, nil, documentID); err != nil {
		return fmt.Errorf("delete chunk rows: %w", err)
	}
	return nil
}
