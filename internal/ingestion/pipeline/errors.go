package pipeline

import (
	"fmt"

	"github.com/google/uuid"
)

// IndexWriteError marks a vector store failure after chunk rows were
// persisted. The rows are kept so a later reprocess can purge and
// rebuild cleanly.
type IndexWriteError struct {
	DocumentID uuid.UUID
	Cause      error
}

func (e *IndexWriteError) Error() string {
	return fmt.Sprintf("vector index write failed for document %s: %v", e.DocumentID, e.Cause)
}

func (e *IndexWriteError) Unwrap() error { return e.Cause }

// ReprocessConflictError is returned when a reprocess is requested for
// a document whose ingestion is still in flight.
type ReprocessConflictError struct {
	DocumentID uuid.UUID
}

func (e *ReprocessConflictError) Error() string {
	return fmt.Sprintf("document %s is processing; reprocess rejected", e.DocumentID)
}
