// Package pipeline drives document ingestion end to end: extraction,
// chunking, embedding, vector index writes, and the document status
// state machine.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/veridocai/veridoc-backend/internal/data/repos/legal"
	types "github.com/veridocai/veridoc-backend/internal/domain"
	"github.com/veridocai/veridoc-backend/internal/embedding"
	"github.com/veridocai/veridoc-backend/internal/ingestion/chunker"
	"github.com/veridocai/veridoc-backend/internal/ingestion/extractor"
	"github.com/veridocai/veridoc-backend/internal/platform/doctools"
	"github.com/veridocai/veridoc-backend/internal/platform/envutil"
	"github.com/veridocai/veridoc-backend/internal/platform/logger"
	"github.com/veridocai/veridoc-backend/internal/platform/pinecone"
)

const errorMessageMaxLen = 500

// Extractor is the slice of the extraction service the pipeline needs.
type Extractor interface {
	Extract(ctx context.Context, filePath string, declaredType string) (*extractor.Result, error)
}

// Embedder is the slice of the embedding service the pipeline needs.
type Embedder interface {
	Embed(ctx context.Context, texts []string) (*embedding.Result, error)
}

type Deps struct {
	Log       *logger.Logger
	Documents legal.DocumentRepo
	Chunks    legal.DocumentChunkRepo
	Extractor Extractor
	Embedder  Embedder
	Vec       pinecone.VectorStore
	Tools     doctools.Tools

	// VectorDim is the dimension the index was created with. A batch
	// served with any other dimension fails ingestion before the index
	// write. Zero disables the check.
	VectorDim int
}

type Service struct {
	deps Deps

	namespace    string
	chunkSize    int
	chunkOverlap int
	fixedWindow  bool

	thumbnailDir string
}

func New(deps Deps) (*Service, error) {
	if deps.Log == nil || deps.Documents == nil || deps.Chunks == nil {
		return nil, fmt.Errorf("ingestion pipeline: missing deps")
	}
	if deps.Extractor == nil || deps.Embedder == nil || deps.Vec == nil {
		return nil, fmt.Errorf("ingestion pipeline: missing extractor, embedder, or vector store")
	}

	size := envutil.Int("CHUNK_SIZE", 1000)
	if size <= 0 {
		size = 1000
	}
	overlap := envutil.Int("CHUNK_OVERLAP", 200)
	if overlap < 0 {
		overlap = 200
	}
	if overlap >= size {
		return nil, fmt.Errorf("ingestion pipeline: CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", overlap, size)
	}

	return &Service{
		deps:         deps,
		namespace:    envutil.String("VECTOR_NAMESPACE", "chunks"),
		chunkSize:    size,
		chunkOverlap: overlap,
		fixedWindow:  strings.EqualFold(envutil.String("CHUNK_MODE", ""), "fixed"),
		thumbnailDir: envutil.String("THUMBNAIL_DIR", "/tmp/veridoc-thumbs"),
	}, nil
}

// Ingest runs the full processing sequence for one document. It is
// the sole writer of the document row while the status is processing;
// callers start it after the upload response has been sent.
func (s *Service) Ingest(ctx context.Context, documentID uuid.UUID) error {
	log := s.deps.Log.With("service", "IngestionPipeline", "document_id", documentID)

	doc, err := s.deps.Documents.GetByID(ctx, nil, documentID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}

	if err := s.run(ctx, log, doc); err != nil {
		log.Error("ingestion failed", "error", err)
		s.markError(ctx, log, doc.ID, err)
		return err
	}
	return nil
}

func (s *Service) run(ctx context.Context, log *logger.Logger, doc *types.Document) error {
	s.generateThumbnail(ctx, log, doc)

	res, err := s.deps.Extractor.Extract(ctx, doc.FilePath, doc.FileType)
	if err != nil {
		return err
	}

	ocrCompleted := !res.RequiresOCR || allNeededPagesRecognized(res.Pages)
	if err := s.deps.Documents.UpdateFields(ctx, nil, doc.ID, map[string]interface{}{
		"page_count":     res.PageCount,
		"word_count":     res.WordCount,
		"requires_ocr":   res.RequiresOCR,
		"ocr_completed":  ocrCompleted,
		"extracted_text": res.Text,
	}); err != nil {
		return fmt.Errorf("persist extraction fields: %w", err)
	}

	mapping := pageMapping(res.Pages)
	chunks, err := s.chunk(res.Text, mapping)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		log.Warn("document produced no chunks", "page_count", res.PageCount)
		return s.markProcessed(ctx, doc.ID)
	}

	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.Content)
	}
	embedded, err := s.deps.Embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}
	if s.deps.VectorDim > 0 && embedded.Dimension != s.deps.VectorDim {
		return fmt.Errorf("embedding dimension %d from provider %q does not match index dimension %d",
			embedded.Dimension, embedded.Provider, s.deps.VectorDim)
	}

	rows := make([]*types.DocumentChunk, 0, len(chunks))
	vectors := make([]pinecone.Vector, 0, len(chunks))
	for i, c := range chunks {
		id := uuid.New()
		embeddingID := "chunk-" + id.String()

		var pageNum *int
		if c.PageNumber > 0 {
			p := c.PageNumber
			pageNum = &p
		}
		var paraNum *int
		if c.ParagraphNumber > 0 {
			p := c.ParagraphNumber
			paraNum = &p
		}

		meta := map[string]any{
			pinecone.MetadataCaseKey: doc.CaseID.String(),
			"document_id":            doc.ID.String(),
			"document_name":          doc.OriginalFilename,
			"chunk_index":            c.Index,
			"text":                   c.Content,
		}
		if pageNum != nil {
			meta["page_number"] = *pageNum
		}
		if paraNum != nil {
			meta["paragraph_number"] = *paraNum
		}

		metaJSON, err := json.Marshal(map[string]any{"embedding_provider": embedded.Provider})
		if err != nil {
			metaJSON = []byte("{}")
		}

		rows = append(rows, &types.DocumentChunk{
			ID:              id,
			DocumentID:      doc.ID,
			ChunkIndex:      c.Index,
			Content:         c.Content,
			StartChar:       c.StartChar,
			EndChar:         c.EndChar,
			PageNumber:      pageNum,
			ParagraphNumber: paraNum,
			EmbeddingID:     embeddingID,
			Metadata:        datatypes.JSON(metaJSON),
		})
		vectors = append(vectors, pinecone.Vector{
			ID:       embeddingID,
			Values:   embedded.Vectors[i],
			Metadata: meta,
		})
	}

	if _, err := s.deps.Chunks.Create(ctx, nil, rows); err != nil {
		return fmt.Errorf("persist chunks: %w", err)
	}

	if err := s.deps.Vec.Upsert(ctx, s.namespace, vectors); err != nil {
		// Chunk rows stay in place; reprocess purges and rebuilds.
		return &IndexWriteError{DocumentID: doc.ID, Cause: err}
	}

	log.Info("document ingested",
		"chunks", len(rows),
		"pages", res.PageCount,
		"words", res.WordCount,
		"requires_ocr", res.RequiresOCR,
		"embedding_provider", embedded.Provider,
	)
	return s.markProcessed(ctx, doc.ID)
}

func (s *Service) chunk(text string, mapping chunker.PageMapping) ([]chunker.Chunk, error) {
	if s.fixedWindow {
		return chunker.SplitFixed(text, s.chunkSize, s.chunkOverlap, mapping)
	}
	return chunker.Split(text, s.chunkSize, s.chunkOverlap, mapping)
}

func (s *Service) markProcessed(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	return s.deps.Documents.UpdateFields(ctx, nil, id, map[string]interface{}{
		"status":        types.DocumentStatusProcessed,
		"error_message": "",
		"processed_at":  &now,
	})
}

func (s *Service) markError(ctx context.Context, log *logger.Logger, id uuid.UUID, cause error) {
	msg := cause.Error()
	if len(msg) > errorMessageMaxLen {
		msg = msg[:errorMessageMaxLen]
	}
	if err := s.deps.Documents.UpdateFields(ctx, nil, id, map[string]interface{}{
		"status":        types.DocumentStatusError,
		"error_message": msg,
	}); err != nil {
		log.Error("failed to persist error status", "error", err)
	}
}

// generateThumbnail is best-effort: failures log and ingestion
// continues.
func (s *Service) generateThumbnail(ctx context.Context, log *logger.Logger, doc *types.Document) {
	if s.deps.Tools == nil || !strings.EqualFold(doc.FileType, "pdf") {
		return
	}
	if err := os.MkdirAll(s.thumbnailDir, 0o755); err != nil {
		log.Warn("thumbnail dir unavailable", "error", err)
		return
	}
	outPath := filepath.Join(s.thumbnailDir, doc.ID.String()+".jpg")
	if _, err := s.deps.Tools.GenerateThumbnail(ctx, doc.FilePath, outPath); err != nil {
		log.Warn("thumbnail generation failed", "error", err)
		return
	}
	if err := s.deps.Documents.UpdateFields(ctx, nil, doc.ID, map[string]interface{}{
		"thumbnail_path": outPath,
	}); err != nil {
		log.Warn("thumbnail path update failed", "error", err)
	}
}

func allNeededPagesRecognized(pages []extractor.Page) bool {
	for _, p := range pages {
		if p.Method == extractor.MethodOCRNeeded {
			return false
		}
	}
	return true
}

func pageMapping(pages []extractor.Page) chunker.PageMapping {
	texts := make([]chunker.PageText, 0, len(pages))
	for _, p := range pages {
		texts = append(texts, chunker.PageText{Number: p.Number, Text: p.Text})
	}
	return chunker.BuildPageMapping(texts)
}
