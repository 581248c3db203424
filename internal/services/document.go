package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/veridocai/veridoc-backend/internal/data/repos/legal"
	types "github.com/veridocai/veridoc-backend/internal/domain"
	"github.com/veridocai/veridoc-backend/internal/ingestion/pipeline"
	"github.com/veridocai/veridoc-backend/internal/platform/logger"
)

// supportedFileTypes mirrors the extraction dispatch table. Uploads
// with any other extension are rejected before a row is created.
var supportedFileTypes = map[string]bool{
	"pdf": true,
	"docx": true, "doc": true, "odt": true, "rtf": true,
	"txt": true, "csv": true, "md": true, "log": true,
	"eml":  true,
	"xlsx": true, "ods": true,
	"pptx": true,
	"epub": true,
	"xps":  true, "oxps": true,
	"jpg": true, "jpeg": true, "png": true, "gif": true,
	"bmp": true, "webp": true, "tiff": true, "tif": true,
}

type DocumentUpload struct {
	OriginalName string
	SizeBytes    int64
	Reader       io.Reader
}

type DocumentService interface {
	// Upload stores the file, creates the document row in processing,
	// and starts ingestion in the background. It returns as soon as
	// the row exists.
	Upload(ctx context.Context, caseID uuid.UUID, in DocumentUpload) (*types.Document, error)
	Get(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Document, error)
	ListByCase(ctx context.Context, tx *gorm.DB, caseID uuid.UUID) ([]*types.Document, error)
	ListChunks(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*types.DocumentChunk, error)
	Reprocess(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type documentService struct {
	db        *gorm.DB
	log       *logger.Logger
	cases     legal.CaseRepo
	documents legal.DocumentRepo
	chunks    legal.DocumentChunkRepo
	pipe      *pipeline.Service

	uploadDir string
}

func NewDocumentService(
	db *gorm.DB,
	baseLog *logger.Logger,
	cases legal.CaseRepo,
	documents legal.DocumentRepo,
	chunks legal.DocumentChunkRepo,
	pipe *pipeline.Service,
) DocumentService {
	uploadDir := strings.TrimSpace(os.Getenv("UPLOAD_DIR"))
	if uploadDir == "" {
		uploadDir = "/tmp/veridoc-uploads"
	}
	return &documentService{
		db:        db,
		log:       baseLog.With("service", "DocumentService"),
		cases:     cases,
		documents: documents,
		chunks:    chunks,
		pipe:      pipe,
		uploadDir: uploadDir,
	}
}

func (s *documentService) Upload(ctx context.Context, caseID uuid.UUID, in DocumentUpload) (*types.Document, error) {
	if _, err := s.cases.GetByID(ctx, nil, caseID); err != nil {
		return nil, fmt.Errorf("case lookup: %w", err)
	}

	fileType := strings.ToLower(strings.TrimPrefix(filepath.Ext(in.OriginalName), "."))
	if !supportedFileTypes[fileType] {
		return nil, fmt.Errorf("unsupported file type %q", fileType)
	}

	id := uuid.New()
	storedName := id.String() + "." + fileType
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("upload dir: %w", err)
	}
	filePath := filepath.Join(s.uploadDir, storedName)

	f, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("store file: %w", err)
	}
	written, err := io.Copy(f, in.Reader)
	closeErr := f.Close()
	if err != nil {
		_ = os.Remove(filePath)
		return nil, fmt.Errorf("store file: %w", err)
	}
	if closeErr != nil {
		_ = os.Remove(filePath)
		return nil, fmt.Errorf("store file: %w", closeErr)
	}

	doc := &types.Document{
		ID:               id,
		CaseID:           caseID,
		Filename:         storedName,
		OriginalFilename: in.OriginalName,
		FilePath:         filePath,
		FileType:         fileType,
		FileSize:         written,
		Status:           types.DocumentStatusProcessing,
	}
	if _, err := s.documents.Create(ctx, nil, doc); err != nil {
		_ = os.Remove(filePath)
		return nil, fmt.Errorf("create document: %w", err)
	}

	s.startIngestion(doc.ID)
	return doc, nil
}

// startIngestion detaches the processing run from the request. Errors
// land on the document row, not the caller.
func (s *documentService) startIngestion(id uuid.UUID) {
	go func() {
		if err := s.pipe.Ingest(context.Background(), id); err != nil {
			s.log.Error("background ingestion failed", "document_id", id, "error", err)
		}
	}()
}

func (s *documentService) Get(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Document, error) {
	return s.documents.GetByID(ctx, tx, id)
}

func (s *documentService) ListByCase(ctx context.Context, tx *gorm.DB, caseID uuid.UUID) ([]*types.Document, error) {
	return s.documents.ListByCaseID(ctx, tx, caseID)
}

func (s *documentService) ListChunks(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*types.DocumentChunk, error) {
	return s.chunks.GetByDocumentID(ctx, tx, documentID)
}

// Reprocess purges synchronously so conflicts surface to the caller,
// then re-runs ingestion in the background.
func (s *documentService) Reprocess(ctx context.Context, id uuid.UUID) error {
	if err := s.pipe.BeginReprocess(ctx, id); err != nil {
		return err
	}
	s.startIngestion(id)
	return nil
}

func (s *documentService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.pipe.Delete(ctx, id)
}
