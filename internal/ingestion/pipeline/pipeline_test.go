package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/veridocai/veridoc-backend/internal/domain"
	"github.com/veridocai/veridoc-backend/internal/embedding"
	"github.com/veridocai/veridoc-backend/internal/ingestion/extractor"
	"github.com/veridocai/veridoc-backend/internal/platform/logger"
	"github.com/veridocai/veridoc-backend/internal/platform/memvec"
	"github.com/veridocai/veridoc-backend/internal/platform/pinecone"
)

type fakeDocumentRepo struct {
	mu   sync.Mutex
	docs map[uuid.UUID]*types.Document
}

func newFakeDocumentRepo() *fakeDocumentRepo {
	return &fakeDocumentRepo{docs: map[uuid.UUID]*types.Document{}}
}

func (r *fakeDocumentRepo) Create(ctx context.Context, tx *gorm.DB, doc *types.Document) (*types.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *doc
	r.docs[doc.ID] = &cp
	return doc, nil
}

func (r *fakeDocumentRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *doc
	return &cp, nil
}

func (r *fakeDocumentRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Document, error) {
	out := []*types.Document{}
	for _, id := range ids {
		if doc, err := r.GetByID(ctx, tx, id); err == nil {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (r *fakeDocumentRepo) ListByCaseID(ctx context.Context, tx *gorm.DB, caseID uuid.UUID) ([]*types.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*types.Document{}
	for _, doc := range r.docs {
		if doc.CaseID == caseID {
			cp := *doc
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeDocumentRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for key, value := range updates {
		switch key {
		case "status":
			doc.Status = value.(string)
		case "error_message":
			doc.ErrorMessage = value.(string)
		case "page_count":
			doc.PageCount = value.(int)
		case "word_count":
			doc.WordCount = value.(int)
		case "requires_ocr":
			doc.RequiresOCR = value.(bool)
		case "ocr_completed":
			doc.OCRCompleted = value.(bool)
		case "extracted_text":
			doc.ExtractedText = value.(string)
		case "thumbnail_path":
			doc.ThumbnailPath = value.(string)
		}
	}
	return nil
}

func (r *fakeDocumentRepo) SetStatusIfNot(ctx context.Context, tx *gorm.DB, id uuid.UUID, status string, blocked string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return false, gorm.ErrRecordNotFound
	}
	if doc.Status == blocked {
		return false, nil
	}
	doc.Status = status
	return true, nil
}

func (r *fakeDocumentRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, id)
	return nil
}

type fakeChunkRepo struct {
	mu   sync.Mutex
	rows []*types.DocumentChunk
}

func (r *fakeChunkRepo) Create(ctx context.Context, tx *gorm.DB, chunks []*types.DocumentChunk) ([]*types.DocumentChunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, chunks...)
	return chunks, nil
}

func (r *fakeChunkRepo) GetByDocumentID(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*types.DocumentChunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*types.DocumentChunk{}
	for _, row := range r.rows {
		if row.DocumentID == documentID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

func (r *fakeChunkRepo) GetByEmbeddingIDs(ctx context.Context, tx *gorm.DB, embeddingIDs []string) ([]*types.DocumentChunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := map[string]bool{}
	for _, id := range embeddingIDs {
		want[id] = true
	}
	out := []*types.DocumentChunk{}
	for _, row := range r.rows {
		if want[row.EmbeddingID] {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *fakeChunkRepo) ListEmbeddingIDsByDocumentID(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []string{}
	for _, row := range r.rows {
		if row.DocumentID == documentID && row.EmbeddingID != "" {
			out = append(out, row.EmbeddingID)
		}
	}
	return out, nil
}

func (r *fakeChunkRepo) DeleteByDocumentID(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.rows[:0]
	for _, row := range r.rows {
		if row.DocumentID != documentID {
			kept = append(kept, row)
		}
	}
	r.rows = kept
	return nil
}

type fakeExtractor struct {
	result *extractor.Result
	err    error
	calls  int
}

func (f *fakeExtractor) Extract(ctx context.Context, filePath string, declaredType string) (*extractor.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeEmbedder struct {
	dim      int
	provider string
	err      error
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) (*embedding.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	vecs := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, f.dim)
		v[0] = 1
		vecs[i] = v
	}
	return &embedding.Result{Vectors: vecs, Provider: f.provider, Dimension: f.dim}, nil
}

type failingVec struct {
	pinecone.VectorStore
	upsertErr error
}

func (f *failingVec) Upsert(ctx context.Context, namespace string, vectors []pinecone.Vector) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	return f.VectorStore.Upsert(ctx, namespace, vectors)
}

func extractionResult(paragraphCount int) *extractor.Result {
	parts := make([]string, paragraphCount)
	for i := range parts {
		parts[i] = strings.Repeat(fmt.Sprintf("sentence %d of the agreement ", i), 8)
	}
	pages := []extractor.Page{}
	for i, p := range parts {
		pages = append(pages, extractor.Page{Number: i + 1, Text: strings.TrimSpace(p), Method: extractor.MethodExtraction})
	}
	texts := make([]string, len(pages))
	for i, p := range pages {
		texts[i] = p.Text
	}
	full := strings.Join(texts, "\n\n")
	return &extractor.Result{
		Text:      full,
		PageCount: len(pages),
		WordCount: len(strings.Fields(full)),
		Pages:     pages,
	}
}

type testEnv struct {
	svc    *Service
	docs   *fakeDocumentRepo
	chunks *fakeChunkRepo
	vec    *memvec.Store
	doc    *types.Document
}

func newTestEnv(t *testing.T, ex Extractor, em Embedder, vec pinecone.VectorStore) *testEnv {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	var mem *memvec.Store
	if vec == nil {
		mem, err = memvec.NewStore(log)
		if err != nil {
			t.Fatalf("memvec: %v", err)
		}
		vec = mem
	}

	docs := newFakeDocumentRepo()
	chunks := &fakeChunkRepo{}

	svc, err := New(Deps{
		Log:       log,
		Documents: docs,
		Chunks:    chunks,
		Extractor: ex,
		Embedder:  em,
		Vec:       vec,
	})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	doc := &types.Document{
		ID:               uuid.New(),
		CaseID:           uuid.New(),
		OriginalFilename: "contract.pdf",
		FilePath:         "/tmp/does-not-exist.pdf",
		FileType:         "txt",
		Status:           types.DocumentStatusProcessing,
	}
	if _, err := docs.Create(context.Background(), nil, doc); err != nil {
		t.Fatalf("seed doc: %v", err)
	}
	return &testEnv{svc: svc, docs: docs, chunks: chunks, vec: mem, doc: doc}
}

func TestIngestHappyPath(t *testing.T) {
	res := extractionResult(6)
	env := newTestEnv(t, &fakeExtractor{result: res}, &fakeEmbedder{dim: 3, provider: "openai"}, nil)
	ctx := context.Background()

	if err := env.svc.Ingest(ctx, env.doc.ID); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	doc, _ := env.docs.GetByID(ctx, nil, env.doc.ID)
	if doc.Status != types.DocumentStatusProcessed {
		t.Fatalf("expected processed, got %q (%s)", doc.Status, doc.ErrorMessage)
	}
	if doc.PageCount != res.PageCount || doc.WordCount != res.WordCount {
		t.Fatalf("extraction fields not persisted: %+v", doc)
	}
	if !doc.OCRCompleted {
		t.Fatalf("no OCR needed, ocr_completed must be true")
	}

	rows, _ := env.chunks.GetByDocumentID(ctx, nil, env.doc.ID)
	if len(rows) == 0 {
		t.Fatalf("expected chunk rows")
	}
	for i, row := range rows {
		if row.ChunkIndex != i {
			t.Fatalf("chunk indices not contiguous: row %d has index %d", i, row.ChunkIndex)
		}
		if row.StartChar < 0 || row.StartChar >= row.EndChar || row.EndChar > len(res.Text) {
			t.Fatalf("invalid span [%d, %d)", row.StartChar, row.EndChar)
		}
		if !strings.HasPrefix(row.EmbeddingID, "chunk-") {
			t.Fatalf("embedding id %q missing chunk- prefix", row.EmbeddingID)
		}
		if row.PageNumber == nil || *row.PageNumber < 1 {
			t.Fatalf("chunk %d has no resolved page", i)
		}
		if row.ParagraphNumber == nil || *row.ParagraphNumber < 1 {
			t.Fatalf("chunk %d has no resolved paragraph", i)
		}
	}

	q := []float32{1, 0, 0}
	matches, err := env.vec.QueryMatches(ctx, "chunks", q, 50, map[string]any{"case_id": env.doc.CaseID.String()})
	if err != nil {
		t.Fatalf("query vectors: %v", err)
	}
	if len(matches) != len(rows) {
		t.Fatalf("expected %d vector entries, got %d", len(rows), len(matches))
	}
}

func TestIngestExtractionFailureSetsErrorStatus(t *testing.T) {
	cause := &extractor.ExtractionError{Path: "/tmp/broken.txt", Cause: fmt.Errorf("file is empty")}
	env := newTestEnv(t, &fakeExtractor{err: cause}, &fakeEmbedder{dim: 3, provider: "openai"}, nil)
	ctx := context.Background()

	err := env.svc.Ingest(ctx, env.doc.ID)
	var exErr *extractor.ExtractionError
	if !errors.As(err, &exErr) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}

	doc, _ := env.docs.GetByID(ctx, nil, env.doc.ID)
	if doc.Status != types.DocumentStatusError {
		t.Fatalf("expected error status, got %q", doc.Status)
	}
	if doc.ErrorMessage == "" {
		t.Fatalf("expected persisted error message")
	}
}

func TestIngestErrorMessageTruncated(t *testing.T) {
	cause := fmt.Errorf("extract: %s", strings.Repeat("x", 2000))
	env := newTestEnv(t, &fakeExtractor{err: cause}, &fakeEmbedder{dim: 3, provider: "openai"}, nil)
	ctx := context.Background()

	if err := env.svc.Ingest(ctx, env.doc.ID); err == nil {
		t.Fatalf("expected failure")
	}
	doc, _ := env.docs.GetByID(ctx, nil, env.doc.ID)
	if len(doc.ErrorMessage) != errorMessageMaxLen {
		t.Fatalf("expected message truncated to %d chars, got %d", errorMessageMaxLen, len(doc.ErrorMessage))
	}
}

func TestIngestIndexWriteFailureKeepsChunkRows(t *testing.T) {
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	mem, err := memvec.NewStore(log)
	if err != nil {
		t.Fatalf("memvec: %v", err)
	}
	vec := &failingVec{VectorStore: mem, upsertErr: fmt.Errorf("qdrant unreachable")}
	env := newTestEnv(t, &fakeExtractor{result: extractionResult(4)}, &fakeEmbedder{dim: 3, provider: "openai"}, vec)
	ctx := context.Background()

	err = env.svc.Ingest(ctx, env.doc.ID)
	var idxErr *IndexWriteError
	if !errors.As(err, &idxErr) {
		t.Fatalf("expected IndexWriteError, got %v", err)
	}

	doc, _ := env.docs.GetByID(ctx, nil, env.doc.ID)
	if doc.Status != types.DocumentStatusError {
		t.Fatalf("expected error status, got %q", doc.Status)
	}
	rows, _ := env.chunks.GetByDocumentID(ctx, nil, env.doc.ID)
	if len(rows) == 0 {
		t.Fatalf("chunk rows must be retained for clean reprocess")
	}
}

func TestIngestOCRNeededPageLeavesOCRIncomplete(t *testing.T) {
	res := extractionResult(3)
	res.RequiresOCR = true
	res.Pages[1].Method = extractor.MethodOCRNeeded
	env := newTestEnv(t, &fakeExtractor{result: res}, &fakeEmbedder{dim: 3, provider: "openai"}, nil)
	ctx := context.Background()

	if err := env.svc.Ingest(ctx, env.doc.ID); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	doc, _ := env.docs.GetByID(ctx, nil, env.doc.ID)
	if doc.OCRCompleted {
		t.Fatalf("ocr_completed must be false while a page is ocr_needed")
	}
	if !doc.RequiresOCR {
		t.Fatalf("requires_ocr must be persisted")
	}
}

func TestReprocessRejectedWhileProcessing(t *testing.T) {
	env := newTestEnv(t, &fakeExtractor{result: extractionResult(2)}, &fakeEmbedder{dim: 3, provider: "openai"}, nil)
	ctx := context.Background()

	// Seeded status is processing.
	err := env.svc.Reprocess(ctx, env.doc.ID)
	var conflict *ReprocessConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ReprocessConflictError, got %v", err)
	}
}

func TestReprocessPurgesAndRebuilds(t *testing.T) {
	ex := &fakeExtractor{result: extractionResult(5)}
	env := newTestEnv(t, ex, &fakeEmbedder{dim: 3, provider: "openai"}, nil)
	ctx := context.Background()

	if err := env.svc.Ingest(ctx, env.doc.ID); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	firstRows, _ := env.chunks.GetByDocumentID(ctx, nil, env.doc.ID)
	firstIDs := map[string]bool{}
	for _, row := range firstRows {
		firstIDs[row.EmbeddingID] = true
	}

	if err := env.svc.Reprocess(ctx, env.doc.ID); err != nil {
		t.Fatalf("reprocess: %v", err)
	}

	doc, _ := env.docs.GetByID(ctx, nil, env.doc.ID)
	if doc.Status != types.DocumentStatusProcessed {
		t.Fatalf("expected processed after reprocess, got %q (%s)", doc.Status, doc.ErrorMessage)
	}
	rows, _ := env.chunks.GetByDocumentID(ctx, nil, env.doc.ID)
	if len(rows) != len(firstRows) {
		t.Fatalf("idempotent reprocess changed chunk count: %d vs %d", len(rows), len(firstRows))
	}
	for i, row := range rows {
		if row.ChunkIndex != i {
			t.Fatalf("chunk indices corrupted after reprocess")
		}
		if firstIDs[row.EmbeddingID] {
			t.Fatalf("expected fresh vector-entry ids after reprocess")
		}
	}
	if ex.calls != 2 {
		t.Fatalf("expected extraction to run twice, ran %d times", ex.calls)
	}

	matches, err := env.vec.QueryMatches(ctx, "chunks", []float32{1, 0, 0}, 50, nil)
	if err != nil {
		t.Fatalf("query vectors: %v", err)
	}
	if len(matches) != len(rows) {
		t.Fatalf("stale vector entries after reprocess: %d entries for %d chunks", len(matches), len(rows))
	}
}

func TestDeleteRemovesChunksAndVectors(t *testing.T) {
	env := newTestEnv(t, &fakeExtractor{result: extractionResult(3)}, &fakeEmbedder{dim: 3, provider: "openai"}, nil)
	ctx := context.Background()

	if err := env.svc.Ingest(ctx, env.doc.ID); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if err := env.svc.Delete(ctx, env.doc.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := env.docs.GetByID(ctx, nil, env.doc.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("document row must be gone, got %v", err)
	}
	rows, _ := env.chunks.GetByDocumentID(ctx, nil, env.doc.ID)
	if len(rows) != 0 {
		t.Fatalf("chunk rows must be gone, got %d", len(rows))
	}
	matches, err := env.vec.QueryMatches(ctx, "chunks", []float32{1, 0, 0}, 50, nil)
	if err != nil {
		t.Fatalf("query vectors: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("vector entries must be gone, got %d", len(matches))
	}
}

func TestIngestDimensionMismatchFailsFast(t *testing.T) {
	env := newTestEnv(t, &fakeExtractor{result: extractionResult(2)}, &fakeEmbedder{dim: 768, provider: "ollama"}, nil)
	env.svc.deps.VectorDim = 1536
	ctx := context.Background()

	err := env.svc.Ingest(ctx, env.doc.ID)
	if err == nil || !strings.Contains(err.Error(), "does not match index dimension") {
		t.Fatalf("expected dimension mismatch failure, got %v", err)
	}
	doc, _ := env.docs.GetByID(ctx, nil, env.doc.ID)
	if doc.Status != types.DocumentStatusError {
		t.Fatalf("expected error status, got %q", doc.Status)
	}
}
