package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/veridocai/veridoc-backend/internal/clients/openai"
	types "github.com/veridocai/veridoc-backend/internal/domain"
	"github.com/veridocai/veridoc-backend/internal/embedding"
	"github.com/veridocai/veridoc-backend/internal/platform/logger"
	"github.com/veridocai/veridoc-backend/internal/platform/memvec"
	"github.com/veridocai/veridoc-backend/internal/platform/pinecone"
)

type stubEmbedder struct{ vec []float32 }

func (s *stubEmbedder) Embed(ctx context.Context, texts []string) (*embedding.Result, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.vec
	}
	return &embedding.Result{Vectors: out, Provider: "stub", Dimension: len(s.vec)}, nil
}

type stubVec struct {
	matches []pinecone.VectorMatch
	err     error
	filter  map[string]any
}

func (s *stubVec) Upsert(ctx context.Context, namespace string, vectors []pinecone.Vector) error {
	return nil
}

func (s *stubVec) QueryMatches(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]pinecone.VectorMatch, error) {
	s.filter = filter
	if s.err != nil {
		return nil, s.err
	}
	if topK < len(s.matches) {
		return s.matches[:topK], nil
	}
	return s.matches, nil
}

func (s *stubVec) QueryIDs(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]string, error) {
	matches, err := s.QueryMatches(ctx, namespace, q, topK, filter)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (s *stubVec) DeleteIDs(ctx context.Context, namespace string, ids []string) error { return nil }

type stubChunkRepo struct {
	rows map[string]*types.DocumentChunk
}

func (r *stubChunkRepo) Create(ctx context.Context, tx *gorm.DB, chunks []*types.DocumentChunk) ([]*types.DocumentChunk, error) {
	return chunks, nil
}

func (r *stubChunkRepo) GetByDocumentID(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*types.DocumentChunk, error) {
	return nil, nil
}

func (r *stubChunkRepo) GetByEmbeddingIDs(ctx context.Context, tx *gorm.DB, embeddingIDs []string) ([]*types.DocumentChunk, error) {
	out := []*types.DocumentChunk{}
	for _, id := range embeddingIDs {
		if row, ok := r.rows[id]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *stubChunkRepo) ListEmbeddingIDsByDocumentID(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]string, error) {
	return nil, nil
}

func (r *stubChunkRepo) DeleteByDocumentID(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) error {
	return nil
}

type stubDocRepo struct {
	docs map[uuid.UUID]*types.Document
}

func (r *stubDocRepo) Create(ctx context.Context, tx *gorm.DB, doc *types.Document) (*types.Document, error) {
	return doc, nil
}

func (r *stubDocRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Document, error) {
	doc, ok := r.docs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return doc, nil
}

func (r *stubDocRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Document, error) {
	out := []*types.Document{}
	for _, id := range ids {
		if doc, ok := r.docs[id]; ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (r *stubDocRepo) ListByCaseID(ctx context.Context, tx *gorm.DB, caseID uuid.UUID) ([]*types.Document, error) {
	return nil, nil
}

func (r *stubDocRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	return nil
}

func (r *stubDocRepo) SetStatusIfNot(ctx context.Context, tx *gorm.DB, id uuid.UUID, status string, blocked string) (bool, error) {
	return false, nil
}

func (r *stubDocRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error { return nil }

type stubGenerator struct {
	answer string
	err    error

	system string
	user   string
	opts   openai.GenerateOptions
	calls  int
}

func (g *stubGenerator) GenerateText(ctx context.Context, system string, user string, opts openai.GenerateOptions) (string, error) {
	g.calls++
	g.system = system
	g.user = user
	g.opts = opts
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}

type seededCase struct {
	caseID uuid.UUID
	docID  uuid.UUID
	chunks *stubChunkRepo
	docs   *stubDocRepo
	vec    *stubVec
}

func seedSources(t *testing.T, count int, content string) *seededCase {
	t.Helper()
	caseID := uuid.New()
	docID := uuid.New()

	chunks := &stubChunkRepo{rows: map[string]*types.DocumentChunk{}}
	docs := &stubDocRepo{docs: map[uuid.UUID]*types.Document{
		docID: {ID: docID, CaseID: caseID, OriginalFilename: "deposition.pdf"},
	}}
	matches := []pinecone.VectorMatch{}
	for i := 0; i < count; i++ {
		chunkID := uuid.New()
		embeddingID := "chunk-" + chunkID.String()
		page := i + 1
		chunks.rows[embeddingID] = &types.DocumentChunk{
			ID:          chunkID,
			DocumentID:  docID,
			ChunkIndex:  i,
			Content:     content,
			StartChar:   i * 100,
			EndChar:     i*100 + len(content),
			PageNumber:  &page,
			EmbeddingID: embeddingID,
		}
		matches = append(matches, pinecone.VectorMatch{ID: embeddingID, Score: 0.9 - float32(i)*0.1})
	}
	return &seededCase{
		caseID: caseID,
		docID:  docID,
		chunks: chunks,
		docs:   docs,
		vec:    &stubVec{matches: matches},
	}
}

func newTestEngine(t *testing.T, seed *seededCase, gen Generator) *Engine {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	engine, err := New(Deps{
		Log:       log,
		Embedder:  &stubEmbedder{vec: []float32{1, 0, 0}},
		Vec:       seed.vec,
		Chunks:    seed.chunks,
		Documents: seed.docs,
		Generator: gen,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func TestAnswerRefusesVerbatimOnEmptyRetrieval(t *testing.T) {
	seed := seedSources(t, 0, "")
	engine := newTestEngine(t, seed, &stubGenerator{answer: "should not run"})

	res, err := engine.Answer(context.Background(), "What was agreed?", seed.caseID, 5, 3)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if res.Answer != RefusalAnswer {
		t.Fatalf("expected verbatim refusal, got %q", res.Answer)
	}
	if len(res.Citations) != 0 {
		t.Fatalf("refusal must carry no citations")
	}
	if res.Confidence != nil {
		t.Fatalf("refusal must carry nil confidence")
	}
}

func TestAnswerCapsCitationsAndQuotes(t *testing.T) {
	longContent := strings.Repeat("The witness testified at length about the schedule. ", 10)
	seed := seedSources(t, 5, longContent)
	gen := &stubGenerator{answer: "The schedule was disputed. [Source 1]"}
	engine := newTestEngine(t, seed, gen)

	res, err := engine.Answer(context.Background(), "What did the witness say?", seed.caseID, 5, 2)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if len(res.Citations) != 2 {
		t.Fatalf("expected exactly 2 citations, got %d", len(res.Citations))
	}
	for _, c := range res.Citations {
		if !strings.HasSuffix(c.QuotedText, "...") {
			t.Fatalf("long quote must end with ellipsis, got %q", c.QuotedText)
		}
		if len(c.QuotedText) != maxQuotedChars+3 {
			t.Fatalf("quote length %d, want %d", len(c.QuotedText), maxQuotedChars+3)
		}
		if c.DocumentName != "deposition.pdf" {
			t.Fatalf("unexpected document name %q", c.DocumentName)
		}
	}
}

func TestAnswerQuoteTruncationKeepsValidUTF8(t *testing.T) {
	// Three bytes per rune, so the cap lands mid-rune and must back up.
	multibyte := strings.Repeat("€", 100)
	seed := seedSources(t, 1, multibyte)
	engine := newTestEngine(t, seed, &stubGenerator{answer: "Answer. [Source 1]"})

	res, err := engine.Answer(context.Background(), "Question?", seed.caseID, 5, 3)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	quote := res.Citations[0].QuotedText
	if !utf8.ValidString(quote) {
		t.Fatalf("truncated quote is not valid UTF-8: %q", quote)
	}
	if !strings.HasSuffix(quote, "...") {
		t.Fatalf("long quote must end with ellipsis, got %q", quote)
	}
	if got := len(quote); got > maxQuotedChars+3 {
		t.Fatalf("quote length %d exceeds cap %d", got, maxQuotedChars+3)
	}
	if !strings.HasPrefix(quote, "€") || strings.Contains(quote, "�") {
		t.Fatalf("quote content corrupted: %q", quote)
	}
}

func TestAnswerShortQuoteNotTruncated(t *testing.T) {
	seed := seedSources(t, 1, "Short excerpt.")
	engine := newTestEngine(t, seed, &stubGenerator{answer: "Answer. [Source 1]"})

	res, err := engine.Answer(context.Background(), "Question?", seed.caseID, 5, 3)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if res.Citations[0].QuotedText != "Short excerpt." {
		t.Fatalf("short quote must be verbatim, got %q", res.Citations[0].QuotedText)
	}
}

func TestAnswerConfidenceFromRetrievalScores(t *testing.T) {
	seed := seedSources(t, 3, "Relevant text.")
	engine := newTestEngine(t, seed, &stubGenerator{answer: "Answer. [Source 1]"})

	res, err := engine.Answer(context.Background(), "Question?", seed.caseID, 5, 3)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if res.Confidence == nil {
		t.Fatalf("expected confidence")
	}
	// Scores are 0.9, 0.8, 0.7.
	if res.Confidence.NumSources != 3 {
		t.Fatalf("num_sources = %d, want 3", res.Confidence.NumSources)
	}
	if res.Confidence.TopScore != 0.9 {
		t.Fatalf("top_score = %v, want 0.9", res.Confidence.TopScore)
	}
	wantOverall := (float32(0.9) + 0.8 + 0.7) / 3
	if diff := res.Confidence.Overall - wantOverall; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("overall = %v, want %v", res.Confidence.Overall, wantOverall)
	}
}

func TestAnswerPromptAndGenerationOptions(t *testing.T) {
	seed := seedSources(t, 2, "The lease runs through 2027.")
	gen := &stubGenerator{answer: "The lease runs through 2027. [Source 1]"}
	engine := newTestEngine(t, seed, gen)

	question := "When does the lease end?"
	if _, err := engine.Answer(context.Background(), question, seed.caseID, 5, 3); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if gen.calls != 1 {
		t.Fatalf("expected one generation call, got %d", gen.calls)
	}
	if gen.opts.Temperature != generationTemperature || gen.opts.MaxOutputTokens != generationMaxTokens {
		t.Fatalf("unexpected generation options %+v", gen.opts)
	}
	if !strings.Contains(gen.user, "[Source 1 - deposition.pdf, Page 1]:") {
		t.Fatalf("prompt missing labeled source block:\n%s", gen.user)
	}
	if !strings.Contains(gen.user, "Question: "+question) {
		t.Fatalf("prompt missing question")
	}
	if !strings.Contains(gen.system, RefusalAnswer) {
		t.Fatalf("system prompt must carry the refusal sentence")
	}
}

func TestAnswerDegradesWithoutGenerator(t *testing.T) {
	seed := seedSources(t, 2, "Key excerpt about damages.")
	engine := newTestEngine(t, seed, nil)

	res, err := engine.Answer(context.Background(), "What are the damages?", seed.caseID, 5, 3)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if !strings.Contains(res.Answer, "No generation provider is configured") {
		t.Fatalf("expected degraded note, got %q", res.Answer)
	}
	if !strings.Contains(res.Answer, "Key excerpt about damages.") {
		t.Fatalf("expected excerpts in degraded answer")
	}
	if len(res.Citations) == 0 || res.Confidence == nil {
		t.Fatalf("degraded answer still carries citations and confidence")
	}
}

func TestAnswerRetrievalFailureIsHardError(t *testing.T) {
	seed := seedSources(t, 0, "")
	seed.vec.err = fmt.Errorf("connection refused")
	engine := newTestEngine(t, seed, nil)

	_, err := engine.Answer(context.Background(), "Question?", seed.caseID, 5, 3)
	var unavailable *RetrievalUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected RetrievalUnavailableError, got %v", err)
	}
}

func TestAnswerAppliesCaseFilter(t *testing.T) {
	seed := seedSources(t, 1, "Scoped content.")
	engine := newTestEngine(t, seed, &stubGenerator{answer: "Answer. [Source 1]"})

	if _, err := engine.Answer(context.Background(), "Question?", seed.caseID, 5, 3); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if seed.vec.filter == nil || seed.vec.filter["case_id"] != seed.caseID.String() {
		t.Fatalf("expected case_id filter, got %v", seed.vec.filter)
	}
}

func TestAnswerCaseIsolationAgainstRealStore(t *testing.T) {
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	store, err := memvec.NewStore(log)
	if err != nil {
		t.Fatalf("memvec: %v", err)
	}
	ctx := context.Background()

	caseA := uuid.New()
	caseB := uuid.New()
	docA := uuid.New()
	docB := uuid.New()

	chunks := &stubChunkRepo{rows: map[string]*types.DocumentChunk{}}
	docs := &stubDocRepo{docs: map[uuid.UUID]*types.Document{
		docA: {ID: docA, CaseID: caseA, OriginalFilename: "case-a.pdf"},
		docB: {ID: docB, CaseID: caseB, OriginalFilename: "case-b.pdf"},
	}}

	seedChunk := func(caseID, docID uuid.UUID, content string) {
		chunkID := uuid.New()
		embeddingID := "chunk-" + chunkID.String()
		page := 1
		chunks.rows[embeddingID] = &types.DocumentChunk{
			ID: chunkID, DocumentID: docID, Content: content,
			PageNumber: &page, EmbeddingID: embeddingID,
		}
		if err := store.Upsert(ctx, "chunks", []pinecone.Vector{{
			ID:     embeddingID,
			Values: []float32{1, 0, 0},
			Metadata: map[string]any{
				"case_id":     caseID.String(),
				"document_id": docID.String(),
				"text":        content,
			},
		}}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	seedChunk(caseA, docA, "Case A contract clause.")
	seedChunk(caseB, docB, "Case B contract clause.")

	engine, err := New(Deps{
		Log:       log,
		Embedder:  &stubEmbedder{vec: []float32{1, 0, 0}},
		Vec:       store,
		Chunks:    chunks,
		Documents: docs,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	res, err := engine.Answer(ctx, "What does the contract say?", caseA, 10, 10)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if len(res.Citations) != 1 {
		t.Fatalf("expected exactly the case A citation, got %d", len(res.Citations))
	}
	if res.Citations[0].DocumentID != docA {
		t.Fatalf("case isolation violated: got document %s", res.Citations[0].DocumentID)
	}
}
