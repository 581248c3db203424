// Package rag answers case-scoped questions grounded in retrieved
// document chunks, with citations and retrieval-derived confidence.
package rag

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/veridocai/veridoc-backend/internal/clients/openai"
	"github.com/veridocai/veridoc-backend/internal/data/repos/legal"
	types "github.com/veridocai/veridoc-backend/internal/domain"
	"github.com/veridocai/veridoc-backend/internal/embedding"
	"github.com/veridocai/veridoc-backend/internal/platform/envutil"
	"github.com/veridocai/veridoc-backend/internal/platform/logger"
	"github.com/veridocai/veridoc-backend/internal/platform/pinecone"
)

// RefusalAnswer is returned verbatim when retrieval finds nothing, so
// clients can detect a grounding failure without parsing prose.
const RefusalAnswer = "The provided documents do not contain sufficient information to answer this question."

const (
	defaultTopK         = 5
	defaultMaxCitations = 3
	maxQuotedChars      = 200

	generationTemperature = 0.1
	generationMaxTokens   = 1000
)

// Embedder is the slice of the embedding service the engine needs.
type Embedder interface {
	Embed(ctx context.Context, texts []string) (*embedding.Result, error)
}

// Generator produces the final answer text. A nil generator degrades
// to concatenated excerpts instead of failing.
type Generator interface {
	GenerateText(ctx context.Context, system string, user string, opts openai.GenerateOptions) (string, error)
}

type Citation struct {
	DocumentID      uuid.UUID `json:"document_id"`
	DocumentName    string    `json:"document_name"`
	ChunkID         uuid.UUID `json:"chunk_id"`
	QuotedText      string    `json:"quoted_text"`
	StartChar       int       `json:"start_char"`
	EndChar         int       `json:"end_char"`
	PageNumber      *int      `json:"page_number,omitempty"`
	ParagraphNumber *int      `json:"paragraph_number,omitempty"`
	Confidence      float32   `json:"confidence"`
}

type Confidence struct {
	Overall    float32 `json:"overall"`
	TopScore   float32 `json:"top_score"`
	NumSources int     `json:"num_sources"`
}

type Result struct {
	Answer     string      `json:"answer"`
	Citations  []Citation  `json:"citations"`
	Confidence *Confidence `json:"confidence,omitempty"`
}

// RetrievalUnavailableError is a hard engine failure, distinct from
// the soft refusal answer for empty retrieval.
type RetrievalUnavailableError struct {
	Cause error
}

func (e *RetrievalUnavailableError) Error() string {
	return fmt.Sprintf("vector retrieval unavailable: %v", e.Cause)
}

func (e *RetrievalUnavailableError) Unwrap() error { return e.Cause }

type Deps struct {
	Log       *logger.Logger
	Embedder  Embedder
	Vec       pinecone.VectorStore
	Chunks    legal.DocumentChunkRepo
	Documents legal.DocumentRepo
	Generator Generator
}

type Engine struct {
	deps Deps

	namespace     string
	caseIsolation bool
}

func New(deps Deps) (*Engine, error) {
	if deps.Log == nil || deps.Embedder == nil || deps.Vec == nil || deps.Chunks == nil || deps.Documents == nil {
		return nil, fmt.Errorf("rag engine: missing deps")
	}
	return &Engine{
		deps:          deps,
		namespace:     envutil.String("VECTOR_NAMESPACE", "chunks"),
		caseIsolation: !strings.EqualFold(envutil.String("CASE_ISOLATION", "on"), "off"),
	}, nil
}

type source struct {
	match pinecone.VectorMatch
	chunk *types.DocumentChunk
	name  string
}

// Answer embeds the question, retrieves the nearest case-scoped
// chunks, and generates a grounded answer with citations.
func (e *Engine) Answer(ctx context.Context, question string, caseID uuid.UUID, topK int, maxCitations int) (*Result, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("question is empty")
	}
	if topK <= 0 {
		topK = defaultTopK
	}
	if maxCitations <= 0 {
		maxCitations = defaultMaxCitations
	}

	embedded, err := e.deps.Embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, err
	}
	if len(embedded.Vectors) != 1 {
		return nil, fmt.Errorf("expected one question vector, got %d", len(embedded.Vectors))
	}

	var filter map[string]any
	if e.caseIsolation {
		filter = map[string]any{pinecone.MetadataCaseKey: caseID.String()}
	}
	matches, err := e.deps.Vec.QueryMatches(ctx, e.namespace, embedded.Vectors[0], topK, filter)
	if err != nil {
		return nil, &RetrievalUnavailableError{Cause: err}
	}
	if len(matches) == 0 {
		return &Result{Answer: RefusalAnswer, Citations: []Citation{}}, nil
	}

	sources, err := e.resolveSources(ctx, matches)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return &Result{Answer: RefusalAnswer, Citations: []Citation{}}, nil
	}

	answer := e.generate(ctx, question, sources)

	citationCount := maxCitations
	if citationCount > len(sources) {
		citationCount = len(sources)
	}
	citations := make([]Citation, 0, citationCount)
	for _, src := range sources[:citationCount] {
		citations = append(citations, Citation{
			DocumentID:      src.chunk.DocumentID,
			DocumentName:    src.name,
			ChunkID:         src.chunk.ID,
			QuotedText:      capQuote(src.chunk.Content),
			StartChar:       src.chunk.StartChar,
			EndChar:         src.chunk.EndChar,
			PageNumber:      src.chunk.PageNumber,
			ParagraphNumber: src.chunk.ParagraphNumber,
			Confidence:      src.match.Score,
		})
	}

	return &Result{
		Answer:     answer,
		Citations:  citations,
		Confidence: scoreConfidence(sources),
	}, nil
}

// resolveSources joins vector matches back to chunk rows and document
// names, preserving retrieval order. Matches without a surviving chunk
// row are dropped.
func (e *Engine) resolveSources(ctx context.Context, matches []pinecone.VectorMatch) ([]source, error) {
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ID)
	}
	rows, err := e.deps.Chunks.GetByEmbeddingIDs(ctx, nil, ids)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	byEmbeddingID := make(map[string]*types.DocumentChunk, len(rows))
	docIDs := make([]uuid.UUID, 0, len(rows))
	seenDocs := map[uuid.UUID]bool{}
	for _, row := range rows {
		byEmbeddingID[row.EmbeddingID] = row
		if !seenDocs[row.DocumentID] {
			seenDocs[row.DocumentID] = true
			docIDs = append(docIDs, row.DocumentID)
		}
	}

	docs, err := e.deps.Documents.GetByIDs(ctx, nil, docIDs)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	names := make(map[uuid.UUID]string, len(docs))
	for _, doc := range docs {
		names[doc.ID] = doc.OriginalFilename
	}

	sources := make([]source, 0, len(matches))
	for _, m := range matches {
		row, ok := byEmbeddingID[m.ID]
		if !ok {
			e.deps.Log.Warn("vector match has no chunk row", "embedding_id", m.ID)
			continue
		}
		name := names[row.DocumentID]
		if name == "" {
			name = "unknown document"
		}
		sources = append(sources, source{match: m, chunk: row, name: name})
	}
	return sources, nil
}

func (e *Engine) generate(ctx context.Context, question string, sources []source) string {
	if e.deps.Generator == nil {
		return degradedAnswer(sources)
	}
	answer, err := e.deps.Generator.GenerateText(ctx, systemPrompt, userPrompt(question, sources), openai.GenerateOptions{
		Temperature:     generationTemperature,
		MaxOutputTokens: generationMaxTokens,
	})
	if err != nil {
		e.deps.Log.Warn("generation failed; returning excerpts", "error", err)
		return degradedAnswer(sources)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return degradedAnswer(sources)
	}
	return answer
}

// capQuote bounds a citation excerpt, backing the cut up to a rune
// boundary so multi-byte content never yields an invalid quote.
func capQuote(text string) string {
	if len(text) <= maxQuotedChars {
		return text
	}
	cut := maxQuotedChars
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}

func scoreConfidence(sources []source) *Confidence {
	var sum, top float32
	for _, src := range sources {
		sum += src.match.Score
		if src.match.Score > top {
			top = src.match.Score
		}
	}
	return &Confidence{
		Overall:    sum / float32(len(sources)),
		TopScore:   top,
		NumSources: len(sources),
	}
}
