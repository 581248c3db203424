package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/veridocai/veridoc-backend/internal/embedding"
	"github.com/veridocai/veridoc-backend/internal/ingestion/extractor"
	"github.com/veridocai/veridoc-backend/internal/ingestion/pipeline"
	"github.com/veridocai/veridoc-backend/internal/platform/logger"
	"github.com/veridocai/veridoc-backend/internal/platform/pinecone"
	"github.com/veridocai/veridoc-backend/internal/rag"
	"github.com/veridocai/veridoc-backend/internal/services"
)

type Services struct {
	Case     services.CaseService
	Document services.DocumentService
	Query    services.QueryService

	Embedding *embedding.Service
	Pipeline  *pipeline.Service
	Engine    *rag.Engine
	Vec       pinecone.VectorStore
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, clients Clients, reposet Repos) (Services, error) {
	log.Info("Wiring services...")

	// Embedding chain: OpenAI first, Ollama as fallback.
	var providers []embedding.Provider
	if clients.OpenAI != nil {
		providers = append(providers, embedding.NewOpenAIProvider(clients.OpenAI))
	}
	if clients.Ollama != nil {
		providers = append(providers, embedding.NewOllamaProvider(clients.Ollama))
	}
	embedder, err := embedding.NewService(log, providers...)
	if err != nil {
		return Services{}, fmt.Errorf("init embedding service: %w", err)
	}

	vecCfg, err := resolveVectorProviderConfig()
	if err != nil {
		return Services{}, err
	}
	vec, err := resolveVectorStoreProvider(log, vecCfg)
	if err != nil {
		return Services{}, err
	}
	// Only qdrant declares its dimension up front; the others accept
	// whatever the embedding chain produces.
	vectorDim := 0
	if vecCfg.Provider == VectorProviderQdrant {
		vectorDim = vecCfg.Qdrant.VectorDim
	}

	var ocr extractor.OCREngine
	if clients.Vision != nil {
		ocr = clients.Vision
	}
	extract := extractor.New(log, clients.Tools, ocr)

	pipe, err := pipeline.New(pipeline.Deps{
		Log:       log,
		Documents: reposet.Document,
		Chunks:    reposet.DocumentChunk,
		Extractor: extract,
		Embedder:  embedder,
		Vec:       vec,
		Tools:     clients.Tools,
		VectorDim: vectorDim,
	})
	if err != nil {
		return Services{}, fmt.Errorf("init ingestion pipeline: %w", err)
	}

	var generator rag.Generator
	if clients.OpenAI != nil {
		generator = clients.OpenAI
	}
	engine, err := rag.New(rag.Deps{
		Log:       log,
		Embedder:  embedder,
		Vec:       vec,
		Chunks:    reposet.DocumentChunk,
		Documents: reposet.Document,
		Generator: generator,
	})
	if err != nil {
		return Services{}, fmt.Errorf("init rag engine: %w", err)
	}

	return Services{
		Case:      services.NewCaseService(db, log, reposet.Case),
		Document:  services.NewDocumentService(db, log, reposet.Case, reposet.Document, reposet.DocumentChunk, pipe),
		Query:     services.NewQueryService(db, log, engine, reposet.Query, reposet.Case),
		Embedding: embedder,
		Pipeline:  pipe,
		Engine:    engine,
		Vec:       vec,
	}, nil
}
