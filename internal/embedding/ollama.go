package embedding

import (
	"context"

	"github.com/veridocai/veridoc-backend/internal/clients/ollama"
)

var ollamaModelDims = map[string]int{
	"nomic-embed-text":  768,
	"mxbai-embed-large": 1024,
	"all-minilm":        384,
}

// OllamaProvider adapts a local Ollama instance to the Provider
// interface, typically as the offline fallback behind OpenAI.
type OllamaProvider struct {
	ai  ollama.Client
	dim int
}

func NewOllamaProvider(ai ollama.Client) *OllamaProvider {
	dim, ok := ollamaModelDims[ai.EmbedModel()]
	if !ok {
		dim = 768
	}
	return &OllamaProvider{ai: ai, dim: dim}
}

func (p *OllamaProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return p.ai.Embed(ctx, texts)
}

func (p *OllamaProvider) Dimension() int { return p.dim }

func (p *OllamaProvider) Name() string { return "ollama" }
