package embedding

import (
	"context"

	"github.com/veridocai/veridoc-backend/internal/clients/openai"
)

var openAIModelDims = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIProvider adapts the OpenAI client to the Provider interface.
type OpenAIProvider struct {
	ai  openai.Client
	dim int
}

func NewOpenAIProvider(ai openai.Client) *OpenAIProvider {
	dim, ok := openAIModelDims[ai.EmbedModel()]
	if !ok {
		dim = 1536
	}
	return &OpenAIProvider{ai: ai, dim: dim}
}

func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return p.ai.Embed(ctx, texts)
}

func (p *OpenAIProvider) Dimension() int { return p.dim }

func (p *OpenAIProvider) Name() string { return "openai" }
