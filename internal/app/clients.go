package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/veridocai/veridoc-backend/internal/clients/gcp"
	"github.com/veridocai/veridoc-backend/internal/clients/ollama"
	"github.com/veridocai/veridoc-backend/internal/clients/openai"
	"github.com/veridocai/veridoc-backend/internal/platform/doctools"
	"github.com/veridocai/veridoc-backend/internal/platform/logger"
)

type Clients struct {
	OpenAI openai.Client
	Ollama ollama.Client
	Vision gcp.Vision
	Tools  doctools.Tools
}

// wireClients builds the external clients. OpenAI, Ollama, and Vision
// are all optional; at least one embedding-capable client must come up
// or ingestion has nothing to embed with.
func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	var c Clients

	if strings.TrimSpace(os.Getenv("OPENAI_API_KEY")) != "" {
		oc, err := openai.NewClient(log)
		if err != nil {
			return Clients{}, fmt.Errorf("init openai client: %w", err)
		}
		c.OpenAI = oc
	} else {
		log.Warn("OPENAI_API_KEY not set; OpenAI embedding and generation disabled")
	}

	if cfg.OllamaEnabled {
		ol, err := ollama.NewClient(log)
		if err != nil {
			return Clients{}, fmt.Errorf("init ollama client: %w", err)
		}
		c.Ollama = ol
	}

	if c.OpenAI == nil && c.Ollama == nil {
		return Clients{}, fmt.Errorf("no embedding provider configured: set OPENAI_API_KEY or OLLAMA_ENABLED=true")
	}

	if cfg.OCREnabled {
		vision, err := gcp.NewVision(log)
		if err != nil {
			// Scanned pages degrade to ocr_needed instead of blocking startup.
			log.Warn("Vision OCR unavailable; scanned pages will be marked ocr_needed", "error", err)
		} else {
			c.Vision = vision
		}
	}

	c.Tools = doctools.New(log)
	if err := c.Tools.AssertReady(context.Background()); err != nil {
		log.Warn("document tools incomplete; some file types may fail extraction", "error", err)
	}

	return c, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Vision != nil {
		_ = c.Vision.Close()
	}
}
