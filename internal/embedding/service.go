package embedding

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/veridocai/veridoc-backend/internal/platform/envutil"
	"github.com/veridocai/veridoc-backend/internal/platform/logger"
)

// Result is one successful batch embedding with the provider that
// actually served it. Callers must create or validate the vector index
// against Dimension, not against the configured primary.
type Result struct {
	Vectors   [][]float32
	Provider  string
	Dimension int
}

// Service runs an ordered provider chain. The first provider is the
// primary; each later one is tried only after the previous fails for
// the whole batch.
type Service struct {
	log       *logger.Logger
	providers []Provider

	batchSize int
	maxConc   int

	mu        sync.Mutex
	servedBy  string
	servedDim int
}

func NewService(log *logger.Logger, providers ...Provider) (*Service, error) {
	if log == nil {
		return nil, fmt.Errorf("embedding service: missing logger")
	}
	if len(providers) == 0 {
		return nil, &Error{Code: ErrCodeNoProviders, Cause: fmt.Errorf("at least one provider is required")}
	}
	batchSize := envutil.Int("EMBED_BATCH_SIZE", 128)
	if batchSize <= 0 {
		batchSize = 128
	}
	maxConc := envutil.Int("EMBED_MAX_CONCURRENCY", 4)
	if maxConc <= 0 {
		maxConc = 4
	}
	return &Service{
		log:       log.With("service", "EmbeddingService"),
		providers: providers,
		batchSize: batchSize,
		maxConc:   maxConc,
	}, nil
}

// Embed produces one vector per input, falling through the provider
// chain until one serves the entire batch.
func (s *Service) Embed(ctx context.Context, texts []string) (*Result, error) {
	if len(texts) == 0 {
		return &Result{Vectors: [][]float32{}}, nil
	}

	var lastErr error
	for i, p := range s.providers {
		vecs, err := s.embedWith(ctx, p, texts)
		if err == nil {
			s.recordServed(p)
			return &Result{Vectors: vecs, Provider: p.Name(), Dimension: p.Dimension()}, nil
		}
		lastErr = err
		if i < len(s.providers)-1 {
			s.log.Warn("embedding provider failed; falling back",
				"provider", p.Name(),
				"next", s.providers[i+1].Name(),
				"error", err,
			)
		}
	}
	return nil, &Error{Code: ErrCodeProvidersExhausted, Cause: lastErr}
}

// Served reports the provider and dimension of the most recent
// successful batch. Empty until the first success.
func (s *Service) Served() (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.servedBy, s.servedDim
}

func (s *Service) recordServed(p Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.servedBy != "" && s.servedBy != p.Name() {
		s.log.Warn("embedding provider changed between batches",
			"previous", s.servedBy,
			"previous_dim", s.servedDim,
			"current", p.Name(),
			"current_dim", p.Dimension(),
		)
	}
	s.servedBy = p.Name()
	s.servedDim = p.Dimension()
}

// embedWith splits the input into batches and fans them out with a
// bounded group. Results land in input order.
func (s *Service) embedWith(ctx context.Context, p Provider, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConc)

	for start := 0; start < len(texts); start += s.batchSize {
		start := start
		end := start + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			vecs, err := p.Embed(gctx, texts[start:end])
			if err != nil {
				return err
			}
			if len(vecs) != end-start {
				return &Error{
					Code:     ErrCodeBadVectorCount,
					Provider: p.Name(),
					Cause:    fmt.Errorf("got %d vectors for %d inputs", len(vecs), end-start),
				}
			}
			for i, v := range vecs {
				if len(v) != p.Dimension() {
					return &Error{
						Code:     ErrCodeBadDimension,
						Provider: p.Name(),
						Cause:    fmt.Errorf("vector %d has dimension %d, declared %d", start+i, len(v), p.Dimension()),
					}
				}
				out[start+i] = v
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
