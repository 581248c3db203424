package pinecone

import (
	"context"
	"fmt"
	"strings"

	"github.com/veridocai/veridoc-backend/internal/platform/envutil"
	"github.com/veridocai/veridoc-backend/internal/platform/logger"
)

// MetadataCaseKey is the payload field every chunk entry must carry;
// retrieval filters on it to keep cases isolated. All backends enforce
// it at upsert time.
const MetadataCaseKey = "case_id"

// VectorStore is the pluggable index surface shared by all backends
// (pinecone, qdrant, memvec). Filters are flat field maps: a scalar
// value means equality, an operator object supports $eq, $ne and $in.
type VectorStore interface {
	Upsert(ctx context.Context, namespace string, vectors []Vector) error
	// QueryMatches returns IDs with their similarity scores (higher is better).
	QueryMatches(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]VectorMatch, error)
	QueryIDs(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]string, error)
	DeleteIDs(ctx context.Context, namespace string, ids []string) error
}

// VectorMatch pairs a chunk embedding id with its similarity score.
// Scores are float32 end to end so citation confidence carries them
// without conversion.
type VectorMatch struct {
	ID    string
	Score float32
}

type vectorStore struct {
	log      *logger.Logger
	pc       Client
	index    string
	host     string
	nsPrefix string
}

func NewVectorStore(log *logger.Logger, pc Client) (VectorStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if pc == nil {
		return nil, fmt.Errorf("pinecone client required")
	}

	index := envutil.String("PINECONE_INDEX_NAME", "")
	if index == "" {
		return nil, fmt.Errorf("missing PINECONE_INDEX_NAME")
	}
	host := envutil.String("PINECONE_INDEX_HOST", "")

	// If host missing, bootstrap via describe_index (fine for local/dev; avoid in prod).
	if host == "" {
		desc, err := pc.DescribeIndex(context.Background(), index)
		if err != nil {
			return nil, fmt.Errorf("pinecone describe_index failed: %w", err)
		}
		host = strings.TrimSpace(desc.Host)
		if host == "" {
			return nil, fmt.Errorf("pinecone describe_index returned empty host")
		}
		log.Warn("PINECONE_INDEX_HOST not set; resolved via describe_index (avoid this in production)",
			"index_name", index,
			"index_host", host,
		)
	}

	return &vectorStore{
		log:      log.With("service", "PineconeVectorStore"),
		pc:       pc,
		index:    index,
		host:     host,
		nsPrefix: envutil.String("PINECONE_NAMESPACE_PREFIX", "vd"),
	}, nil
}

func (s *vectorStore) Upsert(ctx context.Context, namespace string, vectors []Vector) error {
	if s == nil || s.pc == nil {
		return fmt.Errorf("vector store unavailable")
	}
	if len(vectors) == 0 {
		return nil
	}
	for i, v := range vectors {
		if strings.TrimSpace(v.ID) == "" {
			return fmt.Errorf("vector at index %d has empty id", i)
		}
		if len(v.Values) == 0 {
			return fmt.Errorf("vector %q has no values", v.ID)
		}
		if caseID, _ := v.Metadata[MetadataCaseKey].(string); strings.TrimSpace(caseID) == "" {
			return fmt.Errorf("vector %q metadata is missing %s", v.ID, MetadataCaseKey)
		}
	}

	_, err := s.pc.UpsertVectors(ctx, s.host, UpsertRequest{
		Namespace: s.qualifyNamespace(namespace),
		Vectors:   vectors,
	})
	return err
}

func (s *vectorStore) QueryMatches(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]VectorMatch, error) {
	if s == nil || s.pc == nil {
		return nil, fmt.Errorf("vector store unavailable")
	}
	resp, err := s.pc.Query(ctx, s.host, QueryRequest{
		Namespace:       s.qualifyNamespace(namespace),
		Vector:          q,
		TopK:            topK,
		Filter:          filter,
		IncludeValues:   false,
		IncludeMetadata: false,
	})
	if err != nil {
		return nil, err
	}

	out := make([]VectorMatch, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		id := strings.TrimSpace(m.ID)
		if id == "" {
			continue
		}
		out = append(out, VectorMatch{ID: id, Score: float32(m.Score)})
	}
	return out, nil
}

func (s *vectorStore) QueryIDs(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]string, error) {
	matches, err := s.QueryMatches(ctx, namespace, q, topK, filter)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.ID)
	}
	return out, nil
}

func (s *vectorStore) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	if s == nil || s.pc == nil {
		return fmt.Errorf("vector store unavailable")
	}
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pc.DeleteVectors(ctx, s.host, DeleteRequest{
		Namespace: s.qualifyNamespace(namespace),
		IDs:       ids,
	})
	return err
}

func (s *vectorStore) qualifyNamespace(ns string) string {
	ns = strings.TrimSpace(ns)
	if ns == "" {
		return s.nsPrefix
	}
	return s.nsPrefix + ":" + ns
}
