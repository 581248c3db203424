// Package memvec is an in-process vector index used when no external
// vector database is configured. Search is a brute-force cosine scan,
// which is plenty for small corpora and for tests.
package memvec

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/veridocai/veridoc-backend/internal/platform/logger"
	"github.com/veridocai/veridoc-backend/internal/platform/pinecone"
)

type entry struct {
	values   []float32
	metadata map[string]any
}

type Store struct {
	log *logger.Logger

	mu sync.RWMutex
	// namespace -> vector id -> entry
	namespaces map[string]map[string]entry
}

func NewStore(log *logger.Logger) (*Store, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Store{
		log:        log.With("service", "MemoryVectorStore"),
		namespaces: make(map[string]map[string]entry),
	}, nil
}

var _ pinecone.VectorStore = (*Store)(nil)

func (s *Store) Upsert(ctx context.Context, namespace string, vectors []pinecone.Vector) error {
	if s == nil {
		return fmt.Errorf("vector store unavailable")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ns := s.namespaces[namespace]
	if ns == nil {
		ns = make(map[string]entry)
		s.namespaces[namespace] = ns
	}
	for i, v := range vectors {
		id := strings.TrimSpace(v.ID)
		if id == "" {
			return fmt.Errorf("vector at index %d has empty id", i)
		}
		if len(v.Values) == 0 {
			return fmt.Errorf("vector %q has no values", id)
		}
		if caseID, _ := v.Metadata[pinecone.MetadataCaseKey].(string); strings.TrimSpace(caseID) == "" {
			return fmt.Errorf("vector %q metadata is missing %s", id, pinecone.MetadataCaseKey)
		}
		values := make([]float32, len(v.Values))
		copy(values, v.Values)
		var meta map[string]any
		if len(v.Metadata) > 0 {
			meta = make(map[string]any, len(v.Metadata))
			for k, val := range v.Metadata {
				meta[k] = val
			}
		}
		ns[id] = entry{values: values, metadata: meta}
	}
	return nil
}

func (s *Store) QueryMatches(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]pinecone.VectorMatch, error) {
	if s == nil {
		return nil, fmt.Errorf("vector store unavailable")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(q) == 0 {
		return nil, fmt.Errorf("query vector is empty")
	}
	if topK <= 0 {
		topK = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ns := s.namespaces[namespace]
	matches := make([]pinecone.VectorMatch, 0, len(ns))
	for id, e := range ns {
		if len(e.values) != len(q) {
			continue
		}
		ok, err := matchesFilter(e.metadata, filter)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		matches = append(matches, pinecone.VectorMatch{
			ID:    id,
			Score: float32(cosineSimilarity(q, e.values)),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *Store) QueryIDs(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]string, error) {
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

func (s *Store) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	if s == nil {
		return fmt.Errorf("vector store unavailable")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ns := s.namespaces[namespace]
	if ns == nil {
		return nil
	}
	for _, id := range ids {
		delete(ns, strings.TrimSpace(id))
	}
	if len(ns) == 0 {
		delete(s.namespaces, namespace)
	}
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// matchesFilter evaluates the flat filter surface every backend shares:
// a bare scalar means equality, operator objects carry $eq, $ne or $in.
// Unsupported shapes fail the query instead of silently matching.
func matchesFilter(meta map[string]any, filter map[string]any) (bool, error) {
	if len(filter) == 0 {
		return true, nil
	}
	for key, raw := range filter {
		if strings.HasPrefix(key, "$") {
			return false, fmt.Errorf("unsupported top-level filter operator %q", key)
		}
		ok, err := matchesFieldFilter(meta, key, raw)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func matchesFieldFilter(meta map[string]any, field string, raw any) (bool, error) {
	ops, isMap := raw.(map[string]any)
	if !isMap {
		return scalarEqual(meta[field], raw), nil
	}
	for op, operand := range ops {
		switch op {
		case "$eq":
			if !scalarEqual(meta[field], operand) {
				return false, nil
			}
		case "$ne":
			if scalarEqual(meta[field], operand) {
				return false, nil
			}
		case "$in":
			items, ok := operand.([]any)
			if !ok {
				return false, fmt.Errorf("unsupported $in operand type %T for field %q", operand, field)
			}
			found := false
			for _, item := range items {
				if scalarEqual(meta[field], item) {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		default:
			return false, fmt.Errorf("unsupported filter operator %q for field %q", op, field)
		}
	}
	return true, nil
}

// scalarEqual compares metadata values loosely: numeric values compare by
// magnitude so JSON round-trips (int vs float64) do not break equality.
func scalarEqual(a, b any) bool {
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum && bNum {
		return af == bf
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
