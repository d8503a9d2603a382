package qdrant

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/sankofa-health/malaria-rag/internal/core/domain"
)

type memoryPoint struct {
	chunk   domain.Chunk
	vector  []float32
	country domain.CountryLabel
	disease string
	year    int
}

// MemoryStore is an in-process VectorStore for development and tests:
// exact cosine search over everything upserted, same filter semantics as
// the qdrant client. Fine for a few thousand chunks, not a server.
type MemoryStore struct {
	mu     sync.RWMutex
	points map[string]memoryPoint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{points: make(map[string]memoryPoint)}
}

func (s *MemoryStore) Upsert(_ context.Context, chunk domain.Chunk, vector []float32, doc *domain.Document) error {
	point := memoryPoint{chunk: chunk, vector: vector}
	if doc != nil {
		point.country = doc.Country
		point.disease = doc.Disease
		point.year = doc.Year
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.points[chunk.ID()] = point
	return nil
}

func (s *MemoryStore) Search(_ context.Context, queryVector []float32, limit int, filter domain.SearchFilter) ([]domain.RetrievedChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.RetrievedChunk, 0, len(s.points))
	for id, p := range s.points {
		if !matchesFilter(p, filter) {
			continue
		}
		out = append(out, domain.RetrievedChunk{
			ChunkID:       id,
			DocumentID:    p.chunk.DocumentFingerprint,
			Ordinal:       p.chunk.Ordinal,
			Section:       p.chunk.Section,
			Country:       p.country,
			Text:          p.chunk.Text,
			CharCount:     p.chunk.CharCount,
			SemanticScore: cosine(queryVector, p.vector),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].SemanticScore != out[j].SemanticScore {
			return out[i].SemanticScore > out[j].SemanticScore
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Exists(_ context.Context, chunkID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.points[chunkID]
	return ok, nil
}

func matchesFilter(p memoryPoint, filter domain.SearchFilter) bool {
	if filter.Country != "" && !countryMatches(p.country, filter.Country) {
		return false
	}
	if filter.Disease != "" && p.disease != filter.Disease {
		return false
	}
	if filter.Year > 0 && p.year != filter.Year {
		return false
	}
	return true
}

// countryMatches treats a combined label as membership: a Ghana filter
// accepts Ghana|Nigeria studies.
func countryMatches(label, want domain.CountryLabel) bool {
	for _, part := range strings.Split(string(label), "|") {
		if part == string(want) {
			return true
		}
	}
	return false
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
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
