package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/sankofa-health/malaria-rag/internal/core/domain"
	"github.com/sankofa-health/malaria-rag/internal/core/ports"
)

// RetrievalConfig tunes the hybrid engine. Zero values fall back to the
// defaults below.
type RetrievalConfig struct {
	DefaultTopK         int
	CandidateMultiplier int
	MinEvidenceScore    float64
}

const (
	defaultTopK                = 10
	defaultCandidateMultiplier = 2
	defaultMinEvidenceScore    = 0.35

	minQueryChars = 3
)

func (c RetrievalConfig) withDefaults() RetrievalConfig {
	if c.DefaultTopK <= 0 {
		c.DefaultTopK = defaultTopK
	}
	if c.CandidateMultiplier <= 0 {
		c.CandidateMultiplier = defaultCandidateMultiplier
	}
	if c.MinEvidenceScore <= 0 {
		c.MinEvidenceScore = defaultMinEvidenceScore
	}
	return c
}

// HybridRetrieveUseCase ranks chunk evidence for a query by fusing dense
// similarity search with BM25 keyword search, then applying section
// boosts. It implements ports.EvidenceRetriever.
type HybridRetrieveUseCase struct {
	embedder ports.Embedder
	vectors  ports.VectorStore
	lexical  ports.LexicalIndex
	cfg      RetrievalConfig
	logger   *slog.Logger
}

func NewHybridRetrieveUseCase(
	embedder ports.Embedder,
	vectors ports.VectorStore,
	lexical ports.LexicalIndex,
	cfg RetrievalConfig,
	logger *slog.Logger,
) *HybridRetrieveUseCase {
	return &HybridRetrieveUseCase{
		embedder: embedder,
		vectors:  vectors,
		lexical:  lexical,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

func (uc *HybridRetrieveUseCase) Retrieve(ctx context.Context, query string, filter domain.SearchFilter, topK int) (*domain.RetrievalResult, error) {
	const op = "usecase.Retrieve"

	query = strings.TrimSpace(query)
	if len(query) < minQueryChars {
		return nil, domain.WrapError(domain.ErrValidation, op,
			errors.New("query must be at least 3 characters"))
	}
	if topK <= 0 {
		topK = uc.cfg.DefaultTopK
	}
	// Both stores are queried for a pool larger than topK so that a chunk
	// ranked low by one signal can still win after fusion.
	pool := topK * uc.cfg.CandidateMultiplier

	vector, err := uc.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTransient, op, err)
	}

	semantic, err := uc.vectors.Search(ctx, vector, pool, filter)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTransient, op, err)
	}
	lexical, err := uc.lexical.Search(ctx, query, pool, filter)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTransient, op, err)
	}

	ranked := trimRanked(fuseHybrid(semantic, lexical), topK)

	result := &domain.RetrievalResult{Chunks: ranked}
	if len(ranked) == 0 || ranked[0].FinalScore < uc.cfg.MinEvidenceScore {
		result.InsufficientEvidence = true
	}

	uc.logger.Debug("hybrid retrieval complete",
		slog.Int("semantic_candidates", len(semantic)),
		slog.Int("lexical_candidates", len(lexical)),
		slog.Int("returned", len(ranked)),
		slog.Bool("insufficient_evidence", result.InsufficientEvidence),
	)
	return result, nil
}
