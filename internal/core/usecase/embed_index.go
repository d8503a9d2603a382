package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/sankofa-health/malaria-rag/internal/core/domain"
	"github.com/sankofa-health/malaria-rag/internal/core/ports"
)

// EmbedIndexUseCase turns chunks into vectors and upserts them into the
// vector store and the lexical index.
type EmbedIndexUseCase struct {
	docs     ports.DocumentRepository
	embedder ports.Embedder
	vectors  ports.VectorStore
	lexical  ports.LexicalIndex
}

func NewEmbedIndexUseCase(
	docs ports.DocumentRepository,
	embedder ports.Embedder,
	vectors ports.VectorStore,
	lexical ports.LexicalIndex,
) *EmbedIndexUseCase {
	return &EmbedIndexUseCase{
		docs:     docs,
		embedder: embedder,
		vectors:  vectors,
		lexical:  lexical,
	}
}

// EmbedAndStore embeds each chunk independently. Already-embedded chunks
// (existence check against the vector store, not a flag) are skipped, and
// a failure on chunk k never rolls back chunks 1..k-1. Returns the number
// of vectors inserted alongside any accumulated failures.
func (uc *EmbedIndexUseCase) EmbedAndStore(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) (int, error) {
	inserted := 0
	var failures []error

	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			failures = append(failures, err)
			break
		}

		exists, err := uc.vectors.Exists(ctx, chunk.ID())
		if err != nil {
			failures = append(failures, fmt.Errorf("chunk %s: existence check: %w", chunk.ID(), err))
			continue
		}
		if exists {
			continue
		}

		vecs, err := uc.embedder.Embed(ctx, []string{chunk.Text})
		if err != nil {
			failures = append(failures, fmt.Errorf("chunk %s: embed: %w", chunk.ID(), err))
			continue
		}
		if len(vecs) != 1 {
			failures = append(failures, fmt.Errorf("chunk %s: embedder returned %d vectors", chunk.ID(), len(vecs)))
			continue
		}

		if err := uc.vectors.Upsert(ctx, chunk, vecs[0], doc); err != nil {
			failures = append(failures, fmt.Errorf("chunk %s: vector upsert: %w", chunk.ID(), err))
			continue
		}
		if err := uc.lexical.Index(ctx, chunk, doc); err != nil {
			failures = append(failures, fmt.Errorf("chunk %s: lexical index: %w", chunk.ID(), err))
			continue
		}
		inserted++
	}

	if len(failures) > 0 {
		return inserted, domain.WrapError(domain.ErrTransient, "embed and store", errors.Join(failures...))
	}

	if doc.Status.CanAdvanceTo(domain.StatusEmbedded) {
		if err := uc.docs.UpdateStatus(ctx, doc.Fingerprint, domain.StatusEmbedded, ""); err != nil {
			return inserted, fmt.Errorf("mark embedded: %w", err)
		}
		doc.Status = domain.StatusEmbedded
	}
	return inserted, nil
}
