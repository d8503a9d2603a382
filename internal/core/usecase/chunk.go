package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/sankofa-health/malaria-rag/internal/core/domain"
	"github.com/sankofa-health/malaria-rag/internal/core/ports"
)

// ChunkDocumentUseCase creates a document's chunks exactly once.
type ChunkDocumentUseCase struct {
	docs    ports.DocumentRepository
	chunks  ports.ChunkRepository
	chunker ports.Chunker
}

func NewChunkDocumentUseCase(
	docs ports.DocumentRepository,
	chunks ports.ChunkRepository,
	chunker ports.Chunker,
) *ChunkDocumentUseCase {
	return &ChunkDocumentUseCase{
		docs:    docs,
		chunks:  chunks,
		chunker: chunker,
	}
}

// Chunk splits the document text into section-labeled chunks. Chunks are
// only created once the document is past attribution; re-running on an
// already-chunked document is a no-op returning the stored chunks.
func (uc *ChunkDocumentUseCase) Chunk(ctx context.Context, doc *domain.Document, text string) ([]domain.Chunk, error) {
	if doc.Status == domain.StatusRejected {
		return nil, domain.WrapError(domain.ErrPermanent, "chunk document", fmt.Errorf("document %s is rejected", doc.Fingerprint))
	}
	if doc.Status == domain.StatusPending || doc.Status == domain.StatusQualified {
		return nil, domain.WrapError(domain.ErrValidation, "chunk document", fmt.Errorf("document %s not yet attributed (status=%s)", doc.Fingerprint, doc.Status))
	}

	exists, err := uc.chunks.HasChunks(ctx, doc.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("check existing chunks: %w", err)
	}
	if exists {
		return uc.chunks.ListByDocument(ctx, doc.Fingerprint)
	}

	split := uc.chunker.Split(doc.Fingerprint, text)
	if len(split) == 0 {
		return nil, domain.WrapError(domain.ErrValidation, "chunk document", errors.New("chunking produced zero chunks"))
	}

	if err := uc.chunks.CreateBatch(ctx, split); err != nil {
		return nil, fmt.Errorf("persist chunks: %w", err)
	}
	if doc.Status.CanAdvanceTo(domain.StatusChunked) {
		if err := uc.docs.UpdateStatus(ctx, doc.Fingerprint, domain.StatusChunked, ""); err != nil {
			return nil, fmt.Errorf("mark chunked: %w", err)
		}
		doc.Status = domain.StatusChunked
	}
	return split, nil
}
