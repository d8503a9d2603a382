package usecase

import (
	"context"
	"fmt"

	"github.com/sankofa-health/malaria-rag/internal/core/domain"
	"github.com/sankofa-health/malaria-rag/internal/core/ports"
)

const (
	defaultExecutionLimit = 50
	maxExecutionLimit     = 500
)

// InspectUseCase serves the read-only inspection surface: document
// state, stored chunks and the node execution audit trail. It
// implements ports.DocumentReader.
type InspectUseCase struct {
	documents ports.DocumentRepository
	chunks    ports.ChunkRepository
	execLog   ports.ExecutionLog
}

func NewInspectUseCase(
	documents ports.DocumentRepository,
	chunks ports.ChunkRepository,
	execLog ports.ExecutionLog,
) *InspectUseCase {
	return &InspectUseCase{documents: documents, chunks: chunks, execLog: execLog}
}

func (uc *InspectUseCase) GetByFingerprint(ctx context.Context, fingerprint string) (*domain.Document, error) {
	return uc.documents.GetByFingerprint(ctx, fingerprint)
}

func (uc *InspectUseCase) ListByStatus(ctx context.Context, status domain.DocumentStatus) ([]domain.Document, error) {
	const op = "usecase.ListByStatus"

	if !status.Known() {
		return nil, domain.WrapError(domain.ErrValidation, op, fmt.Errorf("unknown status %q", status))
	}
	docs, err := uc.documents.ListByStatus(ctx, status)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTransient, op, err)
	}
	return docs, nil
}

// ListChunks resolves the document first so an unknown fingerprint
// surfaces as not-found rather than an empty list.
func (uc *InspectUseCase) ListChunks(ctx context.Context, fingerprint string) ([]domain.Chunk, error) {
	const op = "usecase.ListChunks"

	if _, err := uc.documents.GetByFingerprint(ctx, fingerprint); err != nil {
		return nil, err
	}
	chunks, err := uc.chunks.ListByDocument(ctx, fingerprint)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTransient, op, err)
	}
	return chunks, nil
}

func (uc *InspectUseCase) ListNodeExecutions(ctx context.Context, nodeName string, limit int) ([]domain.NodeExecution, error) {
	const op = "usecase.ListNodeExecutions"

	if nodeName == "" {
		return nil, domain.WrapError(domain.ErrValidation, op, fmt.Errorf("node name is required"))
	}
	if limit <= 0 {
		limit = defaultExecutionLimit
	}
	if limit > maxExecutionLimit {
		limit = maxExecutionLimit
	}
	records, err := uc.execLog.ListByNode(ctx, nodeName, limit)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTransient, op, err)
	}
	return records, nil
}
