package ports

import (
	"context"

	"github.com/sankofa-health/malaria-rag/internal/core/domain"
)

// DocumentRegistrar is the inbound contract for document registration.
type DocumentRegistrar interface {
	Register(ctx context.Context, path string, raw []byte) (*domain.Document, error)
}

// DocumentProcessor runs the ingestion pipeline for one registered
// document.
type DocumentProcessor interface {
	ProcessByFingerprint(ctx context.Context, fingerprint string) error
}

// EvidenceRetriever is the hybrid retrieval engine's inbound contract.
type EvidenceRetriever interface {
	Retrieve(ctx context.Context, query string, filter domain.SearchFilter, topK int) (*domain.RetrievalResult, error)
}

// QuestionAnswerer drives the query pipeline end to end.
type QuestionAnswerer interface {
	Answer(ctx context.Context, question string, filter domain.SearchFilter, topK int) (*domain.Answer, error)
}

// Evaluator aggregates query logs.
type Evaluator interface {
	Metrics(ctx context.Context) (domain.EvaluationMetrics, error)
}

// DocumentReader is the inbound read model for document state, chunk
// listings and the pipeline audit trail.
type DocumentReader interface {
	GetByFingerprint(ctx context.Context, fingerprint string) (*domain.Document, error)
	ListByStatus(ctx context.Context, status domain.DocumentStatus) ([]domain.Document, error)
	ListChunks(ctx context.Context, fingerprint string) ([]domain.Chunk, error)
	ListNodeExecutions(ctx context.Context, nodeName string, limit int) ([]domain.NodeExecution, error)
}
