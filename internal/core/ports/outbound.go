package ports

import (
	"context"
	"io"

	"github.com/sankofa-health/malaria-rag/internal/core/domain"
)

// DocumentRepository persists document state. Writes prior to chunking are
// owned by the registry and qualifier use cases.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByFingerprint(ctx context.Context, fingerprint string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, fingerprint string, status domain.DocumentStatus, rejectionReason string) error
	SaveQuality(ctx context.Context, fingerprint string, metrics domain.QualityMetrics) error
	SaveCountry(ctx context.Context, fingerprint string, country domain.CountryLabel, confidence float64) error
	ListByStatus(ctx context.Context, status domain.DocumentStatus) ([]domain.Document, error)
}

// ChunkRepository owns chunk creation. HasChunks backs the chunker's
// idempotency check.
type ChunkRepository interface {
	CreateBatch(ctx context.Context, chunks []domain.Chunk) error
	HasChunks(ctx context.Context, fingerprint string) (bool, error)
	ListByDocument(ctx context.Context, fingerprint string) ([]domain.Chunk, error)
	ListAll(ctx context.Context) ([]domain.Chunk, error)
}

// ExecutionLog is the append-only pipeline audit trail.
type ExecutionLog interface {
	Append(ctx context.Context, record domain.NodeExecution) error
	ListByNode(ctx context.Context, nodeName string, limit int) ([]domain.NodeExecution, error)
}

// QueryLogStore records each query exactly once and serves the evaluator's
// aggregation.
type QueryLogStore interface {
	Append(ctx context.Context, entry domain.QueryLog) error
	Aggregate(ctx context.Context) (domain.EvaluationMetrics, error)
}

// ObjectStorage stores raw source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes document-registered events.
type MessageQueue interface {
	PublishDocumentRegistered(ctx context.Context, fingerprint string) error
	SubscribeDocumentRegistered(ctx context.Context, handler func(context.Context, string) error) error
}

// ExtractedText is what the PDF collaborator hands back.
type ExtractedText struct {
	Text       string
	PageCount  int
	EmptyPages int
}

// TextExtractor extracts plain text and page metrics from raw document
// bytes. Unreadable input fails with a permanent error kind.
type TextExtractor interface {
	Extract(ctx context.Context, raw []byte) (ExtractedText, error)
}

// Chunker splits qualified text into labeled, size-bounded chunks with
// deterministic ordinals.
type Chunker interface {
	Split(fingerprint, text string) []domain.Chunk
}

// Embedder builds fixed-length vectors, deterministic for identical input.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorStore indexes chunk vectors and answers filtered similarity
// queries. Exists backs the indexer's idempotency check. Search returns
// hits with the raw similarity in SemanticScore; normalization happens in
// the hybrid engine.
type VectorStore interface {
	Upsert(ctx context.Context, chunk domain.Chunk, vector []float32, doc *domain.Document) error
	Search(ctx context.Context, queryVector []float32, limit int, filter domain.SearchFilter) ([]domain.RetrievedChunk, error)
	Exists(ctx context.Context, chunkID string) (bool, error)
}

// LexicalIndex serves BM25 search over chunk text scoped to a filter.
// Hits carry the raw BM25 score in BM25Score.
type LexicalIndex interface {
	Index(ctx context.Context, chunk domain.Chunk, doc *domain.Document) error
	Search(ctx context.Context, query string, limit int, filter domain.SearchFilter) ([]domain.RetrievedChunk, error)
}

// AnswerGenerator creates the final user-facing answer from ranked
// evidence.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question string, chunks []domain.RetrievedChunk) (string, error)
}
