package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/sankofa-health/malaria-rag/internal/core/domain"
	"github.com/sankofa-health/malaria-rag/internal/core/ports"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// docRepoFake is an in-memory DocumentRepository that enforces the same
// status monotonicity the SQL layer does.
type docRepoFake struct {
	mu            sync.Mutex
	docs          map[string]*domain.Document
	createCalls   int
	statusUpdates []domain.DocumentStatus
}

func newDocRepoFake(docs ...*domain.Document) *docRepoFake {
	f := &docRepoFake{docs: make(map[string]*domain.Document)}
	for _, d := range docs {
		cp := *d
		f.docs[d.Fingerprint] = &cp
	}
	return f
}

func (f *docRepoFake) Create(_ context.Context, doc *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[doc.Fingerprint]; ok {
		return fmt.Errorf("document %s already exists", doc.Fingerprint)
	}
	cp := *doc
	f.docs[doc.Fingerprint] = &cp
	f.createCalls++
	return nil
}

func (f *docRepoFake) GetByFingerprint(_ context.Context, fingerprint string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[fingerprint]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "fake get", fmt.Errorf("document %s", fingerprint))
	}
	cp := *doc
	return &cp, nil
}

func (f *docRepoFake) UpdateStatus(_ context.Context, fingerprint string, status domain.DocumentStatus, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[fingerprint]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "fake update status", fmt.Errorf("document %s", fingerprint))
	}
	if !doc.Status.CanAdvanceTo(status) {
		return fmt.Errorf("illegal transition %s -> %s", doc.Status, status)
	}
	doc.Status = status
	doc.RejectionReason = reason
	f.statusUpdates = append(f.statusUpdates, status)
	return nil
}

func (f *docRepoFake) SaveQuality(_ context.Context, fingerprint string, metrics domain.QualityMetrics) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[fingerprint]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "fake save quality", fmt.Errorf("document %s", fingerprint))
	}
	doc.Quality = metrics
	return nil
}

func (f *docRepoFake) SaveCountry(_ context.Context, fingerprint string, country domain.CountryLabel, confidence float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[fingerprint]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "fake save country", fmt.Errorf("document %s", fingerprint))
	}
	doc.Country = country
	doc.CountryConfidence = confidence
	return nil
}

func (f *docRepoFake) ListByStatus(_ context.Context, status domain.DocumentStatus) ([]domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Document
	for _, doc := range f.docs {
		if doc.Status == status {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (f *docRepoFake) get(fingerprint string) *domain.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[fingerprint]
}

type chunkRepoFake struct {
	mu         sync.Mutex
	byDoc      map[string][]domain.Chunk
	batchCalls int
}

func newChunkRepoFake() *chunkRepoFake {
	return &chunkRepoFake{byDoc: make(map[string][]domain.Chunk)}
}

func (f *chunkRepoFake) CreateBatch(_ context.Context, chunks []domain.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++
	for _, c := range chunks {
		f.byDoc[c.DocumentFingerprint] = append(f.byDoc[c.DocumentFingerprint], c)
	}
	return nil
}

func (f *chunkRepoFake) HasChunks(_ context.Context, fingerprint string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byDoc[fingerprint]) > 0, nil
}

func (f *chunkRepoFake) ListByDocument(_ context.Context, fingerprint string) ([]domain.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Chunk(nil), f.byDoc[fingerprint]...), nil
}

func (f *chunkRepoFake) ListAll(_ context.Context) ([]domain.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Chunk
	for _, chunks := range f.byDoc {
		out = append(out, chunks...)
	}
	return out, nil
}

type storageFake struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newStorageFake() *storageFake {
	return &storageFake{objects: make(map[string][]byte)}
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = raw
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.objects[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "fake open", fmt.Errorf("object %s", key))
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

type queueFake struct {
	mu        sync.Mutex
	published []string
}

func (f *queueFake) PublishDocumentRegistered(_ context.Context, fingerprint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, fingerprint)
	return nil
}

func (f *queueFake) SubscribeDocumentRegistered(context.Context, func(context.Context, string) error) error {
	return nil
}

type extractorFake struct {
	result ports.ExtractedText
	err    error
}

func (f *extractorFake) Extract(context.Context, []byte) (ports.ExtractedText, error) {
	return f.result, f.err
}

// chunkerFake splits on "\n\n" and labels everything full_text.
type chunkerFake struct{}

func (chunkerFake) Split(fingerprint, text string) []domain.Chunk {
	var chunks []domain.Chunk
	for i, part := range bytes.Split([]byte(text), []byte("\n\n")) {
		if len(bytes.TrimSpace(part)) == 0 {
			continue
		}
		chunks = append(chunks, domain.Chunk{
			DocumentFingerprint: fingerprint,
			Ordinal:             i,
			Section:             domain.SectionFullText,
			Text:                string(part),
			CharCount:           len(part),
		})
	}
	return chunks
}

type embedderFake struct {
	err   error
	calls int
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1, 0}
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

type vectorStoreFake struct {
	mu        sync.Mutex
	stored    map[string][]float32
	hits      []domain.RetrievedChunk
	upsertErr error
	searchErr error
}

func newVectorStoreFake(hits ...domain.RetrievedChunk) *vectorStoreFake {
	return &vectorStoreFake{stored: make(map[string][]float32), hits: hits}
}

func (f *vectorStoreFake) Upsert(_ context.Context, chunk domain.Chunk, vector []float32, _ *domain.Document) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored[chunk.ID()] = vector
	return nil
}

func (f *vectorStoreFake) Search(context.Context, []float32, int, domain.SearchFilter) ([]domain.RetrievedChunk, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return append([]domain.RetrievedChunk(nil), f.hits...), nil
}

func (f *vectorStoreFake) Exists(_ context.Context, chunkID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.stored[chunkID]
	return ok, nil
}

type lexicalFake struct {
	mu      sync.Mutex
	indexed []string
	hits    []domain.RetrievedChunk
}

func newLexicalFake(hits ...domain.RetrievedChunk) *lexicalFake {
	return &lexicalFake{hits: hits}
}

func (f *lexicalFake) Index(_ context.Context, chunk domain.Chunk, _ *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, chunk.ID())
	return nil
}

func (f *lexicalFake) Search(context.Context, string, int, domain.SearchFilter) ([]domain.RetrievedChunk, error) {
	return append([]domain.RetrievedChunk(nil), f.hits...), nil
}

type queryLogFake struct {
	mu      sync.Mutex
	entries []domain.QueryLog
	metrics domain.EvaluationMetrics
}

func (f *queryLogFake) Append(_ context.Context, entry domain.QueryLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *queryLogFake) Aggregate(context.Context) (domain.EvaluationMetrics, error) {
	return f.metrics, nil
}

type generatorFake struct {
	answer string
	err    error
	calls  int
}

func (f *generatorFake) GenerateAnswer(context.Context, string, []domain.RetrievedChunk) (string, error) {
	f.calls++
	return f.answer, f.err
}
