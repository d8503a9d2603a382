package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/sankofa-health/malaria-rag/internal/core/domain"
	"github.com/sankofa-health/malaria-rag/internal/core/ports"
	"github.com/sankofa-health/malaria-rag/internal/pipeline"
)

// Ingestion graph node names. Also the node_name values in the execution
// log, so renaming them breaks audit continuity.
const (
	NodeTextExtraction     = "text_extraction"
	NodeQualification      = "qualification"
	NodeCountryAttribution = "country_attribution"
	NodeChunking           = "chunking"
	NodeEmbedding          = "embedding"
)

// ProcessConfig bounds the ingestion graph's stages.
type ProcessConfig struct {
	StageTimeout time.Duration // extraction, qualification, attribution, chunking
	EmbedTimeout time.Duration // embedding calls out per chunk, give it room
	Retry        pipeline.RetryPolicy
}

func (c ProcessConfig) withDefaults() ProcessConfig {
	if c.StageTimeout <= 0 {
		c.StageTimeout = 30 * time.Second
	}
	if c.EmbedTimeout <= 0 {
		c.EmbedTimeout = 5 * time.Minute
	}
	if c.Retry.MaxRetries < 0 {
		c.Retry = pipeline.DefaultRetryPolicy()
	}
	return c
}

// ProcessDocumentUseCase drives one registered document through the
// ingestion graph: text extraction, quality gating, country attribution,
// section-aware chunking, then embedding and indexing. Every handler
// reloads the document from the repository, so re-running the pipeline
// over an already-processed document is a no-op at each stage. It
// implements ports.DocumentProcessor.
type ProcessDocumentUseCase struct {
	docs      ports.DocumentRepository
	storage   ports.ObjectStorage
	extractor ports.TextExtractor

	qualify   *QualifyDocumentUseCase
	attribute *AttributeCountryUseCase
	chunk     *ChunkDocumentUseCase
	embed     *EmbedIndexUseCase

	orch   *pipeline.Orchestrator
	logger *slog.Logger
}

func NewProcessDocumentUseCase(
	docs ports.DocumentRepository,
	storage ports.ObjectStorage,
	extractor ports.TextExtractor,
	qualify *QualifyDocumentUseCase,
	attribute *AttributeCountryUseCase,
	chunk *ChunkDocumentUseCase,
	embed *EmbedIndexUseCase,
	orch *pipeline.Orchestrator,
	cfg ProcessConfig,
	logger *slog.Logger,
) (*ProcessDocumentUseCase, error) {
	uc := &ProcessDocumentUseCase{
		docs:      docs,
		storage:   storage,
		extractor: extractor,
		qualify:   qualify,
		attribute: attribute,
		chunk:     chunk,
		embed:     embed,
		orch:      orch,
		logger:    logger,
	}
	if err := uc.registerGraph(cfg.withDefaults()); err != nil {
		return nil, fmt.Errorf("register ingestion graph: %w", err)
	}
	return uc, nil
}

func (uc *ProcessDocumentUseCase) registerGraph(cfg ProcessConfig) error {
	nodes := []struct {
		name    string
		handler pipeline.Handler
		timeout time.Duration
	}{
		{NodeTextExtraction, uc.extractText, cfg.StageTimeout},
		{NodeQualification, uc.qualifyDocument, cfg.StageTimeout},
		{NodeCountryAttribution, uc.attributeCountry, cfg.StageTimeout},
		{NodeChunking, uc.chunkDocument, cfg.StageTimeout},
		{NodeEmbedding, uc.embedChunks, cfg.EmbedTimeout},
	}
	for _, n := range nodes {
		if err := uc.orch.RegisterNode(n.name, n.handler, cfg.Retry, n.timeout); err != nil {
			return err
		}
	}

	edges := [][2]string{
		{NodeTextExtraction, NodeQualification},
		{NodeQualification, NodeCountryAttribution},
		{NodeQualification, NodeChunking},
		{NodeCountryAttribution, NodeChunking},
		{NodeChunking, NodeEmbedding},
	}
	for _, e := range edges {
		if err := uc.orch.RegisterEdge(e[0], e[1]); err != nil {
			return err
		}
	}
	return nil
}

func (uc *ProcessDocumentUseCase) ProcessByFingerprint(ctx context.Context, fingerprint string) error {
	const op = "usecase.ProcessByFingerprint"

	if fingerprint == "" {
		return domain.WrapError(domain.ErrValidation, op, fmt.Errorf("empty fingerprint"))
	}

	uc.logger.Info("ingestion pipeline start", slog.String("document_id", fingerprint))
	start := time.Now()

	results, err := uc.orch.Execute(ctx, NodeTextExtraction, pipeline.Params{
		"document_id": fingerprint,
	})
	if err != nil {
		uc.logger.Error("ingestion pipeline failed",
			slog.String("document_id", fingerprint),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%s: %w", op, err)
	}

	uc.logger.Info("ingestion pipeline complete",
		slog.String("document_id", fingerprint),
		slog.Int("nodes", len(results)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// loadDocument resolves the document a node input refers to. An unknown
// fingerprint is permanent: retrying cannot make the document appear.
func (uc *ProcessDocumentUseCase) loadDocument(ctx context.Context, input pipeline.Params) (*domain.Document, error) {
	fingerprint, _ := input["document_id"].(string)
	doc, err := uc.docs.GetByFingerprint(ctx, fingerprint)
	if err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return nil, domain.WrapError(domain.ErrPermanent, "load document", err)
		}
		return nil, domain.WrapError(domain.ErrTransient, "load document", err)
	}
	return doc, nil
}

func (uc *ProcessDocumentUseCase) extractText(ctx context.Context, input pipeline.Params) (pipeline.Params, error) {
	doc, err := uc.loadDocument(ctx, input)
	if err != nil {
		return nil, err
	}

	rc, err := uc.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTransient, NodeTextExtraction, err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTransient, NodeTextExtraction, err)
	}

	// Extraction failures are structural (corrupt or image-only PDF), not
	// environmental; retrying the same bytes cannot help.
	extracted, err := uc.extractor.Extract(ctx, raw)
	if err != nil {
		return nil, domain.WrapError(domain.ErrPermanent, NodeTextExtraction, err)
	}

	return pipeline.Params{
		"text":        extracted.Text,
		"page_count":  extracted.PageCount,
		"empty_pages": extracted.EmptyPages,
	}, nil
}

func (uc *ProcessDocumentUseCase) qualifyDocument(ctx context.Context, input pipeline.Params) (pipeline.Params, error) {
	doc, err := uc.loadDocument(ctx, input)
	if err != nil {
		return nil, err
	}

	text, _ := input["text"].(string)
	pageCount, _ := input["page_count"].(int)
	emptyPages, _ := input["empty_pages"].(int)

	if _, err := uc.qualify.Qualify(ctx, doc, ports.ExtractedText{
		Text:       text,
		PageCount:  pageCount,
		EmptyPages: emptyPages,
	}); err != nil {
		return nil, err
	}
	return pipeline.Params{"text": text}, nil
}

func (uc *ProcessDocumentUseCase) attributeCountry(ctx context.Context, input pipeline.Params) (pipeline.Params, error) {
	doc, err := uc.loadDocument(ctx, input)
	if err != nil {
		return nil, err
	}

	text, _ := input["text"].(string)
	country, confidence, err := uc.attribute.Attribute(ctx, doc, text)
	if err != nil {
		return nil, err
	}

	uc.logger.Info("country attributed",
		slog.String("document_id", doc.Fingerprint),
		slog.String("country", string(country)),
		slog.Float64("confidence", confidence),
	)
	return nil, nil
}

func (uc *ProcessDocumentUseCase) chunkDocument(ctx context.Context, input pipeline.Params) (pipeline.Params, error) {
	doc, err := uc.loadDocument(ctx, input)
	if err != nil {
		return nil, err
	}

	text, _ := input["text"].(string)
	chunks, err := uc.chunk.Chunk(ctx, doc, text)
	if err != nil {
		return nil, err
	}
	return pipeline.Params{"chunks": chunks}, nil
}

func (uc *ProcessDocumentUseCase) embedChunks(ctx context.Context, input pipeline.Params) (pipeline.Params, error) {
	doc, err := uc.loadDocument(ctx, input)
	if err != nil {
		return nil, err
	}

	chunks, _ := input["chunks"].([]domain.Chunk)
	indexed, err := uc.embed.EmbedAndStore(ctx, doc, chunks)
	if err != nil {
		return nil, err
	}
	return pipeline.Params{"indexed_chunks": indexed}, nil
}
