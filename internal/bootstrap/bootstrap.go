package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sankofa-health/malaria-rag/internal/config"
	"github.com/sankofa-health/malaria-rag/internal/core/ports"
	"github.com/sankofa-health/malaria-rag/internal/core/usecase"
	"github.com/sankofa-health/malaria-rag/internal/infrastructure/chunking"
	"github.com/sankofa-health/malaria-rag/internal/infrastructure/extractor"
	"github.com/sankofa-health/malaria-rag/internal/infrastructure/extractor/pdftext"
	"github.com/sankofa-health/malaria-rag/internal/infrastructure/extractor/plaintext"
	"github.com/sankofa-health/malaria-rag/internal/infrastructure/lexical/bleveindex"
	"github.com/sankofa-health/malaria-rag/internal/infrastructure/llm/ollama"
	"github.com/sankofa-health/malaria-rag/internal/infrastructure/queue/nats"
	"github.com/sankofa-health/malaria-rag/internal/infrastructure/repository/postgres"
	"github.com/sankofa-health/malaria-rag/internal/infrastructure/resilience"
	"github.com/sankofa-health/malaria-rag/internal/infrastructure/storage/localfs"
	"github.com/sankofa-health/malaria-rag/internal/infrastructure/vector/qdrant"
	"github.com/sankofa-health/malaria-rag/internal/pipeline"
)

// App wires the full dependency graph once; api and worker mains pick the
// pieces they serve.
type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue   ports.MessageQueue
	Inspect ports.DocumentReader

	RegisterUC ports.DocumentRegistrar
	ProcessUC  ports.DocumentProcessor
	AnswerUC   ports.QuestionAnswerer
	EvaluateUC ports.Evaluator

	Orchestrator *pipeline.Orchestrator

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	docRepo := postgres.NewDocumentRepository(db)
	chunkRepo := postgres.NewChunkRepository(db)
	execLogRepo := postgres.NewExecutionLogRepository(db)
	queryLogRepo := postgres.NewQueryLogRepository(db)

	// Documents first: chunks reference the documents table.
	for _, s := range []interface {
		EnsureSchema(context.Context) error
	}{docRepo, chunkRepo, execLogRepo, queryLogRepo} {
		if err := s.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		QueueGroup:         cfg.NATSGroup,
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.Options{
		RequestsPerSecond: cfg.OllamaRPS,
		Executor:          executor,
	})
	embedder := ollama.NewEmbedder(ollamaClient)
	generator := ollama.NewGenerator(ollamaClient)

	vectorStore := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)

	lexical, err := bleveindex.New()
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("init lexical index: %w", err)
	}
	// In-memory index, rebuilt from the canonical chunk store on every
	// startup.
	indexed, err := lexical.Rebuild(ctx, chunkRepo, docRepo)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("rebuild lexical index: %w", err)
	}
	logger.Info("lexical_index_rebuilt", "chunks", indexed)

	chunker := chunking.NewSectionSplitter()
	textExtractor := extractor.NewAutodetect(pdftext.NewExtractor(), plaintext.NewExtractor())

	registerUC := usecase.NewRegisterDocumentUseCase(docRepo, storage, queue)
	qualifyUC := usecase.NewQualifyDocumentUseCase(docRepo)
	attributeUC := usecase.NewAttributeCountryUseCase(docRepo)
	chunkUC := usecase.NewChunkDocumentUseCase(docRepo, chunkRepo, chunker)
	embedUC := usecase.NewEmbedIndexUseCase(docRepo, embedder, vectorStore, lexical)

	orch := pipeline.New(execLogRepo, logger, 0)
	processUC, err := usecase.NewProcessDocumentUseCase(
		docRepo, storage, textExtractor,
		qualifyUC, attributeUC, chunkUC, embedUC,
		orch,
		usecase.ProcessConfig{
			StageTimeout: time.Duration(cfg.StageTimeoutSeconds) * time.Second,
			EmbedTimeout: time.Duration(cfg.EmbedTimeoutSeconds) * time.Second,
			Retry:        pipeline.RetryPolicy{MaxRetries: cfg.MaxRetries},
		},
		logger,
	)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("build ingestion pipeline: %w", err)
	}

	retrieveUC := usecase.NewHybridRetrieveUseCase(embedder, vectorStore, lexical, usecase.RetrievalConfig{
		DefaultTopK:         cfg.RetrievalTopK,
		CandidateMultiplier: cfg.RetrievalCandidates,
		MinEvidenceScore:    cfg.MinEvidenceScore,
	}, logger)
	answerUC, err := usecase.NewAnswerQuestionUseCase(
		retrieveUC, generator, queryLogRepo,
		orch,
		usecase.AnswerConfig{
			RetrieveTimeout: time.Duration(cfg.StageTimeoutSeconds) * time.Second,
			Retry:           pipeline.RetryPolicy{MaxRetries: cfg.MaxRetries},
		},
		logger,
	)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("build query pipeline: %w", err)
	}
	evaluateUC := usecase.NewEvaluateUseCase(queryLogRepo)
	inspectUC := usecase.NewInspectUseCase(docRepo, chunkRepo, execLogRepo)

	return &App{
		Config: cfg,
		Logger: logger,

		Queue:   queue,
		Inspect: inspectUC,

		RegisterUC: registerUC,
		ProcessUC:  processUC,
		AnswerUC:   answerUC,
		EvaluateUC: evaluateUC,

		Orchestrator: orch,

		closeFn: func() {
			queue.Close()
			_ = lexical.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
