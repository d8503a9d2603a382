package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sankofa-health/malaria-rag/internal/core/domain"
	"github.com/sankofa-health/malaria-rag/internal/core/ports"
	"github.com/sankofa-health/malaria-rag/internal/pipeline"
)

// Query graph node names, shared with the execution log.
const (
	NodeRetrieval  = "retrieval"
	NodeGeneration = "generation"
	NodeEvaluation = "evaluation"
)

// RefusalText is the fixed answer returned when the evidence pool does
// not clear the bar. The generator is also instructed to emit the marker
// itself when the provided excerpts turn out not to cover the question.
const (
	RefusalMarker = "INSUFFICIENT EVIDENCE"
	RefusalText   = "INSUFFICIENT EVIDENCE: the indexed literature does not contain enough relevant material to answer this question."
)

// AnswerConfig bounds the query graph's stages.
type AnswerConfig struct {
	RetrieveTimeout time.Duration
	GenerateTimeout time.Duration // LLM generation is the slow stage
	Retry           pipeline.RetryPolicy
}

func (c AnswerConfig) withDefaults() AnswerConfig {
	if c.RetrieveTimeout <= 0 {
		c.RetrieveTimeout = 15 * time.Second
	}
	if c.GenerateTimeout <= 0 {
		c.GenerateTimeout = 2 * time.Minute
	}
	if c.Retry.MaxRetries < 0 {
		c.Retry = pipeline.DefaultRetryPolicy()
	}
	return c
}

// AnswerQuestionUseCase drives one question through the query graph:
// evidence retrieval, grounded generation, then the evaluation tail that
// records the query. Refusal is a valid outcome of the chain, never a
// node failure. It implements ports.QuestionAnswerer.
type AnswerQuestionUseCase struct {
	retriever ports.EvidenceRetriever
	generator ports.AnswerGenerator
	queryLog  ports.QueryLogStore

	orch   *pipeline.Orchestrator
	logger *slog.Logger
}

func NewAnswerQuestionUseCase(
	retriever ports.EvidenceRetriever,
	generator ports.AnswerGenerator,
	queryLog ports.QueryLogStore,
	orch *pipeline.Orchestrator,
	cfg AnswerConfig,
	logger *slog.Logger,
) (*AnswerQuestionUseCase, error) {
	uc := &AnswerQuestionUseCase{
		retriever: retriever,
		generator: generator,
		queryLog:  queryLog,
		orch:      orch,
		logger:    logger,
	}
	if err := uc.registerGraph(cfg.withDefaults()); err != nil {
		return nil, fmt.Errorf("register query graph: %w", err)
	}
	return uc, nil
}

func (uc *AnswerQuestionUseCase) registerGraph(cfg AnswerConfig) error {
	nodes := []struct {
		name    string
		handler pipeline.Handler
		timeout time.Duration
	}{
		{NodeRetrieval, uc.retrieveEvidence, cfg.RetrieveTimeout},
		{NodeGeneration, uc.generateAnswer, cfg.GenerateTimeout},
		{NodeEvaluation, uc.recordQuery, cfg.RetrieveTimeout},
	}
	for _, n := range nodes {
		if err := uc.orch.RegisterNode(n.name, n.handler, cfg.Retry, n.timeout); err != nil {
			return err
		}
	}

	edges := [][2]string{
		{NodeRetrieval, NodeGeneration},
		{NodeGeneration, NodeEvaluation},
	}
	for _, e := range edges {
		if err := uc.orch.RegisterEdge(e[0], e[1]); err != nil {
			return err
		}
	}
	return nil
}

func (uc *AnswerQuestionUseCase) Answer(ctx context.Context, question string, filter domain.SearchFilter, topK int) (*domain.Answer, error) {
	const op = "usecase.Answer"

	if strings.TrimSpace(question) == "" {
		return nil, domain.WrapError(domain.ErrValidation, op, fmt.Errorf("empty question"))
	}

	results, err := uc.orch.Execute(ctx, NodeRetrieval, pipeline.Params{
		"query_id": uuid.NewString(),
		"question": question,
		"filter":   filter,
		"top_k":    topK,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	answer, _ := results[NodeGeneration].Data["answer"].(*domain.Answer)
	if answer == nil {
		return nil, domain.WrapError(domain.ErrPermanent, op, fmt.Errorf("generation produced no answer"))
	}
	return answer, nil
}

func (uc *AnswerQuestionUseCase) retrieveEvidence(ctx context.Context, input pipeline.Params) (pipeline.Params, error) {
	question, _ := input["question"].(string)
	filter, _ := input["filter"].(domain.SearchFilter)
	topK, _ := input["top_k"].(int)

	result, err := uc.retriever.Retrieve(ctx, question, filter, topK)
	if err != nil {
		if domain.IsKind(err, domain.ErrValidation) {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrTransient, NodeRetrieval, err)
	}
	return pipeline.Params{"retrieval": result}, nil
}

func (uc *AnswerQuestionUseCase) generateAnswer(ctx context.Context, input pipeline.Params) (pipeline.Params, error) {
	question, _ := input["question"].(string)
	result, _ := input["retrieval"].(*domain.RetrievalResult)

	answer := &domain.Answer{Sources: result.Chunks}
	if result.InsufficientEvidence {
		answer.Text = RefusalText
		answer.IsRefusal = true
	} else {
		text, err := uc.generator.GenerateAnswer(ctx, question, result.Chunks)
		if err != nil {
			if domain.IsKind(err, domain.ErrPermanent) {
				return nil, err
			}
			return nil, domain.WrapError(domain.ErrTransient, NodeGeneration, err)
		}
		answer.Text = text
		// The model refuses in-band when the excerpts miss the question.
		answer.IsRefusal = strings.Contains(text, RefusalMarker)
	}
	if answer.IsRefusal {
		answer.Sources = nil
	}

	return pipeline.Params{"answer": answer, "retrieval": result}, nil
}

// recordQuery is the evaluation tail of the query graph: one audit entry
// per query, feeding the evaluation aggregates. A failed write must not
// fail an already-produced answer, so errors are only logged. The write
// survives caller cancellation the same way pipeline audit records do.
func (uc *AnswerQuestionUseCase) recordQuery(ctx context.Context, input pipeline.Params) (pipeline.Params, error) {
	queryID, _ := input["query_id"].(string)
	question, _ := input["question"].(string)
	filter, _ := input["filter"].(domain.SearchFilter)
	result, _ := input["retrieval"].(*domain.RetrievalResult)
	answer, _ := input["answer"].(*domain.Answer)

	entry := domain.QueryLog{
		QueryID:   queryID,
		Query:     question,
		Filter:    filter,
		Chunks:    make([]domain.ChunkScore, 0, len(result.Chunks)),
		IsRefusal: answer.IsRefusal,
		CreatedAt: time.Now().UTC(),
	}
	for _, c := range result.Chunks {
		entry.Chunks = append(entry.Chunks, domain.ChunkScore{
			ChunkID:       c.ChunkID,
			Section:       c.Section,
			SemanticScore: c.SemanticScore,
			BM25Score:     c.BM25Score,
			FinalScore:    c.FinalScore,
		})
	}

	if err := uc.queryLog.Append(context.WithoutCancel(ctx), entry); err != nil {
		uc.logger.Error("query log append failed",
			slog.String("query_id", entry.QueryID),
			slog.String("error", err.Error()),
		)
	}
	return nil, nil
}
