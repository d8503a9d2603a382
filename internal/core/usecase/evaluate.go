package usecase

import (
	"context"

	"github.com/sankofa-health/malaria-rag/internal/core/domain"
	"github.com/sankofa-health/malaria-rag/internal/core/ports"
)

// EvaluateUseCase exposes aggregated retrieval quality metrics. It
// implements ports.Evaluator.
type EvaluateUseCase struct {
	queryLog ports.QueryLogStore
}

func NewEvaluateUseCase(queryLog ports.QueryLogStore) *EvaluateUseCase {
	return &EvaluateUseCase{queryLog: queryLog}
}

func (uc *EvaluateUseCase) Metrics(ctx context.Context) (domain.EvaluationMetrics, error) {
	const op = "usecase.Metrics"

	metrics, err := uc.queryLog.Aggregate(ctx)
	if err != nil {
		return domain.EvaluationMetrics{}, domain.WrapError(domain.ErrTransient, op, err)
	}
	return metrics, nil
}
