package usecase

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/sankofa-health/malaria-rag/internal/core/domain"
	"github.com/sankofa-health/malaria-rag/internal/core/ports"
)

// Qualification thresholds. A document failing any of them is rejected
// outright; no downstream stage ever runs on a rejected document.
const (
	minExtractedChars  = 3000
	maxEmptyPageRatio  = 0.2
	minAvgCharsPerPage = 300.0
)

// QualifyDocumentUseCase gates documents on raw-text quality.
type QualifyDocumentUseCase struct {
	repo ports.DocumentRepository
}

func NewQualifyDocumentUseCase(repo ports.DocumentRepository) *QualifyDocumentUseCase {
	return &QualifyDocumentUseCase{repo: repo}
}

// Qualify admits or rejects a pending document based on its extracted
// text. Rejection is terminal and surfaces as a permanent error so the
// pipeline halts the document's chain without retrying. Documents already
// past qualification pass through unchanged.
func (uc *QualifyDocumentUseCase) Qualify(ctx context.Context, doc *domain.Document, extracted ports.ExtractedText) (*domain.Document, error) {
	if doc.Status == domain.StatusRejected {
		return nil, domain.WrapError(domain.ErrPermanent, "qualify document", fmt.Errorf("document %s already rejected: %s", doc.Fingerprint, doc.RejectionReason))
	}
	if doc.Status != domain.StatusPending {
		return doc, nil
	}

	metrics := domain.QualityMetrics{
		CharCount: utf8.RuneCountInString(extracted.Text),
		PageCount: extracted.PageCount,
	}
	if extracted.PageCount > 0 {
		metrics.EmptyPageRatio = float64(extracted.EmptyPages) / float64(extracted.PageCount)
	}
	if err := uc.repo.SaveQuality(ctx, doc.Fingerprint, metrics); err != nil {
		return nil, fmt.Errorf("save quality metrics: %w", err)
	}
	doc.Quality = metrics

	if reason := rejectionReason(metrics); reason != "" {
		if err := uc.repo.UpdateStatus(ctx, doc.Fingerprint, domain.StatusRejected, reason); err != nil {
			return nil, fmt.Errorf("mark rejected: %w", err)
		}
		doc.Status = domain.StatusRejected
		doc.RejectionReason = reason
		return doc, domain.WrapError(domain.ErrPermanent, "qualify document", fmt.Errorf("rejected: %s", reason))
	}

	if err := uc.repo.UpdateStatus(ctx, doc.Fingerprint, domain.StatusQualified, ""); err != nil {
		return nil, fmt.Errorf("mark qualified: %w", err)
	}
	doc.Status = domain.StatusQualified
	return doc, nil
}

func rejectionReason(m domain.QualityMetrics) string {
	switch {
	case m.CharCount < minExtractedChars:
		return fmt.Sprintf("insufficient text: %d chars < %d", m.CharCount, minExtractedChars)
	case m.EmptyPageRatio > maxEmptyPageRatio:
		return fmt.Sprintf("empty page ratio %.2f exceeds %.2f", m.EmptyPageRatio, maxEmptyPageRatio)
	case m.AvgCharsPerPage() < minAvgCharsPerPage:
		return fmt.Sprintf("avg chars per page %.0f below %.0f", m.AvgCharsPerPage(), minAvgCharsPerPage)
	default:
		return ""
	}
}
