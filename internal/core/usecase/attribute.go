package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/sankofa-health/malaria-rag/internal/core/domain"
	"github.com/sankofa-health/malaria-rag/internal/core/ports"
)

// countryIndicator is a weighted country-evidence token. Institution and
// health-authority names weigh more than bare place names because they
// pin the study itself, not just a mention.
type countryIndicator struct {
	token  string
	weight float64
}

var ghanaIndicators = []countryIndicator{
	{"ghana", 1},
	{"accra", 1},
	{"kumasi", 1},
	{"tamale", 1},
	{"takoradi", 1},
	{"ashanti", 1},
	{"legon", 1},
	{"greater accra", 2},
	{"university of ghana", 3},
	{"kwame nkrumah university", 3},
	{"korle bu", 3},
	{"ghana health service", 3},
}

var nigeriaIndicators = []countryIndicator{
	{"nigeria", 1},
	{"abuja", 1},
	{"lagos", 1},
	{"kano", 1},
	{"ibadan", 1},
	{"kaduna", 1},
	{"port harcourt", 2},
	{"benin city", 2},
	{"university of ibadan", 3},
	{"university of lagos", 3},
	{"ahmadu bello university", 3},
	{"nigeria centre for disease control", 3},
	{"federal ministry of health", 3},
}

const (
	// minEvidenceScore is the floor a country's accumulated score must
	// clear to count as detected.
	minEvidenceScore = 2.0
	// confidenceSaturation shapes score -> confidence: score/(score+k),
	// monotonic and bounded below 1.
	confidenceSaturation = 5.0
)

// AttributeCountryUseCase labels a document with its study region.
type AttributeCountryUseCase struct {
	repo ports.DocumentRepository
}

func NewAttributeCountryUseCase(repo ports.DocumentRepository) *AttributeCountryUseCase {
	return &AttributeCountryUseCase{repo: repo}
}

// Attribute scores Ghana and Nigeria evidence independently and persists
// the winning label. Documents already carrying a non-Unknown label are
// skipped.
func (uc *AttributeCountryUseCase) Attribute(ctx context.Context, doc *domain.Document, text string) (domain.CountryLabel, float64, error) {
	if doc.Country != "" && doc.Country != domain.CountryUnknown {
		return doc.Country, doc.CountryConfidence, nil
	}

	label, confidence := DetectCountry(text)

	if err := uc.repo.SaveCountry(ctx, doc.Fingerprint, label, confidence); err != nil {
		return "", 0, fmt.Errorf("save country label: %w", err)
	}
	if doc.Status.CanAdvanceTo(domain.StatusAttributed) {
		if err := uc.repo.UpdateStatus(ctx, doc.Fingerprint, domain.StatusAttributed, ""); err != nil {
			return "", 0, fmt.Errorf("mark attributed: %w", err)
		}
		doc.Status = domain.StatusAttributed
	}
	doc.Country = label
	doc.CountryConfidence = confidence
	return label, confidence, nil
}

// DetectCountry accumulates weighted indicator hits per country. Both
// above threshold gives the combined label; neither gives Unknown with
// zero confidence.
func DetectCountry(text string) (domain.CountryLabel, float64) {
	lower := strings.ToLower(text)

	ghana := evidenceScore(lower, ghanaIndicators)
	nigeria := evidenceScore(lower, nigeriaIndicators)

	ghanaDetected := ghana >= minEvidenceScore
	nigeriaDetected := nigeria >= minEvidenceScore

	var label domain.CountryLabel
	var winning float64
	switch {
	case ghanaDetected && nigeriaDetected:
		label = domain.CountryGhanaNigeria
		winning = max(ghana, nigeria)
	case ghanaDetected:
		label = domain.CountryGhana
		winning = ghana
	case nigeriaDetected:
		label = domain.CountryNigeria
		winning = nigeria
	default:
		return domain.CountryUnknown, 0
	}

	return label, clamp01(winning / (winning + confidenceSaturation))
}

func evidenceScore(lowerText string, indicators []countryIndicator) float64 {
	var score float64
	for _, ind := range indicators {
		if n := strings.Count(lowerText, ind.token); n > 0 {
			score += float64(n) * ind.weight
		}
	}
	return score
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
