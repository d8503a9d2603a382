package plaintext

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sankofa-health/malaria-rag/internal/core/ports"
)

// Extractor treats the raw bytes as UTF-8 text. Used for plain-text
// papers and in development setups without PDF sources; page metrics
// degenerate to a single page.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(_ context.Context, raw []byte) (ports.ExtractedText, error) {
	if !utf8.Valid(raw) {
		return ports.ExtractedText{}, fmt.Errorf("not valid utf-8 text")
	}

	text := strings.TrimSpace(string(raw))
	result := ports.ExtractedText{Text: text, PageCount: 1}
	if text == "" {
		result.EmptyPages = 1
	}
	return result, nil
}
