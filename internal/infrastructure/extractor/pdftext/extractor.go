package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	pdflib "github.com/ledongthuc/pdf"

	"github.com/sankofa-health/malaria-rag/internal/core/ports"
)

// A page with fewer non-space characters than this is counted empty;
// scanned-image PDFs produce many such pages and get rejected downstream.
const minPageChars = 20

// Extractor pulls plain text and page metrics out of PDF bytes.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(ctx context.Context, raw []byte) (ports.ExtractedText, error) {
	reader, err := pdflib.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return ports.ExtractedText{}, fmt.Errorf("parse pdf: %w", err)
	}

	var buf strings.Builder
	result := ports.ExtractedText{PageCount: reader.NumPage()}

	for i := 1; i <= result.PageCount; i++ {
		if err := ctx.Err(); err != nil {
			return ports.ExtractedText{}, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			result.EmptyPages++
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page is an empty page, not a failed
			// document.
			result.EmptyPages++
			continue
		}
		if utf8.RuneCountInString(strings.TrimSpace(text)) < minPageChars {
			result.EmptyPages++
		}
		if i > 1 {
			buf.WriteString("\n")
		}
		buf.WriteString(text)
	}

	result.Text = strings.TrimSpace(buf.String())
	return result, nil
}
