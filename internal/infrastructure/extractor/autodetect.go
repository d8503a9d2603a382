package extractor

import (
	"bytes"
	"context"

	"github.com/sankofa-health/malaria-rag/internal/core/ports"
)

var pdfMagic = []byte("%PDF-")

// Autodetect routes raw bytes to the PDF or plain-text extractor by the
// file magic. Registration stores whatever bytes were uploaded; the
// pipeline decides how to read them.
type Autodetect struct {
	pdf   ports.TextExtractor
	plain ports.TextExtractor
}

func NewAutodetect(pdf, plain ports.TextExtractor) *Autodetect {
	return &Autodetect{pdf: pdf, plain: plain}
}

func (a *Autodetect) Extract(ctx context.Context, raw []byte) (ports.ExtractedText, error) {
	if bytes.HasPrefix(raw, pdfMagic) {
		return a.pdf.Extract(ctx, raw)
	}
	return a.plain.Extract(ctx, raw)
}
