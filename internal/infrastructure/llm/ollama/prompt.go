package ollama

import (
	"fmt"
	"strings"

	"github.com/sankofa-health/malaria-rag/internal/core/domain"
)

// maxContextChars caps the evidence block so a pathological chunk set
// cannot blow past the model's context window.
const maxContextChars = 24000

func buildAnswerPrompt(question string, chunks []domain.RetrievedChunk) string {
	var contextBuilder strings.Builder
	for idx, chunk := range chunks {
		entry := fmt.Sprintf(
			"[%d] document=%s section=%s country=%s score=%.3f\n%s\n\n",
			idx+1,
			chunk.DocumentID,
			chunk.Section,
			chunk.Country,
			chunk.FinalScore,
			chunk.Text,
		)
		if contextBuilder.Len()+len(entry) > maxContextChars {
			break
		}
		contextBuilder.WriteString(entry)
	}

	return fmt.Sprintf(`You are a clinical research assistant answering questions about malaria studies from Ghana and Nigeria.

Answer the question using ONLY the numbered excerpts below. Cite excerpts as [n] after each claim. Do not use outside knowledge.

If the excerpts do not contain enough information to answer, reply with exactly: INSUFFICIENT EVIDENCE followed by one sentence naming what is missing.

Question:
%s

Excerpts:
%s`, question, contextBuilder.String())
}
