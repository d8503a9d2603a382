package domain

import "fmt"

type Section string

const (
	SectionAbstract   Section = "abstract"
	SectionMethods    Section = "methods"
	SectionResults    Section = "results"
	SectionDiscussion Section = "discussion"
	SectionTables     Section = "tables"
	SectionFullText   Section = "full_text"
)

// Chunk identity is (document fingerprint, ordinal). Ordinals are
// deterministic for a given document text, which keeps re-chunking and
// re-embedding idempotent.
type Chunk struct {
	DocumentFingerprint string  `json:"document_fingerprint"`
	Ordinal             int     `json:"ordinal"`
	Section             Section `json:"section"`
	Text                string  `json:"text"`
	CharCount           int     `json:"char_count"`
}

// ID renders the composite identity as a single key for stores that want
// one.
func (c Chunk) ID() string {
	return fmt.Sprintf("%s:%d", c.DocumentFingerprint, c.Ordinal)
}
