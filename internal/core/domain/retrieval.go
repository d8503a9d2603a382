package domain

// SearchFilter scopes the candidate pool before scoring. Zero values mean
// "no constraint".
type SearchFilter struct {
	Country CountryLabel `json:"country,omitempty"`
	Disease string       `json:"disease,omitempty"`
	Year    int          `json:"year,omitempty"`
}

func (f SearchFilter) IsZero() bool {
	return f.Country == "" && f.Disease == "" && f.Year == 0
}

// RetrievedChunk keeps the full score decomposition; the citation UI and
// the evaluator both need the parts, not just the final number.
type RetrievedChunk struct {
	ChunkID       string       `json:"chunk_id"`
	DocumentID    string       `json:"document_id"`
	Ordinal       int          `json:"ordinal"`
	Section       Section      `json:"section"`
	Country       CountryLabel `json:"country,omitempty"`
	Text          string       `json:"text"`
	CharCount     int          `json:"char_count"`
	SemanticScore float64      `json:"semantic_score"`
	BM25Score     float64      `json:"bm25_score"`
	SectionBoost  float64      `json:"section_boost"`
	FinalScore    float64      `json:"final_score"`
}

// RetrievalResult is the hybrid engine's produced contract. The engine
// only reports the evidentiary bar; translating "insufficient" into a
// refusal answer is the generator's job.
type RetrievalResult struct {
	Chunks               []RetrievedChunk `json:"ranked_chunks"`
	InsufficientEvidence bool             `json:"is_insufficient_evidence"`
}

type Answer struct {
	Text      string           `json:"text"`
	IsRefusal bool             `json:"is_refusal"`
	Sources   []RetrievedChunk `json:"sources"`
}
