package usecase

import (
	"sort"

	"github.com/sankofa-health/malaria-rag/internal/core/domain"
)

// Hybrid score weights. Semantic similarity dominates; BM25 keeps exact
// terminology (drug names, parasite species) from being washed out.
const (
	semanticWeight = 0.7
	lexicalWeight  = 0.3
)

// sectionBoosts is the fixed additive bonus per section label. Results
// carry the strongest evidence for clinical questions; tables and
// unlabeled text get none.
var sectionBoosts = map[domain.Section]float64{
	domain.SectionResults:    0.30,
	domain.SectionMethods:    0.20,
	domain.SectionDiscussion: 0.10,
	domain.SectionAbstract:   0.05,
	domain.SectionTables:     0.00,
	domain.SectionFullText:   0.00,
}

func SectionBoost(section domain.Section) float64 {
	return sectionBoosts[section]
}

// fuseHybrid merges the semantic and lexical candidate sets into one
// ranked list. Scores are max-normalized to [0,1] within their own result
// set before weighting, so the combination is meaningful across the two
// scales; a candidate absent from one set scores 0 on that component.
// Ordering is deterministic for identical inputs: final score descending,
// ties by semantic score, then insertion order (semantic set first).
func fuseHybrid(semantic, lexical []domain.RetrievedChunk) []domain.RetrievedChunk {
	maxSem := maxScore(semantic, func(c domain.RetrievedChunk) float64 { return c.SemanticScore })
	maxLex := maxScore(lexical, func(c domain.RetrievedChunk) float64 { return c.BM25Score })

	index := make(map[string]int, len(semantic)+len(lexical))
	merged := make([]domain.RetrievedChunk, 0, len(semantic)+len(lexical))

	for _, hit := range semantic {
		hit.SemanticScore = normalize(hit.SemanticScore, maxSem)
		hit.BM25Score = 0
		index[hit.ChunkID] = len(merged)
		merged = append(merged, hit)
	}
	for _, hit := range lexical {
		score := normalize(hit.BM25Score, maxLex)
		if i, ok := index[hit.ChunkID]; ok {
			merged[i].BM25Score = score
			fillMissing(&merged[i], hit)
			continue
		}
		hit.SemanticScore = 0
		hit.BM25Score = score
		index[hit.ChunkID] = len(merged)
		merged = append(merged, hit)
	}

	for i := range merged {
		merged[i].SectionBoost = SectionBoost(merged[i].Section)
		merged[i].FinalScore = semanticWeight*merged[i].SemanticScore +
			lexicalWeight*merged[i].BM25Score +
			merged[i].SectionBoost
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].FinalScore != merged[j].FinalScore {
			return merged[i].FinalScore > merged[j].FinalScore
		}
		return merged[i].SemanticScore > merged[j].SemanticScore
	})
	return merged
}

func maxScore(chunks []domain.RetrievedChunk, score func(domain.RetrievedChunk) float64) float64 {
	var m float64
	for _, c := range chunks {
		if s := score(c); s > m {
			m = s
		}
	}
	return m
}

func normalize(score, max float64) float64 {
	if max <= 0 {
		return 0
	}
	return clamp01(score / max)
}

// fillMissing copies metadata a candidate's first sighting lacked. The
// two stores carry the same payload, but a sparse hit should not erase a
// richer one.
func fillMissing(dst *domain.RetrievedChunk, src domain.RetrievedChunk) {
	if dst.Text == "" {
		dst.Text = src.Text
	}
	if dst.Section == "" {
		dst.Section = src.Section
	}
	if dst.Country == "" {
		dst.Country = src.Country
	}
	if dst.DocumentID == "" {
		dst.DocumentID = src.DocumentID
	}
	if dst.CharCount == 0 {
		dst.CharCount = src.CharCount
	}
}

func trimRanked(chunks []domain.RetrievedChunk, limit int) []domain.RetrievedChunk {
	if limit <= 0 || len(chunks) <= limit {
		return chunks
	}
	return chunks[:limit]
}
