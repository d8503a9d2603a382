package bleveindex

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/search/query"

	"github.com/sankofa-health/malaria-rag/internal/core/domain"
	"github.com/sankofa-health/malaria-rag/internal/core/ports"
)

// indexedChunk is the shape bleve analyzes. Filter fields ride along as
// plain tokens so filters become conjuncts of the text query and scope
// the candidate pool before ranking.
type indexedChunk struct {
	Text    string `json:"text"`
	Country string `json:"country"`
	Disease string `json:"disease"`
	Year    string `json:"year"`
	Section string `json:"section"`
}

type chunkMeta struct {
	chunk   domain.Chunk
	country domain.CountryLabel
}

// Index is an in-memory BM25-style keyword index over chunk text. The
// index is rebuilt from the chunk repository at startup; it is a cache of
// Postgres state, never the source of truth.
type Index struct {
	mu   sync.RWMutex
	idx  bleve.Index
	meta map[string]chunkMeta
}

func New() (*Index, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create bleve index: %w", err)
	}
	return &Index{
		idx:  idx,
		meta: make(map[string]chunkMeta),
	}, nil
}

func (i *Index) Index(_ context.Context, chunk domain.Chunk, doc *domain.Document) error {
	entry := indexedChunk{
		Text:    chunk.Text,
		Disease: "malaria",
		Section: string(chunk.Section),
	}
	var country domain.CountryLabel
	if doc != nil {
		// "Ghana|Nigeria" analyzes into both tokens, so a single-country
		// filter matches multi-site studies.
		entry.Country = strings.ReplaceAll(string(doc.Country), "|", " ")
		entry.Disease = doc.Disease
		if doc.Year > 0 {
			entry.Year = strconv.Itoa(doc.Year)
		}
		country = doc.Country
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.idx.Index(chunk.ID(), entry); err != nil {
		return fmt.Errorf("index chunk %s: %w", chunk.ID(), err)
	}
	i.meta[chunk.ID()] = chunkMeta{chunk: chunk, country: country}
	return nil
}

func (i *Index) Search(_ context.Context, text string, limit int, filter domain.SearchFilter) ([]domain.RetrievedChunk, error) {
	match := bleve.NewMatchQuery(text)
	match.SetField("text")

	conjuncts := []query.Query{match}
	addTerm := func(field, value string) {
		tq := bleve.NewTermQuery(strings.ToLower(value))
		tq.SetField(field)
		conjuncts = append(conjuncts, tq)
	}
	if filter.Country != "" {
		addTerm("country", string(filter.Country))
	}
	if filter.Disease != "" {
		addTerm("disease", filter.Disease)
	}
	if filter.Year > 0 {
		addTerm("year", strconv.Itoa(filter.Year))
	}

	req := bleve.NewSearchRequestOptions(bleve.NewConjunctionQuery(conjuncts...), limit, 0, false)

	i.mu.RLock()
	defer i.mu.RUnlock()
	res, err := i.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	out := make([]domain.RetrievedChunk, 0, len(res.Hits))
	for _, hit := range res.Hits {
		meta, ok := i.meta[hit.ID]
		if !ok {
			continue
		}
		out = append(out, domain.RetrievedChunk{
			ChunkID:    hit.ID,
			DocumentID: meta.chunk.DocumentFingerprint,
			Ordinal:    meta.chunk.Ordinal,
			Section:    meta.chunk.Section,
			Country:    meta.country,
			Text:       meta.chunk.Text,
			CharCount:  meta.chunk.CharCount,
			// bleve v1 scores with tf-idf; the hybrid engine
			// max-normalizes within the result set, so the lexical
			// component only needs a consistent relevance ordering.
			BM25Score: hit.Score,
		})
	}
	return out, nil
}

// Rebuild reloads every persisted chunk into the in-memory index. Called
// once at startup before the HTTP surface accepts queries.
func (i *Index) Rebuild(ctx context.Context, chunks ports.ChunkRepository, docs ports.DocumentRepository) (int, error) {
	all, err := chunks.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("list chunks: %w", err)
	}

	docCache := make(map[string]*domain.Document)
	indexed := 0
	for _, chunk := range all {
		doc, ok := docCache[chunk.DocumentFingerprint]
		if !ok {
			doc, err = docs.GetByFingerprint(ctx, chunk.DocumentFingerprint)
			if err != nil {
				return indexed, fmt.Errorf("load document %s: %w", chunk.DocumentFingerprint, err)
			}
			docCache[chunk.DocumentFingerprint] = doc
		}
		if err := i.Index(ctx, chunk, doc); err != nil {
			return indexed, err
		}
		indexed++
	}
	return indexed, nil
}

func (i *Index) Close() error {
	return i.idx.Close()
}
