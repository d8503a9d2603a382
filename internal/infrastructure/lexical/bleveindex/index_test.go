package bleveindex

import (
	"context"
	"testing"

	"github.com/sankofa-health/malaria-rag/internal/core/domain"
)

func seedIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { idx.Close() })

	docs := []struct {
		doc  domain.Document
		text string
	}{
		{
			doc:  domain.Document{Fingerprint: "ghanaDoc", Country: domain.CountryGhana, Disease: "malaria", Year: 2021},
			text: "Insecticide-treated net usage reduced malaria incidence among children under five.",
		},
		{
			doc:  domain.Document{Fingerprint: "nigeriaDoc", Country: domain.CountryNigeria, Disease: "malaria", Year: 2019},
			text: "Artemisinin combination therapy adherence was assessed across urban clinics.",
		},
		{
			doc:  domain.Document{Fingerprint: "bothDoc", Country: domain.CountryGhanaNigeria, Disease: "malaria", Year: 2021},
			text: "Multi-site surveillance of insecticide resistance in Anopheles gambiae populations.",
		},
	}
	for _, d := range docs {
		chunk := domain.Chunk{
			DocumentFingerprint: d.doc.Fingerprint,
			Ordinal:             0,
			Section:             domain.SectionResults,
			Text:                d.text,
			CharCount:           len(d.text),
		}
		if err := idx.Index(context.Background(), chunk, &d.doc); err != nil {
			t.Fatalf("Index: %v", err)
		}
	}
	return idx
}

func TestSearchReturnsScoredHits(t *testing.T) {
	idx := seedIndex(t)

	hits, err := idx.Search(context.Background(), "insecticide treated net usage", 10, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("no hits")
	}
	if hits[0].DocumentID != "ghanaDoc" {
		t.Errorf("top hit = %s, want ghanaDoc", hits[0].DocumentID)
	}
	if hits[0].BM25Score <= 0 {
		t.Errorf("score = %f, want > 0", hits[0].BM25Score)
	}
	if hits[0].Section != domain.SectionResults || hits[0].Text == "" {
		t.Errorf("hit metadata incomplete: %+v", hits[0])
	}
}

func TestSearchCountryFilterScopesPool(t *testing.T) {
	idx := seedIndex(t)

	hits, err := idx.Search(context.Background(), "insecticide", 10, domain.SearchFilter{Country: domain.CountryGhana})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, h := range hits {
		if h.DocumentID == "nigeriaDoc" {
			t.Errorf("Nigeria-only document passed the Ghana filter")
		}
	}
	// The combined-label study is a Ghana study too.
	found := map[string]bool{}
	for _, h := range hits {
		found[h.DocumentID] = true
	}
	if !found["bothDoc"] {
		t.Error("Ghana|Nigeria document excluded by the Ghana filter")
	}
}

func TestSearchYearFilter(t *testing.T) {
	idx := seedIndex(t)

	hits, err := idx.Search(context.Background(), "malaria insecticide therapy", 10, domain.SearchFilter{Year: 2019})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, h := range hits {
		if h.DocumentID != "nigeriaDoc" {
			t.Errorf("unexpected hit %s for year 2019", h.DocumentID)
		}
	}
}

func TestSearchNoMatchesIsEmpty(t *testing.T) {
	idx := seedIndex(t)

	hits, err := idx.Search(context.Background(), "qqqqxyzzy", 10, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("got %d hits for gibberish query", len(hits))
	}
}
