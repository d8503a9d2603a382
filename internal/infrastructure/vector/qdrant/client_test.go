package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/sankofa-health/malaria-rag/internal/core/domain"
)

func testChunk() domain.Chunk {
	return domain.Chunk{
		DocumentFingerprint: "abc123",
		Ordinal:             0,
		Section:             domain.SectionResults,
		Text:                "parasitaemia declined after treatment",
		CharCount:           37,
	}
}

func TestUpsertEnsuresCollectionOncePerVectorSize(t *testing.T) {
	var ensureCalls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/chunks":
			atomic.AddInt32(&ensureCalls, 1)
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/chunks/points":
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "chunks")
	doc := &domain.Document{Fingerprint: "abc123", Country: domain.CountryGhana, Disease: "malaria"}

	if err := client.Upsert(context.Background(), testChunk(), []float32{0.1, 0.2}, doc); err != nil {
		t.Fatalf("first Upsert() error = %v", err)
	}
	if err := client.Upsert(context.Background(), testChunk(), []float32{0.3, 0.4}, doc); err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}
	if got := atomic.LoadInt32(&ensureCalls); got != 1 {
		t.Fatalf("expected ensure collection called once, got %d", got)
	}
}

func TestUpsertSendsDeterministicPointIDAndPayload(t *testing.T) {
	var captured struct {
		Points []struct {
			ID      string         `json:"id"`
			Payload map[string]any `json:"payload"`
		} `json:"points"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && r.URL.Path == "/collections/chunks/points" {
			_ = json.NewDecoder(r.Body).Decode(&captured)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := New(server.URL, "chunks")
	doc := &domain.Document{Fingerprint: "abc123", Country: domain.CountryGhanaNigeria, Disease: "malaria", Year: 2021}
	chunk := testChunk()

	if err := client.Upsert(context.Background(), chunk, []float32{0.1}, doc); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if len(captured.Points) != 1 {
		t.Fatalf("captured %d points", len(captured.Points))
	}
	point := captured.Points[0]
	if point.ID != PointID(chunk.ID()) {
		t.Errorf("point id = %s, want deterministic %s", point.ID, PointID(chunk.ID()))
	}
	if got := point.Payload["section"]; got != "results" {
		t.Errorf("payload section = %v", got)
	}
	countries, _ := point.Payload["countries"].([]any)
	if len(countries) != 2 {
		t.Errorf("countries payload = %v, want both labels", point.Payload["countries"])
	}
}

func TestSearchMapsPayloadToRetrievedChunk(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/chunks/points/search" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"result":[{
			"score": 0.87,
			"payload": {
				"chunk_id": "abc123:4",
				"doc_id": "abc123",
				"ordinal": 4,
				"section": "methods",
				"country": "Ghana",
				"text": "sampling procedure",
				"char_count": 18
			}
		}]}`))
	}))
	defer server.Close()

	client := New(server.URL, "chunks")
	hits, err := client.Search(context.Background(), []float32{0.1}, 5, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits", len(hits))
	}
	hit := hits[0]
	if hit.ChunkID != "abc123:4" || hit.Ordinal != 4 || hit.Section != domain.SectionMethods {
		t.Errorf("hit = %+v", hit)
	}
	if hit.SemanticScore != 0.87 {
		t.Errorf("semantic score = %f", hit.SemanticScore)
	}
}

func TestSearchBuildsFilterConditions(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_, _ = w.Write([]byte(`{"result":[]}`))
	}))
	defer server.Close()

	client := New(server.URL, "chunks")
	_, err := client.Search(context.Background(), []float32{0.1}, 5, domain.SearchFilter{
		Country: domain.CountryGhana,
		Year:    2021,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	filter, _ := captured["filter"].(map[string]any)
	must, _ := filter["must"].([]any)
	if len(must) != 2 {
		t.Fatalf("must conditions = %v, want country and year", filter)
	}
}

func TestExistsChecksPointRetrieve(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/chunks/points" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			IDs []string `json:"ids"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.IDs) == 1 && req.IDs[0] == PointID("abc123:0") {
			_, _ = w.Write([]byte(`{"result":[{"id":"` + req.IDs[0] + `"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"result":[]}`))
	}))
	defer server.Close()

	client := New(server.URL, "chunks")

	exists, err := client.Exists(context.Background(), "abc123:0")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !exists {
		t.Error("stored point reported absent")
	}

	exists, err = client.Exists(context.Background(), "abc123:99")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Error("missing point reported present")
	}
}

func TestUpsertIncludesResponseBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(server.URL, "chunks")
	err := client.Upsert(context.Background(), testChunk(), []float32{0.1}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected error to include body, got %v", err)
	}
}
