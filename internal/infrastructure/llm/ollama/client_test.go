package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sankofa-health/malaria-rag/internal/core/domain"
)

func TestGeneratorBuildsGroundedPrompt(t *testing.T) {
	var capturedPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		capturedPrompt, _ = payload["prompt"].(string)
		_, _ = w.Write([]byte(`{"response":"ok"}`))
	}))
	defer server.Close()

	client := New(server.URL, "gen", "embed", Options{})
	gen := NewGenerator(client)
	chunks := []domain.RetrievedChunk{{
		DocumentID: "abc123",
		Section:    domain.SectionResults,
		Country:    domain.CountryGhana,
		Text:       "parasitaemia fell by half",
		FinalScore: 1.02,
	}}
	_, err := gen.GenerateAnswer(context.Background(), "Did parasitaemia decline?", chunks)
	if err != nil {
		t.Fatalf("GenerateAnswer() error = %v", err)
	}
	for _, want := range []string{
		"Did parasitaemia decline?",
		"parasitaemia fell by half",
		"section=results",
		"INSUFFICIENT EVIDENCE",
	} {
		if !strings.Contains(capturedPrompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, capturedPrompt)
		}
	}
}

func TestEmbedReturnsVectorPerInput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2],[0.3,0.4]]}`))
	}))
	defer server.Close()

	client := New(server.URL, "gen", "embed", Options{})
	vectors, err := NewEmbedder(client).Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != 2 || len(vectors[0]) != 2 {
		t.Fatalf("vectors = %v", vectors)
	}
}

func TestEmbedCountMismatchIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[[0.1]]}`))
	}))
	defer server.Close()

	client := New(server.URL, "gen", "embed", Options{})
	_, err := NewEmbedder(client).Embed(context.Background(), []string{"a", "b"})
	if err == nil {
		t.Fatal("expected error on vector count mismatch")
	}
}

func TestEmbedServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	client := New(server.URL, "gen", "embed", Options{})
	_, err := NewEmbedder(client).Embed(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if !domain.IsKind(err, domain.ErrTransient) {
		t.Fatalf("502 not classified transient: %v", err)
	}
}

func TestGenerateBadRequestIsNotTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown model", http.StatusBadRequest)
	}))
	defer server.Close()

	client := New(server.URL, "gen", "embed", Options{})
	_, err := NewGenerator(client).GenerateAnswer(context.Background(), "q?", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if domain.IsKind(err, domain.ErrTransient) {
		t.Fatalf("400 classified transient: %v", err)
	}
}
