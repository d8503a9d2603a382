package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/sankofa-health/malaria-rag/internal/core/domain"
	"github.com/sankofa-health/malaria-rag/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
	limiter    *rate.Limiter
}

type Options struct {
	// RequestsPerSecond throttles calls client-side so a burst of chunk
	// embeddings cannot saturate the model server. Zero disables.
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
	Executor          *resilience.Executor
}

func New(baseURL, genModel, embedModel string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	var limiter *rate.Limiter
	if options.RequestsPerSecond > 0 {
		burst := options.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(options.RequestsPerSecond), burst)
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.Executor,
		limiter:    limiter,
	}
}

// call runs one model request through the throttle and the resilience
// executor, then normalizes retryable failures to the transient kind.
func (c *Client) call(ctx context.Context, operation string, fn func(context.Context) error) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, operation, fn, classifyOllamaError)
	} else {
		err = fn(ctx)
	}
	return wrapTransientIfNeeded(operation, err)
}

// Embedder implements ports.Embedder against ollama's embed endpoint.
// Vectors are deterministic for identical input text and model.
type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	err := e.client.call(ctx, "ollama.embed", func(ctx context.Context) error {
		return e.client.postJSON(ctx, "/api/embed", request, &response, "embed")
	})
	if err != nil {
		return nil, err
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed returned %d vectors for %d inputs", len(response.Embeddings), len(texts))
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

// Generator implements ports.AnswerGenerator: grounded answers over the
// ranked evidence, refusing in-band when the excerpts miss the question.
type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) GenerateAnswer(ctx context.Context, question string, chunks []domain.RetrievedChunk) (string, error) {
	request := map[string]any{
		"model":  g.client.genModel,
		"prompt": buildAnswerPrompt(question, chunks),
		"stream": false,
	}

	var response struct {
		Response string `json:"response"`
	}
	err := g.client.call(ctx, "ollama.generate", func(ctx context.Context) error {
		return g.client.postJSON(ctx, "/api/generate", request, &response, "generate")
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}
