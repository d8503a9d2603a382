package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sankofa-health/malaria-rag/internal/core/domain"
)

// pointNamespace makes point IDs a pure function of the chunk ID, so
// re-upserting a chunk overwrites its point instead of duplicating it.
var pointNamespace = uuid.MustParse("8a0fdfcd-1f5e-4f1a-9f2b-6e1d30b6a2c4")

func PointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) Upsert(ctx context.Context, chunk domain.Chunk, vector []float32, doc *domain.Document) error {
	if len(vector) == 0 {
		return fmt.Errorf("empty vector for chunk %s", chunk.ID())
	}
	if err := c.ensureCollection(ctx, len(vector)); err != nil {
		return err
	}

	payload := map[string]any{
		"chunk_id":   chunk.ID(),
		"doc_id":     chunk.DocumentFingerprint,
		"ordinal":    chunk.Ordinal,
		"section":    string(chunk.Section),
		"text":       chunk.Text,
		"char_count": chunk.CharCount,
	}
	if doc != nil {
		payload["countries"] = splitCountries(doc.Country)
		payload["country"] = string(doc.Country)
		payload["disease"] = doc.Disease
		if doc.Year > 0 {
			payload["year"] = doc.Year
		}
	}

	reqBody := map[string]any{
		"points": []map[string]any{{
			"id":      PointID(chunk.ID()),
			"vector":  vector,
			"payload": payload,
		}},
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
	return c.do(ctx, http.MethodPut, url, reqBody, nil)
}

func (c *Client) Search(
	ctx context.Context,
	queryVector []float32,
	limit int,
	filter domain.SearchFilter,
) ([]domain.RetrievedChunk, error) {
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}
	if must := filterConditions(filter); len(must) > 0 {
		reqBody["filter"] = map[string]any{"must": must}
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	if err := c.do(ctx, http.MethodPost, url, reqBody, &searchResp); err != nil {
		return nil, err
	}

	out := make([]domain.RetrievedChunk, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.RetrievedChunk{
			ChunkID:       getStringPayload(r.Payload, "chunk_id"),
			DocumentID:    getStringPayload(r.Payload, "doc_id"),
			Ordinal:       getIntPayload(r.Payload, "ordinal"),
			Section:       domain.Section(getStringPayload(r.Payload, "section")),
			Country:       domain.CountryLabel(getStringPayload(r.Payload, "country")),
			Text:          getStringPayload(r.Payload, "text"),
			CharCount:     getIntPayload(r.Payload, "char_count"),
			SemanticScore: r.Score,
		})
	}
	return out, nil
}

// Exists reports whether a point for this chunk is already stored. An
// error talking to qdrant is an error, not "absent": the caller decides
// whether to give up or retry, and a false negative would duplicate work
// but a swallowed error would hide an outage.
func (c *Client) Exists(ctx context.Context, chunkID string) (bool, error) {
	reqBody := map[string]any{
		"ids":          []string{PointID(chunkID)},
		"with_payload": false,
		"with_vector":  false,
	}

	var retrieveResp struct {
		Result []struct {
			ID string `json:"id"`
		} `json:"result"`
	}

	url := fmt.Sprintf("%s/collections/%s/points", c.baseURL, c.collection)
	err := c.do(ctx, http.MethodPost, url, reqBody, &retrieveResp)
	if err != nil {
		// A missing collection means nothing was indexed yet.
		if strings.Contains(err.Error(), "404") {
			return false, nil
		}
		return false, err
	}
	return len(retrieveResp.Result) > 0, nil
}

func filterConditions(filter domain.SearchFilter) []map[string]any {
	var must []map[string]any
	match := func(key string, value any) {
		must = append(must, map[string]any{
			"key":   key,
			"match": map[string]any{"value": value},
		})
	}
	if filter.Country != "" {
		// "countries" holds the label split on "|", so a Ghana filter
		// also matches Ghana|Nigeria studies.
		match("countries", string(filter.Country))
	}
	if filter.Disease != "" {
		match("disease", filter.Disease)
	}
	if filter.Year > 0 {
		match("year", filter.Year)
	}
	return must
}

func splitCountries(label domain.CountryLabel) []string {
	if label == "" {
		return nil
	}
	return strings.Split(string(label), "|")
}

func (c *Client) do(ctx context.Context, method, url string, reqBody any, out any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if trimmed := strings.TrimSpace(string(msg)); trimmed != "" {
			return fmt.Errorf("qdrant status %d: %s", resp.StatusCode, trimmed)
		}
		return fmt.Errorf("qdrant status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}

	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	err := c.do(ctx, http.MethodPut, url, reqBody, nil)
	if err != nil {
		// 409 means the collection is already there.
		if strings.Contains(err.Error(), "409") {
			c.markCollectionEnsured(vectorSize)
			return nil
		}
		return fmt.Errorf("ensure collection: %w", err)
	}
	c.markCollectionEnsured(vectorSize)
	return nil
}

func (c *Client) markCollectionEnsured(vectorSize int) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getIntPayload(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
