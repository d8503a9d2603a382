package httpadapter

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sankofa-health/malaria-rag/internal/core/domain"
	"github.com/sankofa-health/malaria-rag/internal/core/ports"
	"github.com/sankofa-health/malaria-rag/internal/observability/metrics"
)

const maxUploadBytes = 64 << 20

type Router struct {
	registrar ports.DocumentRegistrar
	answerer  ports.QuestionAnswerer
	evaluator ports.Evaluator
	reader    ports.DocumentReader
	opts      Options
}

type Options struct {
	Metrics *metrics.HTTPServerMetrics

	RateLimitRPS   float64
	RateLimitBurst int

	MaxInFlight   int
	AdmissionWait time.Duration
	ServiceName   string
}

func NewRouter(
	registrar ports.DocumentRegistrar,
	answerer ports.QuestionAnswerer,
	evaluator ports.Evaluator,
	reader ports.DocumentReader,
	opts Options,
) *Router {
	if opts.ServiceName == "" {
		opts.ServiceName = "api"
	}
	if opts.AdmissionWait <= 0 {
		opts.AdmissionWait = 2 * time.Second
	}
	return &Router{
		registrar: registrar,
		answerer:  answerer,
		evaluator: evaluator,
		reader:    reader,
		opts:      opts,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/documents", rt.documents)
	mux.HandleFunc("/v1/documents/", rt.documentSubtree)
	mux.HandleFunc("/v1/executions", rt.listExecutions)
	mux.HandleFunc("/v1/query", rt.query)
	mux.HandleFunc("/v1/evaluation/metrics", rt.evaluationMetrics)
	if rt.opts.Metrics != nil {
		mux.Handle("/metrics", rt.opts.Metrics.Handler())
	}

	var handler http.Handler = mux
	handler = recoverMiddleware(handler)
	handler = backpressureMiddleware(handler, rt.opts.MaxInFlight, rt.opts.AdmissionWait)
	handler = rateLimitMiddleware(handler, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)
	if rt.opts.Metrics != nil {
		handler = rt.opts.Metrics.Middleware(rt.opts.ServiceName, handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) documents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		rt.registerDocument(w, r)
	case http.MethodGet:
		rt.listDocuments(w, r)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("method not allowed"))
	}
}

func (rt *Router) registerDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("multipart field 'file' is required"))
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("could not read uploaded file"))
		return
	}

	doc, err := rt.registrar.Register(r.Context(), fileHeader.Filename, raw)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'status' is required"))
		return
	}

	docs, err := rt.reader.ListByStatus(r.Context(), domain.DocumentStatus(status))
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (rt *Router) documentSubtree(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("method not allowed"))
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	if fingerprint, ok := strings.CutSuffix(rest, "/chunks"); ok {
		rt.listChunks(w, r, fingerprint)
		return
	}
	if rest == "" || strings.Contains(rest, "/") {
		writeJSON(w, http.StatusBadRequest, errorBody("document fingerprint is required"))
		return
	}

	doc, err := rt.reader.GetByFingerprint(r.Context(), rest)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) listChunks(w http.ResponseWriter, r *http.Request, fingerprint string) {
	if fingerprint == "" || strings.Contains(fingerprint, "/") {
		writeJSON(w, http.StatusBadRequest, errorBody("document fingerprint is required"))
		return
	}

	chunks, err := rt.reader.ListChunks(r.Context(), fingerprint)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fingerprint": fingerprint, "chunks": chunks})
}

func (rt *Router) listExecutions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("method not allowed"))
		return
	}

	node := r.URL.Query().Get("node")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'limit' must be a non-negative integer"))
			return
		}
		limit = parsed
	}

	records, err := rt.reader.ListNodeExecutions(r.Context(), node, limit)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"node": node, "executions": records})
}

type queryRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
	Country  string `json:"country"`
	Disease  string `json:"disease"`
	Year     int    `json:"year"`
}

func (rt *Router) query(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("method not allowed"))
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid json"))
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("question is required"))
		return
	}

	start := time.Now()
	answer, err := rt.answerer.Answer(r.Context(), req.Question, domain.SearchFilter{
		Country: domain.CountryLabel(req.Country),
		Disease: req.Disease,
		Year:    req.Year,
	}, req.TopK)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), errorBody(err.Error()))
		return
	}

	if rt.opts.Metrics != nil {
		rt.opts.Metrics.RecordQuery(rt.opts.ServiceName, len(answer.Sources), answer.IsRefusal, time.Since(start))
	}
	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) evaluationMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("method not allowed"))
		return
	}

	m, err := rt.evaluator.Metrics(r.Context())
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func errorBody(message string) map[string]string {
	return map[string]string{"error": message}
}
