package domain

import "time"

type NodeStatus string

const (
	NodePending NodeStatus = "pending"
	NodeRunning NodeStatus = "running"
	NodeSuccess NodeStatus = "success"
	NodeFailed  NodeStatus = "failed"
	NodeSkipped NodeStatus = "skipped"
)

// NodeExecution is an append-only audit record. Once a terminal status is
// written the record is never mutated.
type NodeExecution struct {
	ID         int64      `json:"id,omitempty"`
	NodeName   string     `json:"node_name"`
	Status     NodeStatus `json:"status"`
	Attempt    int        `json:"attempt"`
	DocumentID string     `json:"document_id,omitempty"`
	QueryID    string     `json:"query_id,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at,omitempty"`
}

// ChunkScore is the per-chunk score decomposition persisted with a query
// log entry.
type ChunkScore struct {
	ChunkID       string  `json:"chunk_id"`
	Section       Section `json:"section"`
	SemanticScore float64 `json:"semantic_score"`
	BM25Score     float64 `json:"bm25_score"`
	FinalScore    float64 `json:"final_score"`
}

// QueryLog is written exactly once per query and never updated. Only the
// evaluator reads it.
type QueryLog struct {
	QueryID   string       `json:"query_id"`
	Query     string       `json:"query"`
	Filter    SearchFilter `json:"filter"`
	Chunks    []ChunkScore `json:"chunks"`
	IsRefusal bool         `json:"is_refusal"`
	CreatedAt time.Time    `json:"created_at"`
}

// EvaluationMetrics aggregates query logs for the evaluation node.
type EvaluationMetrics struct {
	TotalQueries        int             `json:"total_queries"`
	SufficientQueries   int             `json:"sufficient_queries"`
	RefusalQueries      int             `json:"refusal_queries"`
	RefusalRate         float64         `json:"refusal_rate"`
	AvgChunksPerQuery   float64         `json:"avg_chunks_per_query"`
	RetrievalsBySection map[Section]int `json:"retrievals_by_section,omitempty"`
}
