package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/sankofa-health/malaria-rag/internal/core/domain"
)

// QueryLogRepository records one row per answered query. The per-chunk
// score decomposition and the filter are stored as JSONB so the evaluator
// can aggregate without a separate scores table.
type QueryLogRepository struct {
	db *sql.DB
}

func NewQueryLogRepository(db *sql.DB) *QueryLogRepository {
	return &QueryLogRepository{db: db}
}

func (r *QueryLogRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083004)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS query_logs (
	query_id TEXT PRIMARY KEY,
	query TEXT NOT NULL,
	filter JSONB NOT NULL DEFAULT '{}',
	chunks JSONB NOT NULL DEFAULT '[]',
	is_refusal BOOLEAN NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_query_logs_created ON query_logs(created_at);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *QueryLogRepository) Append(ctx context.Context, entry domain.QueryLog) error {
	filterJSON, err := json.Marshal(entry.Filter)
	if err != nil {
		return fmt.Errorf("marshal query filter: %w", err)
	}
	chunksJSON, err := json.Marshal(entry.Chunks)
	if err != nil {
		return fmt.Errorf("marshal chunk scores: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO query_logs (query_id, query, filter, chunks, is_refusal, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, entry.QueryID, entry.Query, filterJSON, chunksJSON, entry.IsRefusal, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("append query log: %w", err)
	}
	return nil
}

func (r *QueryLogRepository) Aggregate(ctx context.Context) (domain.EvaluationMetrics, error) {
	var m domain.EvaluationMetrics

	err := r.db.QueryRowContext(ctx, `
SELECT
	COUNT(*),
	COUNT(*) FILTER (WHERE is_refusal),
	COALESCE(AVG(jsonb_array_length(chunks)), 0)
FROM query_logs
`).Scan(&m.TotalQueries, &m.RefusalQueries, &m.AvgChunksPerQuery)
	if err != nil {
		return domain.EvaluationMetrics{}, fmt.Errorf("aggregate query totals: %w", err)
	}

	m.SufficientQueries = m.TotalQueries - m.RefusalQueries
	if m.TotalQueries > 0 {
		m.RefusalRate = float64(m.RefusalQueries) / float64(m.TotalQueries)
	}

	sections, err := r.aggregateSections(ctx)
	if err != nil {
		return domain.EvaluationMetrics{}, err
	}
	m.RetrievalsBySection = sections
	return m, nil
}

func (r *QueryLogRepository) aggregateSections(ctx context.Context) (map[domain.Section]int, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT c->>'section', COUNT(*)
FROM query_logs, jsonb_array_elements(chunks) AS c
GROUP BY 1
`)
	if err != nil {
		return nil, fmt.Errorf("aggregate sections: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.Section]int)
	for rows.Next() {
		var section sql.NullString
		var count int
		if err := rows.Scan(&section, &count); err != nil {
			return nil, fmt.Errorf("scan section count: %w", err)
		}
		if section.Valid && section.String != "" {
			out[domain.Section(section.String)] = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate section counts: %w", err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}
