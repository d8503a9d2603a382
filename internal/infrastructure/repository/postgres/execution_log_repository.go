package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sankofa-health/malaria-rag/internal/core/domain"
)

// ExecutionLogRepository is the append-only pipeline audit trail. Rows are
// inserted once per node attempt and never updated or deleted.
type ExecutionLogRepository struct {
	db *sql.DB
}

func NewExecutionLogRepository(db *sql.DB) *ExecutionLogRepository {
	return &ExecutionLogRepository{db: db}
}

func (r *ExecutionLogRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083003)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS node_executions (
	id BIGSERIAL PRIMARY KEY,
	node_name TEXT NOT NULL,
	status TEXT NOT NULL,
	attempt INTEGER NOT NULL,
	document_id TEXT NOT NULL DEFAULT '',
	query_id TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_node_executions_node ON node_executions(node_name, id DESC);
CREATE INDEX IF NOT EXISTS idx_node_executions_document ON node_executions(document_id);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *ExecutionLogRepository) Append(ctx context.Context, record domain.NodeExecution) error {
	// Running records carry no finish time yet.
	finished := sql.NullTime{Time: record.FinishedAt, Valid: !record.FinishedAt.IsZero()}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO node_executions (node_name, status, attempt, document_id, query_id, error, started_at, finished_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`,
		record.NodeName, string(record.Status), record.Attempt,
		record.DocumentID, record.QueryID, record.Error,
		record.StartedAt, finished,
	)
	if err != nil {
		return fmt.Errorf("append node execution: %w", err)
	}
	return nil
}

func (r *ExecutionLogRepository) ListByNode(ctx context.Context, nodeName string, limit int) ([]domain.NodeExecution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, node_name, status, attempt, document_id, query_id, error, started_at, finished_at
FROM node_executions
WHERE node_name = $1
ORDER BY id DESC
LIMIT $2
`, nodeName, limit)
	if err != nil {
		return nil, fmt.Errorf("list node executions: %w", err)
	}
	defer rows.Close()

	var out []domain.NodeExecution
	for rows.Next() {
		var rec domain.NodeExecution
		var status string
		var finished sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.NodeName, &status, &rec.Attempt, &rec.DocumentID, &rec.QueryID, &rec.Error, &rec.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("scan node execution: %w", err)
		}
		rec.Status = domain.NodeStatus(status)
		rec.FinishedAt = finished.Time
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate node executions: %w", err)
	}
	return out, nil
}
