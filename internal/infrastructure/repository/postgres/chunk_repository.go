package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sankofa-health/malaria-rag/internal/core/domain"
)

// ChunkRepository stores the canonical chunk records produced by the
// section splitter. Identity is (document_fingerprint, ordinal), so a
// re-run of chunking overwrites nothing and inserts nothing twice.
type ChunkRepository struct {
	db *sql.DB
}

func NewChunkRepository(db *sql.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

func (r *ChunkRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083002)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS chunks (
	document_fingerprint TEXT NOT NULL REFERENCES documents(fingerprint) ON DELETE CASCADE,
	ordinal INTEGER NOT NULL,
	section TEXT NOT NULL,
	text TEXT NOT NULL,
	char_count INTEGER NOT NULL,
	PRIMARY KEY (document_fingerprint, ordinal)
);

CREATE INDEX IF NOT EXISTS idx_chunks_section ON chunks(section);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *ChunkRepository) CreateBatch(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chunk tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO chunks (document_fingerprint, ordinal, section, text, char_count)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (document_fingerprint, ordinal) DO NOTHING
`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.DocumentFingerprint, c.Ordinal, string(c.Section), c.Text, c.CharCount); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chunk tx: %w", err)
	}
	return nil
}

func (r *ChunkRepository) HasChunks(ctx context.Context, fingerprint string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
SELECT EXISTS (SELECT 1 FROM chunks WHERE document_fingerprint = $1)
`, fingerprint).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check chunks exist: %w", err)
	}
	return exists, nil
}

func (r *ChunkRepository) ListByDocument(ctx context.Context, fingerprint string) ([]domain.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT document_fingerprint, ordinal, section, text, char_count
FROM chunks
WHERE document_fingerprint = $1
ORDER BY ordinal
`, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("list chunks by document: %w", err)
	}
	defer rows.Close()

	return collectChunks(rows)
}

func (r *ChunkRepository) ListAll(ctx context.Context) ([]domain.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT document_fingerprint, ordinal, section, text, char_count
FROM chunks
ORDER BY document_fingerprint, ordinal
`)
	if err != nil {
		return nil, fmt.Errorf("list all chunks: %w", err)
	}
	defer rows.Close()

	return collectChunks(rows)
}

func collectChunks(rows *sql.Rows) ([]domain.Chunk, error) {
	var out []domain.Chunk
	for rows.Next() {
		var c domain.Chunk
		var section string
		if err := rows.Scan(&c.DocumentFingerprint, &c.Ordinal, &section, &c.Text, &c.CharCount); err != nil {
			return nil, fmt.Errorf("scan chunk row: %w", err)
		}
		c.Section = domain.Section(section)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}
