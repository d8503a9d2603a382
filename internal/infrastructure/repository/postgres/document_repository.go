package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/sankofa-health/malaria-rag/internal/core/domain"
)

// DocumentRepository persists document lifecycle state. The content
// fingerprint is the primary key, which is what makes registration an
// idempotent upsert.
type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083001)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	fingerprint TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	status TEXT NOT NULL,
	char_count INTEGER NOT NULL DEFAULT 0,
	page_count INTEGER NOT NULL DEFAULT 0,
	empty_page_ratio DOUBLE PRECISION NOT NULL DEFAULT 0,
	country TEXT NOT NULL DEFAULT '',
	country_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	disease TEXT NOT NULL DEFAULT 'malaria',
	year INTEGER NOT NULL DEFAULT 0,
	rejection_reason TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_country ON documents(country);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO documents (
	fingerprint, filename, storage_path, status, char_count, page_count, empty_page_ratio,
	country, country_confidence, disease, year, rejection_reason, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (fingerprint) DO NOTHING
`,
		doc.Fingerprint, doc.Filename, doc.StoragePath, string(doc.Status),
		doc.Quality.CharCount, doc.Quality.PageCount, doc.Quality.EmptyPageRatio,
		string(doc.Country), doc.CountryConfidence, doc.Disease, doc.Year,
		doc.RejectionReason, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

const documentColumns = `fingerprint, filename, storage_path, status, char_count, page_count, empty_page_ratio,
	country, country_confidence, disease, year, rejection_reason, created_at, updated_at`

func (r *DocumentRepository) GetByFingerprint(ctx context.Context, fingerprint string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE fingerprint = $1
`, fingerprint)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get document", fmt.Errorf("document %s", fingerprint))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return doc, nil
}

func (r *DocumentRepository) UpdateStatus(ctx context.Context, fingerprint string, status domain.DocumentStatus, rejectionReason string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, rejection_reason = $3, updated_at = $4
WHERE fingerprint = $1
`, fingerprint, string(status), rejectionReason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return requireRow(res, "update document status", fingerprint)
}

func (r *DocumentRepository) SaveQuality(ctx context.Context, fingerprint string, metrics domain.QualityMetrics) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET char_count = $2, page_count = $3, empty_page_ratio = $4, updated_at = $5
WHERE fingerprint = $1
`, fingerprint, metrics.CharCount, metrics.PageCount, metrics.EmptyPageRatio, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save quality metrics: %w", err)
	}
	return requireRow(res, "save quality metrics", fingerprint)
}

func (r *DocumentRepository) SaveCountry(ctx context.Context, fingerprint string, country domain.CountryLabel, confidence float64) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET country = $2, country_confidence = $3, updated_at = $4
WHERE fingerprint = $1
`, fingerprint, string(country), confidence, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save country label: %w", err)
	}
	return requireRow(res, "save country label", fingerprint)
}

func (r *DocumentRepository) ListByStatus(ctx context.Context, status domain.DocumentStatus) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE status = $1
ORDER BY created_at
`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list documents by status: %w", err)
	}
	defer rows.Close()

	var out []domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		out = append(out, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var status, country string

	err := row.Scan(
		&doc.Fingerprint, &doc.Filename, &doc.StoragePath, &status,
		&doc.Quality.CharCount, &doc.Quality.PageCount, &doc.Quality.EmptyPageRatio,
		&country, &doc.CountryConfidence, &doc.Disease, &doc.Year,
		&doc.RejectionReason, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.Status = domain.DocumentStatus(status)
	doc.Country = domain.CountryLabel(country)
	return &doc, nil
}

func requireRow(res sql.Result, operation, fingerprint string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrNotFound, operation, fmt.Errorf("document %s", fingerprint))
	}
	return nil
}
