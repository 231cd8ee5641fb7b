package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/scripture-rag/internal/core/domain"
)

type CorpusRepository struct {
	db *sql.DB
}

func NewCorpusRepository(db *sql.DB) *CorpusRepository {
	return &CorpusRepository{db: db}
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

// schemaLockKey serializes bootstrap DDL across api/worker startups.
const schemaLockKey int64 = 2026101901

func withSchemaLock(ctx context.Context, db *sql.DB, ddl string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *CorpusRepository) EnsureSchema(ctx context.Context) error {
	return withSchemaLock(ctx, r.db, `
CREATE TABLE IF NOT EXISTS corpus_imports (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	translation TEXT NOT NULL DEFAULT '',
	passage_count INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_corpus_imports_status ON corpus_imports(status);
CREATE INDEX IF NOT EXISTS idx_corpus_imports_created_at ON corpus_imports(created_at DESC);
`)
}

func (r *CorpusRepository) Create(ctx context.Context, imp *domain.CorpusImport) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO corpus_imports (
	id, filename, storage_path, translation, passage_count, status, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`,
		imp.ID, imp.Filename, imp.StoragePath, imp.Translation, imp.PassageCount,
		string(imp.Status), imp.Error, imp.CreatedAt, imp.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert corpus import: %w", err)
	}
	return nil
}

func (r *CorpusRepository) GetByID(ctx context.Context, id string) (*domain.CorpusImport, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, filename, storage_path, translation, passage_count, status, error_message, created_at, updated_at
FROM corpus_imports
WHERE id = $1
`, id)

	var imp domain.CorpusImport
	var status string
	err := row.Scan(
		&imp.ID, &imp.Filename, &imp.StoragePath, &imp.Translation, &imp.PassageCount,
		&status, &imp.Error, &imp.CreatedAt, &imp.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrImportNotFound, id)
		}
		return nil, fmt.Errorf("scan corpus import: %w", err)
	}
	imp.Status = domain.ImportStatus(status)
	return &imp, nil
}

func (r *CorpusRepository) UpdateStatus(ctx context.Context, id string, status domain.ImportStatus, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE corpus_imports
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update corpus import status: %w", err)
	}
	return requireRow(res, id)
}

func (r *CorpusRepository) SavePassageCount(ctx context.Context, id string, count int) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE corpus_imports
SET passage_count = $2, updated_at = $3
WHERE id = $1
`, id, count, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save passage count: %w", err)
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrImportNotFound, id)
	}
	return nil
}
