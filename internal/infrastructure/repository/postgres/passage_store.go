package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/kirillkom/scripture-rag/internal/core/domain"
)

// PassageStore keeps passages and their embeddings in a pgvector table.
// Rows carry an insertion sequence so literal hits come back in corpus
// order.
type PassageStore struct {
	db         *sql.DB
	dimensions int
	foldCase   bool
}

func NewPassageStore(db *sql.DB, dimensions int, foldCase bool) *PassageStore {
	return &PassageStore{db: db, dimensions: dimensions, foldCase: foldCase}
}

func (s *PassageStore) EnsureSchema(ctx context.Context) error {
	if s.dimensions <= 0 {
		return domain.WrapError(domain.ErrMisconfigured, "pgvector schema", fmt.Errorf("invalid dimensions %d", s.dimensions))
	}
	return withSchemaLock(ctx, s.db, fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS passages (
	seq BIGSERIAL,
	id TEXT PRIMARY KEY,
	text TEXT NOT NULL,
	book TEXT NOT NULL,
	chapter INTEGER NOT NULL,
	verse INTEGER NOT NULL,
	testament TEXT NOT NULL,
	source TEXT NOT NULL DEFAULT '',
	translation TEXT NOT NULL DEFAULT '',
	embedding vector(%d) NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_passages_embedding ON passages USING hnsw (embedding vector_cosine_ops);
CREATE INDEX IF NOT EXISTS idx_passages_book ON passages(book);
CREATE INDEX IF NOT EXISTS idx_passages_testament ON passages(testament);
CREATE INDEX IF NOT EXISTS idx_passages_seq ON passages(seq);
`, s.dimensions))
}

// FoldsCase reports whether ContainsSearch compares lowercased text.
func (s *PassageStore) FoldsCase() bool {
	return s.foldCase
}

func (s *PassageStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	return nil
}

func (s *PassageStore) UpsertPassages(ctx context.Context, passages []domain.IndexedPassage) error {
	if len(passages) == 0 {
		return nil
	}
	for _, ip := range passages {
		if len(ip.Vector) != s.dimensions {
			return domain.WrapError(domain.ErrMisconfigured, "pgvector upsert",
				fmt.Errorf("embedding has %d dimensions, column expects %d", len(ip.Vector), s.dimensions))
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, ip := range passages {
		p := ip.Passage
		_, err := tx.ExecContext(ctx, `
INSERT INTO passages (id, text, book, chapter, verse, testament, source, translation, embedding)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET
	text = EXCLUDED.text,
	testament = EXCLUDED.testament,
	source = EXCLUDED.source,
	translation = EXCLUDED.translation,
	embedding = EXCLUDED.embedding
`,
			p.Key(), p.Text, p.Book, p.Chapter, p.Verse, string(p.Testament), p.Source, p.Translation,
			pgvector.NewVector(ip.Vector),
		)
		if err != nil {
			return mapPgError("upsert passage", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert tx: %w", err)
	}
	return nil
}

func (s *PassageStore) NearestNeighbors(
	ctx context.Context,
	vector []float32,
	filter domain.PassageFilter,
	k int,
) ([]domain.ScoredPassage, error) {
	if k <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT text, book, chapter, verse, testament, source, translation, embedding <=> $1 AS distance
FROM passages
WHERE ($2 = '' OR book = $2) AND ($3 = '' OR testament = $3)
ORDER BY embedding <=> $1
LIMIT $4
`, pgvector.NewVector(vector), filter.Book, string(filter.Testament), k)
	if err != nil {
		return nil, mapPgError("nearest neighbors", err)
	}
	defer rows.Close()

	var out []domain.ScoredPassage
	for rows.Next() {
		var sp domain.ScoredPassage
		if err := scanPassage(rows, &sp.Passage, &sp.Distance); err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nearest neighbors: %w", err)
	}
	return out, nil
}

func (s *PassageStore) ContainsSearch(
	ctx context.Context,
	substring string,
	filter domain.PassageFilter,
	limit int,
) ([]domain.Passage, error) {
	if substring == "" || limit <= 0 {
		return nil, nil
	}
	match := `strpos(text, $1) > 0`
	if s.foldCase {
		match = `strpos(lower(text), lower($1)) > 0`
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT text, book, chapter, verse, testament, source, translation
FROM passages
WHERE `+match+` AND ($2 = '' OR book = $2) AND ($3 = '' OR testament = $3)
ORDER BY seq
LIMIT $4
`, substring, filter.Book, string(filter.Testament), limit)
	if err != nil {
		return nil, mapPgError("contains search", err)
	}
	defer rows.Close()

	var out []domain.Passage
	for rows.Next() {
		var p domain.Passage
		if err := scanPassage(rows, &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contains search: %w", err)
	}
	return out, nil
}

func scanPassage(rows *sql.Rows, p *domain.Passage, extra ...any) error {
	var testament string
	dest := append([]any{&p.Text, &p.Book, &p.Chapter, &p.Verse, &testament, &p.Source, &p.Translation}, extra...)
	if err := rows.Scan(dest...); err != nil {
		return fmt.Errorf("scan passage: %w", err)
	}
	p.Testament = domain.Testament(testament)
	return nil
}

// mapPgError surfaces vector dimension mismatches as configuration errors.
func mapPgError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.Contains(strings.ToLower(pgErr.Message), "dimensions") {
		return domain.WrapError(domain.ErrMisconfigured, operation, err)
	}
	return fmt.Errorf("%s: %w", operation, err)
}
