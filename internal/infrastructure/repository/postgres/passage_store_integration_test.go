//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kirillkom/scripture-rag/internal/core/domain"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"pgvector/pgvector:pg17",
		tcpostgres.WithDatabase("scripture"),
		tcpostgres.WithUsername("user"),
		tcpostgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestPassageStoreAgainstPGVector(t *testing.T) {
	dsn := startPostgres(t)
	db, err := OpenDB(dsn)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	store := NewPassageStore(db, 2, false)
	require.NoError(t, store.EnsureSchema(ctx))

	repo := NewCorpusRepository(db)
	require.NoError(t, repo.EnsureSchema(ctx))

	passages := []domain.IndexedPassage{
		{Passage: domain.Passage{Book: "Gênesis", Chapter: 1, Verse: 1, Testament: domain.TestamentOld, Text: "No princípio criou Deus os céus e a terra."}, Vector: []float32{1, 0}},
		{Passage: domain.Passage{Book: "João", Chapter: 11, Verse: 35, Testament: domain.TestamentNew, Text: "Jesus chorou."}, Vector: []float32{0, 1}},
		{Passage: domain.Passage{Book: "João", Chapter: 1, Verse: 1, Testament: domain.TestamentNew, Text: "No princípio era o Verbo."}, Vector: []float32{0.7, 0.7}},
	}
	require.NoError(t, store.UpsertPassages(ctx, passages))
	require.NoError(t, store.UpsertPassages(ctx, passages[:1]))

	hits, err := store.ContainsSearch(ctx, "princípio", domain.PassageFilter{}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "Gênesis 1:1", hits[0].Reference())
	assert.Equal(t, "João 1:1", hits[1].Reference())

	none, err := store.ContainsSearch(ctx, "jesus", domain.PassageFilter{}, 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	nearest, err := store.NearestNeighbors(ctx, []float32{0, 1}, domain.PassageFilter{Testament: domain.TestamentNew}, 1)
	require.NoError(t, err)
	require.Len(t, nearest, 1)
	assert.Equal(t, "João 11:35", nearest[0].Reference())
	assert.InDelta(t, 0, nearest[0].Distance, 1e-6)

	err = store.UpsertPassages(ctx, []domain.IndexedPassage{{Passage: passages[0].Passage, Vector: []float32{1, 0, 0}}})
	assert.True(t, domain.IsKind(err, domain.ErrMisconfigured))
}
