package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/scripture-rag/internal/core/domain"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	store, err := Open("", true, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seed(t *testing.T, store *Store) {
	t.Helper()
	err := store.UpsertPassages(context.Background(), []domain.IndexedPassage{
		{Passage: domain.Passage{Book: "Gênesis", Chapter: 1, Verse: 1, Testament: domain.TestamentOld, Text: "No princípio criou Deus os céus e a terra."}, Vector: []float32{1, 0}},
		{Passage: domain.Passage{Book: "Salmos", Chapter: 23, Verse: 1, Testament: domain.TestamentOld, Text: "O Senhor é o meu pastor; nada me faltará."}, Vector: []float32{0.9, 0.1}},
		{Passage: domain.Passage{Book: "João", Chapter: 1, Verse: 1, Testament: domain.TestamentNew, Text: "No princípio era o Verbo."}, Vector: []float32{0.6, 0.8}},
		{Passage: domain.Passage{Book: "João", Chapter: 11, Verse: 35, Testament: domain.TestamentNew, Text: "Jesus chorou."}, Vector: []float32{0, 1}},
	})
	require.NoError(t, err)
}

func TestContainsSearchReturnsCorpusOrder(t *testing.T) {
	store := openMemory(t)
	seed(t, store)

	got, err := store.ContainsSearch(context.Background(), "princípio", domain.PassageFilter{}, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Gênesis 1:1", got[0].Reference())
	assert.Equal(t, "João 1:1", got[1].Reference())
}

func TestContainsSearchIsCaseSensitiveAndFiltered(t *testing.T) {
	store := openMemory(t)
	seed(t, store)

	got, err := store.ContainsSearch(context.Background(), "jesus", domain.PassageFilter{}, 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = store.ContainsSearch(context.Background(), "No", domain.PassageFilter{Testament: domain.TestamentNew}, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "João", got[0].Book)

	got, err = store.ContainsSearch(context.Background(), "o", domain.PassageFilter{}, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestUpsertOverwritesInPlace(t *testing.T) {
	store := openMemory(t)
	seed(t, store)

	err := store.UpsertPassages(context.Background(), []domain.IndexedPassage{
		{Passage: domain.Passage{Book: "Gênesis", Chapter: 1, Verse: 1, Testament: domain.TestamentOld, Text: "No princípio criou Deus o céu e a terra."}, Vector: []float32{1, 0}},
	})
	require.NoError(t, err)

	got, err := store.ContainsSearch(context.Background(), "No princípio", domain.PassageFilter{}, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "No princípio criou Deus o céu e a terra.", got[0].Text)
}

func TestNearestNeighborsOrdersByDistance(t *testing.T) {
	store := openMemory(t)
	seed(t, store)

	got, err := store.NearestNeighbors(context.Background(), []float32{0, 1}, domain.PassageFilter{}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "João 11:35", got[0].Reference())
	assert.InDelta(t, 0, got[0].Distance, 1e-6)
	assert.Equal(t, "João 1:1", got[1].Reference())

	got, err = store.NearestNeighbors(context.Background(), []float32{0, 1}, domain.PassageFilter{Book: "Salmos"}, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Salmos 23:1", got[0].Reference())
}

func TestNearestNeighborsDimensionMismatch(t *testing.T) {
	store := openMemory(t)
	seed(t, store)

	_, err := store.NearestNeighbors(context.Background(), []float32{1, 0, 0}, domain.PassageFilter{}, 3)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrMisconfigured))
}

func TestCosineDistance(t *testing.T) {
	assert.InDelta(t, 0, CosineDistance([]float32{1, 1}, []float32{2, 2}), 1e-9)
	assert.InDelta(t, 1, CosineDistance([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, 2, CosineDistance([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 1.0, CosineDistance([]float32{0, 0}, []float32{1, 0}))
}
