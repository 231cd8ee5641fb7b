package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/scripture-rag/internal/core/domain"
)

func TestLiteralSearchScoresKeywordContainment(t *testing.T) {
	store := &memoryStoreFake{passages: []domain.Passage{
		verse("II Coríntios", 5, 7, domain.TestamentNew, "Porque andamos por fé e não por vista."),
	}}

	got, err := LiteralSearch(context.Background(), store, []string{"fé"}, domain.PassageFilter{}, 30)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].LiteralScore)
	assert.Equal(t, domain.OriginLiteral, got[0].Origin)
}

func TestLiteralSearchRanksByScoreKeepingInsertionOrderOnTies(t *testing.T) {
	store := &memoryStoreFake{passages: []domain.Passage{
		verse("Gênesis", 1, 1, domain.TestamentOld, "No princípio criou Deus os céus e a terra."),
		verse("Romanos", 5, 1, domain.TestamentNew, "Sendo, pois, justificados pela fé, temos paz com Deus."),
		verse("Salmos", 29, 11, domain.TestamentOld, "O Senhor abençoará o seu povo com paz."),
	}}

	got, err := LiteralSearch(context.Background(), store, []string{"deus", "paz"}, domain.PassageFilter{}, 30)
	require.NoError(t, err)
	assert.Equal(t, []string{"Romanos|5|1", "Gênesis|1|1", "Salmos|29|11"}, keysOf(got))
	assert.Equal(t, []int{2, 1, 1}, []int{got[0].LiteralScore, got[1].LiteralScore, got[2].LiteralScore})
}

func TestLiteralSearchQueriesCaseVariants(t *testing.T) {
	store := &memoryStoreFake{passages: []domain.Passage{
		verse("Hebreus", 11, 1, domain.TestamentNew, "Fé é o firme fundamento das coisas que se esperam."),
	}}

	got, err := LiteralSearch(context.Background(), store, []string{"fé"}, domain.PassageFilter{}, 30)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"fé", "Fé", "FÉ"}, store.calls())
}

func TestLiteralSearchUsesSingleQueryWhenStoreFoldsCase(t *testing.T) {
	inner := &memoryStoreFake{folds: true, passages: []domain.Passage{
		verse("Hebreus", 11, 1, domain.TestamentNew, "FÉ é o firme fundamento."),
	}}

	got, err := LiteralSearch(context.Background(), foldingStoreFake{inner}, []string{"fé"}, domain.PassageFilter{}, 30)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"fé"}, inner.calls())
}

func TestLiteralSearchEmptyKeywords(t *testing.T) {
	store := &memoryStoreFake{}

	got, err := LiteralSearch(context.Background(), store, nil, domain.PassageFilter{}, 30)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, store.calls())
}

func TestLiteralSearchAppliesStoreLimitBeforeRecount(t *testing.T) {
	store := &memoryStoreFake{passages: []domain.Passage{
		verse("Salmos", 1, 1, domain.TestamentOld, "luz"),
		verse("Salmos", 1, 2, domain.TestamentOld, "vida"),
		verse("Salmos", 1, 3, domain.TestamentOld, "luz e vida"),
	}}

	got, err := LiteralSearch(context.Background(), store, []string{"luz", "vida"}, domain.PassageFilter{}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Salmos|1|1", "Salmos|1|2"}, keysOf(got))
}

func TestLiteralSearchPassesFilterToStore(t *testing.T) {
	store := &memoryStoreFake{passages: []domain.Passage{
		verse("Salmos", 23, 1, domain.TestamentOld, "O Senhor é o meu pastor"),
		verse("João", 10, 11, domain.TestamentNew, "Eu sou o bom pastor"),
	}}
	filter := domain.PassageFilter{Book: "João"}

	got, err := LiteralSearch(context.Background(), store, []string{"pastor"}, filter, 30)
	require.NoError(t, err)
	assert.Equal(t, []string{"João|10|11"}, keysOf(got))
	assert.Equal(t, filter, store.lastFilter)
}

func TestLiteralSearchPropagatesStoreError(t *testing.T) {
	storeErr := errors.New("connection refused")
	store := &memoryStoreFake{containsErr: storeErr}

	_, err := LiteralSearch(context.Background(), store, []string{"fé"}, domain.PassageFilter{}, 30)
	require.ErrorIs(t, err, storeErr)
}

func TestCaseVariantsSkipsDuplicates(t *testing.T) {
	assert.Equal(t, []string{"40"}, caseVariants("40", false))
	assert.Equal(t, []string{"êxodo", "Êxodo", "ÊXODO"}, caseVariants("êxodo", false))
}

func TestLiteralSearchRecountIgnoresKeywordCase(t *testing.T) {
	store := &memoryStoreFake{passages: []domain.Passage{
		verse("Hebreus", 11, 1, domain.TestamentNew, "Ora, a fé é o firme fundamento das coisas que se esperam"),
	}}

	got, err := LiteralSearch(context.Background(), store, []string{"Fé"}, domain.PassageFilter{}, 30)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Hebreus|11|1", got[0].Passage.Key())
	assert.Equal(t, 1, got[0].LiteralScore)
}

func TestLiteralSearchNonPositiveLimitReturnsEmpty(t *testing.T) {
	store := &memoryStoreFake{passages: []domain.Passage{
		verse("Salmos", 1, 1, domain.TestamentOld, "luz"),
	}}

	for _, limit := range []int{0, -1} {
		got, err := LiteralSearch(context.Background(), store, []string{"luz"}, domain.PassageFilter{}, limit)
		require.NoError(t, err)
		assert.Empty(t, got)
	}
	assert.Empty(t, store.calls())
}
