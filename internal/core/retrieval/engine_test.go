package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/scripture-rag/internal/core/domain"
)

type observerFake struct {
	mu    sync.Mutex
	modes []domain.RetrievalMode
	fused []int
	errs  []error
}

func (o *observerFake) ObserveRetrieval(mode domain.RetrievalMode, _, _, fused int, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.modes = append(o.modes, mode)
	o.fused = append(o.fused, fused)
	o.errs = append(o.errs, err)
}

func TestEngineRetrieveCapsFusedResults(t *testing.T) {
	store := &memoryStoreFake{}
	for i := 1; i <= 40; i++ {
		store.passages = append(store.passages, verse("Salmos", 119, i, domain.TestamentOld, "amor paz graça"))
	}
	for i := 1; i <= 10; i++ {
		store.neighbors = append(store.neighbors, domain.ScoredPassage{
			Passage:  verse("João", 3, i, domain.TestamentNew, fmt.Sprintf("verso %d", i)),
			Distance: float64(i) / 10,
		})
	}
	observer := &observerFake{}
	engine := NewEngine(&embedderFake{}, store, DefaultOptions(), observer)

	got, err := engine.Retrieve(context.Background(), "amor paz graça", domain.ModeAuto)
	require.NoError(t, err)

	keys := keysOf(got.Candidates)
	require.Len(t, keys, 25)
	unique := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		unique[k] = struct{}{}
	}
	assert.Len(t, unique, 25)
	assert.Len(t, got.Literal, 30)
	assert.Len(t, got.Semantic, 10)
	assert.Equal(t, []string{"amor", "paz", "graça"}, got.Query.Keywords)
	assert.Equal(t, []int{25}, observer.fused)
}

func TestEngineRetrievePrefersNewTestament(t *testing.T) {
	store := &memoryStoreFake{passages: []domain.Passage{
		verse("Isaías", 7, 14, domain.TestamentOld, "Jesus"),
		verse("Mateus", 1, 21, domain.TestamentNew, "e lhe porás o nome de Jesus"),
	}}
	engine := NewEngine(&embedderFake{}, store, DefaultOptions(), nil)

	got, err := engine.Retrieve(context.Background(), "Jesus", domain.ModeAuto)
	require.NoError(t, err)
	require.NotEmpty(t, got.Candidates)
	assert.Equal(t, domain.TestamentNew, got.Candidates[0].Passage.Testament)
	assert.Equal(t, domain.PassageFilter{}, store.lastFilter)
}

func TestEngineRetrieveTestamentFilterMode(t *testing.T) {
	store := &memoryStoreFake{passages: []domain.Passage{
		verse("Isaías", 7, 14, domain.TestamentOld, "cristo"),
		verse("Mateus", 16, 16, domain.TestamentNew, "Tu és o Cristo"),
	}}
	opts := DefaultOptions()
	opts.FilterByTestament = true
	engine := NewEngine(&embedderFake{}, store, opts, nil)

	got, err := engine.Retrieve(context.Background(), "cristo", domain.ModeAuto)
	require.NoError(t, err)
	assert.Equal(t, []string{"Mateus|16|16"}, keysOf(got.Candidates))
	assert.Equal(t, domain.TestamentNew, store.lastFilter.Testament)
}

func TestEngineLiteralOnlySkipsEmbedding(t *testing.T) {
	store := &memoryStoreFake{passages: []domain.Passage{
		verse("Êxodo", 2, 10, domain.TestamentOld, "e chamou o seu nome Moisés"),
	}}
	embedder := &embedderFake{}
	engine := NewEngine(embedder, store, DefaultOptions(), nil)

	got, err := engine.Retrieve(context.Background(), "Quem foi Moisés?", domain.ModeLiteralOnly)
	require.NoError(t, err)
	assert.Equal(t, 0, embedder.calls)
	assert.Empty(t, got.Semantic)
	assert.Equal(t, []string{"Êxodo|2|10"}, keysOf(got.Candidates))
	assert.Equal(t, domain.VerdictProceed, Guard(got.Query, got.Candidates).Verdict)
}

func TestEngineEmptyQuestionReturnsNoCandidates(t *testing.T) {
	embedder := &embedderFake{}
	engine := NewEngine(embedder, &memoryStoreFake{}, DefaultOptions(), nil)

	got, err := engine.Retrieve(context.Background(), "  ", domain.ModeAuto)
	require.NoError(t, err)
	assert.Empty(t, got.Candidates)
	assert.Equal(t, 0, embedder.calls)
}

func TestEngineWrapsStoreFailures(t *testing.T) {
	store := &memoryStoreFake{neighborsErr: errors.New("dial tcp: refused")}
	engine := NewEngine(&embedderFake{}, store, DefaultOptions(), nil)

	_, err := engine.Retrieve(context.Background(), "graça", domain.ModeAuto)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrStoreUnavailable))
}

func TestEngineWrapsEmbedderFailures(t *testing.T) {
	engine := NewEngine(&embedderFake{err: errors.New("model not loaded")}, &memoryStoreFake{}, DefaultOptions(), nil)

	_, err := engine.Retrieve(context.Background(), "graça", domain.ModeAuto)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrStoreUnavailable))
}

func TestEngineTimeoutIsTemporaryUnavailability(t *testing.T) {
	opts := DefaultOptions()
	opts.Timeout = 20 * time.Millisecond
	observer := &observerFake{}
	engine := NewEngine(&embedderFake{}, &memoryStoreFake{block: true}, opts, observer)

	_, err := engine.Retrieve(context.Background(), "graça", domain.ModeLiteralOnly)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrStoreUnavailable))
	assert.True(t, domain.IsKind(err, domain.ErrTemporary))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.Len(t, observer.errs, 1)
	assert.Error(t, observer.errs[0])
}
