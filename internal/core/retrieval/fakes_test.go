package retrieval

import (
	"context"
	"strings"
	"sync"

	"github.com/kirillkom/scripture-rag/internal/core/domain"
)

type memoryStoreFake struct {
	mu        sync.Mutex
	passages  []domain.Passage
	neighbors []domain.ScoredPassage
	folds     bool

	containsErr  error
	neighborsErr error
	block        bool

	containsCalls []string
	lastFilter    domain.PassageFilter
}

func (f *memoryStoreFake) ContainsSearch(ctx context.Context, substring string, filter domain.PassageFilter, limit int) ([]domain.Passage, error) {
	f.mu.Lock()
	f.containsCalls = append(f.containsCalls, substring)
	f.lastFilter = filter
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.containsErr != nil {
		return nil, f.containsErr
	}
	out := make([]domain.Passage, 0)
	for _, p := range f.passages {
		if !filter.Match(p) {
			continue
		}
		text := p.Text
		needle := substring
		if f.folds {
			text = strings.ToLower(text)
			needle = strings.ToLower(needle)
		}
		if !strings.Contains(text, needle) {
			continue
		}
		out = append(out, p)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *memoryStoreFake) NearestNeighbors(_ context.Context, _ []float32, filter domain.PassageFilter, k int) ([]domain.ScoredPassage, error) {
	if f.neighborsErr != nil {
		return nil, f.neighborsErr
	}
	out := make([]domain.ScoredPassage, 0, k)
	for _, hit := range f.neighbors {
		if !filter.Match(hit.Passage) {
			continue
		}
		out = append(out, hit)
		if len(out) == k {
			break
		}
	}
	return out, nil
}

func (f *memoryStoreFake) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.containsCalls...)
}

type foldingStoreFake struct {
	*memoryStoreFake
}

func (f foldingStoreFake) FoldsCase() bool { return true }

type embedderFake struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, f.err
}

func (f *embedderFake) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0}, nil
}

func verse(book string, chapter, number int, testament domain.Testament, text string) domain.Passage {
	return domain.Passage{
		Text:        text,
		Book:        book,
		Chapter:     chapter,
		Verse:       number,
		Testament:   testament,
		Source:      "biblia.txt",
		Translation: "Almeida Revista e Corrigida",
	}
}

func keysOf(candidates []domain.Candidate) []string {
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.Passage.Key())
	}
	return out
}
