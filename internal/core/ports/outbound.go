package ports

import (
	"context"
	"io"

	"github.com/kirillkom/scripture-rag/internal/core/domain"
)

// CorpusImportRepository persists and reads corpus import state.
type CorpusImportRepository interface {
	Create(ctx context.Context, imp *domain.CorpusImport) error
	GetByID(ctx context.Context, id string) (*domain.CorpusImport, error)
	UpdateStatus(ctx context.Context, id string, status domain.ImportStatus, errMessage string) error
	SavePassageCount(ctx context.Context, id string, count int) error
}

// ObjectStorage stores uploaded corpus files.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes corpus ingestion events.
type MessageQueue interface {
	PublishCorpusUploaded(ctx context.Context, importID string) error
	SubscribeCorpusUploaded(ctx context.Context, handler func(context.Context, string) error) error
}

// TextExtractor reads the stored corpus as text.
type TextExtractor interface {
	Extract(ctx context.Context, imp *domain.CorpusImport) (string, error)
}

// CorpusParser turns a versified corpus into passages.
type CorpusParser interface {
	Parse(r io.Reader, source string) ([]domain.Passage, error)
}

// Embedder builds vectors for passages and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// PassageIndexer writes passages with their vectors.
type PassageIndexer interface {
	UpsertPassages(ctx context.Context, passages []domain.IndexedPassage) error
}

// PassageSearcher is the read side of a passage store. ContainsSearch is a
// case-sensitive substring match; NearestNeighbors returns hits ordered by
// ascending distance.
type PassageSearcher interface {
	NearestNeighbors(ctx context.Context, vector []float32, filter domain.PassageFilter, k int) ([]domain.ScoredPassage, error)
	ContainsSearch(ctx context.Context, substring string, filter domain.PassageFilter, limit int) ([]domain.Passage, error)
}

// PassageStore is a full passage store.
type PassageStore interface {
	PassageIndexer
	PassageSearcher
}

// CaseFoldingSearcher is implemented by stores whose ContainsSearch ignores
// case.
type CaseFoldingSearcher interface {
	FoldsCase() bool
}

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// AnswerGenerator writes the final answer from ordered context passages.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question string, passages []domain.Passage) (string, error)
}
