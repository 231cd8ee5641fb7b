package ports

import (
	"context"
	"io"

	"github.com/kirillkom/scripture-rag/internal/core/domain"
)

// Retriever is the inbound contract for hybrid passage retrieval.
type Retriever interface {
	Analyze(question string) domain.QueryContext
	Retrieve(ctx context.Context, question string, mode domain.RetrievalMode) (*domain.Retrieval, error)
}

// QuestionAnswerer answers a question grounded on retrieved passages.
type QuestionAnswerer interface {
	Answer(ctx context.Context, question string) (*domain.Answer, error)
}

// CorpusIngestor is the inbound contract for corpus upload orchestration.
type CorpusIngestor interface {
	Upload(ctx context.Context, filename string, body io.Reader) (*domain.CorpusImport, error)
}

// CorpusReader is the inbound read model for import state.
type CorpusReader interface {
	GetByID(ctx context.Context, id string) (*domain.CorpusImport, error)
}

// CorpusProcessor is the inbound contract for asynchronous corpus processing.
type CorpusProcessor interface {
	ProcessByID(ctx context.Context, importID string) error
}
