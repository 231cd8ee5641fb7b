package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/scripture-rag/internal/core/domain"
	"github.com/kirillkom/scripture-rag/internal/core/ports"
)

// ImportObserver records worker outcomes.
type ImportObserver interface {
	StartImport() func(outcome string, passages int)
	ObserveQueueLag(lag time.Duration)
}

type ProcessCorpusUseCase struct {
	repo      ports.CorpusImportRepository
	extractor ports.TextExtractor
	parser    ports.CorpusParser
	indexer   *PassageIndexer
	observer  ImportObserver
}

func NewProcessCorpusUseCase(
	repo ports.CorpusImportRepository,
	extractor ports.TextExtractor,
	parser ports.CorpusParser,
	indexer *PassageIndexer,
	observer ImportObserver,
) *ProcessCorpusUseCase {
	return &ProcessCorpusUseCase{
		repo:      repo,
		extractor: extractor,
		parser:    parser,
		indexer:   indexer,
		observer:  observer,
	}
}

func (uc *ProcessCorpusUseCase) ProcessByID(ctx context.Context, importID string) error {
	finish := func(string, int) {}
	if uc.observer != nil {
		finish = uc.observer.StartImport()
	}

	if err := uc.markStatus(ctx, importID, domain.StatusProcessing, ""); err != nil {
		finish("error", 0)
		return fmt.Errorf("set status=processing: %w", err)
	}

	count, err := uc.processPipeline(ctx, importID)
	if err != nil {
		finish("failed", count)
		if failErr := uc.markFailed(ctx, importID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.repo.SavePassageCount(ctx, importID, count); err != nil {
		finish("failed", count)
		if failErr := uc.markFailed(ctx, importID, err); failErr != nil {
			return fmt.Errorf("save passage count: %w; mark failed status: %v", err, failErr)
		}
		return fmt.Errorf("save passage count: %w", err)
	}

	if err := uc.markStatus(ctx, importID, domain.StatusReady, ""); err != nil {
		finish("error", count)
		return fmt.Errorf("set status=ready: %w", err)
	}

	finish("ready", count)
	slog.Info("corpus_import_ready", "import_id", importID, "passages", count)
	return nil
}

// Ingest parses and indexes a corpus without import bookkeeping.
func (uc *ProcessCorpusUseCase) Ingest(ctx context.Context, r io.Reader, source string) (int, error) {
	passages, err := uc.parse(r, source)
	if err != nil {
		return 0, err
	}
	return uc.index(ctx, passages)
}

func (uc *ProcessCorpusUseCase) processPipeline(ctx context.Context, importID string) (int, error) {
	imp, err := uc.loadImport(ctx, importID)
	if err != nil {
		return 0, err
	}
	if uc.observer != nil && !imp.CreatedAt.IsZero() {
		uc.observer.ObserveQueueLag(time.Since(imp.CreatedAt))
	}

	text, err := uc.extractText(ctx, imp)
	if err != nil {
		return 0, err
	}

	passages, err := uc.parse(strings.NewReader(text), imp.Filename)
	if err != nil {
		return 0, err
	}
	if imp.Translation != "" {
		for i := range passages {
			passages[i].Translation = imp.Translation
		}
	}

	return uc.index(ctx, passages)
}

func (uc *ProcessCorpusUseCase) loadImport(ctx context.Context, importID string) (*domain.CorpusImport, error) {
	imp, err := uc.repo.GetByID(ctx, importID)
	if err != nil {
		return nil, fmt.Errorf("fetch corpus import by id: %w", err)
	}
	return imp, nil
}

func (uc *ProcessCorpusUseCase) extractText(ctx context.Context, imp *domain.CorpusImport) (string, error) {
	text, err := uc.extractor.Extract(ctx, imp)
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract text", errors.New("empty corpus"))
	}
	return text, nil
}

func (uc *ProcessCorpusUseCase) parse(r io.Reader, source string) ([]domain.Passage, error) {
	passages, err := uc.parser.Parse(r, source)
	if err != nil {
		return nil, fmt.Errorf("parse corpus: %w", err)
	}
	if len(passages) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse corpus", errors.New("no verses recognized"))
	}
	return passages, nil
}

func (uc *ProcessCorpusUseCase) index(ctx context.Context, passages []domain.Passage) (int, error) {
	if err := uc.indexer.Ping(ctx); err != nil {
		return 0, err
	}
	count, err := uc.indexer.Index(ctx, passages)
	if err != nil {
		return count, fmt.Errorf("index passages: %w", err)
	}
	return count, nil
}

func (uc *ProcessCorpusUseCase) markStatus(ctx context.Context, importID string, status domain.ImportStatus, errMessage string) error {
	return uc.repo.UpdateStatus(ctx, importID, status, errMessage)
}

func (uc *ProcessCorpusUseCase) markFailed(ctx context.Context, importID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	return uc.markStatus(ctx, importID, domain.StatusFailed, processErr.Error())
}
