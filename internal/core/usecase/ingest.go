package usecase

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/scripture-rag/internal/core/domain"
	"github.com/kirillkom/scripture-rag/internal/core/ports"
)

type IngestCorpusUseCase struct {
	repo        ports.CorpusImportRepository
	storage     ports.ObjectStorage
	queue       ports.MessageQueue
	translation string
}

func NewIngestCorpusUseCase(
	repo ports.CorpusImportRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	translation string,
) *IngestCorpusUseCase {
	return &IngestCorpusUseCase{
		repo:        repo,
		storage:     storage,
		queue:       queue,
		translation: translation,
	}
}

func (uc *IngestCorpusUseCase) Upload(ctx context.Context, filename string, body io.Reader) (*domain.CorpusImport, error) {
	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(filename))
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, storageKey, body); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	imp := &domain.CorpusImport{
		ID:          id,
		Filename:    filename,
		StoragePath: storageKey,
		Translation: uc.translation,
		Status:      domain.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := uc.repo.Create(ctx, imp); err != nil {
		return nil, fmt.Errorf("create corpus import: %w", err)
	}

	if err := uc.queue.PublishCorpusUploaded(ctx, imp.ID); err != nil {
		return nil, fmt.Errorf("publish ingestion event: %w", err)
	}

	return imp, nil
}

func (uc *IngestCorpusUseCase) GetByID(ctx context.Context, id string) (*domain.CorpusImport, error) {
	return uc.repo.GetByID(ctx, id)
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "corpus.txt"
	}
	return base
}
