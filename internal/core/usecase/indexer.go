package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/kirillkom/scripture-rag/internal/core/domain"
	"github.com/kirillkom/scripture-rag/internal/core/ports"
)

const (
	defaultIndexBatchSize = 128
	defaultIndexWorkers   = 4
)

// PassageIndexer embeds passages in batches on a bounded worker pool and
// upserts them into the passage store.
type PassageIndexer struct {
	embedder  ports.Embedder
	store     ports.PassageIndexer
	batchSize int
	workers   int
}

func NewPassageIndexer(embedder ports.Embedder, store ports.PassageIndexer, batchSize, workers int) *PassageIndexer {
	if batchSize <= 0 {
		batchSize = defaultIndexBatchSize
	}
	if workers <= 0 {
		workers = defaultIndexWorkers
	}
	return &PassageIndexer{
		embedder:  embedder,
		store:     store,
		batchSize: batchSize,
		workers:   workers,
	}
}

// Ping fails fast when the embedder is unreachable, before any batch is
// submitted.
func (ix *PassageIndexer) Ping(ctx context.Context) error {
	if _, err := ix.embedder.EmbedQuery(ctx, "ping"); err != nil {
		return fmt.Errorf("embedder ping: %w", err)
	}
	return nil
}

// Index returns the number of passages written. The first failing batch
// cancels the rest.
func (ix *PassageIndexer) Index(ctx context.Context, passages []domain.Passage) (int, error) {
	if len(passages) == 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "index passages", errors.New("no passages"))
	}

	pool, err := ants.NewPool(ix.workers)
	if err != nil {
		return 0, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		written  int
	)
	fail := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
	}

	batches := splitBatches(passages, ix.batchSize)
	for i, batch := range batches {
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			if err := ix.indexBatch(ctx, batch); err != nil {
				fail(fmt.Errorf("batch %d/%d: %w", i+1, len(batches), err))
				return
			}
			mu.Lock()
			written += len(batch)
			mu.Unlock()
			slog.Debug("passage_batch_indexed", "batch", i+1, "batches", len(batches), "size", len(batch))
		})
		if submitErr != nil {
			wg.Done()
			fail(fmt.Errorf("submit batch %d: %w", i+1, submitErr))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return written, firstErr
	}
	return written, nil
}

func (ix *PassageIndexer) indexBatch(ctx context.Context, batch []domain.Passage) error {
	texts := make([]string, len(batch))
	for i, p := range batch {
		texts[i] = p.Text
	}

	vectors, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed passages: %w", err)
	}
	if len(vectors) != len(batch) {
		return domain.WrapError(
			domain.ErrInvalidInput,
			"embed passages",
			fmt.Errorf("vectors/passages mismatch: %d/%d", len(vectors), len(batch)),
		)
	}

	indexed := make([]domain.IndexedPassage, len(batch))
	for i := range batch {
		indexed[i] = domain.IndexedPassage{Passage: batch[i], Vector: vectors[i]}
	}
	if err := ix.store.UpsertPassages(ctx, indexed); err != nil {
		return fmt.Errorf("upsert passages: %w", err)
	}
	return nil
}

func splitBatches(passages []domain.Passage, size int) [][]domain.Passage {
	out := make([][]domain.Passage, 0, (len(passages)+size-1)/size)
	for start := 0; start < len(passages); start += size {
		end := min(start+size, len(passages))
		out = append(out, passages[start:end])
	}
	return out
}
