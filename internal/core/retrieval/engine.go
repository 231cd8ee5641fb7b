package retrieval

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/scripture-rag/internal/core/domain"
	"github.com/kirillkom/scripture-rag/internal/core/ports"
)

type Options struct {
	SemanticTopK int
	// PerKeywordLimit caps each ContainsSearch call in AUTO mode.
	PerKeywordLimit int
	// PerKeywordLimitLiteralOnly is used when the semantic branch is off,
	// so the literal branch may look further.
	PerKeywordLimitLiteralOnly int
	FinalTopN                  int
	// Timeout bounds the whole store/embedding fan-out of one call.
	Timeout time.Duration
	// FilterByTestament turns a testament preference into a hard store
	// filter instead of a reorder.
	FilterByTestament bool
}

func DefaultOptions() Options {
	return Options{
		SemanticTopK:               10,
		PerKeywordLimit:            30,
		PerKeywordLimitLiteralOnly: 80,
		FinalTopN:                  25,
		Timeout:                    20 * time.Second,
	}
}

func (o Options) normalize() Options {
	d := DefaultOptions()
	if o.SemanticTopK <= 0 {
		o.SemanticTopK = d.SemanticTopK
	}
	if o.PerKeywordLimit <= 0 {
		o.PerKeywordLimit = d.PerKeywordLimit
	}
	if o.PerKeywordLimitLiteralOnly <= 0 {
		o.PerKeywordLimitLiteralOnly = d.PerKeywordLimitLiteralOnly
	}
	if o.FinalTopN <= 0 {
		o.FinalTopN = d.FinalTopN
	}
	return o
}

// Observer receives per-call retrieval counts.
type Observer interface {
	ObserveRetrieval(mode domain.RetrievalMode, literal, semantic, fused int, duration time.Duration, err error)
}

type Engine struct {
	embedder ports.Embedder
	store    ports.PassageSearcher
	opts     Options
	observer Observer
}

func NewEngine(embedder ports.Embedder, store ports.PassageSearcher, opts Options, observer Observer) *Engine {
	return &Engine{
		embedder: embedder,
		store:    store,
		opts:     opts.normalize(),
		observer: observer,
	}
}

func (e *Engine) Analyze(question string) domain.QueryContext {
	return Analyze(question)
}

// Retrieve analyzes the question and runs the requested branches.
func (e *Engine) Retrieve(ctx context.Context, question string, mode domain.RetrievalMode) (*domain.Retrieval, error) {
	return e.RetrieveContext(ctx, Analyze(question), mode)
}

// RetrieveContext runs retrieval for an already analyzed question.
func (e *Engine) RetrieveContext(ctx context.Context, qc domain.QueryContext, mode domain.RetrievalMode) (*domain.Retrieval, error) {
	started := time.Now()
	result, err := e.retrieve(ctx, qc, mode)
	if e.observer != nil {
		var lit, sem, fused int
		if result != nil {
			lit, sem, fused = len(result.Literal), len(result.Semantic), len(result.Candidates)
		}
		e.observer.ObserveRetrieval(mode, lit, sem, fused, time.Since(started), err)
	}
	return result, err
}

func (e *Engine) retrieve(ctx context.Context, qc domain.QueryContext, mode domain.RetrievalMode) (*domain.Retrieval, error) {
	if mode == "" {
		mode = domain.ModeAuto
	}
	filter := domain.PassageFilter{Book: qc.BookFilter}
	if e.opts.FilterByTestament {
		filter.Testament = qc.TestamentPreference
	}

	perKeyword := e.opts.PerKeywordLimit
	if mode == domain.ModeLiteralOnly {
		perKeyword = e.opts.PerKeywordLimitLiteralOnly
	}

	callCtx := ctx
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	var literal, semantic []domain.Candidate
	g, gctx := errgroup.WithContext(callCtx)
	g.Go(func() error {
		var err error
		literal, err = LiteralSearch(gctx, e.store, qc.Keywords, filter, perKeyword)
		if err != nil {
			return domain.WrapError(domain.ErrStoreUnavailable, "literal search", err)
		}
		return nil
	})
	if mode == domain.ModeAuto && strings.TrimSpace(qc.RawQuestion) != "" {
		g.Go(func() error {
			var err error
			semantic, err = SemanticSearch(gctx, e.embedder, e.store, qc.RawQuestion, filter, e.opts.SemanticTopK)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, domain.WrapError(domain.ErrTemporary, "retrieve", err)
		}
		return nil, err
	}

	if semantic == nil {
		semantic = []domain.Candidate{}
	}
	fused := Truncate(Merge(literal, semantic, qc.TestamentPreference), e.opts.FinalTopN)
	return &domain.Retrieval{
		Query:      qc,
		Mode:       mode,
		Literal:    literal,
		Semantic:   semantic,
		Candidates: fused,
	}, nil
}
