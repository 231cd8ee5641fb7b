package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/scripture-rag/internal/config"
	"github.com/kirillkom/scripture-rag/internal/core/domain"
	"github.com/kirillkom/scripture-rag/internal/core/ports"
	"github.com/kirillkom/scripture-rag/internal/core/retrieval"
	"github.com/kirillkom/scripture-rag/internal/core/usecase"
	"github.com/kirillkom/scripture-rag/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/scripture-rag/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/scripture-rag/internal/infrastructure/llm/openai"
	"github.com/kirillkom/scripture-rag/internal/infrastructure/parser/versified"
	"github.com/kirillkom/scripture-rag/internal/infrastructure/queue/nats"
	"github.com/kirillkom/scripture-rag/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/scripture-rag/internal/infrastructure/resilience"
	"github.com/kirillkom/scripture-rag/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/scripture-rag/internal/infrastructure/store/badger"
	"github.com/kirillkom/scripture-rag/internal/infrastructure/vector/qdrant"
)

const importHandlerTimeout = 30 * time.Minute

// Dependency is an external system probed by health checks.
type Dependency struct {
	Name    string
	Checker ports.HealthChecker
}

// Observers are optional metric sinks. Nil fields disable reporting.
type Observers struct {
	Retrieval retrieval.Observer
	Guard     usecase.GuardObserver
	Import    usecase.ImportObserver
}

// Core is the retrieval and answering stack shared by every binary.
type Core struct {
	Config config.Config
	Logger *slog.Logger

	Store     ports.PassageStore
	Retriever *retrieval.Engine
	Answerer  *usecase.AnswerUseCase
	Indexer   *usecase.PassageIndexer
	Parser    *versified.Parser

	Dependencies []Dependency

	closers []func()
}

// App adds upload bookkeeping and the import queue for the API and worker.
type App struct {
	*Core

	Queue     *nats.Queue
	Repo      *postgres.CorpusRepository
	IngestUC  *usecase.IngestCorpusUseCase
	ProcessUC *usecase.ProcessCorpusUseCase
}

func NewCore(ctx context.Context, cfg config.Config, logger *slog.Logger, obs Observers) (*Core, error) {
	if logger == nil {
		logger = slog.Default()
	}
	executor := newExecutor(cfg, logger)

	core := &Core{Config: cfg, Logger: logger}

	store, err := core.openStore(ctx, executor)
	if err != nil {
		core.Close()
		return nil, err
	}
	core.Store = store

	embedder, err := core.newEmbedder(executor)
	if err != nil {
		core.Close()
		return nil, err
	}
	generator, err := core.newGenerator(executor)
	if err != nil {
		core.Close()
		return nil, err
	}

	opts := retrieval.Options{
		SemanticTopK:               cfg.RAGSemanticTopK,
		PerKeywordLimit:            cfg.RAGLiteralPerKeyword,
		PerKeywordLimitLiteralOnly: cfg.RAGLiteralPerKeywordBio,
		FinalTopN:                  cfg.RAGFinalTopN,
		Timeout:                    cfg.RAGTimeout,
		FilterByTestament:          cfg.RAGTestamentMode == "filter",
	}
	core.Retriever = retrieval.NewEngine(embedder, store, opts, obs.Retrieval)
	core.Answerer = usecase.NewAnswerUseCase(core.Retriever, generator, obs.Guard)
	core.Indexer = usecase.NewPassageIndexer(embedder, store, cfg.IngestBatchSize, cfg.IngestWorkers)
	core.Parser = versified.NewParser(cfg.CorpusTranslation)
	return core, nil
}

// New builds the full API/worker stack: core plus Postgres import
// bookkeeping, local object storage and NATS.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, obs Observers) (*App, error) {
	core, err := NewCore(ctx, cfg, logger, obs)
	if err != nil {
		return nil, err
	}
	app := &App{Core: core}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		core.Close()
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	core.closers = append(core.closers, func() { _ = db.Close() })
	repo := postgres.NewCorpusRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		core.Close()
		return nil, fmt.Errorf("ensure corpus schema: %w", err)
	}
	app.Repo = repo
	core.Dependencies = append(core.Dependencies, Dependency{Name: "postgres", Checker: dbPinger{db}})

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		core.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}
	core.Dependencies = append(core.Dependencies, Dependency{Name: "storage", Checker: storage})

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: newExecutor(cfg, core.Logger),
		HandlerTimeout:     importHandlerTimeout,
		Logger:             core.Logger,
	})
	if err != nil {
		core.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	core.closers = append(core.closers, queue.Close)
	core.Dependencies = append(core.Dependencies, Dependency{Name: "nats", Checker: queue})
	app.Queue = queue

	app.IngestUC = usecase.NewIngestCorpusUseCase(repo, storage, queue, cfg.CorpusTranslation)
	app.ProcessUC = usecase.NewProcessCorpusUseCase(
		repo,
		plaintext.NewExtractor(storage),
		core.Parser,
		core.Indexer,
		obs.Import,
	)
	return app, nil
}

func newExecutor(cfg config.Config, logger *slog.Logger) *resilience.Executor {
	policy := resilience.DefaultConfig().
		WithRetry(cfg.RetryMaxAttempts, cfg.RetryInitialBackoff, cfg.RetryMaxBackoff).
		WithBreaker(cfg.BreakerEnabled, cfg.BreakerOpenTimeout)
	return resilience.NewExecutor(policy).WithLogger(logger)
}

// DirectIngestor parses and indexes a local corpus file without upload
// bookkeeping.
func (c *Core) DirectIngestor() *usecase.ProcessCorpusUseCase {
	return usecase.NewProcessCorpusUseCase(nil, nil, c.Parser, c.Indexer, nil)
}

func (c *Core) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

func (c *Core) openStore(ctx context.Context, executor *resilience.Executor) (ports.PassageStore, error) {
	cfg := c.Config
	switch cfg.PassageStore {
	case "", "qdrant":
		client := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection).WithExecutor(executor)
		c.Dependencies = append(c.Dependencies, Dependency{Name: "qdrant", Checker: client})
		return client, nil
	case "postgres", "pgvector":
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open pgvector store: %w", err)
		}
		c.closers = append(c.closers, func() { _ = db.Close() })
		store := postgres.NewPassageStore(db, cfg.PGVectorDimensions, cfg.PGCaseFolding)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure passage schema: %w", err)
		}
		c.Dependencies = append(c.Dependencies, Dependency{Name: "pgvector", Checker: store})
		return store, nil
	case "badger":
		store, err := badger.Open(cfg.BadgerPath, false, c.Logger)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, func() {
			if err := store.Close(); err != nil {
				c.Logger.Warn("badger_close_failed", "error", err)
			}
		})
		c.Dependencies = append(c.Dependencies, Dependency{Name: "badger", Checker: store})
		return store, nil
	default:
		return nil, domain.WrapError(domain.ErrMisconfigured, "passage store",
			fmt.Errorf("unknown PASSAGE_STORE %q", cfg.PassageStore))
	}
}

func (c *Core) newEmbedder(executor *resilience.Executor) (ports.Embedder, error) {
	cfg := c.Config
	switch cfg.EmbedProvider {
	case "", "ollama":
		client := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel).WithExecutor(executor)
		c.Dependencies = append(c.Dependencies, Dependency{Name: "ollama", Checker: client})
		return ollama.NewEmbedder(client), nil
	case "openai":
		client, err := openai.New(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIEmbedModel, cfg.OpenAIChatModel)
		if err != nil {
			return nil, err
		}
		c.Dependencies = append(c.Dependencies, Dependency{Name: "openai", Checker: client})
		return openai.NewEmbedder(client.WithExecutor(executor)), nil
	default:
		return nil, domain.WrapError(domain.ErrMisconfigured, "embedder",
			fmt.Errorf("unknown EMBED_PROVIDER %q", cfg.EmbedProvider))
	}
}

func (c *Core) newGenerator(executor *resilience.Executor) (ports.AnswerGenerator, error) {
	cfg := c.Config
	switch cfg.GenProvider {
	case "", "ollama":
		client := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel).
			WithExecutor(executor).
			WithTemperature(cfg.GenTemperature)
		return ollama.NewGenerator(client), nil
	case "openai":
		client, err := openai.New(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIEmbedModel, cfg.OpenAIChatModel)
		if err != nil {
			if errors.Is(err, domain.ErrMisconfigured) {
				c.Logger.Warn("openai_generator_disabled", "error", err)
				return unavailableGenerator{err: err}, nil
			}
			return nil, err
		}
		return openai.NewGenerator(client.WithExecutor(executor).WithTemperature(cfg.GenTemperature)), nil
	default:
		return nil, domain.WrapError(domain.ErrMisconfigured, "generator",
			fmt.Errorf("unknown GEN_PROVIDER %q", cfg.GenProvider))
	}
}

// unavailableGenerator keeps the API up without a chat key so that health
// can report missing_openai_api_key and retrieval still works.
type unavailableGenerator struct {
	err error
}

func (g unavailableGenerator) GenerateAnswer(context.Context, string, []domain.Passage) (string, error) {
	return "", g.err
}

type dbPinger struct {
	db *sql.DB
}

func (p dbPinger) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}
