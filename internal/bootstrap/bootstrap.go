package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/workspace-search/internal/config"
	"github.com/kirillkom/workspace-search/internal/core/ports"
	"github.com/kirillkom/workspace-search/internal/core/usecase"
	"github.com/kirillkom/workspace-search/internal/infrastructure/keyword"
	"github.com/kirillkom/workspace-search/internal/infrastructure/llm/crossencoder"
	"github.com/kirillkom/workspace-search/internal/infrastructure/llm/embedcache"
	"github.com/kirillkom/workspace-search/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/workspace-search/internal/infrastructure/queue/nats"
	"github.com/kirillkom/workspace-search/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/workspace-search/internal/infrastructure/resilience"
	"github.com/kirillkom/workspace-search/internal/observability/metrics"
)

type App struct {
	Config config.Config

	Search  ports.WorkspaceSearcher
	Indexer ports.KeywordIndexMaintainer
	Events  ports.IndexEventSource
	Metrics *metrics.HTTPServerMetrics

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db, cfg.EmbeddingDims); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	messages := postgres.NewMessageRepository(db)
	documents := postgres.NewDocumentRepository(db)

	index, err := keyword.Open(cfg.KeywordIndexPath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open keyword index: %w", err)
	}

	appMetrics := metrics.NewHTTPServerMetrics(service)
	indexMetrics := metrics.NewIndexerMetrics(service, appMetrics.Registerer())

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaEmbedModel, ollama.Options{
		Timeout:            cfg.OllamaTimeout,
		ResilienceExecutor: resilience.NewExecutor(resilience.EmbeddingPolicy(), appMetrics.ObserveBreakerState),
	})
	embedder := embedcache.New(ollama.NewEmbedder(ollamaClient), cfg.OllamaEmbedModel, cfg.EmbedCacheSize, cfg.EmbedCacheTTL)

	var reranker ports.Reranker = usecase.NewLexicalReranker()
	if cfg.RerankURL != "" {
		reranker = crossencoder.New(cfg.RerankURL, cfg.RerankTimeout, resilience.NewExecutor(resilience.RerankPolicy(), appMetrics.ObserveBreakerState))
	}

	tuning := cfg.Tuning
	retriever := usecase.NewMultiSourceRetriever(embedder, index, messages, documents, appMetrics, usecase.RetrievalConfig{
		CandidateLimit:     cfg.SearchCandidateLimit,
		MessageMinLength:   cfg.SearchMessageMinLength,
		ChunkMinLength:     cfg.SearchChunkMinLength,
		ExcludedUserID:     cfg.SearchExcludedUserID,
		SummaryWeight:      tuning.SummaryWeight,
		ThreadStarterBoost: tuning.ThreadStarterBoost,
		MaxQueryVariants:   cfg.SearchMaxQueryVariants,
		SemanticRequired:   cfg.SearchSemanticRequired,
		StrategyTimeout:    cfg.SearchStrategyTimeout,
	})
	booster := usecase.NewMetadataBooster(tuning.Boost, nil)
	expander := usecase.NewContextExpander(messages, documents, appMetrics, usecase.ExpanderConfig{
		SurroundingWindow: cfg.SearchSurroundingWindow,
		Concurrency:       cfg.SearchExpandConcurrency,
	})
	searchUC := usecase.NewSearchUseCase(
		retriever,
		booster,
		usecase.NewRerankAdapter(reranker, messages, appMetrics, tuning.RerankWindowFactor),
		expander,
		appMetrics,
		usecase.SearchConfig{
			Weights:            tuning.Fusion,
			RRFK:               tuning.RRFK,
			RerankWindowFactor: tuning.RerankWindowFactor,
		},
	)
	indexUC := usecase.NewKeywordIndexUseCase(index, messages, documents, indexMetrics, 0)

	app := &App{
		Config:  cfg,
		Search:  searchUC,
		Indexer: indexUC,
		Metrics: appMetrics,
	}

	var queue *nats.Queue
	if cfg.NATSEnabled {
		queue, err = nats.NewWithOptions(cfg.NATSURL, cfg.NATSIndexSubject, nats.Options{
			ResilienceExecutor: resilience.NewExecutor(resilience.IndexFeedPolicy(), appMetrics.ObserveBreakerState),
		})
		if err != nil {
			_ = index.Close()
			_ = db.Close()
			return nil, fmt.Errorf("init index event queue: %w", err)
		}
		app.Events = queue
	}

	app.closeFn = func() {
		if queue != nil {
			queue.Close()
		}
		if err := index.Close(); err != nil {
			slog.Warn("keyword_index_close_failed", "error", err)
		}
		_ = db.Close()
	}
	return app, nil
}

// RunIndexer fills an empty keyword index and then applies index events until ctx is done.
func (a *App) RunIndexer(ctx context.Context) error {
	if err := a.Indexer.RebuildIfEmpty(ctx); err != nil {
		return fmt.Errorf("rebuild keyword index: %w", err)
	}
	if a.Events == nil {
		slog.Info("index_events_disabled")
		<-ctx.Done()
		return nil
	}
	slog.Info("index_events_subscribed", "subject", a.Config.NATSIndexSubject)
	return a.Events.SubscribeIndexEvents(ctx, a.Indexer.HandleIndexEvent)
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
