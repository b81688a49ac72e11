package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/kirillkom/workspace-search/internal/core/domain"
)

type SearchConfig struct {
	Weights            FusionWeights
	RRFK               int
	RerankWindowFactor int
}

func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		Weights:            DefaultFusionWeights(),
		RRFK:               defaultRRFK,
		RerankWindowFactor: defaultRerankWindowFactor,
	}
}

// SearchUseCase runs the hybrid pipeline: classify, retrieve, fuse, boost, rerank and expand.
type SearchUseCase struct {
	retriever *MultiSourceRetriever
	booster   *MetadataBooster
	reranker  *RerankAdapter
	expander  *ContextExpander
	observer  SearchObserver
	cfg       SearchConfig
}

func NewSearchUseCase(
	retriever *MultiSourceRetriever,
	booster *MetadataBooster,
	reranker *RerankAdapter,
	expander *ContextExpander,
	observer SearchObserver,
	cfg SearchConfig,
) *SearchUseCase {
	if observer == nil {
		observer = noopObserver{}
	}
	if cfg.RRFK <= 0 {
		cfg.RRFK = defaultRRFK
	}
	if cfg.RerankWindowFactor <= 0 {
		cfg.RerankWindowFactor = defaultRerankWindowFactor
	}
	return &SearchUseCase{
		retriever: retriever,
		booster:   booster,
		reranker:  reranker,
		expander:  expander,
		observer:  observer,
		cfg:       cfg,
	}
}

// Search returns an empty, non-nil slice when nothing matches. An error means retrieval
// itself was unavailable.
func (uc *SearchUseCase) Search(
	ctx context.Context,
	query string,
	opts domain.SearchOptions,
) ([]domain.SearchResult, error) {
	start := time.Now()
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.SearchResult{}, nil
	}
	opts = opts.Normalize()

	cls := ClassifyQuery(query)
	lists, err := uc.retriever.Retrieve(ctx, query, cls, opts)
	if err != nil {
		outcome := searchOutcomeError
		if errors.Is(err, domain.ErrRetrievalUnavailable) {
			outcome = searchOutcomeUnavailable
		}
		uc.observer.ObserveSearch(outcome, 0, time.Since(start))
		return nil, err
	}

	results := fuseRRF(lists, uc.cfg.Weights, uc.cfg.RRFK)
	if len(results) == 0 {
		uc.observer.ObserveSearch(searchOutcomeEmpty, 0, time.Since(start))
		return []domain.SearchResult{}, nil
	}

	results = uc.booster.Apply(results, cls, boostOptions{
		recency: opts.EnableRecencyBoost,
		quality: true,
		source:  true,
	})

	window := opts.Limit * uc.cfg.RerankWindowFactor
	if opts.Rerank && uc.reranker != nil {
		results = uc.reranker.Rerank(ctx, query, results, opts.Limit)
	}
	results = trimResults(results, window)

	if opts.EnableContextExpansion && uc.expander != nil {
		results = uc.expander.ReconstructDocuments(ctx, results)
	}
	results = trimResults(results, opts.Limit)
	if opts.EnableContextExpansion && uc.expander != nil {
		results = uc.expander.ExpandThreads(ctx, results)
	}

	uc.observer.ObserveSearch(searchOutcomeOK, len(results), time.Since(start))
	return results, nil
}
