package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/workspace-search/internal/core/domain"
	"github.com/kirillkom/workspace-search/internal/core/ports"
)

type RetrievalConfig struct {
	CandidateLimit     int
	MessageMinLength   int
	ChunkMinLength     int
	ExcludedUserID     string
	SummaryWeight      float64
	ThreadStarterBoost float64
	MaxQueryVariants   int
	SemanticRequired   bool
	StrategyTimeout    time.Duration
}

func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		CandidateLimit:     40,
		MessageMinLength:   10,
		ChunkMinLength:     20,
		SummaryWeight:      0.85,
		ThreadStarterBoost: 1.1,
		MaxQueryVariants:   defaultMaxQueryVariants,
		SemanticRequired:   true,
		StrategyTimeout:    8 * time.Second,
	}
}

func (c RetrievalConfig) normalize() RetrievalConfig {
	out := c
	def := DefaultRetrievalConfig()
	if out.CandidateLimit <= 0 {
		out.CandidateLimit = def.CandidateLimit
	}
	if out.MessageMinLength < 0 {
		out.MessageMinLength = def.MessageMinLength
	}
	if out.ChunkMinLength < 0 {
		out.ChunkMinLength = def.ChunkMinLength
	}
	if out.SummaryWeight <= 0 {
		out.SummaryWeight = def.SummaryWeight
	}
	if out.ThreadStarterBoost <= 0 {
		out.ThreadStarterBoost = def.ThreadStarterBoost
	}
	if out.MaxQueryVariants < 0 {
		out.MaxQueryVariants = 0
	}
	return out
}

// MultiSourceRetriever runs the retrieval strategies concurrently and returns their ranked
// lists in fixed strategy order.
type MultiSourceRetriever struct {
	embedder  ports.Embedder
	keyword   ports.KeywordSearcher
	messages  ports.MessageStore
	documents ports.DocumentStore
	observer  SearchObserver
	cfg       RetrievalConfig
}

func NewMultiSourceRetriever(
	embedder ports.Embedder,
	keyword ports.KeywordSearcher,
	messages ports.MessageStore,
	documents ports.DocumentStore,
	observer SearchObserver,
	cfg RetrievalConfig,
) *MultiSourceRetriever {
	if observer == nil {
		observer = noopObserver{}
	}
	return &MultiSourceRetriever{
		embedder:  embedder,
		keyword:   keyword,
		messages:  messages,
		documents: documents,
		observer:  observer,
		cfg:       cfg.normalize(),
	}
}

type strategyOutcome struct {
	results []domain.SearchResult
	err     error
}

func (r *MultiSourceRetriever) Retrieve(
	ctx context.Context,
	query string,
	cls domain.QueryClassification,
	opts domain.SearchOptions,
) ([]domain.RankedList, error) {
	if r.cfg.StrategyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.StrategyTimeout)
		defer cancel()
	}

	runSummaries := opts.UseAdvancedRetrieval && opts.IncludeDocumentSummaries &&
		cls.IsBroadTopic && opts.Includes(domain.SourceDocument)
	runConversations := opts.UseAdvancedRetrieval && cls.NeedsConversationContext &&
		opts.Includes(domain.SourceSlack)

	var variants []string
	if opts.UseAdvancedRetrieval {
		variants = buildQueryVariants(query, r.cfg.MaxQueryVariants)
	}

	// Every strategy writes only its own slot; slots are read after Wait.
	var (
		semantic      strategyOutcome
		keyword       strategyOutcome
		summaries     strategyOutcome
		conversations strategyOutcome
		enhanced      = make([]strategyOutcome, len(variants))
	)

	var g errgroup.Group
	g.Go(func() error {
		keyword = r.run(ctx, domain.StrategyKeyword, func(ctx context.Context) ([]domain.SearchResult, error) {
			return r.keywordSearch(ctx, query, opts)
		})
		return nil
	})
	if len(variants) > 0 {
		g.Go(func() error {
			r.runVariants(ctx, variants, opts, enhanced)
			return nil
		})
	}

	queryVector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		err = fmt.Errorf("embed query: %w", err)
		semantic = strategyOutcome{err: err}
		r.reportFailure(domain.StrategySemantic, err, 0)
	} else {
		g.Go(func() error {
			semantic = r.run(ctx, domain.StrategySemantic, func(ctx context.Context) ([]domain.SearchResult, error) {
				return r.semanticSearch(ctx, queryVector, opts)
			})
			return nil
		})
		if runSummaries {
			g.Go(func() error {
				summaries = r.run(ctx, domain.StrategyDocumentSummary, func(ctx context.Context) ([]domain.SearchResult, error) {
					return r.summarySearch(ctx, queryVector)
				})
				return nil
			})
		}
		if runConversations {
			g.Go(func() error {
				conversations = r.run(ctx, domain.StrategyConversations, func(ctx context.Context) ([]domain.SearchResult, error) {
					return r.threadStarterSearch(ctx, queryVector)
				})
				return nil
			})
		}
	}
	_ = g.Wait()

	if semantic.err != nil && r.cfg.SemanticRequired {
		return nil, domain.WrapError(domain.ErrRetrievalUnavailable, "semantic retrieval", semantic.err)
	}
	outcomes := append([]strategyOutcome{semantic, keyword, summaries, conversations}, enhanced...)
	for _, outcome := range outcomes {
		if errors.Is(outcome.err, domain.ErrStorageUnavailable) {
			return nil, domain.WrapError(domain.ErrRetrievalUnavailable, "storage query", outcome.err)
		}
	}

	lists := []domain.RankedList{
		{Strategy: domain.StrategySemantic, Results: semantic.results},
		{Strategy: domain.StrategyKeyword, Results: keyword.results},
		{Strategy: domain.StrategyDocumentSummary, Results: summaries.results},
		{Strategy: domain.StrategyConversations, Results: conversations.results},
	}
	for i, outcome := range enhanced {
		lists = append(lists, domain.RankedList{
			Strategy: fmt.Sprintf("%s%d", domain.StrategyEnhancedPrefix, i),
			Results:  outcome.results,
		})
	}
	return lists, nil
}

func (r *MultiSourceRetriever) run(
	ctx context.Context,
	strategy string,
	fn func(context.Context) ([]domain.SearchResult, error),
) strategyOutcome {
	start := time.Now()
	results, err := fn(ctx)
	duration := time.Since(start)
	if err != nil {
		r.reportFailure(strategy, err, duration)
		return strategyOutcome{results: []domain.SearchResult{}, err: err}
	}
	r.observer.ObserveStrategy(strategy, len(results), nil, duration)
	return strategyOutcome{results: results}
}

func (r *MultiSourceRetriever) reportFailure(strategy string, err error, duration time.Duration) {
	slog.Warn("search_strategy_failed",
		"strategy", strategy,
		"duration_ms", float64(duration.Microseconds())/1000.0,
		"error", err,
	)
	r.observer.ObserveStrategy(strategy, 0, err, duration)
}

func (r *MultiSourceRetriever) runVariants(
	ctx context.Context,
	variants []string,
	opts domain.SearchOptions,
	out []strategyOutcome,
) {
	start := time.Now()
	vectors, err := r.embedder.Embed(ctx, variants)
	if err == nil && len(vectors) != len(variants) {
		err = fmt.Errorf("embed variants: got %d vectors for %d texts", len(vectors), len(variants))
	}
	if err != nil {
		err = fmt.Errorf("embed variants: %w", err)
		for i := range out {
			out[i] = strategyOutcome{results: []domain.SearchResult{}, err: err}
		}
		r.reportFailure(domain.StrategyEnhancedPrefix+"variants", err, time.Since(start))
		return
	}

	var g errgroup.Group
	for i := range variants {
		g.Go(func() error {
			name := fmt.Sprintf("%s%d", domain.StrategyEnhancedPrefix, i)
			out[i] = r.run(ctx, name, func(ctx context.Context) ([]domain.SearchResult, error) {
				return r.semanticSearch(ctx, vectors[i], opts)
			})
			return nil
		})
	}
	_ = g.Wait()
}

func (r *MultiSourceRetriever) semanticSearch(
	ctx context.Context,
	queryVector []float32,
	opts domain.SearchOptions,
) ([]domain.SearchResult, error) {
	var chat, docs []domain.SearchResult

	g, gctx := errgroup.WithContext(ctx)
	if opts.Includes(domain.SourceSlack) {
		g.Go(func() error {
			rows, err := r.messages.SearchMessages(gctx, queryVector, domain.MessageQuery{
				Limit:         r.cfg.CandidateLimit,
				MinLength:     r.cfg.MessageMinLength,
				ExcludeUserID: r.cfg.ExcludedUserID,
			})
			if err != nil {
				return storageError("search messages", err)
			}
			chat = r.messageResults(rows, 1.0)
			return nil
		})
	}
	if opts.Includes(domain.SourceDocument) {
		g.Go(func() error {
			rows, err := r.documents.SearchChunks(gctx, queryVector, domain.ChunkQuery{
				Limit:     r.cfg.CandidateLimit,
				MinLength: r.cfg.ChunkMinLength,
			})
			if err != nil {
				return storageError("search chunks", err)
			}
			docs = make([]domain.SearchResult, 0, len(rows))
			for _, row := range rows {
				if !r.acceptChunk(row.Chunk) {
					continue
				}
				docs = append(docs, row.Chunk.ToResult(similarity(row.Distance)))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make([]domain.SearchResult, 0, len(chat)+len(docs))
	merged = append(merged, chat...)
	merged = append(merged, docs...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	return merged, nil
}

func (r *MultiSourceRetriever) summarySearch(ctx context.Context, queryVector []float32) ([]domain.SearchResult, error) {
	rows, err := r.documents.SearchDocumentSummaries(ctx, queryVector, r.cfg.CandidateLimit)
	if err != nil {
		return nil, storageError("search document summaries", err)
	}
	out := make([]domain.SearchResult, 0, len(rows))
	for _, row := range rows {
		if strings.TrimSpace(row.Summary.Summary) == "" {
			continue
		}
		out = append(out, row.Summary.ToResult(similarity(row.Distance)*r.cfg.SummaryWeight))
	}
	return out, nil
}

func (r *MultiSourceRetriever) threadStarterSearch(ctx context.Context, queryVector []float32) ([]domain.SearchResult, error) {
	rows, err := r.messages.SearchMessages(ctx, queryVector, domain.MessageQuery{
		Limit:              r.cfg.CandidateLimit,
		MinLength:          r.cfg.MessageMinLength,
		ExcludeUserID:      r.cfg.ExcludedUserID,
		ThreadStartersOnly: true,
	})
	if err != nil {
		return nil, storageError("search thread starters", err)
	}
	return r.messageResults(rows, r.cfg.ThreadStarterBoost), nil
}

func (r *MultiSourceRetriever) keywordSearch(
	ctx context.Context,
	query string,
	opts domain.SearchOptions,
) ([]domain.SearchResult, error) {
	if r.keyword == nil {
		return []domain.SearchResult{}, nil
	}
	hits, err := r.keyword.Search(ctx, query, opts.Sources, r.cfg.CandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	if len(hits) == 0 {
		return []domain.SearchResult{}, nil
	}

	var messageIDs, chunkIDs []int64
	for _, hit := range hits {
		prefix, id, ok := domain.ParseResultID(hit.ID)
		if !ok {
			continue
		}
		switch {
		case prefix == domain.PrefixSlackMessage && opts.Includes(domain.SourceSlack):
			messageIDs = append(messageIDs, id)
		case prefix == domain.PrefixDocumentChunk && opts.Includes(domain.SourceDocument):
			chunkIDs = append(chunkIDs, id)
		}
	}

	hydrated := make(map[string]domain.SearchResult, len(messageIDs)+len(chunkIDs))
	if len(messageIDs) > 0 {
		rows, err := r.messages.MessagesByIDs(ctx, messageIDs)
		if err != nil {
			return nil, storageError("hydrate keyword messages", err)
		}
		for _, row := range rows {
			if r.acceptMessage(row) {
				hydrated[domain.MessageResultID(row.ID)] = row.ToResult(0)
			}
		}
	}
	if len(chunkIDs) > 0 {
		rows, err := r.documents.ChunksByIDs(ctx, chunkIDs)
		if err != nil {
			return nil, storageError("hydrate keyword chunks", err)
		}
		for _, row := range rows {
			if r.acceptChunk(row) {
				hydrated[domain.ChunkResultID(row.ID)] = row.ToResult(0)
			}
		}
	}

	out := make([]domain.SearchResult, 0, len(hydrated))
	for _, hit := range hits {
		result, ok := hydrated[hit.ID]
		if !ok {
			continue
		}
		result.Score = hit.Score
		out = append(out, result)
		delete(hydrated, hit.ID)
	}
	return out, nil
}

func (r *MultiSourceRetriever) messageResults(rows []domain.ScoredMessage, factor float64) []domain.SearchResult {
	out := make([]domain.SearchResult, 0, len(rows))
	for _, row := range rows {
		if !r.acceptMessage(row.Message) {
			continue
		}
		out = append(out, row.Message.ToResult(similarity(row.Distance)*factor))
	}
	return out
}

func (r *MultiSourceRetriever) acceptMessage(m domain.ChatMessage) bool {
	if r.cfg.ExcludedUserID != "" && m.UserID == r.cfg.ExcludedUserID {
		return false
	}
	return len(strings.TrimSpace(m.Text)) > r.cfg.MessageMinLength
}

func (r *MultiSourceRetriever) acceptChunk(c domain.DocumentChunk) bool {
	return len(strings.TrimSpace(c.Content)) > r.cfg.ChunkMinLength
}

// storageError tags a failed store query so Retrieve can tell an outage from a provider
// failure. Deadline and cancellation errors stay untagged: an expired strategy contributes
// an empty list.
func storageError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return domain.WrapError(domain.ErrStorageUnavailable, op, err)
}

func similarity(distance float64) float64 {
	return 1 - distance
}
