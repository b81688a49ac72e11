package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kirillkom/workspace-search/internal/core/domain"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

type embedderFake struct {
	mu         sync.Mutex
	queryErr   error
	batchErr   error
	queries    []string
	batchCalls int
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i + 1), 0.5}
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, text)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return []float32{0.1, 0.2}, nil
}

type keywordFake struct {
	mu      sync.Mutex
	hits    []domain.KeywordHit
	err     error
	sources []domain.Source
}

func (f *keywordFake) Search(_ context.Context, _ string, sources []domain.Source, limit int) ([]domain.KeywordHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources = sources
	if f.err != nil {
		return nil, f.err
	}
	if len(f.hits) > limit {
		return f.hits[:limit], nil
	}
	return f.hits, nil
}

type messageStoreFake struct {
	mu sync.Mutex

	rows        []domain.ScoredMessage
	starterRows []domain.ScoredMessage
	searchErr   error
	searchCalls int

	byID     map[int64]domain.ChatMessage
	byIDErr  error
	hydrated [][]int64

	roots    []domain.ChatMessage
	rootsErr error
	rootKeys []domain.ThreadKey

	threads     map[string][]domain.ChatMessage
	threadErr   error
	surrounding []domain.ChatMessage
	surroundErr error
}

func (f *messageStoreFake) SearchMessages(_ context.Context, _ []float32, q domain.MessageQuery) ([]domain.ScoredMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if q.ThreadStartersOnly {
		return f.starterRows, nil
	}
	return f.rows, nil
}

func (f *messageStoreFake) MessagesByIDs(_ context.Context, ids []int64) ([]domain.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hydrated = append(f.hydrated, ids)
	if f.byIDErr != nil {
		return nil, f.byIDErr
	}
	out := make([]domain.ChatMessage, 0, len(ids))
	for _, id := range ids {
		if m, ok := f.byID[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *messageStoreFake) ListThreadMessages(_ context.Context, channelID, rootTS string) ([]domain.ChatMessage, error) {
	if f.threadErr != nil {
		return nil, f.threadErr
	}
	return f.threads[channelID+"/"+rootTS], nil
}

func (f *messageStoreFake) ThreadRoots(_ context.Context, keys []domain.ThreadKey) ([]domain.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rootKeys = append(f.rootKeys, keys...)
	if f.rootsErr != nil {
		return nil, f.rootsErr
	}
	return f.roots, nil
}

func (f *messageStoreFake) ListSurroundingMessages(context.Context, string, string, int, int) ([]domain.ChatMessage, error) {
	if f.surroundErr != nil {
		return nil, f.surroundErr
	}
	return f.surrounding, nil
}

func (f *messageStoreFake) ListMessagesAfter(_ context.Context, afterID int64, limit int) ([]domain.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int64, 0, len(f.byID))
	for id := range f.byID {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]domain.ChatMessage, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.byID[id])
	}
	return out, nil
}

type documentStoreFake struct {
	mu sync.Mutex

	chunkRows   []domain.ScoredChunk
	summaryRows []domain.ScoredSummary
	searchErr   error
	summaryErr  error

	byID      map[int64]domain.DocumentChunk
	byIDErr   error
	docChunks map[int64][]domain.DocumentChunk
	listErr   map[int64]error
	listCalls int
}

func (f *documentStoreFake) SearchChunks(context.Context, []float32, domain.ChunkQuery) ([]domain.ScoredChunk, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.chunkRows, nil
}

func (f *documentStoreFake) SearchDocumentSummaries(context.Context, []float32, int) ([]domain.ScoredSummary, error) {
	if f.summaryErr != nil {
		return nil, f.summaryErr
	}
	return f.summaryRows, nil
}

func (f *documentStoreFake) ChunksByIDs(_ context.Context, ids []int64) ([]domain.DocumentChunk, error) {
	if f.byIDErr != nil {
		return nil, f.byIDErr
	}
	out := make([]domain.DocumentChunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := f.byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *documentStoreFake) ListDocumentChunks(_ context.Context, documentID int64) ([]domain.DocumentChunk, error) {
	f.mu.Lock()
	f.listCalls++
	f.mu.Unlock()
	if err := f.listErr[documentID]; err != nil {
		return nil, err
	}
	return f.docChunks[documentID], nil
}

func (f *documentStoreFake) ListChunksAfter(_ context.Context, afterID int64, limit int) ([]domain.DocumentChunk, error) {
	ids := make([]int64, 0, len(f.byID))
	for id := range f.byID {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]domain.DocumentChunk, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.byID[id])
	}
	return out, nil
}

type rerankerFake struct {
	scores []domain.RerankScore
	err    error
	texts  []string
	topN   int
}

func (f *rerankerFake) Rerank(_ context.Context, _ string, texts []string, topN int) ([]domain.RerankScore, error) {
	f.texts = texts
	f.topN = topN
	if f.err != nil {
		return nil, f.err
	}
	return f.scores, nil
}

type observerFake struct {
	mu         sync.Mutex
	outcomes   []string
	strategies map[string]error
	fallbacks  []string
}

func newObserverFake() *observerFake {
	return &observerFake{strategies: make(map[string]error)}
}

func (f *observerFake) ObserveSearch(outcome string, _ int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, outcome)
}

func (f *observerFake) ObserveStrategy(strategy string, _ int, err error, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.strategies[strategy] = err
}

func (f *observerFake) ObserveFallback(stage string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fallbacks = append(f.fallbacks, stage)
}

func chatMessage(id int64, text string) domain.ChatMessage {
	return domain.ChatMessage{
		ID:          id,
		ChannelID:   "C1",
		ChannelName: "eng",
		UserID:      "U1",
		Username:    "alice",
		Text:        text,
		TS:          "1700000000.00010" + string(rune('0'+id%10)),
		CreatedAt:   testNow.Add(-48 * time.Hour),
	}
}

func documentChunk(id, documentID int64, index int, content string) domain.DocumentChunk {
	return domain.DocumentChunk{
		ID:         id,
		DocumentID: documentID,
		ChunkIndex: index,
		Content:    content,
		Title:      "Runbook",
		FilePath:   "docs/runbook.md",
		CreatedAt:  testNow.Add(-48 * time.Hour),
	}
}

func resultIDs(results []domain.SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func listByStrategy(lists []domain.RankedList, strategy string) (domain.RankedList, bool) {
	for _, l := range lists {
		if l.Strategy == strategy {
			return l, true
		}
	}
	return domain.RankedList{}, false
}
