package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"github.com/kirillkom/workspace-search/internal/core/domain"
	"github.com/kirillkom/workspace-search/internal/core/ports"
)

const (
	defaultRerankWindowFactor = 3
	threadSnippetChars        = 100
)

// RerankAdapter sends a bounded candidate window to a reranking provider and maps the
// returned indices back onto the original results.
// Thread replies in the window carry a snippet of their thread's opening message, looked
// up through messages when it is set.
type RerankAdapter struct {
	reranker     ports.Reranker
	messages     ports.MessageStore
	observer     SearchObserver
	windowFactor int
}

func NewRerankAdapter(
	reranker ports.Reranker,
	messages ports.MessageStore,
	observer SearchObserver,
	windowFactor int,
) *RerankAdapter {
	if observer == nil {
		observer = noopObserver{}
	}
	if windowFactor <= 0 {
		windowFactor = defaultRerankWindowFactor
	}
	return &RerankAdapter{reranker: reranker, messages: messages, observer: observer, windowFactor: windowFactor}
}

// Rerank never fails the request: on provider error or empty input the list is returned
// unchanged.
func (a *RerankAdapter) Rerank(ctx context.Context, query string, results []domain.SearchResult, limit int) []domain.SearchResult {
	if a == nil || a.reranker == nil || len(results) == 0 {
		return results
	}
	window := limit * a.windowFactor
	if window <= 0 || window > len(results) {
		window = len(results)
	}

	head := results[:window]
	parents := a.threadParents(ctx, head)
	texts := make([]string, len(head))
	for i, result := range head {
		texts[i] = rerankText(result, parents[replyThreadKey(result)])
	}

	scores, err := a.reranker.Rerank(ctx, query, texts, window)
	if err != nil {
		slog.Warn("rerank_fallback", "candidates", window, "error", err)
		a.observer.ObserveFallback(fallbackRerank)
		return results
	}
	if len(scores) == 0 {
		return results
	}

	// Scores are mapped by index onto the head slice; content is never re-derived from the
	// provider response.
	used := make([]bool, window)
	ranked := make([]domain.SearchResult, 0, len(results))
	sorted := append([]domain.RerankScore(nil), scores...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })
	for _, s := range sorted {
		if s.Index < 0 || s.Index >= window || used[s.Index] {
			continue
		}
		used[s.Index] = true
		result := head[s.Index]
		score := s.Score
		result.Metadata.RerankScore = &score
		result.Score = score
		ranked = append(ranked, result)
	}
	for i, result := range head {
		if !used[i] {
			ranked = append(ranked, result)
		}
	}
	ranked = append(ranked, results[window:]...)
	return ranked
}

// threadParents resolves the opening message text for every thread reply in head. A failed
// lookup only drops the snippets.
func (a *RerankAdapter) threadParents(ctx context.Context, head []domain.SearchResult) map[domain.ThreadKey]string {
	if a.messages == nil {
		return nil
	}
	seen := make(map[domain.ThreadKey]struct{})
	keys := make([]domain.ThreadKey, 0)
	for _, result := range head {
		key := replyThreadKey(result)
		if key == (domain.ThreadKey{}) || result.Metadata.Thread != nil {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return nil
	}

	roots, err := a.messages.ThreadRoots(ctx, keys)
	if err != nil {
		slog.Warn("rerank_thread_lookup_failed", "threads", len(keys), "error", err)
		return nil
	}
	out := make(map[domain.ThreadKey]string, len(roots))
	for _, root := range roots {
		out[domain.ThreadKey{ChannelID: root.ChannelID, RootTS: root.TS}] = root.Text
	}
	return out
}

// replyThreadKey is the zero key for documents and thread starters.
func replyThreadKey(result domain.SearchResult) domain.ThreadKey {
	m := result.Metadata
	if result.Source != domain.SourceSlack || m.IsThreadStarter() {
		return domain.ThreadKey{}
	}
	return domain.ThreadKey{ChannelID: m.ChannelID, RootTS: m.ThreadRoot()}
}

// rerankText renders a candidate the way the cross-encoder was tuned on. parentText is the
// opening message of the thread a reply belongs to, if known.
func rerankText(result domain.SearchResult, parentText string) string {
	m := result.Metadata
	parts := make([]string, 0, 4)
	if result.Source == domain.SourceDocument {
		if m.Title != "" {
			parts = append(parts, "Document: "+m.Title)
		}
		parts = append(parts, result.Content)
		return strings.Join(parts, " | ")
	}

	if result.Content != "" {
		parts = append(parts, "Message: "+result.Content)
	}
	if m.Username != "" {
		parts = append(parts, "From: "+m.Username)
	}
	if m.ChannelName != "" {
		parts = append(parts, "Channel: #"+m.ChannelName)
	}
	if m.Thread != nil && len(m.Thread.Messages) > 0 {
		parentText = m.Thread.Messages[0].Text
	}
	if parentText != "" {
		parts = append(parts, "Thread: "+truncateRunes(parentText, threadSnippetChars))
	}
	return strings.Join(parts, " | ")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// LexicalReranker is the in-process fallback used when no cross-encoder endpoint is
// configured. It blends the incoming position with query token overlap.
type LexicalReranker struct{}

func NewLexicalReranker() *LexicalReranker {
	return &LexicalReranker{}
}

func (LexicalReranker) Rerank(_ context.Context, query string, texts []string, topN int) ([]domain.RerankScore, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if topN <= 0 || topN > len(texts) {
		topN = len(texts)
	}
	queryTokens := toTokenSet(query)
	if len(queryTokens) == 0 {
		return nil, fmt.Errorf("lexical rerank: query has no tokens")
	}

	n := float64(len(texts))
	out := make([]domain.RerankScore, len(texts))
	for i, text := range texts {
		position := 1 - float64(i)/n
		overlap := tokenOverlap(queryTokens, toTokenSet(text))
		out[i] = domain.RerankScore{Index: i, Score: 0.60*position + 0.40*overlap}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out[:topN], nil
}

func tokenOverlap(query, chunk map[string]struct{}) float64 {
	if len(query) == 0 || len(chunk) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := chunk[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

func toTokenSet(s string) map[string]struct{} {
	tokens := splitAlphaNumLower(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
