package usecase

import (
	"sort"
	"strings"

	"github.com/kirillkom/workspace-search/internal/core/domain"
)

const defaultRRFK = 60

// FusionWeights holds per-strategy RRF weights. Weights are relative and need not sum to 1.
type FusionWeights struct {
	Semantic        float64 `yaml:"semantic"`
	Keyword         float64 `yaml:"keyword"`
	DocumentSummary float64 `yaml:"document_summary"`
	Conversations   float64 `yaml:"conversations"`
	Enhanced        float64 `yaml:"enhanced"`
}

func DefaultFusionWeights() FusionWeights {
	return FusionWeights{
		Semantic:        0.4,
		Keyword:         0.3,
		DocumentSummary: 0.15,
		Conversations:   0.1,
		Enhanced:        0.05,
	}
}

func (w FusionWeights) For(strategy string) float64 {
	switch {
	case strategy == domain.StrategySemantic:
		return w.Semantic
	case strategy == domain.StrategyKeyword:
		return w.Keyword
	case strategy == domain.StrategyDocumentSummary:
		return w.DocumentSummary
	case strategy == domain.StrategyConversations:
		return w.Conversations
	case strings.HasPrefix(strategy, domain.StrategyEnhancedPrefix):
		return w.Enhanced
	default:
		return 0
	}
}

type fusedCandidate struct {
	result domain.SearchResult
	score  float64
	order  int
}

// fuseRRF merges ranked lists with weighted Reciprocal Rank Fusion: an id at zero-based
// rank r in a list of weight w gains w/(k+r+1). Lists must be passed in the fixed strategy
// order; ties keep first-seen order across that walk.
func fuseRRF(lists []domain.RankedList, weights FusionWeights, rrfK int) []domain.SearchResult {
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}

	capacity := 0
	for _, list := range lists {
		capacity += len(list.Results)
	}
	acc := make(map[string]*fusedCandidate, capacity)

	for _, list := range lists {
		w := weights.For(list.Strategy)
		for rank, result := range list.Results {
			candidate, ok := acc[result.ID]
			if !ok {
				candidate = &fusedCandidate{result: result, order: len(acc)}
				candidate.result.Metadata.Strategies = nil
				acc[result.ID] = candidate
			} else {
				candidate.result = preferRicherResult(candidate.result, result)
			}
			candidate.score += w / float64(rrfK+rank+1)
			candidate.result.Metadata.Strategies = appendStrategy(candidate.result.Metadata.Strategies, list.Strategy)
		}
	}

	ordered := make([]*fusedCandidate, 0, len(acc))
	for _, c := range acc {
		ordered = append(ordered, c)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].score != ordered[j].score {
			return ordered[i].score > ordered[j].score
		}
		return ordered[i].order < ordered[j].order
	})

	out := make([]domain.SearchResult, 0, len(ordered))
	for _, c := range ordered {
		result := c.result
		result.Score = c.score
		out = append(out, result)
	}
	return out
}

func trimResults(results []domain.SearchResult, limit int) []domain.SearchResult {
	if limit <= 0 || len(results) <= limit {
		return results
	}
	return results[:limit]
}

// preferRicherResult fills metadata gaps from a later sighting of the same id. Content and
// source of the first sighting are kept.
func preferRicherResult(current, candidate domain.SearchResult) domain.SearchResult {
	if current.Content == "" && candidate.Content != "" {
		current.Content = candidate.Content
	}
	cm, nm := &current.Metadata, candidate.Metadata
	if cm.CreatedAt.IsZero() && !nm.CreatedAt.IsZero() {
		cm.CreatedAt = nm.CreatedAt
	}
	if cm.Similarity < nm.Similarity {
		cm.Similarity = nm.Similarity
	}
	if cm.Title == "" {
		cm.Title = nm.Title
	}
	if cm.FilePath == "" {
		cm.FilePath = nm.FilePath
	}
	if cm.ChannelName == "" {
		cm.ChannelName = nm.ChannelName
	}
	if cm.Username == "" {
		cm.Username = nm.Username
	}
	if cm.Permalink == "" {
		cm.Permalink = nm.Permalink
	}
	return current
}

func appendStrategy(strategies []string, strategy string) []string {
	for _, s := range strategies {
		if s == strategy {
			return strategies
		}
	}
	return append(strategies, strategy)
}
