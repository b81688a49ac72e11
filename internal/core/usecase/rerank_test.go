package usecase

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/kirillkom/workspace-search/internal/core/domain"
)

func rerankCandidates() []domain.SearchResult {
	return []domain.SearchResult{
		{ID: "slack_1", Content: "first", Score: 0.04, Source: domain.SourceSlack},
		{ID: "slack_2", Content: "second", Score: 0.03, Source: domain.SourceSlack},
		{ID: "doc_chunk_3", Content: "third", Score: 0.02, Source: domain.SourceDocument},
		{ID: "slack_4", Content: "fourth", Score: 0.01, Source: domain.SourceSlack},
	}
}

func TestRerankAdapterMapsIndicesBack(t *testing.T) {
	reranker := &rerankerFake{scores: []domain.RerankScore{
		{Index: 0, Score: 0.5},
		{Index: 2, Score: 0.9},
	}}
	adapter := NewRerankAdapter(reranker, nil, nil, 3)

	out := adapter.Rerank(context.Background(), "q", rerankCandidates(), 1)
	want := []string{"doc_chunk_3", "slack_1", "slack_2", "slack_4"}
	if got := resultIDs(out); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected order: got=%v want=%v", got, want)
	}
	if len(reranker.texts) != 3 || reranker.topN != 3 {
		t.Fatalf("expected window of 3 candidates, got texts=%d topN=%d", len(reranker.texts), reranker.topN)
	}
	if out[0].Content != "third" {
		t.Fatalf("content must come from the original result, got %q", out[0].Content)
	}
	if out[0].Metadata.RerankScore == nil || *out[0].Metadata.RerankScore != 0.9 {
		t.Fatalf("expected rerank score recorded, got %v", out[0].Metadata.RerankScore)
	}
	if out[2].Metadata.RerankScore != nil {
		t.Fatalf("unscored candidate must not carry a rerank score")
	}
}

func TestRerankAdapterDropsInvalidIndices(t *testing.T) {
	reranker := &rerankerFake{scores: []domain.RerankScore{
		{Index: 7, Score: 0.99},
		{Index: -1, Score: 0.98},
		{Index: 1, Score: 0.9},
		{Index: 1, Score: 0.8},
	}}
	adapter := NewRerankAdapter(reranker, nil, nil, 3)

	out := adapter.Rerank(context.Background(), "q", rerankCandidates(), 10)
	if len(out) != 4 {
		t.Fatalf("expected no result loss or duplication, got %v", resultIDs(out))
	}
	if out[0].ID != "slack_2" {
		t.Fatalf("expected slack_2 first, got %v", resultIDs(out))
	}
}

func TestRerankAdapterFallsBackOnError(t *testing.T) {
	observer := newObserverFake()
	adapter := NewRerankAdapter(&rerankerFake{err: errors.New("timeout")}, nil, observer, 3)
	in := rerankCandidates()

	out := adapter.Rerank(context.Background(), "q", in, 2)
	if !reflect.DeepEqual(out, in) {
		t.Fatalf("expected input unchanged on reranker failure")
	}
	if len(observer.fallbacks) != 1 || observer.fallbacks[0] != fallbackRerank {
		t.Fatalf("expected rerank fallback to be observed, got %v", observer.fallbacks)
	}
}

func TestRerankAdapterEmptyInput(t *testing.T) {
	reranker := &rerankerFake{}
	adapter := NewRerankAdapter(reranker, nil, nil, 3)
	if out := adapter.Rerank(context.Background(), "q", nil, 5); len(out) != 0 {
		t.Fatalf("expected empty output")
	}
	if reranker.texts != nil {
		t.Fatalf("reranker must not be called for empty input")
	}
}

func TestRerankTextFormat(t *testing.T) {
	chat := domain.SearchResult{
		Content: "deploy is stuck",
		Source:  domain.SourceSlack,
		Metadata: domain.Metadata{
			Username:    "alice",
			ChannelName: "ops",
			Thread: &domain.ThreadContext{Messages: []domain.ChatMessage{
				{Text: "release 2.3 planning"},
			}},
		},
	}
	if got, want := rerankText(chat, ""), "Message: deploy is stuck | From: alice | Channel: #ops | Thread: release 2.3 planning"; got != want {
		t.Fatalf("unexpected chat text:\n got=%q\nwant=%q", got, want)
	}

	doc := domain.SearchResult{Content: "step one", Source: domain.SourceDocument, Metadata: domain.Metadata{Title: "Runbook"}}
	if got, want := rerankText(doc, "ignored"), "Document: Runbook | step one"; got != want {
		t.Fatalf("unexpected document text: got=%q want=%q", got, want)
	}
}

func TestRerankTextTruncatesParentSnippet(t *testing.T) {
	reply := domain.SearchResult{Content: "fixed it", Source: domain.SourceSlack, Metadata: domain.Metadata{Username: "bob"}}
	parent := strings.Repeat("a", 150)
	want := "Message: fixed it | From: bob | Thread: " + strings.Repeat("a", threadSnippetChars)
	if got := rerankText(reply, parent); got != want {
		t.Fatalf("unexpected reply text:\n got=%q\nwant=%q", got, want)
	}
}

func TestRerankAdapterSendsThreadParentForReplies(t *testing.T) {
	root := chatMessage(1, "why is the staging deploy red again?")
	root.ThreadTS = root.TS
	messages := &messageStoreFake{roots: []domain.ChatMessage{root}}

	reply := chatMessage(2, "the deploy pipeline was fixed by reverting the config")
	reply.ThreadTS = root.TS
	starter := chatMessage(3, "unrelated standalone announcement here")
	candidates := []domain.SearchResult{reply.ToResult(0.03), starter.ToResult(0.02)}

	reranker := &rerankerFake{}
	adapter := NewRerankAdapter(reranker, messages, nil, 3)
	adapter.Rerank(context.Background(), "deploy", candidates, 2)

	if len(messages.rootKeys) != 1 || messages.rootKeys[0] != (domain.ThreadKey{ChannelID: "C1", RootTS: root.TS}) {
		t.Fatalf("expected one thread lookup for the reply, got %v", messages.rootKeys)
	}
	if !strings.HasSuffix(reranker.texts[0], "| Thread: "+root.Text) {
		t.Fatalf("expected thread snippet on reply text, got %q", reranker.texts[0])
	}
	if strings.Contains(reranker.texts[1], "Thread:") {
		t.Fatalf("thread starter must not carry a snippet, got %q", reranker.texts[1])
	}
}

func TestRerankAdapterThreadLookupFailureKeepsRanking(t *testing.T) {
	reply := chatMessage(2, "the deploy pipeline was fixed by reverting the config")
	reply.ThreadTS = "1699999999.000100"
	messages := &messageStoreFake{rootsErr: errors.New("connection reset")}
	reranker := &rerankerFake{scores: []domain.RerankScore{{Index: 0, Score: 0.7}}}

	out := NewRerankAdapter(reranker, messages, nil, 3).Rerank(context.Background(), "deploy", []domain.SearchResult{reply.ToResult(0.03)}, 1)
	if len(out) != 1 || out[0].Metadata.RerankScore == nil {
		t.Fatalf("expected reranked result despite lookup failure, got %+v", out)
	}
	if strings.Contains(reranker.texts[0], "Thread:") {
		t.Fatalf("expected no snippet after failed lookup, got %q", reranker.texts[0])
	}
}

func TestLexicalRerankerPrefersOverlap(t *testing.T) {
	texts := []string{
		"weekly lunch menu",
		"postgres vacuum settings for the billing database",
		"random chatter",
	}
	scores, err := NewLexicalReranker().Rerank(context.Background(), "postgres vacuum billing", texts, 2)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if len(scores) != 2 {
		t.Fatalf("expected topN results, got %d", len(scores))
	}
	if scores[0].Index != 1 {
		t.Fatalf("expected overlapping text first, got index %d", scores[0].Index)
	}
}

func TestLexicalRerankerRejectsEmptyQuery(t *testing.T) {
	if _, err := NewLexicalReranker().Rerank(context.Background(), "  ", []string{"a"}, 1); err == nil {
		t.Fatalf("expected error for token-less query")
	}
}
