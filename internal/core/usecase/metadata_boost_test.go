package usecase

import (
	"math"
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/kirillkom/workspace-search/internal/core/domain"
)

const day = 24 * time.Hour

func TestMetadataBoosterRecencyTiers(t *testing.T) {
	b := NewMetadataBooster(DefaultBoostConfig(), fixedClock)
	cases := []struct {
		name string
		at   time.Time
		want float64
	}{
		{name: "fresh", at: testNow.Add(-3 * day), want: 1.2},
		{name: "month", at: testNow.Add(-20 * day), want: 1.1},
		{name: "quarter", at: testNow.Add(-60 * day), want: 1.0},
		{name: "stale", at: testNow.Add(-200 * day), want: 0.9},
		{name: "missing", at: time.Time{}, want: 1.0},
		{name: "future", at: testNow.Add(2 * day), want: 1.2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := b.recencyFactor(tc.at, testNow); got != tc.want {
				t.Fatalf("recencyFactor = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMetadataBoosterSourcePreference(t *testing.T) {
	b := NewMetadataBooster(DefaultBoostConfig(), fixedClock)
	results := []domain.SearchResult{
		{ID: "slack_1", Score: 1.0, Source: domain.SourceSlack},
		{ID: "doc_chunk_1", Score: 1.0, Source: domain.SourceDocument},
	}

	cls := ClassifyQuery("how do I configure the deploy pipeline")
	boosted := b.Apply(results, cls, boostOptions{source: true})
	if boosted[0].ID != "doc_chunk_1" {
		t.Fatalf("expected document first for implementation query, got %v", resultIDs(boosted))
	}
	if boosted[0].Score != 1.2 || boosted[1].Score != 0.9 {
		t.Fatalf("unexpected boosted scores: %v / %v", boosted[0].Score, boosted[1].Score)
	}

	cls = ClassifyQuery("what was discussed in the standup meeting")
	boosted = b.Apply(results, cls, boostOptions{source: true})
	if boosted[0].ID != "slack_1" {
		t.Fatalf("expected chat first for discussion query, got %v", resultIDs(boosted))
	}
}

func TestMetadataBoosterQualitySignals(t *testing.T) {
	b := NewMetadataBooster(DefaultBoostConfig(), fixedClock)
	long := strings.Repeat("a", 1200) + "\n```go\nfmt.Println()\n```"
	table := "| a | b |\n| --- | --- |\n| 1 | 2 |"

	cases := []struct {
		name   string
		result domain.SearchResult
		want   float64
	}{
		{
			name:   "long code block",
			result: domain.SearchResult{Content: long, Source: domain.SourceDocument},
			want:   1.1 * 1.1 * 1.05,
		},
		{
			name:   "table",
			result: domain.SearchResult{Content: table, Source: domain.SourceDocument},
			want:   1.05,
		},
		{
			name:   "thread starter",
			result: domain.SearchResult{Content: "deploy is broken", Source: domain.SourceSlack, Metadata: domain.Metadata{TS: "1.0"}},
			want:   1.1,
		},
		{
			name: "thread reply",
			result: domain.SearchResult{Content: "deploy is broken", Source: domain.SourceSlack, Metadata: domain.Metadata{
				TS:       "2.0",
				ThreadTS: "1.0",
			}},
			want: 1.0,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := b.qualityFactor(tc.result); math.Abs(got-tc.want) > 1e-12 {
				t.Fatalf("qualityFactor = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMetadataBoosterRecordsFactorsAndResorts(t *testing.T) {
	b := NewMetadataBooster(DefaultBoostConfig(), fixedClock)
	results := []domain.SearchResult{
		{ID: "slack_old", Score: 0.010, Source: domain.SourceSlack, Metadata: domain.Metadata{CreatedAt: testNow.Add(-365 * day)}},
		{ID: "slack_new", Score: 0.009, Source: domain.SourceSlack, Metadata: domain.Metadata{CreatedAt: testNow.Add(-1 * day)}},
	}

	boosted := b.Apply(results, domain.QueryClassification{}, boostOptions{recency: true})
	if boosted[0].ID != "slack_new" {
		t.Fatalf("expected recent message to overtake, got %v", resultIDs(boosted))
	}
	if boosted[0].Metadata.Boosts == nil || boosted[0].Metadata.Boosts.Recency != 1.2 {
		t.Fatalf("expected recorded recency factor, got %+v", boosted[0].Metadata.Boosts)
	}
	if boosted[0].Metadata.Boosts.Quality != 1 || boosted[0].Metadata.Boosts.SourcePreference != 1 {
		t.Fatalf("expected disabled boosts to stay neutral, got %+v", boosted[0].Metadata.Boosts)
	}
	if results[0].Metadata.Boosts != nil {
		t.Fatalf("input slice must not be modified")
	}
}

func TestMetadataBoosterRecencyMonotonic(t *testing.T) {
	b := NewMetadataBooster(DefaultBoostConfig(), fixedClock)
	rapid.Check(t, func(rt *rapid.T) {
		younger := rapid.IntRange(-30, 2000).Draw(rt, "younger_days")
		older := rapid.IntRange(younger, 2000).Draw(rt, "older_days")
		fy := b.recencyFactor(testNow.Add(-time.Duration(younger)*day), testNow)
		fo := b.recencyFactor(testNow.Add(-time.Duration(older)*day), testNow)
		if fo > fy {
			rt.Fatalf("older content boosted more: %d days=%v, %d days=%v", younger, fy, older, fo)
		}
	})
}
