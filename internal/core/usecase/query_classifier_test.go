package usecase

import (
	"testing"

	"github.com/kirillkom/workspace-search/internal/core/domain"
)

func TestClassifyQueryImplementationQuestion(t *testing.T) {
	cls := ClassifyQuery("How do I implement OAuth in our API?")
	if !cls.IsQuestion {
		t.Fatalf("expected question flag")
	}
	if !cls.IsImplementationQuestion {
		t.Fatalf("expected implementation flag")
	}
	if !cls.IsCodeRelated {
		t.Fatalf("expected code flag for oauth/api")
	}
	if !cls.ContainsTechnicalTerms {
		t.Fatalf("expected technical terms flag")
	}
	if cls.IsTemporalQuery || cls.IsDiscussionQuestion {
		t.Fatalf("unexpected temporal/discussion flags: %+v", cls)
	}
	if cls.IsBroadTopic {
		t.Fatalf("did not expect broad topic for a specific question")
	}
}

func TestClassifyQueryDiscussionAndTemporal(t *testing.T) {
	cls := ClassifyQuery("what did we discuss about pricing yesterday")
	if !cls.IsQuestion {
		t.Fatalf("expected question flag from leading interrogative")
	}
	if !cls.IsDiscussionQuestion {
		t.Fatalf("expected discussion flag")
	}
	if !cls.IsTemporalQuery {
		t.Fatalf("expected temporal flag")
	}
	if !cls.NeedsConversationContext {
		t.Fatalf("expected conversation context flag")
	}
}

func TestClassifyQueryShortTopicIsBroad(t *testing.T) {
	cls := ClassifyQuery("kubernetes")
	if !cls.IsBroadTopic {
		t.Fatalf("expected single-word topic to be broad")
	}
	if cls.IsQuestion {
		t.Fatalf("did not expect question flag")
	}
	if !cls.ContainsTechnicalTerms {
		t.Fatalf("expected technical terms flag")
	}

	if !ClassifyQuery("give me an overview of the billing service").IsBroadTopic {
		t.Fatalf("expected overview query to be broad")
	}
}

func TestClassifyQueryCodeIdentifiers(t *testing.T) {
	cls := ClassifyQuery("getUserById() returns nil")
	if !cls.IsCodeRelated {
		t.Fatalf("expected call syntax to mark the query as code related")
	}
	if !cls.ContainsTechnicalTerms {
		t.Fatalf("expected camelCase identifier to count as a technical term")
	}

	if !ClassifyQuery("where is retry_policy set").ContainsTechnicalTerms {
		t.Fatalf("expected snake_case identifier to count as a technical term")
	}
}

func TestClassifyQueryEmpty(t *testing.T) {
	if got := ClassifyQuery("   "); got != (domain.QueryClassification{}) {
		t.Fatalf("expected zero classification for blank query, got %+v", got)
	}
}

func TestClassifyQueryPlainStatement(t *testing.T) {
	cls := ClassifyQuery("the quarterly planning notes for the design team")
	if cls.IsQuestion || cls.IsTemporalQuery || cls.IsDiscussionQuestion || cls.IsBroadTopic {
		t.Fatalf("unexpected flags for plain statement: %+v", cls)
	}
}
