package usecase

import (
	"regexp"
	"strings"

	"github.com/kirillkom/workspace-search/internal/core/domain"
)

var (
	questionStartPattern = regexp.MustCompile(`^(what|how|why|when|where|who|whom|whose|which|can|could|should|would|will|is|are|was|were|does|do|did|has|have|any(one|body)?)\b`)

	implementationPattern = regexp.MustCompile(`\b(how (do|can|should|would) (i|we|you)|how to|implement(ed|ing|ation)?|set ?up|configur(e|ed|ing|ation)|install(ing|ation)?|integrat(e|ed|ing|ion)|build(ing)?|creat(e|ing)|deploy(ing|ment)?|example|tutorial|guide|steps?|walkthrough|usage)\b`)

	discussionPattern = regexp.MustCompile(`\b(discuss(ed|ing|ion)?|talk(ed|ing)? about|conversation|decid(e|ed)|decision|agree(d)?|opinion|thoughts?|meeting|mention(ed)?|said|say|sync|debate|feedback|who (said|asked|mentioned))\b`)

	temporalPattern = regexp.MustCompile(`\b(yesterday|today|tonight|last (week|month|year|sprint|quarter)|this (week|month|sprint)|recent(ly)?|now|current(ly)?|ago|latest|lately)\b`)

	broadTopicPattern = regexp.MustCompile(`\b(overview|everything|anything|all about|in general|general|summary|summari[sz]e|explain|introduction|intro to|what is|what are|tell me about)\b`)

	codePattern = regexp.MustCompile("(`|\\b(code|function|method|class|api|endpoint|bug|error|exception|stack ?trace|sdk|library|script|sql|node(js)?|python|javascript|typescript|golang|java|rust|react|docker|kubernetes|k8s|oauth|regex|repo(sitory)?|compile|build|deploy|lambda|schema|migration|npm|pip|json|yaml|http|graphql|cli)\\b|\\w+\\(\\)|\\w+\\.\\w+\\()")

	conversationPattern = regexp.MustCompile(`\b(thread|conversation|discuss(ed|ion)?|chat|channel|repl(y|ied|ies)|said|mention(ed)?|context|follow[- ]?up|who (said|asked|mentioned)|slack)\b`)

	technicalTermPattern = regexp.MustCompile(`\b(api|oauth|jwt|sso|saml|sql|nosql|http|https|tls|ssl|dns|tcp|database|db|server|cache|redis|postgres|token|auth|authentication|authorization|ci|cd|cli|sdk|webhook|microservice|kubernetes|docker|latency|throughput|index|vector|embedding|queue|kafka|nats|grpc|json|yaml|config)\b|\b[a-z]+_[a-z_]+\b`)
)

// ClassifyQuery derives retrieval signals from the raw query. It never fails: unmatched
// patterns leave their flag false.
func ClassifyQuery(query string) domain.QueryClassification {
	raw := strings.TrimSpace(query)
	q := strings.ToLower(raw)
	if q == "" {
		return domain.QueryClassification{}
	}

	isQuestion := strings.HasSuffix(q, "?") || questionStartPattern.MatchString(q)
	wordCount := len(strings.Fields(q))

	return domain.QueryClassification{
		IsQuestion:               isQuestion,
		IsImplementationQuestion: implementationPattern.MatchString(q),
		IsDiscussionQuestion:     discussionPattern.MatchString(q),
		IsTemporalQuery:          temporalPattern.MatchString(q),
		IsBroadTopic:             broadTopicPattern.MatchString(q) || (wordCount <= 2 && !isQuestion),
		IsCodeRelated:            codePattern.MatchString(q),
		NeedsConversationContext: conversationPattern.MatchString(q),
		// camelCase identifiers only survive in the raw text.
		ContainsTechnicalTerms: technicalTermPattern.MatchString(q) || camelCasePattern.MatchString(raw),
	}
}

var camelCasePattern = regexp.MustCompile(`\b[a-z]+[A-Z][a-zA-Z0-9]*\b`)
