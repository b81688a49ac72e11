package domain

import (
	"strings"
	"time"
)

type Source string

const (
	SourceSlack    Source = "slack"
	SourceDocument Source = "document"
)

func ParseSource(raw string) (Source, bool) {
	switch Source(strings.ToLower(strings.TrimSpace(raw))) {
	case SourceSlack:
		return SourceSlack, true
	case SourceDocument:
		return SourceDocument, true
	default:
		return "", false
	}
}

// Result id prefixes. The prefix encodes both the source and the row kind.
const (
	PrefixSlackMessage    = "slack_"
	PrefixDocumentChunk   = "doc_chunk_"
	PrefixDocumentSummary = "doc_summary_"
	PrefixDocument        = "doc_"
)

// Retrieval strategy names; they double as fusion weight keys.
const (
	StrategySemantic        = "semantic"
	StrategyKeyword         = "keyword"
	StrategyDocumentSummary = "document_summary"
	StrategyConversations   = "conversations"
	StrategyEnhancedPrefix  = "enhanced_"
)

type SearchResult struct {
	ID       string   `json:"id"`
	Content  string   `json:"content"`
	Score    float64  `json:"score"`
	Source   Source   `json:"source"`
	Metadata Metadata `json:"metadata"`
}

type Metadata struct {
	// Chat fields.
	MessageID   int64  `json:"message_id,omitempty"`
	ChannelID   string `json:"channel_id,omitempty"`
	ChannelName string `json:"channel_name,omitempty"`
	UserID      string `json:"user_id,omitempty"`
	Username    string `json:"username,omitempty"`
	TS          string `json:"ts,omitempty"`
	ThreadTS    string `json:"thread_ts,omitempty"`
	ParentTS    string `json:"parent_ts,omitempty"`
	Permalink   string `json:"permalink,omitempty"`

	// Document fields.
	DocumentID int64  `json:"document_id,omitempty"`
	ChunkID    int64  `json:"chunk_id,omitempty"`
	ChunkIndex int    `json:"chunk_index,omitempty"`
	Title      string `json:"title,omitempty"`
	FilePath   string `json:"file_path,omitempty"`
	IsSummary  bool   `json:"is_summary,omitempty"`

	CreatedAt  time.Time `json:"created_at,omitempty"`
	Similarity float64   `json:"similarity,omitempty"`

	Strategies  []string       `json:"strategies,omitempty"`
	Boosts      *BoostFactors  `json:"boosts,omitempty"`
	RerankScore *float64       `json:"rerank_score,omitempty"`
	Chunks      []ChunkView    `json:"chunks,omitempty"`
	Thread      *ThreadContext `json:"thread,omitempty"`
	Surrounding []ChatMessage  `json:"surrounding,omitempty"`
}

// ThreadRoot resolves the thread a chat result belongs to.
func (m Metadata) ThreadRoot() string {
	switch {
	case m.ThreadTS != "":
		return m.ThreadTS
	case m.ParentTS != "":
		return m.ParentTS
	default:
		return m.TS
	}
}

// IsThreadStarter reports whether the message opens its own thread (or is standalone).
func (m Metadata) IsThreadStarter() bool {
	if m.ParentTS != "" && m.ParentTS != m.TS {
		return false
	}
	return m.ThreadTS == "" || m.ThreadTS == m.TS
}

type BoostFactors struct {
	Recency          float64 `json:"recency"`
	Quality          float64 `json:"quality"`
	SourcePreference float64 `json:"source_preference"`
}

type ChunkView struct {
	ChunkID       int64  `json:"chunk_id"`
	ChunkIndex    int    `json:"chunk_index"`
	Content       string `json:"content"`
	IsHighlighted bool   `json:"is_highlighted"`
}

type ThreadContext struct {
	RootTS   string        `json:"root_ts"`
	Messages []ChatMessage `json:"messages"`
}

// RankedList is the ordered output of one retrieval strategy.
type RankedList struct {
	Strategy string
	Results  []SearchResult
}

type QueryClassification struct {
	IsQuestion               bool `json:"is_question"`
	IsImplementationQuestion bool `json:"is_implementation_question"`
	IsDiscussionQuestion     bool `json:"is_discussion_question"`
	IsTemporalQuery          bool `json:"is_temporal_query"`
	IsBroadTopic             bool `json:"is_broad_topic"`
	IsCodeRelated            bool `json:"is_code_related"`
	NeedsConversationContext bool `json:"needs_conversation_context"`
	ContainsTechnicalTerms   bool `json:"contains_technical_terms"`
}

// DocumentGroup collects document-source results sharing one parent document.
type DocumentGroup struct {
	Key         string
	DocumentID  int64
	Members     []SearchResult
	Highlighted map[int64]struct{}
	Primary     SearchResult
	FirstIndex  int
}

type SearchOptions struct {
	Sources                  []Source `json:"sources"`
	Limit                    int      `json:"limit"`
	IncludeDocumentSummaries bool     `json:"include_document_summaries"`
	Rerank                   bool     `json:"rerank"`
	UseAdvancedRetrieval     bool     `json:"use_advanced_retrieval"`
	EnableContextExpansion   bool     `json:"enable_context_expansion"`
	EnableRecencyBoost       bool     `json:"enable_recency_boost"`
}

const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 100
)

func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		Sources:                  []Source{SourceSlack, SourceDocument},
		Limit:                    DefaultSearchLimit,
		IncludeDocumentSummaries: true,
		Rerank:                   false,
		UseAdvancedRetrieval:     true,
		EnableContextExpansion:   true,
		EnableRecencyBoost:       true,
	}
}

// Normalize fills defaults for the limit and the source set and removes duplicate sources.
func (o SearchOptions) Normalize() SearchOptions {
	out := o
	if out.Limit <= 0 {
		out.Limit = DefaultSearchLimit
	}
	if out.Limit > MaxSearchLimit {
		out.Limit = MaxSearchLimit
	}
	seen := make(map[Source]struct{}, 2)
	sources := make([]Source, 0, 2)
	for _, s := range out.Sources {
		if s != SourceSlack && s != SourceDocument {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		sources = append(sources, s)
	}
	if len(sources) == 0 {
		sources = []Source{SourceSlack, SourceDocument}
	}
	out.Sources = sources
	return out
}

func (o SearchOptions) Includes(source Source) bool {
	for _, s := range o.Sources {
		if s == source {
			return true
		}
	}
	return false
}
