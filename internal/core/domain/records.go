package domain

import (
	"strconv"
	"time"
)

type ChatMessage struct {
	ID          int64     `json:"id"`
	ChannelID   string    `json:"channel_id"`
	ChannelName string    `json:"channel_name,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
	Username    string    `json:"username,omitempty"`
	Text        string    `json:"text"`
	TS          string    `json:"ts"`
	ThreadTS    string    `json:"thread_ts,omitempty"`
	ParentTS    string    `json:"parent_ts,omitempty"`
	Permalink   string    `json:"permalink,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ThreadKey identifies a thread by its channel and root message timestamp.
type ThreadKey struct {
	ChannelID string
	RootTS    string
}

type ScoredMessage struct {
	Message  ChatMessage
	Distance float64
}

type DocumentChunk struct {
	ID         int64     `json:"id"`
	DocumentID int64     `json:"document_id"`
	ChunkIndex int       `json:"chunk_index"`
	Content    string    `json:"content"`
	Title      string    `json:"title"`
	FilePath   string    `json:"file_path"`
	CreatedAt  time.Time `json:"created_at"`
}

type ScoredChunk struct {
	Chunk    DocumentChunk
	Distance float64
}

type DocumentSummary struct {
	DocumentID int64     `json:"document_id"`
	Title      string    `json:"title"`
	FilePath   string    `json:"file_path"`
	Summary    string    `json:"summary"`
	CreatedAt  time.Time `json:"created_at"`
}

type ScoredSummary struct {
	Summary  DocumentSummary
	Distance float64
}

// MessageQuery narrows a nearest-neighbour search over chat messages.
type MessageQuery struct {
	Limit              int
	MinLength          int
	ExcludeUserID      string
	ThreadStartersOnly bool
}

type ChunkQuery struct {
	Limit     int
	MinLength int
}

type KeywordHit struct {
	ID    string
	Score float64
}

// KeywordDocument is the unit indexed by the keyword provider.
type KeywordDocument struct {
	ID      string
	Source  Source
	Text    string
	Author  string
	Channel string
	Title   string
	IsReply bool
}

type RerankScore struct {
	Index int
	Score float64
}

func MessageResultID(id int64) string {
	return PrefixSlackMessage + strconv.FormatInt(id, 10)
}

func ChunkResultID(id int64) string {
	return PrefixDocumentChunk + strconv.FormatInt(id, 10)
}

func SummaryResultID(documentID int64) string {
	return PrefixDocumentSummary + strconv.FormatInt(documentID, 10)
}

func DocumentResultID(documentID int64) string {
	return PrefixDocument + strconv.FormatInt(documentID, 10)
}

// ParseResultID splits a prefixed result id into its kind prefix and numeric row id.
func ParseResultID(id string) (string, int64, bool) {
	for _, prefix := range []string{PrefixSlackMessage, PrefixDocumentChunk, PrefixDocumentSummary, PrefixDocument} {
		if len(id) <= len(prefix) || id[:len(prefix)] != prefix {
			continue
		}
		n, err := strconv.ParseInt(id[len(prefix):], 10, 64)
		if err != nil {
			return "", 0, false
		}
		return prefix, n, true
	}
	return "", 0, false
}

func (m ChatMessage) ToResult(similarity float64) SearchResult {
	return SearchResult{
		ID:      MessageResultID(m.ID),
		Content: m.Text,
		Score:   similarity,
		Source:  SourceSlack,
		Metadata: Metadata{
			MessageID:   m.ID,
			ChannelID:   m.ChannelID,
			ChannelName: m.ChannelName,
			UserID:      m.UserID,
			Username:    m.Username,
			TS:          m.TS,
			ThreadTS:    m.ThreadTS,
			ParentTS:    m.ParentTS,
			Permalink:   m.Permalink,
			CreatedAt:   m.CreatedAt,
			Similarity:  similarity,
		},
	}
}

func (c DocumentChunk) ToResult(similarity float64) SearchResult {
	return SearchResult{
		ID:      ChunkResultID(c.ID),
		Content: c.Content,
		Score:   similarity,
		Source:  SourceDocument,
		Metadata: Metadata{
			DocumentID: c.DocumentID,
			ChunkID:    c.ID,
			ChunkIndex: c.ChunkIndex,
			Title:      c.Title,
			FilePath:   c.FilePath,
			CreatedAt:  c.CreatedAt,
			Similarity: similarity,
		},
	}
}

func (s DocumentSummary) ToResult(similarity float64) SearchResult {
	return SearchResult{
		ID:      SummaryResultID(s.DocumentID),
		Content: s.Summary,
		Score:   similarity,
		Source:  SourceDocument,
		Metadata: Metadata{
			DocumentID: s.DocumentID,
			Title:      s.Title,
			FilePath:   s.FilePath,
			IsSummary:  true,
			CreatedAt:  s.CreatedAt,
			Similarity: similarity,
		},
	}
}

type IndexEventKind string

const (
	IndexEventSlackMessage  IndexEventKind = "slack_message"
	IndexEventDocumentChunk IndexEventKind = "document_chunk"
)

// IndexEvent announces rows that became searchable and must enter the keyword index.
type IndexEvent struct {
	Kind IndexEventKind `json:"kind"`
	IDs  []int64        `json:"ids"`
}
