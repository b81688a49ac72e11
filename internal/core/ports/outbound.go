package ports

import (
	"context"

	"github.com/kirillkom/workspace-search/internal/core/domain"
)

// Embedder builds vectors for query text. Batches preserve input order and fail as a whole.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// KeywordSearcher ranks indexed content lexically. Zero matches is an empty slice, not an error.
type KeywordSearcher interface {
	Search(ctx context.Context, query string, sources []domain.Source, limit int) ([]domain.KeywordHit, error)
}

// KeywordIndexer feeds the keyword provider.
type KeywordIndexer interface {
	Index(ctx context.Context, docs []domain.KeywordDocument) error
	DocCount() (uint64, error)
}

// MessageStore is the read model over chat messages and their embeddings.
// Vector searches return rows ordered by ascending distance.
type MessageStore interface {
	SearchMessages(ctx context.Context, queryVector []float32, q domain.MessageQuery) ([]domain.ScoredMessage, error)
	MessagesByIDs(ctx context.Context, ids []int64) ([]domain.ChatMessage, error)
	ListThreadMessages(ctx context.Context, channelID, rootTS string) ([]domain.ChatMessage, error)
	ThreadRoots(ctx context.Context, keys []domain.ThreadKey) ([]domain.ChatMessage, error)
	ListSurroundingMessages(ctx context.Context, channelID, ts string, before, after int) ([]domain.ChatMessage, error)
	ListMessagesAfter(ctx context.Context, afterID int64, limit int) ([]domain.ChatMessage, error)
}

// DocumentStore is the read model over documents, chunks and summary embeddings.
type DocumentStore interface {
	SearchChunks(ctx context.Context, queryVector []float32, q domain.ChunkQuery) ([]domain.ScoredChunk, error)
	SearchDocumentSummaries(ctx context.Context, queryVector []float32, limit int) ([]domain.ScoredSummary, error)
	ChunksByIDs(ctx context.Context, ids []int64) ([]domain.DocumentChunk, error)
	ListDocumentChunks(ctx context.Context, documentID int64) ([]domain.DocumentChunk, error)
	ListChunksAfter(ctx context.Context, afterID int64, limit int) ([]domain.DocumentChunk, error)
}

// Reranker scores (query, candidate) pairs. Indices refer to positions in texts.
type Reranker interface {
	Rerank(ctx context.Context, query string, texts []string, topN int) ([]domain.RerankScore, error)
}

// IndexEventSource delivers keyword-index update events.
type IndexEventSource interface {
	SubscribeIndexEvents(ctx context.Context, handler func(context.Context, domain.IndexEvent) error) error
}
