package ports

import (
	"context"

	"github.com/kirillkom/workspace-search/internal/core/domain"
)

// WorkspaceSearcher is the inbound contract for hybrid search over chat history and documents.
type WorkspaceSearcher interface {
	Search(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, error)
}

// KeywordIndexMaintainer is the inbound contract for keeping the keyword index in sync with storage.
type KeywordIndexMaintainer interface {
	HandleIndexEvent(ctx context.Context, event domain.IndexEvent) error
	RebuildIfEmpty(ctx context.Context) error
}
