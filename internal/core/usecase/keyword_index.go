package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/workspace-search/internal/core/domain"
	"github.com/kirillkom/workspace-search/internal/core/ports"
)

const defaultRebuildPageSize = 500

// IndexObserver receives keyword-indexing telemetry.
type IndexObserver interface {
	ObserveIndexed(kind string, docs int, err error, duration time.Duration)
}

type noopIndexObserver struct{}

func (noopIndexObserver) ObserveIndexed(string, int, error, time.Duration) {}

// KeywordIndexUseCase keeps the keyword index in step with the rows stored in Postgres.
type KeywordIndexUseCase struct {
	indexer   ports.KeywordIndexer
	messages  ports.MessageStore
	documents ports.DocumentStore
	observer  IndexObserver
	pageSize  int
}

func NewKeywordIndexUseCase(
	indexer ports.KeywordIndexer,
	messages ports.MessageStore,
	documents ports.DocumentStore,
	observer IndexObserver,
	pageSize int,
) *KeywordIndexUseCase {
	if observer == nil {
		observer = noopIndexObserver{}
	}
	if pageSize <= 0 {
		pageSize = defaultRebuildPageSize
	}
	return &KeywordIndexUseCase{
		indexer:   indexer,
		messages:  messages,
		documents: documents,
		observer:  observer,
		pageSize:  pageSize,
	}
}

func (uc *KeywordIndexUseCase) HandleIndexEvent(ctx context.Context, event domain.IndexEvent) error {
	if len(event.IDs) == 0 {
		return nil
	}
	start := time.Now()

	var docs []domain.KeywordDocument
	switch event.Kind {
	case domain.IndexEventSlackMessage:
		rows, err := uc.messages.MessagesByIDs(ctx, event.IDs)
		if err != nil {
			return fmt.Errorf("load messages for index: %w", err)
		}
		docs = messageKeywordDocuments(rows)
	case domain.IndexEventDocumentChunk:
		rows, err := uc.documents.ChunksByIDs(ctx, event.IDs)
		if err != nil {
			return fmt.Errorf("load chunks for index: %w", err)
		}
		docs = chunkKeywordDocuments(rows)
	default:
		return domain.WrapError(domain.ErrInvalidInput, "index event", fmt.Errorf("unknown kind %q", event.Kind))
	}

	err := uc.indexer.Index(ctx, docs)
	uc.observer.ObserveIndexed(string(event.Kind), len(docs), err, time.Since(start))
	if err != nil {
		return fmt.Errorf("index %s documents: %w", event.Kind, err)
	}
	return nil
}

// RebuildIfEmpty pages every stored message and chunk into an empty index. A populated
// index is left alone; incremental events keep it current.
func (uc *KeywordIndexUseCase) RebuildIfEmpty(ctx context.Context) error {
	count, err := uc.indexer.DocCount()
	if err != nil {
		return fmt.Errorf("keyword index doc count: %w", err)
	}
	if count > 0 {
		return nil
	}

	start := time.Now()
	messages, err := uc.rebuildMessages(ctx)
	if err != nil {
		return err
	}
	chunks, err := uc.rebuildChunks(ctx)
	if err != nil {
		return err
	}
	slog.Info("keyword_index_rebuilt",
		"messages", messages,
		"chunks", chunks,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (uc *KeywordIndexUseCase) rebuildMessages(ctx context.Context) (int, error) {
	var afterID int64
	total := 0
	for {
		rows, err := uc.messages.ListMessagesAfter(ctx, afterID, uc.pageSize)
		if err != nil {
			return total, fmt.Errorf("page messages after %d: %w", afterID, err)
		}
		if len(rows) == 0 {
			return total, nil
		}
		start := time.Now()
		docs := messageKeywordDocuments(rows)
		err = uc.indexer.Index(ctx, docs)
		uc.observer.ObserveIndexed(string(domain.IndexEventSlackMessage), len(docs), err, time.Since(start))
		if err != nil {
			return total, fmt.Errorf("index message page: %w", err)
		}
		total += len(docs)
		afterID = rows[len(rows)-1].ID
		if len(rows) < uc.pageSize {
			return total, nil
		}
	}
}

func (uc *KeywordIndexUseCase) rebuildChunks(ctx context.Context) (int, error) {
	var afterID int64
	total := 0
	for {
		rows, err := uc.documents.ListChunksAfter(ctx, afterID, uc.pageSize)
		if err != nil {
			return total, fmt.Errorf("page chunks after %d: %w", afterID, err)
		}
		if len(rows) == 0 {
			return total, nil
		}
		start := time.Now()
		docs := chunkKeywordDocuments(rows)
		err = uc.indexer.Index(ctx, docs)
		uc.observer.ObserveIndexed(string(domain.IndexEventDocumentChunk), len(docs), err, time.Since(start))
		if err != nil {
			return total, fmt.Errorf("index chunk page: %w", err)
		}
		total += len(docs)
		afterID = rows[len(rows)-1].ID
		if len(rows) < uc.pageSize {
			return total, nil
		}
	}
}

func messageKeywordDocuments(rows []domain.ChatMessage) []domain.KeywordDocument {
	docs := make([]domain.KeywordDocument, 0, len(rows))
	for _, m := range rows {
		docs = append(docs, domain.KeywordDocument{
			ID:      domain.MessageResultID(m.ID),
			Source:  domain.SourceSlack,
			Text:    m.Text,
			Author:  m.Username,
			Channel: m.ChannelName,
			IsReply: m.ThreadTS != "" && m.ThreadTS != m.TS,
		})
	}
	return docs
}

func chunkKeywordDocuments(rows []domain.DocumentChunk) []domain.KeywordDocument {
	docs := make([]domain.KeywordDocument, 0, len(rows))
	for _, c := range rows {
		docs = append(docs, domain.KeywordDocument{
			ID:     domain.ChunkResultID(c.ID),
			Source: domain.SourceDocument,
			Text:   c.Content,
			Title:  c.Title,
		})
	}
	return docs
}
