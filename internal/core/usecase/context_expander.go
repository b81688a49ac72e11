package usecase

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/workspace-search/internal/core/domain"
	"github.com/kirillkom/workspace-search/internal/core/ports"
)

const (
	defaultSurroundingWindow = 5
	defaultExpandConcurrency = 4
	documentChunkSeparator   = "\n\n"
)

type ExpanderConfig struct {
	// SurroundingWindow is the number of channel messages fetched before and after a chat
	// match. Zero disables the neighbour fetch.
	SurroundingWindow int
	Concurrency       int
}

func DefaultExpanderConfig() ExpanderConfig {
	return ExpanderConfig{
		SurroundingWindow: defaultSurroundingWindow,
		Concurrency:       defaultExpandConcurrency,
	}
}

// ContextExpander turns matched chunks into whole documents and attaches thread and
// channel context to chat matches.
type ContextExpander struct {
	messages  ports.MessageStore
	documents ports.DocumentStore
	observer  SearchObserver
	cfg       ExpanderConfig
}

func NewContextExpander(
	messages ports.MessageStore,
	documents ports.DocumentStore,
	observer SearchObserver,
	cfg ExpanderConfig,
) *ContextExpander {
	if observer == nil {
		observer = noopObserver{}
	}
	if cfg.SurroundingWindow < 0 {
		cfg.SurroundingWindow = 0
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultExpandConcurrency
	}
	return &ContextExpander{messages: messages, documents: documents, observer: observer, cfg: cfg}
}

// ReconstructDocuments replaces every group of document results sharing a parent document
// with one result carrying the full chunk list. A group whose fetch fails keeps its
// original members.
func (e *ContextExpander) ReconstructDocuments(ctx context.Context, results []domain.SearchResult) []domain.SearchResult {
	groups, groupOf := groupDocuments(results)
	if len(groups) == 0 {
		return results
	}

	expanded := make([]*domain.SearchResult, len(groups))
	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)
	for i := range groups {
		g.Go(func() error {
			expanded[i] = e.expandGroup(ctx, groups[i])
			return nil
		})
	}
	_ = g.Wait()

	out := make([]domain.SearchResult, 0, len(results))
	for i, result := range results {
		gi, grouped := groupOf[i]
		if !grouped {
			out = append(out, result)
			continue
		}
		group := groups[gi]
		if expanded[gi] == nil {
			out = append(out, result)
			continue
		}
		if group.FirstIndex == i {
			out = append(out, *expanded[gi])
		}
	}
	return out
}

// groupDocuments keys document results by title and file path. groupOf maps a result
// position to its group index.
func groupDocuments(results []domain.SearchResult) ([]domain.DocumentGroup, map[int]int) {
	var groups []domain.DocumentGroup
	index := make(map[string]int)
	groupOf := make(map[int]int)

	for i, result := range results {
		if result.Source != domain.SourceDocument {
			continue
		}
		key := documentGroupKey(result.Metadata)
		gi, ok := index[key]
		if !ok {
			gi = len(groups)
			index[key] = gi
			groups = append(groups, domain.DocumentGroup{
				Key:         key,
				Highlighted: make(map[int64]struct{}),
				Primary:     result,
				FirstIndex:  i,
			})
		}
		group := &groups[gi]
		group.Members = append(group.Members, result)
		if group.DocumentID == 0 {
			group.DocumentID = result.Metadata.DocumentID
		}
		if result.Metadata.ChunkID != 0 {
			group.Highlighted[result.Metadata.ChunkID] = struct{}{}
		}
		if result.Score > group.Primary.Score {
			group.Primary = result
		}
		groupOf[i] = gi
	}
	return groups, groupOf
}

func documentGroupKey(m domain.Metadata) string {
	return m.Title + "\x00" + m.FilePath
}

func (e *ContextExpander) expandGroup(ctx context.Context, group domain.DocumentGroup) *domain.SearchResult {
	if group.DocumentID == 0 {
		return nil
	}
	chunks, err := e.documents.ListDocumentChunks(ctx, group.DocumentID)
	if err != nil {
		slog.Warn("document_group_expand_failed",
			"document_id", group.DocumentID,
			"members", len(group.Members),
			"error", err,
		)
		e.observer.ObserveFallback(fallbackDocumentGroup)
		return nil
	}
	if len(chunks) == 0 {
		return nil
	}

	views := make([]domain.ChunkView, 0, len(chunks))
	parts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		_, highlighted := group.Highlighted[chunk.ID]
		views = append(views, domain.ChunkView{
			ChunkID:       chunk.ID,
			ChunkIndex:    chunk.ChunkIndex,
			Content:       chunk.Content,
			IsHighlighted: highlighted,
		})
		parts = append(parts, chunk.Content)
	}

	primary := group.Primary
	meta := primary.Metadata
	meta.DocumentID = group.DocumentID
	meta.ChunkID = 0
	meta.ChunkIndex = 0
	meta.IsSummary = false
	meta.Chunks = views
	for _, member := range group.Members {
		for _, strategy := range member.Metadata.Strategies {
			meta.Strategies = appendStrategy(meta.Strategies, strategy)
		}
	}
	if meta.Title == "" {
		meta.Title = chunks[0].Title
	}
	if meta.FilePath == "" {
		meta.FilePath = chunks[0].FilePath
	}

	return &domain.SearchResult{
		ID:       domain.DocumentResultID(group.DocumentID),
		Content:  strings.Join(parts, documentChunkSeparator),
		Score:    primary.Score,
		Source:   domain.SourceDocument,
		Metadata: meta,
	}
}

// ExpandThreads attaches thread replies and surrounding channel messages to chat results.
// Failures leave the result without the missing context.
func (e *ContextExpander) ExpandThreads(ctx context.Context, results []domain.SearchResult) []domain.SearchResult {
	out := make([]domain.SearchResult, len(results))
	copy(out, results)

	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)
	for i := range out {
		if out[i].Source != domain.SourceSlack || out[i].Metadata.ChannelID == "" {
			continue
		}
		g.Go(func() error {
			e.expandMessage(ctx, &out[i])
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (e *ContextExpander) expandMessage(ctx context.Context, result *domain.SearchResult) {
	meta := &result.Metadata
	root := meta.ThreadRoot()

	if root != "" {
		thread, err := e.messages.ListThreadMessages(ctx, meta.ChannelID, root)
		if err != nil {
			slog.Warn("thread_context_failed", "id", result.ID, "root_ts", root, "error", err)
			e.observer.ObserveFallback(fallbackThreadContext)
		} else if len(thread) > 0 {
			meta.Thread = &domain.ThreadContext{RootTS: root, Messages: thread}
		}
	}

	if e.cfg.SurroundingWindow == 0 || meta.TS == "" {
		return
	}
	around, err := e.messages.ListSurroundingMessages(ctx, meta.ChannelID, meta.TS, e.cfg.SurroundingWindow, e.cfg.SurroundingWindow)
	if err != nil {
		slog.Warn("surrounding_context_failed", "id", result.ID, "ts", meta.TS, "error", err)
		e.observer.ObserveFallback(fallbackSurroundingCtx)
		return
	}
	if len(around) > 0 {
		meta.Surrounding = around
	}
}
