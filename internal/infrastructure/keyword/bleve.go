package keyword

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/kirillkom/workspace-search/internal/core/domain"
)

const (
	textField        = "text"
	sourceField      = "source"
	plainAnalyzer    = "workspace_plain"
	bm25ScoringModel = "bm25"
	threadedMarker   = "[threaded reply]"
)

var (
	urlPattern         = regexp.MustCompile(`http\S+`)
	mentionPattern     = regexp.MustCompile(`<@\w+>`)
	punctuationPattern = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
)

var errIndexClosed = errors.New("keyword index is closed")

// BleveIndex is a BM25 keyword index over chat messages and document chunks.
type BleveIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	closed bool
}

type bleveDocument struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

// Open opens the index at path, creating it when missing. An empty path builds an
// in-memory index.
func Open(path string) (*BleveIndex, error) {
	indexMapping, err := newIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("build index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create index dir: %w", err)
		}
		idx, err = bleve.Open(path)
		if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open keyword index: %w", err)
	}
	return &BleveIndex{index: idx}, nil
}

func newIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()
	err := indexMapping.AddCustomAnalyzer(plainAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("add analyzer: %w", err)
	}

	text := bleve.NewTextFieldMapping()
	text.Analyzer = plainAnalyzer
	text.Store = false
	text.IncludeTermVectors = false

	source := bleve.NewKeywordFieldMapping()
	source.Store = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt(textField, text)
	doc.AddFieldMappingsAt(sourceField, source)

	indexMapping.DefaultMapping = doc
	indexMapping.DefaultAnalyzer = plainAnalyzer
	indexMapping.ScoringModel = bm25ScoringModel
	return indexMapping, nil
}

// Index upserts docs by id in one batch.
func (b *BleveIndex) Index(ctx context.Context, docs []domain.KeywordDocument) error {
	if len(docs) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return errIndexClosed
	}

	batch := b.index.NewBatch()
	for _, doc := range docs {
		if err := batch.Index(doc.ID, bleveDocument{
			Text:   composeText(doc),
			Source: string(doc.Source),
		}); err != nil {
			return fmt.Errorf("index document %s: %w", doc.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("execute batch: %w", err)
	}
	return nil
}

// Search returns hits with a positive score, best first. Zero matches is an empty slice.
func (b *BleveIndex) Search(
	ctx context.Context,
	queryText string,
	sources []domain.Source,
	limit int,
) ([]domain.KeywordHit, error) {
	terms := Preprocess(queryText)
	if len(terms) == 0 || limit <= 0 {
		return []domain.KeywordHit{}, nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, errIndexClosed
	}

	match := bleve.NewMatchQuery(strings.Join(terms, " "))
	match.SetField(textField)
	var q query.Query = match
	if filter := sourceFilter(sources); filter != nil {
		q = bleve.NewConjunctionQuery(match, filter)
	}

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	hits := make([]domain.KeywordHit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		if hit.Score <= 0 {
			continue
		}
		hits = append(hits, domain.KeywordHit{ID: hit.ID, Score: hit.Score})
	}
	return hits, nil
}

// sourceFilter restricts hits to the requested sources. Both sources need no filter.
func sourceFilter(sources []domain.Source) query.Query {
	seen := make(map[domain.Source]struct{}, len(sources))
	for _, s := range sources {
		seen[s] = struct{}{}
	}
	if len(seen) != 1 {
		return nil
	}
	for s := range seen {
		term := bleve.NewTermQuery(string(s))
		term.SetField(sourceField)
		return term
	}
	return nil
}

func (b *BleveIndex) DocCount() (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, errIndexClosed
	}
	return b.index.DocCount()
}

func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}

// composeText folds author and channel into chat text, and the title into chunk text.
func composeText(doc domain.KeywordDocument) string {
	var parts []string
	switch doc.Source {
	case domain.SourceSlack:
		parts = []string{doc.Text, doc.Author, doc.Channel}
		if doc.IsReply {
			parts = append(parts, threadedMarker)
		}
	default:
		parts = []string{doc.Title, doc.Text}
	}
	return strings.Join(Preprocess(strings.Join(parts, " ")), " ")
}

// Preprocess strips links and user mentions, drops punctuation and lowercases the rest.
func Preprocess(text string) []string {
	text = urlPattern.ReplaceAllString(text, "")
	text = mentionPattern.ReplaceAllString(text, "")
	text = punctuationPattern.ReplaceAllString(text, " ")
	return strings.Fields(strings.ToLower(text))
}
