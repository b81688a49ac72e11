package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/kirillkom/workspace-search/internal/core/domain"
)

const chunkColumns = `c.id, c.document_id, c.chunk_index, c.content, d.title, d.file_path, c.created_at`

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) SearchChunks(
	ctx context.Context,
	queryVector []float32,
	q domain.ChunkQuery,
) ([]domain.ScoredChunk, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+chunkColumns+`, c.embedding <=> $1 AS distance
FROM document_chunks c
JOIN documents d ON d.id = c.document_id
WHERE c.embedding IS NOT NULL
	AND length(trim(c.content)) > $2
ORDER BY c.embedding <=> $1
LIMIT $3
`, pgvector.NewVector(queryVector), q.MinLength, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ScoredChunk, 0, q.Limit)
	for rows.Next() {
		var scored domain.ScoredChunk
		if err := scanChunk(rows, &scored.Chunk, &scored.Distance); err != nil {
			return nil, fmt.Errorf("scan scored chunk: %w", err)
		}
		out = append(out, scored)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scored chunks: %w", err)
	}
	return out, nil
}

func (r *DocumentRepository) SearchDocumentSummaries(
	ctx context.Context,
	queryVector []float32,
	limit int,
) ([]domain.ScoredSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, title, file_path, summary, created_at, summary_embedding <=> $1 AS distance
FROM documents
WHERE summary_embedding IS NOT NULL AND COALESCE(summary, '') <> ''
ORDER BY summary_embedding <=> $1
LIMIT $2
`, pgvector.NewVector(queryVector), limit)
	if err != nil {
		return nil, fmt.Errorf("search document summaries: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ScoredSummary, 0, limit)
	for rows.Next() {
		var scored domain.ScoredSummary
		s := &scored.Summary
		if err := rows.Scan(&s.DocumentID, &s.Title, &s.FilePath, &s.Summary, &s.CreatedAt, &scored.Distance); err != nil {
			return nil, fmt.Errorf("scan document summary: %w", err)
		}
		out = append(out, scored)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document summaries: %w", err)
	}
	return out, nil
}

func (r *DocumentRepository) ChunksByIDs(ctx context.Context, ids []int64) ([]domain.DocumentChunk, error) {
	if len(ids) == 0 {
		return []domain.DocumentChunk{}, nil
	}
	return r.queryChunks(ctx, "chunks by ids", `
SELECT `+chunkColumns+`
FROM document_chunks c
JOIN documents d ON d.id = c.document_id
WHERE c.id = ANY($1)
ORDER BY c.id
`, ids)
}

func (r *DocumentRepository) ListDocumentChunks(ctx context.Context, documentID int64) ([]domain.DocumentChunk, error) {
	return r.queryChunks(ctx, "document chunks", `
SELECT `+chunkColumns+`
FROM document_chunks c
JOIN documents d ON d.id = c.document_id
WHERE c.document_id = $1
ORDER BY c.chunk_index
`, documentID)
}

func (r *DocumentRepository) ListChunksAfter(ctx context.Context, afterID int64, limit int) ([]domain.DocumentChunk, error) {
	return r.queryChunks(ctx, "chunks page", `
SELECT `+chunkColumns+`
FROM document_chunks c
JOIN documents d ON d.id = c.document_id
WHERE c.id > $1
ORDER BY c.id
LIMIT $2
`, afterID, limit)
}

func (r *DocumentRepository) queryChunks(ctx context.Context, op, query string, args ...any) ([]domain.DocumentChunk, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", op, err)
	}
	defer rows.Close()

	out := make([]domain.DocumentChunk, 0)
	for rows.Next() {
		var c domain.DocumentChunk
		if err := scanChunk(rows, &c); err != nil {
			return nil, fmt.Errorf("scan %s: %w", op, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", op, err)
	}
	return out, nil
}

func scanChunk(row rowScanner, c *domain.DocumentChunk, extra ...any) error {
	dest := []any{&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Content, &c.Title, &c.FilePath, &c.CreatedAt}
	return row.Scan(append(dest, extra...)...)
}
