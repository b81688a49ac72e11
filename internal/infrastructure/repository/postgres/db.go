package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const schemaLockID int64 = 2026031001

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// EnsureSchema bootstraps the pgvector extension and the search tables. Ingestion owns the
// rows; this service only reads them, but both sides may start first.
func EnsureSchema(ctx context.Context, db *sql.DB, embeddingDims int) error {
	if embeddingDims <= 0 {
		return fmt.Errorf("ensure schema: embedding dims must be positive, got %d", embeddingDims)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/mcp startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	query := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS slack_messages (
	id BIGSERIAL PRIMARY KEY,
	channel_id TEXT NOT NULL,
	channel_name TEXT,
	user_id TEXT,
	username TEXT,
	text TEXT NOT NULL,
	ts TEXT NOT NULL,
	thread_ts TEXT,
	parent_ts TEXT,
	permalink TEXT,
	embedding vector(%[1]d),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (channel_id, ts)
);

CREATE TABLE IF NOT EXISTS documents (
	id BIGSERIAL PRIMARY KEY,
	title TEXT NOT NULL,
	file_path TEXT NOT NULL DEFAULT '',
	summary TEXT,
	summary_embedding vector(%[1]d),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS document_chunks (
	id BIGSERIAL PRIMARY KEY,
	document_id BIGINT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	chunk_index INT NOT NULL,
	content TEXT NOT NULL,
	embedding vector(%[1]d),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (document_id, chunk_index)
);

CREATE INDEX IF NOT EXISTS idx_slack_messages_embedding ON slack_messages USING hnsw (embedding vector_cosine_ops);
CREATE INDEX IF NOT EXISTS idx_slack_messages_thread ON slack_messages(channel_id, thread_ts);
CREATE INDEX IF NOT EXISTS idx_slack_messages_channel_ts ON slack_messages(channel_id, ts);
CREATE INDEX IF NOT EXISTS idx_documents_summary_embedding ON documents USING hnsw (summary_embedding vector_cosine_ops);
CREATE INDEX IF NOT EXISTS idx_document_chunks_embedding ON document_chunks USING hnsw (embedding vector_cosine_ops);
CREATE INDEX IF NOT EXISTS idx_document_chunks_document ON document_chunks(document_id, chunk_index);
`, embeddingDims)
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}
