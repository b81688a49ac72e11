package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/kirillkom/workspace-search/internal/core/domain"
)

const messageColumns = `id, channel_id, COALESCE(channel_name, '') AS channel_name, COALESCE(user_id, '') AS user_id,
	COALESCE(username, '') AS username, text, ts, COALESCE(thread_ts, '') AS thread_ts,
	COALESCE(parent_ts, '') AS parent_ts, COALESCE(permalink, '') AS permalink, created_at`

type MessageRepository struct {
	db *sql.DB
}

func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) SearchMessages(
	ctx context.Context,
	queryVector []float32,
	q domain.MessageQuery,
) ([]domain.ScoredMessage, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+messageColumns+`, embedding <=> $1 AS distance
FROM slack_messages
WHERE embedding IS NOT NULL
	AND length(trim(text)) > $2
	AND ($3 = '' OR user_id IS DISTINCT FROM $3)
	AND (NOT $4 OR ((thread_ts IS NULL OR thread_ts = ts) AND parent_ts IS NULL))
ORDER BY embedding <=> $1
LIMIT $5
`, pgvector.NewVector(queryVector), q.MinLength, q.ExcludeUserID, q.ThreadStartersOnly, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ScoredMessage, 0, q.Limit)
	for rows.Next() {
		var scored domain.ScoredMessage
		if err := scanMessage(rows, &scored.Message, &scored.Distance); err != nil {
			return nil, fmt.Errorf("scan scored message: %w", err)
		}
		out = append(out, scored)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scored messages: %w", err)
	}
	return out, nil
}

func (r *MessageRepository) MessagesByIDs(ctx context.Context, ids []int64) ([]domain.ChatMessage, error) {
	if len(ids) == 0 {
		return []domain.ChatMessage{}, nil
	}
	return r.queryMessages(ctx, "messages by ids", `
SELECT `+messageColumns+`
FROM slack_messages
WHERE id = ANY($1)
ORDER BY id
`, ids)
}

func (r *MessageRepository) ListThreadMessages(ctx context.Context, channelID, rootTS string) ([]domain.ChatMessage, error) {
	return r.queryMessages(ctx, "thread messages", `
SELECT `+messageColumns+`
FROM slack_messages
WHERE channel_id = $1 AND (ts = $2 OR thread_ts = $2 OR parent_ts = $2)
ORDER BY ts
`, channelID, rootTS)
}

// ThreadRoots loads the opening message of each thread in one round trip. Unknown keys
// are skipped.
func (r *MessageRepository) ThreadRoots(ctx context.Context, keys []domain.ThreadKey) ([]domain.ChatMessage, error) {
	if len(keys) == 0 {
		return []domain.ChatMessage{}, nil
	}
	channels := make([]string, len(keys))
	roots := make([]string, len(keys))
	for i, key := range keys {
		channels[i] = key.ChannelID
		roots[i] = key.RootTS
	}
	return r.queryMessages(ctx, "thread roots", `
SELECT `+messageColumns+`
FROM slack_messages
WHERE (channel_id, ts) IN (SELECT * FROM unnest($1::text[], $2::text[]))
ORDER BY channel_id, ts
`, channels, roots)
}

// ListSurroundingMessages returns up to before/after top-level messages around ts in
// chronological order. The anchor message itself is excluded.
func (r *MessageRepository) ListSurroundingMessages(
	ctx context.Context,
	channelID, ts string,
	before, after int,
) ([]domain.ChatMessage, error) {
	return r.queryMessages(ctx, "surrounding messages", `
SELECT * FROM (
	(SELECT `+messageColumns+`
	FROM slack_messages
	WHERE channel_id = $1 AND ts < $2 AND (thread_ts IS NULL OR thread_ts = ts)
	ORDER BY ts DESC
	LIMIT $3)
	UNION ALL
	(SELECT `+messageColumns+`
	FROM slack_messages
	WHERE channel_id = $1 AND ts > $2 AND (thread_ts IS NULL OR thread_ts = ts)
	ORDER BY ts ASC
	LIMIT $4)
) AS around
ORDER BY ts
`, channelID, ts, before, after)
}

func (r *MessageRepository) ListMessagesAfter(ctx context.Context, afterID int64, limit int) ([]domain.ChatMessage, error) {
	return r.queryMessages(ctx, "messages page", `
SELECT `+messageColumns+`
FROM slack_messages
WHERE id > $1
ORDER BY id
LIMIT $2
`, afterID, limit)
}

func (r *MessageRepository) queryMessages(ctx context.Context, op, query string, args ...any) ([]domain.ChatMessage, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", op, err)
	}
	defer rows.Close()

	out := make([]domain.ChatMessage, 0)
	for rows.Next() {
		var m domain.ChatMessage
		if err := scanMessage(rows, &m); err != nil {
			return nil, fmt.Errorf("scan %s: %w", op, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", op, err)
	}
	return out, nil
}

func scanMessage(row rowScanner, m *domain.ChatMessage, extra ...any) error {
	dest := []any{
		&m.ID, &m.ChannelID, &m.ChannelName, &m.UserID, &m.Username,
		&m.Text, &m.TS, &m.ThreadTS, &m.ParentTS, &m.Permalink, &m.CreatedAt,
	}
	return row.Scan(append(dest, extra...)...)
}
