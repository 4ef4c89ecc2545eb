package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the concrete dev/production adapter for Store, built on
// pgx/v5 — the one database driver the retrieved pack carries end to end
// (SPEC_FULL §7).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and verifies it with a ping.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("docstore: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("docstore: ping: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) PutEmail(ctx context.Context, e *Email) error {
	cls, err := json.Marshal(e.Classification)
	if err != nil {
		return fmt.Errorf("docstore: marshaling classification: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO emails (id, message_id, thread_id, from_addr, to_addrs, subject, text_content, html_content, classification, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,to_timestamp($10/1000.0))
		ON CONFLICT (message_id) DO UPDATE SET
			thread_id = EXCLUDED.thread_id,
			subject = EXCLUDED.subject,
			text_content = EXCLUDED.text_content,
			html_content = EXCLUDED.html_content,
			classification = EXCLUDED.classification
	`, e.ID, e.MessageID, e.ThreadID, e.From, e.To, e.Subject, e.TextContent, e.HTMLContent, cls, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("docstore: put email: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetEmailByMessageID(ctx context.Context, messageID string) (*Email, bool, error) {
	return s.scanEmail(ctx, `SELECT id, message_id, thread_id, from_addr, to_addrs, subject, text_content, html_content, classification, extract(epoch from created_at)*1000 FROM emails WHERE message_id = $1`, messageID)
}

func (s *PostgresStore) GetEmail(ctx context.Context, id string) (*Email, bool, error) {
	return s.scanEmail(ctx, `SELECT id, message_id, thread_id, from_addr, to_addrs, subject, text_content, html_content, classification, extract(epoch from created_at)*1000 FROM emails WHERE id = $1`, id)
}

func (s *PostgresStore) scanEmail(ctx context.Context, query string, arg any) (*Email, bool, error) {
	row := s.pool.QueryRow(ctx, query, arg)
	var e Email
	var cls []byte
	var createdAt float64
	err := row.Scan(&e.ID, &e.MessageID, &e.ThreadID, &e.From, &e.To, &e.Subject, &e.TextContent, &e.HTMLContent, &cls, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("docstore: get email: %w", err)
	}
	if len(cls) > 0 {
		_ = json.Unmarshal(cls, &e.Classification)
	}
	e.CreatedAt = int64(createdAt)
	return &e, true, nil
}

func (s *PostgresStore) DeleteEmail(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM emails WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("docstore: delete email: %w", err)
	}
	return nil
}

// SearchEmails uses Postgres's tsvector text index over {subject,
// text_content}, per spec §6's "text index on {subject, textContent}".
func (s *PostgresStore) SearchEmails(ctx context.Context, query string, limit int) ([]*Email, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, message_id, thread_id, from_addr, to_addrs, subject, text_content, html_content, classification, extract(epoch from created_at)*1000
		FROM emails
		WHERE to_tsvector('english', subject || ' ' || text_content) @@ plainto_tsquery('english', $1)
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("docstore: search: %w", err)
	}
	defer rows.Close()

	var out []*Email
	for rows.Next() {
		var e Email
		var cls []byte
		var createdAt float64
		if err := rows.Scan(&e.ID, &e.MessageID, &e.ThreadID, &e.From, &e.To, &e.Subject, &e.TextContent, &e.HTMLContent, &cls, &createdAt); err != nil {
			return nil, fmt.Errorf("docstore: search scan: %w", err)
		}
		if len(cls) > 0 {
			_ = json.Unmarshal(cls, &e.Classification)
		}
		e.CreatedAt = int64(createdAt)
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) PutThread(ctx context.Context, t *Thread) error {
	mut, err := json.Marshal(t.Mutation)
	if err != nil {
		return fmt.Errorf("docstore: marshaling mutation: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO threads (id, subject, message_ids, mutation, updated_at)
		VALUES ($1,$2,$3,$4,to_timestamp($5/1000.0))
		ON CONFLICT (id) DO UPDATE SET
			subject = EXCLUDED.subject,
			message_ids = EXCLUDED.message_ids,
			mutation = EXCLUDED.mutation,
			updated_at = EXCLUDED.updated_at
	`, t.ID, t.Subject, t.MessageIDs, mut, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("docstore: put thread: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetThread(ctx context.Context, id string) (*Thread, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, subject, message_ids, mutation, extract(epoch from updated_at)*1000 FROM threads WHERE id = $1`, id)
	var t Thread
	var mut []byte
	var updatedAt float64
	err := row.Scan(&t.ID, &t.Subject, &t.MessageIDs, &mut, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("docstore: get thread: %w", err)
	}
	if len(mut) > 0 {
		_ = json.Unmarshal(mut, &t.Mutation)
	}
	t.UpdatedAt = int64(updatedAt)
	return &t, true, nil
}

func (s *PostgresStore) FindThreadByReferences(ctx context.Context, references []string, inReplyTo string) (*Thread, bool, error) {
	ids := references
	if inReplyTo != "" {
		ids = append(ids, inReplyTo)
	}
	if len(ids) == 0 {
		return nil, false, nil
	}
	row := s.pool.QueryRow(ctx, `SELECT id, subject, message_ids, mutation, extract(epoch from updated_at)*1000 FROM threads WHERE message_ids && $1 LIMIT 1`, ids)
	var t Thread
	var mut []byte
	var updatedAt float64
	err := row.Scan(&t.ID, &t.Subject, &t.MessageIDs, &mut, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("docstore: find thread: %w", err)
	}
	if len(mut) > 0 {
		_ = json.Unmarshal(mut, &t.Mutation)
	}
	t.UpdatedAt = int64(updatedAt)
	return &t, true, nil
}

func (s *PostgresStore) PutAnalytics(ctx context.Context, r *AnalyticsRecord) error {
	counts, err := json.Marshal(r.Counts)
	if err != nil {
		return fmt.Errorf("docstore: marshaling counts: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO analytics (id, scope, window_start, window_end, counts, created_at)
		VALUES ($1,$2,to_timestamp($3/1000.0),to_timestamp($4/1000.0),$5,to_timestamp($6/1000.0))
	`, r.ID, r.Scope, r.Start, r.End, counts, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("docstore: put analytics: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListEmailsOlderThan(ctx context.Context, cutoffMs int64) ([]*Email, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, message_id, thread_id, from_addr, to_addrs, subject, text_content, html_content, classification, extract(epoch from created_at)*1000
		FROM emails WHERE created_at < to_timestamp($1/1000.0)
	`, cutoffMs)
	if err != nil {
		return nil, fmt.Errorf("docstore: list older than: %w", err)
	}
	defer rows.Close()

	var out []*Email
	for rows.Next() {
		var e Email
		var cls []byte
		var createdAt float64
		if err := rows.Scan(&e.ID, &e.MessageID, &e.ThreadID, &e.From, &e.To, &e.Subject, &e.TextContent, &e.HTMLContent, &cls, &createdAt); err != nil {
			return nil, fmt.Errorf("docstore: list scan: %w", err)
		}
		if len(cls) > 0 {
			_ = json.Unmarshal(cls, &e.Classification)
		}
		e.CreatedAt = int64(createdAt)
		out = append(out, &e)
	}
	return out, rows.Err()
}
