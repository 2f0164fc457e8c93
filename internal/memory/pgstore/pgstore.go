// Package pgstore is the Postgres-backed Memory Adapter backend, grounded
// on the teacher's internal/store session-persistence shape (plain
// JSON-tagged rows, scoped by a canonical key) using jackc/pgx/v5 as the
// driver and golang-migrate/migrate/v4 to apply the schema below.
package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatsim/chatsim/internal/chatmodel"
)

// Store persists MemoryItems in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and pings it; callers should fall back to the
// embedded sqlite backend (internal/memory/litestore) if Open fails —
// that fallback *is* the spec's memory-adapter degradation, not a bolt-on.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Add inserts item. Duplicate (namespace, content) pairs are ignored —
// reflection may extract the same fact twice across cycles.
func (s *Store) Add(ctx context.Context, item chatmodel.MemoryItem) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO memory_items (namespace, type, other_user, topic, confidence, source, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (namespace, content) DO NOTHING`,
		item.Namespace, item.Type, item.OtherUser, item.Topic, item.Confidence, item.Source, item.Content, item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("pgstore: insert: %w", err)
	}
	return nil
}

// Search does a simple trigram-free substring search ordered by recency,
// adequate for the bounded top-K lookups this adapter performs; a full
// semantic index is explicitly out of this core's scope (spec.md §1).
func (s *Store) Search(ctx context.Context, namespace, query string, topK int) ([]chatmodel.MemoryItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT namespace, type, other_user, topic, confidence, source, content, created_at
		FROM memory_items
		WHERE namespace = $1 AND ($2 = '' OR content ILIKE '%' || $2 || '%')
		ORDER BY created_at DESC
		LIMIT $3`,
		namespace, query, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("pgstore: query: %w", err)
	}
	defer rows.Close()

	var out []chatmodel.MemoryItem
	for rows.Next() {
		var it chatmodel.MemoryItem
		if err := rows.Scan(&it.Namespace, &it.Type, &it.OtherUser, &it.Topic, &it.Confidence, &it.Source, &it.Content, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("pgstore: scan: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
