// Package busadapter is a thin abstraction over an ordered, append-only log
// with consumer groups, backed by real Redis Streams. It provides
// at-least-once delivery; callers must be idempotent on a record's id.
//
// Grounded on intelligencedev-manifold's internal/orchestrator/dedupe.go
// (redis/go-redis/v9 client construction, ping-on-connect, error wrapping)
// and the teacher's (vanducng-goclaw) internal/bus.EventPublisher /
// MessageRouter interface shapes (Subscribe/Publish separation), re-targeted
// from an in-memory channel bus to real XADD/XREADGROUP/XACK/XRANGE calls.
package busadapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/chatsim/chatsim/internal/retry"
)

// Entry is one record read off a stream.
type Entry struct {
	ID   string // Redis stream entry id, e.g. "1700000000000-0"
	Data []byte // raw JSON payload, the "data" field
}

// GroupStart selects where a newly-created consumer group begins reading.
type GroupStart string

const (
	StartLatest GroupStart = "$"
	StartBeginning GroupStart = "0-0"
)

// Adapter wraps a redis.Client with the bus contract. Invalid payloads never
// reach callers: Validate, if set, is invoked on every raw payload read from
// a stream and failing records are dropped with a counter increment.
type Adapter struct {
	rdb      *redis.Client
	Validate func(raw []byte) error

	degraded atomic.Bool
	dropped  atomic.Int64
}

// New connects to addr and verifies reachability with a bounded ping.
func New(ctx context.Context, addr string) (*Adapter, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("busadapter: redis ping failed: %w", err)
	}
	return &Adapter{rdb: rdb}, nil
}

// NewFromClient wraps an already-constructed client (used by tests against miniredis).
func NewFromClient(rdb *redis.Client) *Adapter {
	return &Adapter{rdb: rdb}
}

// Close releases the underlying connection pool.
func (a *Adapter) Close() error { return a.rdb.Close() }

// Degraded reports whether the adapter is currently in backoff due to
// transient I/O errors (surfaced via /healthz).
func (a *Adapter) Degraded() bool { return a.degraded.Load() }

// Dropped returns the count of records dropped for failing validation.
func (a *Adapter) Dropped() int64 { return a.dropped.Load() }

func isRetryableRedisErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	// redis.Nil means "no data", never retry that; everything else
	// (connection refused, timeout, i/o error) is transient.
	return !errors.Is(err, redis.Nil)
}

func (a *Adapter) withRetry(ctx context.Context, op func() error) error {
	_, err := retry.Do(ctx, retry.Default(), isRetryableRedisErr, func() (struct{}, error) {
		e := op()
		if e != nil && isRetryableRedisErr(e) {
			a.degraded.Store(true)
		} else {
			a.degraded.Store(false)
		}
		return struct{}{}, e
	})
	return err
}

// Publish appends a record to stream and returns the assigned entry id.
func (a *Adapter) Publish(ctx context.Context, stream string, raw []byte) (string, error) {
	var id string
	err := a.withRetry(ctx, func() error {
		res, err := a.rdb.XAdd(ctx, &redis.XAddArgs{
			Stream: stream,
			Values: map[string]any{"data": raw},
		}).Result()
		if err != nil {
			return err
		}
		id = res
		return nil
	})
	return id, err
}

// EnsureGroup creates a consumer group at start ("$" or "0-0"), ignoring
// "already exists" errors (idempotent group creation).
func (a *Adapter) EnsureGroup(ctx context.Context, stream, group string, start GroupStart) error {
	err := a.withRetry(ctx, func() error {
		e := a.rdb.XGroupCreateMkStream(ctx, stream, group, string(start)).Err()
		if e != nil && strings.Contains(e.Error(), "BUSYGROUP") {
			return nil
		}
		return e
	})
	return err
}

// GroupRead reads up to max new (never-delivered) entries for consumer in
// group, blocking up to blockMS for new data. Entries already pending for
// the consumer are not re-read. Entries failing Validate are
// acknowledged immediately and dropped — they never reach the caller.
func (a *Adapter) GroupRead(ctx context.Context, stream, group, consumer string, max int64, blockMS int) ([]Entry, error) {
	var out []Entry
	err := a.withRetry(ctx, func() error {
		res, err := a.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{stream, ">"},
			Count:    max,
			Block:    time.Duration(blockMS) * time.Millisecond,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil // no new entries; not an error
			}
			return err
		}
		for _, s := range res {
			for _, msg := range s.Messages {
				raw, ok := msg.Values["data"]
				if !ok {
					a.dropped.Add(1)
					a.rdb.XAck(ctx, stream, group, msg.ID)
					continue
				}
				rawBytes := toBytes(raw)
				if a.Validate != nil {
					if verr := a.Validate(rawBytes); verr != nil {
						slog.Warn("busadapter: dropping invalid record", "stream", stream, "entry_id", msg.ID, "error", verr)
						a.dropped.Add(1)
						a.rdb.XAck(ctx, stream, group, msg.ID)
						continue
					}
				}
				out = append(out, Entry{ID: msg.ID, Data: rawBytes})
			}
		}
		return nil
	})
	return out, err
}

// Ack acknowledges an entry so it's removed from the group's pending list.
func (a *Adapter) Ack(ctx context.Context, stream, group, entryID string) error {
	return a.withRetry(ctx, func() error {
		return a.rdb.XAck(ctx, stream, group, entryID).Err()
	})
}

// TailRange returns up to count entries with id > fromExclusive (pass "" to
// start from the very first entry). Used by /stats-style tail scans and tests.
func (a *Adapter) TailRange(ctx context.Context, stream, fromExclusive string, count int64) ([]Entry, error) {
	var out []Entry
	err := a.withRetry(ctx, func() error {
		start := fromExclusive
		if start == "" {
			start = "-"
		} else {
			start = "(" + start
		}
		res, err := a.rdb.XRangeN(ctx, stream, start, "+", count).Result()
		if err != nil {
			return err
		}
		for _, msg := range res {
			raw, ok := msg.Values["data"]
			if !ok {
				continue
			}
			out = append(out, Entry{ID: msg.ID, Data: toBytes(raw)})
		}
		return nil
	})
	return out, err
}

func toBytes(v any) []byte {
	switch t := v.(type) {
	case string:
		return []byte(t)
	case []byte:
		return t
	default:
		return []byte(fmt.Sprintf("%v", t))
	}
}
