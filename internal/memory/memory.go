// Package memory is the scoped read/write Memory Adapter: namespace
// "room:{room_id}|agent:{persona_id}", reads and writes never cross scopes.
// Grounded on the teacher's internal/store.Stores container pattern and
// internal/sessions.BuildSessionKey's colon-joined scoped-key builder,
// generalized from "agent:{id}:{channel}:..." to the spec's room|agent scope.
package memory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chatsim/chatsim/internal/chatmodel"
	"github.com/chatsim/chatsim/internal/safety"
)

// Namespace builds the canonical scope key for a (room, persona) pair.
func Namespace(room, persona string) string {
	return fmt.Sprintf("room:%s|agent:%s", room, persona)
}

// Backend is the minimal persistence contract a concrete store implements.
// Adapter wraps a Backend with the degrade-to-empty-on-error behavior the
// spec requires, so individual backends stay simple.
type Backend interface {
	Search(ctx context.Context, namespace, query string, topK int) ([]chatmodel.MemoryItem, error)
	Add(ctx context.Context, item chatmodel.MemoryItem) error
	Close() error
}

// Adapter is the Memory Adapter persona workers call. It never crashes the
// caller: any backend failure degrades to empty results / a no-op write and
// flips Degraded.
type Adapter struct {
	backend  Backend
	degraded bool

	readsSucceeded  int64
	writesAccepted  int64
	itemsTotal      int64
}

// NewAdapter wraps backend with the spec's degradation semantics.
func NewAdapter(backend Backend) *Adapter {
	return &Adapter{backend: backend}
}

// Degraded reports whether the last operation failed (surfaced via /stats).
func (a *Adapter) Degraded() bool { return a.degraded }

func (a *Adapter) ReadsSucceeded() int64 { return a.readsSucceeded }
func (a *Adapter) WritesAccepted() int64 { return a.writesAccepted }
func (a *Adapter) ItemsTotal() int64     { return a.itemsTotal }

// Search returns top_k (clamped to [6,10] per spec.md §4.8) best-effort
// results; any backend error returns empty and flips Degraded, never panics.
func (a *Adapter) Search(ctx context.Context, room, persona, query string, topK int) []chatmodel.MemoryItem {
	if topK < 6 {
		topK = 6
	}
	if topK > 10 {
		topK = 10
	}
	ns := Namespace(room, persona)
	items, err := a.backend.Search(ctx, ns, query, topK)
	if err != nil {
		slog.Warn("memory: search failed, degrading", "namespace", ns, "error", err)
		a.degraded = true
		return nil
	}
	a.degraded = false
	a.readsSucceeded++
	// Defense in depth: never return items whose namespace differs from the
	// requested one, even if a misbehaving backend did the filtering wrong.
	out := items[:0]
	for _, it := range items {
		if it.Namespace == ns {
			out = append(out, it)
		}
	}
	return out
}

// Add stores item only if it has an allowed Type, non-empty content, and no
// detected PII; it enforces the type allowlist, the "never store raw chat
// lines" rule (Source != "raw_chat"), and rejects content matching the same
// email/phone/address patterns the chat Safety Filter redacts (spec.md
// §4.8 "drop items containing PII").
func (a *Adapter) Add(ctx context.Context, item chatmodel.MemoryItem) bool {
	if !chatmodel.AllowedMemoryTypes[item.Type] {
		slog.Warn("memory: rejecting item with disallowed type", "type", item.Type)
		return false
	}
	if item.Content == "" || item.Source == "raw_chat" {
		return false
	}
	if safety.ContainsPII(item.Content) {
		slog.Warn("memory: rejecting item containing PII", "namespace", item.Namespace)
		return false
	}
	if err := a.backend.Add(ctx, item); err != nil {
		slog.Warn("memory: add failed, degrading", "namespace", item.Namespace, "error", err)
		a.degraded = true
		return false
	}
	a.degraded = false
	a.writesAccepted++
	a.itemsTotal++
	return true
}

// Close releases the backend's resources.
func (a *Adapter) Close() error { return a.backend.Close() }
