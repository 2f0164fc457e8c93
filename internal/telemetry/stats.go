package telemetry

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/chatsim/chatsim/internal/memory"
)

// Stats is the /stats counter registry spec.md §6 requires: at minimum
// messages_published, decisions_by_reason, the memory counters, observations
// received, enabled personas, and room_id. The persona worker constructs one
// per room and populates decisions, messages_published, observations and
// memory; the gateway serves its own /stats handler and does not use Stats.
type Stats struct {
	RoomID          string
	EnabledPersonas []string

	messagesPublished    atomic.Int64
	observationsReceived atomic.Int64

	mu                sync.Mutex
	decisionsByReason map[string]int64

	mem *memory.Adapter
}

// NewStats builds a registry scoped to roomID with the given enrolled
// persona ids.
func NewStats(roomID string, enabledPersonas []string) *Stats {
	return &Stats{
		RoomID:            roomID,
		EnabledPersonas:   enabledPersonas,
		decisionsByReason: make(map[string]int64),
	}
}

// SetMemory attaches a Memory Adapter so Snapshot can report its counters;
// nil (the default) reports memory_enabled=false.
func (s *Stats) SetMemory(mem *memory.Adapter) { s.mem = mem }

func (s *Stats) IncMessagesPublished()    { s.messagesPublished.Add(1) }
func (s *Stats) IncObservationsReceived() { s.observationsReceived.Add(1) }

// RecordDecision increments the per-reason decision counter (spec.md
// glossary reasons: e2e_forced, bot_origin, cooldown, budget,
// probability_gate, gen_empty, and the "post" outcome itself).
func (s *Stats) RecordDecision(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisionsByReason[reason]++
}

// Snapshot renders the current counters as the /stats JSON body.
func (s *Stats) Snapshot() map[string]any {
	s.mu.Lock()
	decisions := make(map[string]int64, len(s.decisionsByReason))
	for k, v := range s.decisionsByReason {
		decisions[k] = v
	}
	s.mu.Unlock()

	out := map[string]any{
		"room_id":               s.RoomID,
		"enabled_personas":      s.EnabledPersonas,
		"messages_published":    s.messagesPublished.Load(),
		"observations_received": s.observationsReceived.Load(),
		"decisions_by_reason":   decisions,
	}
	if s.mem != nil {
		out["memory_enabled"] = true
		out["memory_reads_succeeded"] = s.mem.ReadsSucceeded()
		out["memory_writes_accepted"] = s.mem.WritesAccepted()
		out["memory_items_total"] = s.mem.ItemsTotal()
	} else {
		out["memory_enabled"] = false
	}
	return out
}

// ServeHTTP implements http.Handler, serving Snapshot as JSON at /stats.
func (s *Stats) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.Snapshot())
}
