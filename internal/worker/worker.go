// Package worker implements the Persona Worker: for every persona enrolled
// in a room it runs a reactive loop (firehose-triggered), an
// auto-commentary loop (observation-triggered), and a reflection loop
// (periodic drift + memory extraction), coordinating through per-persona
// state guarded by a mutex held only across counter updates.
//
// Grounded on the teacher's internal/agent.Loop orchestration shape
// (activeRuns atomic.Int32, per-resource locks, loop_tracing.go's
// span-per-call idiom) generalized from a single think-act-observe cycle
// into three cooperating, independently-scheduled activities.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"regexp"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chatsim/chatsim/internal/busadapter"
	"github.com/chatsim/chatsim/internal/chatmodel"
	"github.com/chatsim/chatsim/internal/config"
	"github.com/chatsim/chatsim/internal/roombuf"
	"github.com/chatsim/chatsim/internal/svcctx"
	"github.com/chatsim/chatsim/internal/telemetry"
)

const (
	StreamFirehose     = "stream:chat.firehose"
	StreamObservations = "stream:observations"
	StreamIngest       = "stream:chat.ingest"

	ConsumerGroup = "persona_workers"

	ProducerReactive = "persona_worker"
	ProducerAuto     = "persona_worker_auto"
)

// forbiddenAutoPatterns reject generated auto-commentary text that leaks
// observation plumbing into a persona's voice — spec.md §4.7 requires a
// runtime check, not just prompt instructions, since the generator is not
// trusted to always comply.
var forbiddenAutoPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bOBS:`),
	regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}T\d{2}:\d{2}`), // ISO timestamp
	regexp.MustCompile(`(?i)\bframe_id\b`),
	regexp.MustCompile(`(?i)\bhype_level\b`),
}

// Worker runs the three persona loops for one room within one process.
type Worker struct {
	svc  *svcctx.ServiceContext
	room chatmodel.RoomConfig

	personasMu sync.RWMutex
	personas   map[string]chatmodel.PersonaConfig

	runtimes     map[string]*PersonaRuntime
	chat         *roombuf.ChatWindow
	obs          *roombuf.ObservationBuffer
	consumerName string
	stats        *telemetry.Stats
}

// New builds a Worker enrolling only the personas listed in
// room.EnabledPersonas. If none are enabled, the worker is still
// constructed and will idle healthily (spec.md §4.7 "Enrollment").
func New(svc *svcctx.ServiceContext, room chatmodel.RoomConfig, allPersonas []chatmodel.PersonaConfig, consumerName string) *Worker {
	enabled := make(map[string]bool, len(room.EnabledPersonas))
	for _, id := range room.EnabledPersonas {
		enabled[id] = true
	}
	personas := make(map[string]chatmodel.PersonaConfig)
	runtimes := make(map[string]*PersonaRuntime)
	for _, p := range allPersonas {
		if !enabled[p.ID] {
			continue
		}
		personas[p.ID] = p
		runtimes[p.ID] = NewPersonaRuntime(p)
	}
	enabledIDs := make([]string, 0, len(personas))
	for id := range personas {
		enabledIDs = append(enabledIDs, id)
	}
	return &Worker{
		svc:          svc,
		room:         room,
		personas:     personas,
		runtimes:     runtimes,
		chat:         roombuf.NewChatWindow(roombuf.DefaultWindowSize, roombuf.DefaultWindowPeriod),
		obs:          roombuf.NewObservationBuffer(roombuf.DefaultObservationCapacity, roombuf.DefaultObservationTTL),
		consumerName: consumerName,
		stats:        telemetry.NewStats(room.RoomID, enabledIDs),
	}
}

// Enrolled reports how many personas this worker is driving for the room.
func (w *Worker) Enrolled() int {
	w.personasMu.RLock()
	defer w.personasMu.RUnlock()
	return len(w.personas)
}

// Stats returns the worker's telemetry registry so a service entrypoint can
// attach a Memory Adapter and serve it at /stats.
func (w *Worker) Stats() *telemetry.Stats { return w.stats }

// personaEntry pairs a persona id with its current config, returned by
// personaSnapshot so loops never range over the live map directly.
type personaEntry struct {
	ID      string
	Persona chatmodel.PersonaConfig
}

// personaSnapshot copies the currently enrolled personas under a read lock,
// safe to range over while ApplyPersonaAnchors swaps values concurrently.
func (w *Worker) personaSnapshot() []personaEntry {
	w.personasMu.RLock()
	defer w.personasMu.RUnlock()
	out := make([]personaEntry, 0, len(w.personas))
	for id, p := range w.personas {
		out = append(out, personaEntry{ID: id, Persona: p})
	}
	return out
}

// ApplyPersonaAnchors merges the anchor-only fields of each incoming
// persona config (display name, voice rules, catchphrases, system prompt,
// auto-commentary gate) onto the currently enrolled persona of the same
// id, leaving drift knobs and room enrollment untouched. Unknown persona
// ids in incoming (not already enrolled) are ignored: hot reload can
// refresh an enrolled persona's anchors but never changes who is enrolled.
func (w *Worker) ApplyPersonaAnchors(incoming []chatmodel.PersonaConfig) {
	w.personasMu.Lock()
	defer w.personasMu.Unlock()
	for _, p := range incoming {
		existing, ok := w.personas[p.ID]
		if !ok {
			continue
		}
		w.personas[p.ID] = config.MergeAnchors(existing, p)
	}
}

// Run starts the reactive, auto-commentary, and reflection loops and blocks
// until ctx is cancelled or a loop returns a non-cancellation error.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.svc.Bus.EnsureGroup(ctx, StreamFirehose, ConsumerGroup, busadapter.StartLatest); err != nil {
		return fmt.Errorf("worker: ensure firehose group: %w", err)
	}
	if err := w.svc.Bus.EnsureGroup(ctx, StreamObservations, ConsumerGroup, busadapter.StartLatest); err != nil {
		return fmt.Errorf("worker: ensure observations group: %w", err)
	}

	if w.Enrolled() == 0 {
		slog.Info("worker: no enabled personas, idling", "room", w.room.RoomID)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.reactiveLoop(gctx) })
	g.Go(func() error { return w.autoLoop(gctx) })
	g.Go(func() error { return w.reflectionLoop(gctx) })
	return g.Wait()
}

// jitter returns a uniform random 0-250ms tick offset, per-persona loops
// de-synchronizing fleets (spec.md §5 "Tick jitter").
func jitter() time.Duration {
	return time.Duration(rand.IntN(251)) * time.Millisecond
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
