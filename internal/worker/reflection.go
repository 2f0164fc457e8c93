package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/chatsim/chatsim/internal/chatmodel"
	"github.com/chatsim/chatsim/internal/config"
	"github.com/chatsim/chatsim/internal/generator"
)

const (
	reflectionMaxDriftStep = 0.02
	reflectionMaxItems     = 3
	reflectionPollInterval = 5 * time.Second
)

// reflectionLoop periodically checks every enrolled persona for a
// reflection cycle due by interval (spec.md §4.7 "Reflection loop"), and
// runs the extraction when due. Cycles due by own-message count are run
// inline by the reactive and auto-commentary paths.
func (w *Worker) reflectionLoop(ctx context.Context) error {
	if w.Enrolled() == 0 {
		<-ctx.Done()
		return nil
	}
	intervalS := w.room.ReflectionIntervalS
	for {
		if !sleepOrDone(ctx, reflectionPollInterval) {
			return nil
		}
		nowT := w.svc.Now()
		now := nowT.UnixMilli()
		cronDue, err := config.ReflectionWindowDue(w.room.Features.ReflectionCron, nowT)
		if err != nil {
			slog.Warn("worker: invalid reflection cron expression, gate treated as always-due", "room_id", w.room.RoomID, "error", err)
			cronDue = true
		}
		if !cronDue {
			continue
		}
		for _, entry := range w.personaSnapshot() {
			personaID, persona := entry.ID, entry.Persona
			rt := w.runtimes[personaID]
			if rt.ReflectionDueByInterval(now, intervalS) {
				w.runReflection(ctx, personaID, persona, rt)
			}
		}
	}
}

// runReflection extracts bounded drift updates and up to reflectionMaxItems
// durable MemoryItems from a persona's recent own messages, then applies
// them. The extraction itself goes through the Generator in a JSON-only
// mode: a Live generator calls the LLM with a structured-output instruction;
// deterministic/stub generators reply with plain text that is not JSON,
// which is treated as "no extraction this cycle" rather than an error.
func (w *Worker) runReflection(ctx context.Context, personaID string, persona chatmodel.PersonaConfig, rt *PersonaRuntime) {
	_, span := tracer.Start(ctx, "worker.reflect", trace.WithAttributes(
		attribute.String("room_id", w.room.RoomID),
		attribute.String("persona_id", personaID),
	))
	defer span.End()

	now := w.svc.Now()
	defer rt.MarkReflected(now.UnixMilli())

	own := rt.OwnMessages()
	if len(own) == 0 {
		return
	}

	extraction, err := w.extract(ctx, persona, own)
	if err != nil {
		span.RecordError(err)
		return
	}
	if extraction == nil {
		return
	}

	rt.ApplyDrift(extraction.DriftTalkDelta, extraction.DriftPositivityDelta, extraction.DriftSnarkDelta, reflectionMaxDriftStep)

	if w.svc.Memory == nil {
		return
	}
	items := extraction.MemoryItems
	if len(items) > reflectionMaxItems {
		items = items[:reflectionMaxItems]
	}
	for _, content := range items {
		if content == "" || strings.TrimSpace(content) == "" {
			continue
		}
		w.svc.Memory.Add(ctx, chatmodel.MemoryItem{
			Namespace:  memoryNamespace(w.room.RoomID, personaID),
			Type:       chatmodel.MemoryNote,
			Confidence: chatmodel.ConfidenceMed,
			Source:     "reflection",
			Content:    content,
			CreatedAt:  now.UnixMilli(),
		})
	}
}

func memoryNamespace(room, persona string) string {
	return fmt.Sprintf("room:%s|agent:%s", room, persona)
}

// reflectionExtraction is the bounded output of one reflection cycle.
type reflectionExtraction struct {
	DriftTalkDelta       float64  `json:"drift_talk_delta"`
	DriftPositivityDelta float64  `json:"drift_positivity_delta"`
	DriftSnarkDelta      float64  `json:"drift_snark_delta"`
	MemoryItems          []string `json:"memory_items"`
}

// extract calls the Generator in a JSON-extraction framing. Deterministic
// and stub generators cannot produce structured output: they return plain
// text for this synthetic trigger, and an empty or non-JSON reply is treated
// as "nothing to extract" rather than failure — reflection is best-effort.
func (w *Worker) extract(ctx context.Context, persona chatmodel.PersonaConfig, ownMessages []string) (*reflectionExtraction, error) {
	if err := w.svc.LLMSem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("worker: acquire llm semaphore for reflection: %w", err)
	}
	defer w.svc.LLMSem.Release(1)

	prompt := "Reflect on these recent messages and output a JSON object with keys " +
		"drift_talk_delta, drift_positivity_delta, drift_snark_delta (each in [-0.02,0.02]) " +
		"and memory_items (at most 3 short durable facts, never raw chat lines):\n" +
		strings.Join(ownMessages, "\n")

	gctx := generator.Context{
		Persona: persona,
		Trigger: chatmodel.ChatMessage{Content: prompt},
		MaxChars: 2000,
	}
	raw, err := w.svc.Generator.Generate(ctx, gctx)
	if err != nil {
		return nil, fmt.Errorf("worker: reflection generate: %w", err)
	}
	if raw == "" {
		return nil, nil
	}

	var out reflectionExtraction
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, nil // malformed extraction output, skip this cycle silently
	}
	return &out, nil
}
