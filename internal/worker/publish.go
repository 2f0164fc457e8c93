package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/chatsim/chatsim/internal/chatmodel"
	"github.com/chatsim/chatsim/internal/generator"
	"github.com/chatsim/chatsim/internal/policy"
)

// generateAndPublish runs the Generator under the LLM concurrency semaphore,
// enforces Safety, and publishes the resulting ChatMessage on
// stream:chat.ingest. Returns the post-processed, post-safety text that was
// published (or "" if generation yielded nothing or Safety dropped it) so
// callers can feed the reflection loop's own-message window.
func (w *Worker) generateAndPublish(
	ctx context.Context,
	persona chatmodel.PersonaConfig,
	rt *PersonaRuntime,
	trigger chatmodel.ChatMessage,
	decision policy.Decision,
	producer string,
) (string, error) {
	isE2E := decision.Reason == chatmodel.ReasonE2EForced
	return w.generate(ctx, persona, rt, trigger, "", isE2E, producer)
}

// generateAndPublishAuto is the auto-commentary path: the observation
// summary is passed separately from the trigger so a persona's voice can
// react to "what's happening" without ever being asked to echo it back.
func (w *Worker) generateAndPublishAuto(ctx context.Context, persona chatmodel.PersonaConfig, rt *PersonaRuntime, trigger chatmodel.ChatMessage, obs chatmodel.StreamObservation) (string, error) {
	return w.generate(ctx, persona, rt, trigger, obs.Summary, false, ProducerAuto)
}

func (w *Worker) generate(
	ctx context.Context,
	persona chatmodel.PersonaConfig,
	rt *PersonaRuntime,
	trigger chatmodel.ChatMessage,
	observationSummary string,
	isE2E bool,
	producer string,
) (string, error) {
	if err := w.svc.LLMSem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("worker: acquire llm semaphore: %w", err)
	}
	defer w.svc.LLMSem.Release(1)

	maxChars := w.room.MaxChars
	if maxChars <= 0 {
		maxChars = 280
	}

	gctx := generator.Context{
		Persona:            persona,
		DriftSummary:       driftSummary(rt.DriftSnapshot()),
		Trigger:            trigger,
		IsE2EForced:        isE2E,
		MarkerDetected:     markerIn(trigger.Content, w.svc.Policy.Cfg.MarkerPrefixes),
		RecentChat:         w.chat.Recent(w.room.RoomID, 10),
		ObservationSummary: observationSummary,
		MemoryBullets:      w.memoryBullets(ctx, persona, trigger.Content),
		MaxChars:           maxChars,
	}

	raw, err := w.svc.Generator.Generate(ctx, gctx)
	if err != nil {
		return "", fmt.Errorf("worker: generate: %w", err)
	}
	text := generator.PostProcess(raw, maxChars)
	if text == "" {
		return "", nil
	}

	if producer == ProducerAuto && violatesAutoPatterns(text) {
		return "", fmt.Errorf("worker: generated auto-commentary leaked observation metadata, dropped")
	}

	safeText, moderation := w.svc.Safety.Apply(text)
	if moderation.Action == chatmodel.ModerationDrop {
		return "", nil
	}

	now := w.svc.Now()
	out := chatmodel.ChatMessage{
		Envelope: chatmodel.Envelope{
			SchemaName:    chatmodel.SchemaChatMessage,
			SchemaVersion: 1,
			ID:            uuid.NewString(),
			TS:            now.UnixMilli(),
			RoomID:        w.room.RoomID,
		},
		Origin:      chatmodel.OriginBot,
		UserID:      persona.ID,
		DisplayName: persona.DisplayName,
		Content:     safeText,
		Moderation:  &moderation,
		Trace:       &chatmodel.Trace{Producer: producer, GatewayTS: now.UnixMilli()},
	}
	out.Trace.AppendProcessedBy(producer)

	payload, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("worker: marshal chat message: %w", err)
	}
	if _, err := w.svc.Bus.Publish(ctx, StreamIngest, payload); err != nil {
		return "", fmt.Errorf("worker: publish: %w", err)
	}

	rt.RecordPost(now.UnixMilli(), w.room.Budget.W)
	if producer == ProducerAuto {
		rt.RecordAutoPost(now.UnixMilli())
	}
	w.stats.IncMessagesPublished()
	return safeText, nil
}

// memoryBullets best-effort fetches topK memory hits for the prompt; failures
// degrade silently per the Memory Adapter's contract.
func (w *Worker) memoryBullets(ctx context.Context, persona chatmodel.PersonaConfig, query string) []string {
	if w.svc.Memory == nil {
		return nil
	}
	if err := w.svc.MemSem.Acquire(ctx, 1); err != nil {
		return nil
	}
	defer w.svc.MemSem.Release(1)

	memCtx, cancel := context.WithTimeout(ctx, w.svc.MemTimeout)
	defer cancel()

	items := w.svc.Memory.Search(memCtx, w.room.RoomID, persona.ID, query, 6)
	bullets := make([]string, 0, len(items))
	for _, it := range items {
		bullets = append(bullets, it.Content)
	}
	return bullets
}

func driftSummary(d chatmodel.PersonaDrift) string {
	return fmt.Sprintf("talkativeness=%.2f positivity=%.2f snark=%.2f",
		d.Talkativeness.Value, d.Positivity.Value, d.Snark.Value)
}

func markerIn(content string, prefixes []string) string {
	for _, p := range prefixes {
		if strings.Contains(content, p) {
			return p
		}
	}
	return ""
}

func violatesAutoPatterns(text string) bool {
	for _, re := range forbiddenAutoPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
