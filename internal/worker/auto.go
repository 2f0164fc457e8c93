package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/chatsim/chatsim/internal/chatmodel"
	"github.com/chatsim/chatsim/internal/policy"
)

// autoLoop consumes stream:observations, updates the Observation Buffer,
// and for each enrolled persona whose auto gate fires (hype threshold +
// per-persona cooldown) runs the generate/safety/publish path with
// trace.producer=persona_worker_auto (spec.md §4.7 "Auto-commentary loop").
func (w *Worker) autoLoop(ctx context.Context) error {
	if !w.room.Features.AutoCommentaryEnabled {
		<-ctx.Done()
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		entries, err := w.svc.Bus.GroupRead(ctx, StreamObservations, ConsumerGroup, w.consumerName, 16, 2000)
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			slog.Warn("worker: observations read failed", "room", w.room.RoomID, "error", err)
			if !sleepOrDone(ctx, jitter()) {
				return nil
			}
			continue
		}

		for _, entry := range entries {
			var obs chatmodel.StreamObservation
			if err := json.Unmarshal(entry.Data, &obs); err != nil {
				slog.Warn("worker: malformed observation entry, acking and skipping", "id", entry.ID, "error", err)
				_ = w.svc.Bus.Ack(ctx, StreamObservations, ConsumerGroup, entry.ID)
				continue
			}
			w.obs.Add(obs)
			w.stats.IncObservationsReceived()
			w.handleAuto(ctx, obs)
			_ = w.svc.Bus.Ack(ctx, StreamObservations, ConsumerGroup, entry.ID)
		}

		if len(entries) == 0 {
			if !sleepOrDone(ctx, jitter()) {
				return nil
			}
		}
	}
}

// budgetExhausted applies the same budget_N-within-window_W cap
// policy.Engine.Evaluate enforces on the reactive path (spec.md §3's
// unconditional post-rate invariant), since auto-commentary posts build a
// Decision by hand instead of calling Evaluate.
func budgetExhausted(rt *PersonaRuntime, room chatmodel.RoomConfig, nowMS int64) bool {
	if room.Budget.N <= 0 {
		return false
	}
	windowStart := nowMS - int64(room.Budget.W)*1000
	inWindow := 0
	for _, ts := range rt.Snapshot().PostsInWindow {
		if ts >= windowStart {
			inWindow++
		}
	}
	return inWindow >= room.Budget.N
}

func (w *Worker) handleAuto(ctx context.Context, obs chatmodel.StreamObservation) {
	if obs.Safety.Flagged {
		return
	}
	now := w.svc.Now()
	nowMS := now.UnixMilli()

	for _, entry := range w.personaSnapshot() {
		personaID, persona := entry.ID, entry.Persona
		rt := w.runtimes[personaID]

		threshold := persona.HypeThreshold
		if threshold <= 0 {
			threshold = 0.6
		}
		if obs.HypeLevel < threshold {
			continue
		}
		cooldownMS := persona.AutoCooldownMS
		if cooldownMS <= 0 {
			cooldownMS = w.room.CooldownMS
		}
		if !rt.AutoCooldownElapsed(nowMS, cooldownMS) {
			continue
		}
		if budgetExhausted(rt, w.room, nowMS) {
			continue
		}

		// Synthesize a trigger so the generator's prompt assembly has a
		// uniform shape; its content never reaches the output (the
		// forbidden-pattern check in generateAndPublish guards that).
		trigger := chatmodel.ChatMessage{
			Envelope: chatmodel.Envelope{ID: obs.ID, TS: obs.TS, RoomID: obs.RoomID},
			Origin:   chatmodel.OriginSystem,
			Content:  obs.Summary,
		}
		decision := policy.Decision{Outcome: chatmodel.DecisionPost, Reason: "", Tags: map[string]float64{"hype_level": obs.HypeLevel}}
		w.emitDecisionSpan(ctx, personaID, obs.ID, decision)

		posted, err := w.generateAndPublishAuto(ctx, persona, rt, trigger, obs)
		if err != nil {
			slog.Warn("worker: auto-commentary publish failed", "persona", personaID, "error", err)
			continue
		}
		if posted == "" {
			continue
		}
		if rt.RecordOwnMessage(posted, w.room.ReflectionMessageCount) {
			w.runReflection(ctx, personaID, persona, rt)
		}
	}
}
