package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/chatsim/chatsim/internal/chatmodel"
)

// reactiveLoop group-reads the firehose and, for every enrolled persona,
// asks the Policy Engine whether to respond (spec.md §4.7 "Reactive loop").
func (w *Worker) reactiveLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		entries, err := w.svc.Bus.GroupRead(ctx, StreamFirehose, ConsumerGroup, w.consumerName, 32, 2000)
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			slog.Warn("worker: firehose read failed", "room", w.room.RoomID, "error", err)
			if !sleepOrDone(ctx, jitter()) {
				return nil
			}
			continue
		}

		for _, entry := range entries {
			var msg chatmodel.ChatMessage
			if err := json.Unmarshal(entry.Data, &msg); err != nil {
				slog.Warn("worker: malformed firehose entry, acking and skipping", "id", entry.ID, "error", err)
				_ = w.svc.Bus.Ack(ctx, StreamFirehose, ConsumerGroup, entry.ID)
				continue
			}
			w.chat.Add(msg)
			w.handleReactive(ctx, msg)
			_ = w.svc.Bus.Ack(ctx, StreamFirehose, ConsumerGroup, entry.ID)
		}

		if len(entries) == 0 {
			if !sleepOrDone(ctx, jitter()) {
				return nil
			}
		}
	}
}

func (w *Worker) handleReactive(ctx context.Context, trigger chatmodel.ChatMessage) {
	now := w.svc.Now()
	for _, entry := range w.personaSnapshot() {
		personaID, persona := entry.ID, entry.Persona
		rt := w.runtimes[personaID]
		if rt.SeenTrigger(trigger.ID, now) {
			continue
		}

		decision := w.svc.Policy.Evaluate(w.room, persona, rt.Snapshot(), trigger, w.chat, w.obs, now)
		w.emitDecisionSpan(ctx, personaID, trigger.ID, decision)

		if decision.Outcome != chatmodel.DecisionPost {
			continue
		}

		reflectEvery := w.room.ReflectionMessageCount
		posted, err := w.generateAndPublish(ctx, persona, rt, trigger, decision, ProducerReactive)
		if err != nil {
			slog.Warn("worker: reactive publish failed", "persona", personaID, "error", err)
			continue
		}
		if posted == "" {
			continue // generator returned empty; nothing to count as an own message
		}
		if rt.RecordOwnMessage(posted, reflectEvery) {
			w.runReflection(ctx, personaID, persona, rt)
		}
	}
}
