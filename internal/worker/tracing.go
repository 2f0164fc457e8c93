package worker

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/chatsim/chatsim/internal/chatmodel"
	"github.com/chatsim/chatsim/internal/policy"
)

var tracer = otel.Tracer("chatsim/worker")

// emitDecisionSpan records one Policy Engine evaluation as a span, the
// generalized form of the teacher's emitLLMSpan (trace-id-from-context,
// span start/end wrapping one unit of decision work) applied to a decision
// instead of an LLM call.
func (w *Worker) emitDecisionSpan(ctx context.Context, personaID, triggerID string, decision policy.Decision) {
	_, span := tracer.Start(ctx, "policy.evaluate", trace.WithAttributes(
		attribute.String("room_id", w.room.RoomID),
		attribute.String("persona_id", personaID),
		attribute.String("trigger_id", triggerID),
		attribute.String("decision", decision.Outcome),
		attribute.String("reason", decision.Reason),
	))
	for k, v := range decision.Tags {
		span.SetAttributes(attribute.Float64("tag."+k, v))
	}
	if decision.Outcome == chatmodel.DecisionSkip && decision.Reason != "" {
		span.SetStatus(codes.Ok, decision.Reason)
	}
	span.End()

	reason := decision.Reason
	if reason == "" {
		reason = decision.Outcome
	}
	w.stats.RecordDecision(reason)
}
