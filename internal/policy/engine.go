// Package policy implements the per-(room, persona) posting decision:
// deterministic force, bot-origin suppression, cooldown, budget, a weighted
// probability computation, and a deterministic probability gate — in that
// order, first-match-wins on suppression (spec.md §4.5).
package policy

import (
	"strings"
	"time"

	"github.com/chatsim/chatsim/internal/chatmodel"
)

// PersonaState is the mutable per-(room, persona) state the worker owns.
type PersonaState struct {
	LastPostTS     int64 // UTC ms; 0 means "never posted"
	PostsInWindow  []int64 // UTC ms timestamps of posts within the budget window, oldest-first
	Talkativeness  float64 // from PersonaDrift.Talkativeness.Value, biases p_base
}

// ChatWindowView is the subset of roombuf.ChatWindow the engine needs.
type ChatWindowView interface {
	RatePerSec(room string, windowS float64) float64
	BotFraction(room string, windowS float64) float64
	MentionHits(room, personaDisplay string, withinS float64) int
}

// ObservationView is the subset of roombuf.ObservationBuffer the engine needs.
type ObservationView interface {
	Latest(room string, n int) []chatmodel.StreamObservation
}

// Decision is the Policy Engine's output for one evaluation.
type Decision struct {
	Outcome string // chatmodel.DecisionPost or DecisionSkip
	Reason  string
	Tags    map[string]float64
}

// Engine evaluates posting decisions for one process. It is stateless; all
// mutable state lives in the caller-owned PersonaState.
type Engine struct {
	Cfg Config
}

// NewEngine builds an engine with the given weights.
func NewEngine(cfg Config) *Engine {
	return &Engine{Cfg: cfg}
}

func hasMarkerPrefix(content string, prefixes []string) (string, bool) {
	for _, p := range prefixes {
		if idx := strings.Index(content, p); idx >= 0 {
			return p, true
		}
	}
	return "", false
}

// Evaluate runs the full order of evaluation from spec.md §4.5.
func (e *Engine) Evaluate(
	room chatmodel.RoomConfig,
	persona chatmodel.PersonaConfig,
	state PersonaState,
	trigger chatmodel.ChatMessage,
	chat ChatWindowView,
	obs ObservationView,
	now time.Time,
) Decision {
	nowMS := now.UnixMilli()
	tags := map[string]float64{}

	// 1. Deterministic force.
	triggerAgeMS := nowMS - trigger.TS
	if _, ok := hasMarkerPrefix(trigger.Content, e.Cfg.MarkerPrefixes); ok &&
		trigger.Origin != chatmodel.OriginBot &&
		(room.MaxTriggerAgeMS <= 0 || triggerAgeMS <= room.MaxTriggerAgeMS) {
		return Decision{Outcome: chatmodel.DecisionPost, Reason: chatmodel.ReasonE2EForced, Tags: tags}
	}

	// 2. Bot-origin suppression, unless the trigger mentions/replies to this persona.
	if trigger.Origin == chatmodel.OriginBot && !mentionsThisPersona(trigger, persona.DisplayName) {
		return Decision{Outcome: chatmodel.DecisionSkip, Reason: chatmodel.ReasonBotOrigin, Tags: tags}
	}

	// 3. Cooldown.
	if state.LastPostTS > 0 && nowMS-state.LastPostTS < room.CooldownMS {
		return Decision{Outcome: chatmodel.DecisionSkip, Reason: chatmodel.ReasonCooldown, Tags: tags}
	}

	// 4. Budget: count posts within the last W seconds.
	windowStart := nowMS - int64(room.Budget.W)*1000
	inWindow := 0
	for _, ts := range state.PostsInWindow {
		if ts >= windowStart {
			inWindow++
		}
	}
	tags["posts_in_window"] = float64(inWindow)
	if room.Budget.N > 0 && inWindow >= room.Budget.N {
		return Decision{Outcome: chatmodel.DecisionSkip, Reason: chatmodel.ReasonBudget, Tags: tags}
	}

	// 5. Probability computation.
	pBase := 0.05 + 0.10*clamp01(state.Talkativeness)
	p := pBase * nonZero(room.HypeMultiplier, 1)

	eventStrength := latestHype(obs, room.RoomID)
	p *= 1 + e.Cfg.AlphaEvent*eventStrength

	mentionWindow := e.Cfg.MentionWindowS
	if room.MentionWindowS > 0 {
		mentionWindow = float64(room.MentionWindowS)
	}
	mentioned := chat != nil && chat.MentionHits(room.RoomID, persona.DisplayName, mentionWindow) > 0
	if mentioned {
		p *= e.Cfg.BetaMention
	}

	velocity := 0.0
	botFraction := 0.0
	if chat != nil {
		velocity = normalizedVelocity(chat.RatePerSec(room.RoomID, 10))
		botFraction = chat.BotFraction(room.RoomID, 10)
	}
	p *= 1 + e.Cfg.AlphaTrend*velocity
	p *= 1 - e.Cfg.GammaBot*botFraction

	cap := room.ProbabilityCeiling
	if cap <= 0 || cap > 0.95 {
		cap = 0.95
	}
	p = clamp(p, 0, cap)

	tags["p_base"] = pBase
	tags["p_used"] = p
	tags["rate_10s"] = velocity
	tags["h_value"] = eventStrength
	tags["bot_fraction"] = botFraction
	if mentioned {
		tags["mention_boost"] = e.Cfg.BetaMention
	}

	// 6. Deterministic probability gate.
	u := DeterministicDraw(room.RoomID, persona.ID, trigger.ID)
	tags["u"] = u
	if u < p {
		return Decision{Outcome: chatmodel.DecisionPost, Reason: "", Tags: tags}
	}
	return Decision{Outcome: chatmodel.DecisionSkip, Reason: chatmodel.ReasonProbabilityGate, Tags: tags}
}

func mentionsThisPersona(msg chatmodel.ChatMessage, displayName string) bool {
	lower := strings.ToLower(displayName)
	for _, m := range msg.Mentions {
		if strings.ToLower(m) == lower {
			return true
		}
	}
	return strings.Contains(strings.ToLower(msg.Content), "@"+lower)
}

func latestHype(obs ObservationView, room string) float64 {
	if obs == nil {
		return 0
	}
	latest := obs.Latest(room, 1)
	if len(latest) == 0 {
		return 0
	}
	return clamp01(latest[0].HypeLevel)
}

// normalizedVelocity maps a messages/sec rate onto roughly [0,1] for use as
// a probability multiplier input; 5 msg/s is treated as "very active".
func normalizedVelocity(ratePerSec float64) float64 {
	return clamp01(ratePerSec / 5.0)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 { return clamp(v, 0, 1) }

func nonZero(v, fallback float64) float64 {
	if v == 0 {
		return fallback
	}
	return v
}
