package chatmodel

// DriftKnob is a single bounded, slowly-mutating persona trait.
// Reflection changes Value by at most ±0.02 per cycle, clamped to [Min, Max].
type DriftKnob struct {
	Value float64 `json:"value"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

func (k *DriftKnob) Clamp() {
	if k.Value < k.Min {
		k.Value = k.Min
	}
	if k.Value > k.Max {
		k.Value = k.Max
	}
}

// Nudge moves Value by delta, clamping both to the knob's bounds and to the
// per-cycle maximum magnitude the reflection loop is allowed to apply.
func (k *DriftKnob) Nudge(delta, maxStep float64) {
	if delta > maxStep {
		delta = maxStep
	}
	if delta < -maxStep {
		delta = -maxStep
	}
	k.Value += delta
	k.Clamp()
}

// PersonaDrift bundles the knobs the reflection loop may adjust.
type PersonaDrift struct {
	Talkativeness DriftKnob `json:"talkativeness"`
	Positivity    DriftKnob `json:"positivity"`
	Snark         DriftKnob `json:"snark"`
}

// PersonaConfig holds a persona's stable anchors and mutable drift knobs.
type PersonaConfig struct {
	ID               string       `json:"id"`
	DisplayName      string       `json:"display_name"`
	VoiceRules       []string     `json:"voice_rules,omitempty"`
	HardNeverCategories []string  `json:"hard_never_categories,omitempty"`
	Catchphrases     []string     `json:"catchphrases,omitempty"`
	SystemPrompt     string       `json:"system_prompt,omitempty"`
	Drift            PersonaDrift `json:"drift"`
	AutoCooldownMS   int64        `json:"auto_cooldown_ms,omitempty"`
	HypeThreshold    float64      `json:"hype_threshold,omitempty"` // observation-driven auto gate
}

// BudgetConfig bounds N posts within a sliding window of W seconds.
type BudgetConfig struct {
	N int `json:"n"`
	W int `json:"w_seconds"`
}

// FeatureFlags toggles optional room behavior.
type FeatureFlags struct {
	AutoCommentaryEnabled bool   `json:"auto_commentary_enabled,omitempty"`
	ReflectionCron        string `json:"reflection_cron,omitempty"` // cron expr gating the reflection sweep; empty = interval-only
}

// RoomConfig is loaded at startup and treated as immutable during a run.
type RoomConfig struct {
	RoomID            string       `json:"room_id"`
	EnabledPersonas   []string     `json:"enabled_personas"`
	HypeMultiplier    float64      `json:"hype_multiplier"`    // M_room
	ProbabilityCeiling float64     `json:"probability_ceiling"` // p_cap, <=0.95
	Budget            BudgetConfig `json:"budget"`
	CooldownMS        int64        `json:"cooldown_ms"`
	Features          FeatureFlags `json:"features"`
	MaxChars          int          `json:"max_chars"`
	MentionWindowS    int          `json:"mention_window_s"`
	MaxTriggerAgeMS   int64        `json:"max_trigger_age_ms"`
	ReflectionIntervalS   int      `json:"reflection_interval_s"`
	ReflectionMessageCount int     `json:"reflection_message_count"`
}

// MemoryItemType enumerates the allowed MemoryItem.Type values.
type MemoryItemType string

const (
	MemoryRelationship MemoryItemType = "relationship"
	MemoryCatchphrase  MemoryItemType = "catchphrase"
	MemoryPreference   MemoryItemType = "preference"
	MemoryLoreEvent    MemoryItemType = "lore_event"
	MemoryPersonaDrift MemoryItemType = "persona_drift"
	MemoryNote         MemoryItemType = "note"
)

var AllowedMemoryTypes = map[MemoryItemType]bool{
	MemoryRelationship: true,
	MemoryCatchphrase:  true,
	MemoryPreference:   true,
	MemoryLoreEvent:     true,
	MemoryPersonaDrift: true,
	MemoryNote:         true,
}

// Confidence is a coarse reliability grade for a MemoryItem.
type Confidence string

const (
	ConfidenceLow  Confidence = "low"
	ConfidenceMed  Confidence = "med"
	ConfidenceHigh Confidence = "high"
)

// MemoryItem is a durable fact extracted by reflection.
type MemoryItem struct {
	Namespace  string         `json:"namespace"`
	Type       MemoryItemType `json:"type"`
	OtherUser  string         `json:"other_user,omitempty"`
	Topic      string         `json:"topic,omitempty"`
	Confidence Confidence     `json:"confidence"`
	Source     string         `json:"source"`
	Content    string         `json:"content"`
	CreatedAt  int64          `json:"created_at"`
}

// DecisionRecord captures one Policy Engine evaluation for telemetry.
type DecisionRecord struct {
	RoomID    string             `json:"room_id"`
	PersonaID string             `json:"persona_id"`
	TriggerID string             `json:"trigger_id"`
	Decision  string             `json:"decision"` // "post" or "skip"
	Reason    string             `json:"reason"`
	Tags      map[string]float64 `json:"tags,omitempty"`
	TS        int64              `json:"ts"`
}

const (
	DecisionPost = "post"
	DecisionSkip = "skip"
)

// Policy reasons (spec.md glossary).
const (
	ReasonE2EForced       = "e2e_forced"
	ReasonBotOrigin       = "bot_origin"
	ReasonCooldown        = "cooldown"
	ReasonBudget          = "budget"
	ReasonProbabilityGate = "probability_gate"
	ReasonGenEmpty        = "gen_empty"
)
