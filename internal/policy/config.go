package policy

// Config bundles the enumerated marker prefixes and probability weights
// spec.md §9 asks to collect into "a single PolicyConfig" rather than
// scattering feature toggles and magic markers through the codebase.
type Config struct {
	MarkerPrefixes []string

	AlphaEvent float64 // alpha_event, boost for observation "event_strength"
	BetaMention float64 // beta_mention, multiplier when mentioned recently
	AlphaTrend float64 // alpha_trend, boost for chat velocity
	GammaBot   float64 // gamma_bot, dampener for bot-heavy chat

	MentionWindowS float64
}

// DefaultConfig returns the spec's documented default weights.
func DefaultConfig() Config {
	return Config{
		MarkerPrefixes: []string{"E2E_TEST_", "E2E_MARKER_", "E2E_TEST_BOTLOOP_"},
		AlphaEvent:     1.5,
		BetaMention:    3.0,
		AlphaTrend:     0.8,
		GammaBot:       0.7,
		MentionWindowS: 30,
	}
}
