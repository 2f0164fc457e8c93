// Package generator produces a single chat line given persona, trigger
// context, recent chat, observation summary, and memory hits. Three modes
// share the Generator interface: deterministic (stable fixtures),
// stub (fixture table lookup), and live (LLM-backed).
package generator

import (
	"context"
	"strings"

	"github.com/chatsim/chatsim/internal/chatmodel"
)

// Context carries everything a Generator needs to produce one line.
type Context struct {
	Persona           chatmodel.PersonaConfig
	DriftSummary      string
	Trigger           chatmodel.ChatMessage
	IsE2EForced       bool
	MarkerDetected    string
	RecentChat        []chatmodel.ChatMessage // human-first sample, <= N lines
	ObservationSummary string
	MemoryBullets     []string
	MaxChars          int
}

// Generator produces a single non-empty chat line, or "" to signal "drop".
type Generator interface {
	Generate(ctx context.Context, gctx Context) (string, error)
}

// PostProcess strips leading/trailing whitespace, removes newlines,
// collapses internal whitespace runs, strips a leading "@" token, and
// truncates to maxChars. Applied after every Generator mode per spec.md §4.6.
func PostProcess(s string, maxChars int) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	fields := strings.Fields(s)
	s = strings.Join(fields, " ")
	s = strings.TrimPrefix(s, "@")
	if maxChars > 0 {
		if runes := []rune(s); len(runes) > maxChars {
			s = string(runes[:maxChars])
		}
	}
	return strings.TrimSpace(s)
}
