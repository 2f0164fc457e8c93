// Package safety implements the moderation pipeline: normalize, then check
// blocklist/PII patterns, producing an allow/redact/drop decision. The
// staged-pipeline shape (each stage independently testable, content flows
// through in sequence) is grounded on the teacher's
// agent.SanitizeAssistantContent pipeline, generalized from "strip LLM
// artifacts" to "normalize + moderate chat content".
package safety

import (
	"regexp"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/chatsim/chatsim/internal/chatmodel"
)

// Filter applies the moderation policy to chat content.
type Filter struct {
	MaxChars  int
	Blocklist []string
	blockLower []string
}

// NewFilter builds a Filter with the given max_chars and blocklist terms.
func NewFilter(maxChars int, blocklist []string) *Filter {
	lower := make([]string, len(blocklist))
	for i, b := range blocklist {
		lower[i] = strings.ToLower(b)
	}
	return &Filter{MaxChars: maxChars, Blocklist: blocklist, blockLower: lower}
}

var (
	controlCharPattern = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
	whitespaceRunPattern = regexp.MustCompile(`[ \t]+`)
	emailPattern = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	phonePattern = regexp.MustCompile(`(\+?\d[\d\-. ]{8,}\d)`)
	addressPattern = regexp.MustCompile(`(?i)\b\d{1,6}\s+[a-z0-9. ]{3,40}\s+(street|st|avenue|ave|road|rd|blvd|lane|ln)\b`)
)

// ContainsPII reports whether content matches one of the email/phone/address
// patterns Apply also redacts. Exported so components that persist content
// outside the chat pipeline (the Memory Adapter) can reject PII-bearing
// writes outright rather than redact-and-keep.
func ContainsPII(content string) bool {
	return emailPattern.MatchString(content) || phonePattern.MatchString(content) || addressPattern.MatchString(content)
}

// Normalize strips control chars, collapses newlines to a single line,
// collapses internal whitespace runs, and truncates to MaxChars using
// display-width-aware truncation (so multi-byte runes aren't chopped mid-codepoint).
func (f *Filter) Normalize(content string) string {
	content = controlCharPattern.ReplaceAllString(content, "")
	content = strings.ReplaceAll(content, "\r\n", " ")
	content = strings.ReplaceAll(content, "\n", " ")
	content = strings.ReplaceAll(content, "\r", " ")
	content = whitespaceRunPattern.ReplaceAllString(content, " ")
	content = strings.TrimSpace(content)
	if f.MaxChars > 0 && runewidth.StringWidth(content) > f.MaxChars {
		content = runewidth.Truncate(content, f.MaxChars, "")
	}
	return content
}

// Apply runs the full pipeline and returns the (possibly redacted) content
// plus the ModerationMeta describing what happened.
func (f *Filter) Apply(content string) (string, chatmodel.ModerationMeta) {
	normalized := f.Normalize(content)
	if normalized == "" {
		return "", chatmodel.ModerationMeta{Action: chatmodel.ModerationDrop, Reasons: []string{"empty_after_normalize"}}
	}

	meta := chatmodel.ModerationMeta{Action: chatmodel.ModerationAllow}
	result := normalized

	lower := strings.ToLower(result)
	for i, term := range f.blockLower {
		if term == "" {
			continue
		}
		if strings.Contains(lower, term) {
			meta.Action = chatmodel.ModerationDrop
			meta.Reasons = append(meta.Reasons, "blocklist:"+f.Blocklist[i])
		}
	}
	if meta.Action == chatmodel.ModerationDrop {
		return result, meta
	}

	if emailPattern.MatchString(result) {
		result = emailPattern.ReplaceAllString(result, "[REDACTED]")
		meta.Action = chatmodel.ModerationRedact
		meta.Reasons = append(meta.Reasons, "pii_email")
		meta.Redactions = append(meta.Redactions, "email")
	}
	if phonePattern.MatchString(result) {
		result = phonePattern.ReplaceAllString(result, "[REDACTED]")
		meta.Action = chatmodel.ModerationRedact
		meta.Reasons = append(meta.Reasons, "pii_phone")
		meta.Redactions = append(meta.Redactions, "phone")
	}
	if addressPattern.MatchString(result) {
		result = addressPattern.ReplaceAllString(result, "[REDACTED]")
		meta.Action = chatmodel.ModerationRedact
		meta.Reasons = append(meta.Reasons, "pii_address")
		meta.Redactions = append(meta.Redactions, "address")
	}

	return result, meta
}
