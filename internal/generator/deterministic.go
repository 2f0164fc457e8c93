package generator

import (
	"context"
	"fmt"
	"hash/maphash"
)

// Deterministic produces stable, reproducible fixtures: if the trigger was
// e2e_forced, it echoes the detected marker inside a persona catchphrase
// envelope; otherwise it seeds a template choice by (persona, trigger.id).
type Deterministic struct {
	Templates []string // generic, persona-agnostic fallback templates
}

// NewDeterministic returns a Deterministic generator with sensible defaults.
func NewDeterministic() *Deterministic {
	return &Deterministic{
		Templates: []string{
			"wait what",
			"lol no way",
			"let's gooo",
			"hm, interesting",
			"okay that's actually wild",
		},
	}
}

var templateSeed = maphash.MakeSeed()

func templateIndex(persona, triggerID string, n int) int {
	if n <= 0 {
		return 0
	}
	var h maphash.Hash
	h.SetSeed(templateSeed)
	h.WriteString(persona)
	h.WriteByte(0)
	h.WriteString(triggerID)
	return int(h.Sum64() % uint64(n))
}

func (d *Deterministic) Generate(_ context.Context, gctx Context) (string, error) {
	if gctx.IsE2EForced {
		envelope := "%s"
		if len(gctx.Persona.Catchphrases) > 0 {
			idx := templateIndex(gctx.Persona.ID, gctx.Trigger.ID, len(gctx.Persona.Catchphrases))
			envelope = gctx.Persona.Catchphrases[idx] + " %s"
		}
		return fmt.Sprintf(envelope, gctx.MarkerDetected), nil
	}

	templates := d.Templates
	if len(templates) == 0 {
		templates = NewDeterministic().Templates
	}
	idx := templateIndex(gctx.Persona.ID, gctx.Trigger.ID, len(templates))
	return templates[idx], nil
}
