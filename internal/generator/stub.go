package generator

import (
	"context"
	"fmt"
)

// Stub looks up a fixture keyed by "{persona_id}::{marker_prefix}", falling
// back to a per-persona default and then a global default.
type Stub struct {
	Fixtures      map[string]string // "{persona_id}::{marker}" -> line
	PersonaDefault map[string]string // persona_id -> line
	GlobalDefault string
}

// NewStub builds an empty Stub with a conservative global default.
func NewStub() *Stub {
	return &Stub{
		Fixtures:       make(map[string]string),
		PersonaDefault: make(map[string]string),
		GlobalDefault:  "...",
	}
}

func (s *Stub) Generate(_ context.Context, gctx Context) (string, error) {
	if gctx.IsE2EForced && gctx.MarkerDetected != "" {
		key := fmt.Sprintf("%s::%s", gctx.Persona.ID, gctx.MarkerDetected)
		if line, ok := s.Fixtures[key]; ok {
			return line, nil
		}
	}
	if line, ok := s.PersonaDefault[gctx.Persona.ID]; ok {
		return line, nil
	}
	return s.GlobalDefault, nil
}
