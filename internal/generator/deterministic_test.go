package generator

import (
	"context"
	"testing"

	"github.com/chatsim/chatsim/internal/chatmodel"
)

func TestDeterministicE2EForcedEchoesMarkerInsideCatchphrase(t *testing.T) {
	d := NewDeterministic()
	gctx := Context{
		Persona:        chatmodel.PersonaConfig{ID: "spark", Catchphrases: []string{"yo"}},
		Trigger:        chatmodel.ChatMessage{Envelope: chatmodel.Envelope{ID: "t1"}},
		IsE2EForced:    true,
		MarkerDetected: "E2E_TEST_",
	}
	out, err := d.Generate(context.Background(), gctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "yo E2E_TEST_" {
		t.Fatalf("expected catchphrase envelope around the marker, got %q", out)
	}
}

func TestDeterministicE2EForcedWithoutCatchphrasesEchoesMarkerPlain(t *testing.T) {
	d := NewDeterministic()
	gctx := Context{
		Persona:        chatmodel.PersonaConfig{ID: "spark"},
		Trigger:        chatmodel.ChatMessage{Envelope: chatmodel.Envelope{ID: "t1"}},
		IsE2EForced:    true,
		MarkerDetected: "E2E_TEST_",
	}
	out, _ := d.Generate(context.Background(), gctx)
	if out != "E2E_TEST_" {
		t.Fatalf("expected the bare marker with no catchphrase, got %q", out)
	}
}

func TestDeterministicNonForcedIsStableForSameKey(t *testing.T) {
	d := NewDeterministic()
	gctx := Context{
		Persona: chatmodel.PersonaConfig{ID: "spark"},
		Trigger: chatmodel.ChatMessage{Envelope: chatmodel.Envelope{ID: "t1"}},
	}
	a, _ := d.Generate(context.Background(), gctx)
	b, _ := d.Generate(context.Background(), gctx)
	if a != b {
		t.Fatalf("expected the same (persona, trigger id) to select the same template, got %q and %q", a, b)
	}
	found := false
	for _, tmpl := range d.Templates {
		if tmpl == a {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected output to be one of the configured templates, got %q", a)
	}
}
