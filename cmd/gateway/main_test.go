package main

import "testing"

func TestResolveConfigPathDefaultsWhenUnset(t *testing.T) {
	prevFlag := cfgPath
	cfgPath = ""
	t.Cleanup(func() { cfgPath = prevFlag })

	t.Setenv("CHATSIM_CONFIG", "")
	if got := resolveConfigPath(); got != "config.json5" {
		t.Fatalf("expected default config.json5, got %q", got)
	}
}

func TestResolveConfigPathHonorsEnv(t *testing.T) {
	prevFlag := cfgPath
	cfgPath = ""
	t.Cleanup(func() { cfgPath = prevFlag })

	t.Setenv("CHATSIM_CONFIG", "/etc/chatsim/gateway.json5")
	if got := resolveConfigPath(); got != "/etc/chatsim/gateway.json5" {
		t.Fatalf("expected env override, got %q", got)
	}
}

func TestResolveConfigPathPrefersFlag(t *testing.T) {
	prevFlag := cfgPath
	cfgPath = "/explicit/path.json5"
	t.Cleanup(func() { cfgPath = prevFlag })

	t.Setenv("CHATSIM_CONFIG", "/etc/chatsim/gateway.json5")
	if got := resolveConfigPath(); got != "/explicit/path.json5" {
		t.Fatalf("expected the flag value to win over env, got %q", got)
	}
}
