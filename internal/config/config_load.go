package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/titanous/json5"

	"github.com/chatsim/chatsim/internal/chatmodel"
)

// Default returns a Config with the spec's documented defaults.
func Default() *Config {
	return &Config{
		Redis: RedisConfig{URL: "localhost:6379"},
		Streams: StreamsConfig{
			Ingest:       "stream:chat.ingest",
			Firehose:     "stream:chat.firehose",
			Observations: "stream:observations",
			Frames:       "stream:frames",
			Transcripts:  "stream:transcripts",
		},
		Memory:    MemoryConfig{SQLitePath: "chatsim_memory.db"},
		Generator: GeneratorConfig{Mode: "deterministic", Timeout: 3 * time.Second},
		Concurrency: ConcurrencyConfig{
			MaxLLMConcurrency: 8,
			MaxMemConcurrency: 8,
		},
		Gateway: GatewayConfig{Host: "0.0.0.0", Port: 8080, GraceS: 5},
		Worker:  WorkerConfig{GraceS: 5},
		Perceptor: PerceptorConfig{
			GraceS:     5,
			IntervalMS: 5000,
			FixtureDir: "fixtures/stream",
		},
		Telemetry: TelemetryConfig{ServiceName: "chatsim"},
		Safety:    SafetyConfig{MaxChars: 320},

		RoomConfigPath:   "rooms/room.json5",
		PersonaConfigDir: "personas",
	}
}

// Load reads cfg from a JSON5 file at path, then overlays environment
// variables (env always wins). A missing file is not an error: Default
// plus env overrides is a valid configuration for local/dev runs.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("REDIS_URL", &c.Redis.URL)
	envStr("FIREHOSE_STREAM", &c.Streams.Firehose)
	envStr("INGEST_STREAM", &c.Streams.Ingest)
	envStr("STREAM_OBSERVATIONS_KEY", &c.Streams.Observations)
	envStr("STREAM_FRAMES_KEY", &c.Streams.Frames)
	envStr("STREAM_TRANSCRIPTS_KEY", &c.Streams.Transcripts)

	envStr("ROOM_CONFIG_PATH", &c.RoomConfigPath)
	envStr("PERSONA_CONFIG_DIR", &c.PersonaConfigDir)

	envStr("GENERATION_MODE", &c.Generator.Mode)
	envStr("LLM_BASE_URL", &c.Generator.LLMBaseURL)
	envStr("LLM_API_KEY", &c.Generator.LLMAPIKey)
	envStr("LLM_MODEL", &c.Generator.LLMModel)

	if v := os.Getenv("AUTO_COMMENTARY_ENABLED"); v != "" {
		c.Auto.Enabled = v == "true" || v == "1"
	}
	envStr("AUTO_COMMENTARY_CONFIG_PATH", &c.Auto.ConfigPath)

	envStr("MEMORY_DSN", &c.Memory.DSN)

	if v := os.Getenv("MAX_LLM_CONCURRENCY"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.Concurrency.MaxLLMConcurrency = n
		}
	}
	if v := os.Getenv("MAX_MEM_CONCURRENCY"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.Concurrency.MaxMemConcurrency = n
		}
	}

	if v := os.Getenv("PERSONA_CONFIG_WATCH"); v != "" {
		c.PersonaWatch.Enabled = v == "true" || v == "1"
		c.PersonaWatch.Dir = c.PersonaConfigDir
	}

	envStr("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Telemetry.OTLPEndpoint)

	envStr("PERCEPTOR_FIXTURE_DIR", &c.Perceptor.FixtureDir)
	if v := os.Getenv("PERCEPTOR_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Perceptor.IntervalMS = n
		}
	}

	envStr("GATEWAY_HOST", &c.Gateway.Host)
	if v := os.Getenv("GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Gateway.Port = port
		}
	}
	if v := os.Getenv("GATEWAY_ALLOWED_ORIGINS"); v != "" {
		c.Gateway.AllowedOrigins = strings.Split(v, ",")
	}
}

// LoadRoom reads a single RoomConfig from a JSON5 file.
func LoadRoom(path string) (chatmodel.RoomConfig, error) {
	var room chatmodel.RoomConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return room, fmt.Errorf("config: read room config %s: %w", path, err)
	}
	if err := json5.Unmarshal(data, &room); err != nil {
		return room, fmt.Errorf("config: parse room config %s: %w", path, err)
	}
	return room, nil
}

// LoadPersonas reads every *.json5/*.json file in dir as one PersonaConfig.
func LoadPersonas(dir string) ([]chatmodel.PersonaConfig, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("config: read persona dir %s: %w", dir, err)
	}
	var out []chatmodel.PersonaConfig
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".json5" && ext != ".json" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read persona file %s: %w", path, err)
		}
		var p chatmodel.PersonaConfig
		if err := json5.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("config: parse persona file %s: %w", path, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// MergeAnchors copies only the hot-reloadable anchor fields from incoming
// onto existing — voice rules, hard-never categories, catchphrases, system
// prompt, display name, auto-commentary gate — leaving existing.Drift
// untouched. PERSONA_CONFIG_WATCH never reloads drift knobs or RoomConfig.
func MergeAnchors(existing, incoming chatmodel.PersonaConfig) chatmodel.PersonaConfig {
	existing.DisplayName = incoming.DisplayName
	existing.VoiceRules = incoming.VoiceRules
	existing.HardNeverCategories = incoming.HardNeverCategories
	existing.Catchphrases = incoming.Catchphrases
	existing.SystemPrompt = incoming.SystemPrompt
	existing.AutoCooldownMS = incoming.AutoCooldownMS
	existing.HypeThreshold = incoming.HypeThreshold
	return existing
}
