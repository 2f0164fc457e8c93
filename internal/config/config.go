// Package config loads the per-service configuration every cmd/ entrypoint
// needs: bus connection, stream names, generator backend, concurrency caps,
// and the room/persona definitions loaded from disk. Grounded on the
// teacher's internal/config/{config.go,config_load.go} Default()+Load(path)
// two-step (file via json5.Unmarshal, then env overrides), with fields
// replaced end to end for this domain.
package config

import "time"

// RedisConfig is the bus connection.
type RedisConfig struct {
	URL string `json:"url"`
}

// StreamsConfig names the logical channels spec.md §6 enumerates.
type StreamsConfig struct {
	Ingest       string `json:"ingest"`
	Firehose     string `json:"firehose"`
	Observations string `json:"observations"`
	Frames       string `json:"frames"`
	Transcripts  string `json:"transcripts"`
}

// MemoryConfig selects the Memory Adapter's backing store.
type MemoryConfig struct {
	DSN string `json:"dsn,omitempty"` // Postgres DSN; empty selects the embedded sqlite fallback
	SQLitePath string `json:"sqlite_path,omitempty"`
}

// GeneratorConfig selects and configures the Generator backend.
type GeneratorConfig struct {
	Mode    string `json:"mode"` // "deterministic", "stub", "litellm"
	LLMBaseURL string `json:"llm_base_url,omitempty"`
	LLMAPIKey  string `json:"-"` // from env LLM_API_KEY only
	LLMModel   string `json:"llm_model,omitempty"`
	Timeout    time.Duration `json:"-"`
}

// AutoCommentaryConfig toggles the observation-driven auto loop.
type AutoCommentaryConfig struct {
	Enabled    bool   `json:"enabled"`
	ConfigPath string `json:"config_path,omitempty"`
}

// ConcurrencyConfig bounds LLM and memory call fan-out.
type ConcurrencyConfig struct {
	MaxLLMConcurrency int64 `json:"max_llm_concurrency"`
	MaxMemConcurrency int64 `json:"max_mem_concurrency"`
}

// GatewayConfig configures the Broadcaster's HTTP/WebSocket surface.
type GatewayConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
	GraceS         int      `json:"grace_s"`
}

// WorkerConfig configures the persona worker process.
type WorkerConfig struct {
	GraceS int `json:"grace_s"`
}

// PerceptorConfig configures the stream perceptor process.
type PerceptorConfig struct {
	GraceS     int    `json:"grace_s"`
	IntervalMS int    `json:"interval_ms"`
	FixtureDir string `json:"fixture_dir,omitempty"`
}

// TelemetryConfig configures OpenTelemetry export. When Endpoint is unset
// spans are emitted to a stdout processor instead of no-oping entirely, so
// `go test`/local runs still exercise the tracer.
type TelemetryConfig struct {
	OTLPEndpoint string `json:"otlp_endpoint,omitempty"`
	ServiceName  string `json:"service_name"`
}

// PersonaWatchConfig controls fsnotify-based persona-anchor hot reload.
type PersonaWatchConfig struct {
	Enabled bool   `json:"enabled"`
	Dir     string `json:"dir,omitempty"`
}

// SafetyConfig configures the moderation Filter.
type SafetyConfig struct {
	MaxChars  int      `json:"max_chars"`
	Blocklist []string `json:"blocklist,omitempty"`
}

// Config is the root configuration shared by every service entrypoint.
type Config struct {
	Redis       RedisConfig          `json:"redis"`
	Streams     StreamsConfig        `json:"streams"`
	Memory      MemoryConfig         `json:"memory"`
	Generator   GeneratorConfig      `json:"generator"`
	Auto        AutoCommentaryConfig `json:"auto_commentary"`
	Concurrency ConcurrencyConfig    `json:"concurrency"`
	Gateway     GatewayConfig        `json:"gateway"`
	Worker      WorkerConfig         `json:"worker"`
	Perceptor   PerceptorConfig      `json:"perceptor"`
	Telemetry   TelemetryConfig      `json:"telemetry"`
	PersonaWatch PersonaWatchConfig  `json:"persona_watch"`
	Safety      SafetyConfig         `json:"safety"`

	RoomConfigPath   string `json:"room_config_path"`
	PersonaConfigDir string `json:"persona_config_dir"`
}
