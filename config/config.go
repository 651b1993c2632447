package config

import "time"

// Config is the gateway's complete runtime configuration, loaded by
// Loader in the order default values -> YAML file -> environment
// variables, each layer overriding the previous one.
type Config struct {
	Server   ServerConfig   `yaml:"server" env:"SERVER"`
	Upstream UpstreamConfig `yaml:"upstream" env:"UPSTREAM"`
	Keys     KeysConfig     `yaml:"keys" env:"KEYS"`
	Limits   LimitsConfig   `yaml:"limits" env:"LIMITS"`
	Payload  PayloadConfig  `yaml:"payload" env:"PAYLOAD"`
	Stream   StreamConfig   `yaml:"stream" env:"STREAM"`
	Sink     SinkConfig     `yaml:"sink" env:"SINK"`
	Log      LogConfig      `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig configures the gateway's own listener.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// UpstreamConfig configures the single upstream provider this gateway
// fronts.
type UpstreamConfig struct {
	BaseURL    string        `yaml:"base_url" env:"BASE_URL"`
	Timeout    time.Duration `yaml:"time_out" env:"TIME_OUT"`
	MaxRetries int           `yaml:"max_retries" env:"MAX_RETRIES"`
}

// KeysConfig holds the credential pool and its failure-handling policy.
type KeysConfig struct {
	APIKeys               []string `yaml:"api_keys" env:"API_KEYS"`
	InvalidationThreshold int      `yaml:"invalidation_threshold" env:"INVALIDATION_THRESHOLD"`
}

// LimitsConfig holds both rate-limiter tiers' budgets. Per-model maps are
// YAML-only — the flat environment-variable overlay only reaches scalar
// leaf fields, so a nested map keyed by model name has no natural env-var
// encoding and must come from the config file.
type LimitsConfig struct {
	ModelTPMLimits map[string]int                `yaml:"model_tpm_limits"`
	ModelKeyLimits map[string]PerKeyLimitsConfig `yaml:"model_key_limits"`
}

// PerKeyLimitsConfig is one model's per-(model,key) budget triple.
type PerKeyLimitsConfig struct {
	RPM int `yaml:"rpm"`
	TPM int `yaml:"tpm"`
	RPD int `yaml:"rpd"`
}

// PayloadConfig mirrors payload.Config's knobs that are operator-tunable.
// Safety settings, thinking budgets, and URL-context model lists are
// YAML-only for the same nested-structure reason as LimitsConfig's maps.
type PayloadConfig struct {
	CodeExecutionEnabled bool            `yaml:"tools_code_execution_enabled" env:"TOOLS_CODE_EXECUTION_ENABLED"`
	URLContextEnabled    bool            `yaml:"url_context_enabled" env:"URL_CONTEXT_ENABLED"`
	URLContextModels     map[string]bool `yaml:"url_context_models"`
	ThinkingBudgetMap    map[string]int  `yaml:"thinking_budget_map"`
	IncludeThoughtsFlag  bool            `yaml:"include_thoughts" env:"INCLUDE_THOUGHTS"`
	SafetySettings       []SafetySetting `yaml:"safety_settings"`
	LegacySafetySettings []SafetySetting `yaml:"legacy_safety_settings"`
	LegacyModelNames     []string        `yaml:"legacy_model_names" env:"LEGACY_MODEL_NAMES"`
}

// SafetySetting is one upstream safety-category threshold override.
type SafetySetting struct {
	Category  string `yaml:"category"`
	Threshold string `yaml:"threshold"`
}

// StreamConfig gates the two response-streaming ambient behaviors: fake
// streaming for clients that always request SSE, and the stream optimizer
// that re-chunks real SSE text deltas for a steadier cadence.
type StreamConfig struct {
	FakeStreamEnabled                    bool `yaml:"fake_stream_enabled" env:"FAKE_STREAM_ENABLED"`
	FakeStreamEmptyDataIntervalSeconds    int  `yaml:"fake_stream_empty_data_interval_seconds" env:"FAKE_STREAM_EMPTY_DATA_INTERVAL_SECONDS"`
	StreamOptimizerEnabled                bool `yaml:"stream_optimizer_enabled" env:"STREAM_OPTIMIZER_ENABLED"`
	StreamOptimizerChunkRunes             int  `yaml:"stream_optimizer_chunk_runes" env:"STREAM_OPTIMIZER_CHUNK_RUNES"`
	ShowSearchLink                        bool `yaml:"show_search_link" env:"SHOW_SEARCH_LINK"`
	ShowThinkingProcess                   bool `yaml:"show_thinking_process" env:"SHOW_THINKING_PROCESS"`
}

// SinkConfig selects and configures the request/error logging sink.
type SinkConfig struct {
	Driver                    string `yaml:"driver" env:"DRIVER"`
	DSN                       string `yaml:"dsn" env:"DSN"`
	ErrorLogRecordRequestBody bool   `yaml:"error_log_record_request_body" env:"ERROR_LOG_RECORD_REQUEST_BODY"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level        string `yaml:"level" env:"LEVEL"`
	Format       string `yaml:"format" env:"FORMAT"`
	EnableCaller bool   `yaml:"enable_caller" env:"ENABLE_CALLER"`
}

// TelemetryConfig configures OpenTelemetry tracing export.
type TelemetryConfig struct {
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}
