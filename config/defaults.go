package config

import "time"

// DefaultConfig returns a Config with every field set to a sane
// production-safe default. Loader starts from this value before layering
// the YAML file and environment overrides on top.
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Upstream:  DefaultUpstreamConfig(),
		Keys:      DefaultKeysConfig(),
		Limits:    LimitsConfig{},
		Payload:   DefaultPayloadConfig(),
		Stream:    DefaultStreamConfig(),
		Sink:      DefaultSinkConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9090,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    5 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
	}
}

func DefaultUpstreamConfig() UpstreamConfig {
	return UpstreamConfig{
		BaseURL:    "https://generativelanguage.googleapis.com",
		Timeout:    60 * time.Second,
		MaxRetries: 3,
	}
}

func DefaultKeysConfig() KeysConfig {
	return KeysConfig{
		InvalidationThreshold: 3,
	}
}

func DefaultPayloadConfig() PayloadConfig {
	return PayloadConfig{
		CodeExecutionEnabled: true,
		URLContextEnabled:    false,
		IncludeThoughtsFlag:  false,
	}
}

func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		FakeStreamEnabled:                 false,
		FakeStreamEmptyDataIntervalSeconds: 5,
		StreamOptimizerEnabled:            false,
		StreamOptimizerChunkRunes:         5,
		ShowSearchLink:                    true,
		ShowThinkingProcess:               false,
	}
}

func DefaultSinkConfig() SinkConfig {
	return SinkConfig{
		Driver:                    "stdout",
		ErrorLogRecordRequestBody: false,
	}
}

func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:        "info",
		Format:       "json",
		EnableCaller: true,
	}
}

func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		OTLPEndpoint: "",
		SampleRate:   0.1,
	}
}
