// Package gateway assembles a fully wired Orchestrator from a loaded
// Config: the key pool, both rate-limiter tiers, the upstream client, the
// retry policy, the metrics collector, tracing, and a logging sink. It is
// the composition root a process entry point calls into; it declares no
// HTTP routes itself (request parsing and route declaration stay an
// external collaborator).
package gateway

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/basuigw/gemigate/config"
	"github.com/basuigw/gemigate/dialect"
	"github.com/basuigw/gemigate/gwtypes"
	"github.com/basuigw/gemigate/keypool"
	"github.com/basuigw/gemigate/metrics"
	"github.com/basuigw/gemigate/orchestrator"
	"github.com/basuigw/gemigate/payload"
	"github.com/basuigw/gemigate/ratelimit"
	"github.com/basuigw/gemigate/retrypolicy"
	"github.com/basuigw/gemigate/sinks/stdout"
	"github.com/basuigw/gemigate/streamopt"
	"github.com/basuigw/gemigate/telemetry"
	"github.com/basuigw/gemigate/transform"
	"github.com/basuigw/gemigate/upstream"
)

// Gateway owns the assembled Orchestrator plus the dialect-construction
// config every incoming request needs folded in.
type Gateway struct {
	Orchestrator *orchestrator.Orchestrator

	payloadConfig  payload.Config
	transformOpts  transform.Options
	optimizer      streamopt.Config
	telemetryStop  telemetry.ShutdownFunc
}

// New builds every collaborator named in cfg and wires them into an
// Orchestrator. Callers own the returned shutdown func and should invoke it
// once, on process exit, to flush the tracing exporter.
func New(cfg *config.Config, logger *zap.Logger) (*Gateway, telemetry.ShutdownFunc, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	collector := metrics.NewCollector("gemigate", logger)

	pool := keypool.New(cfg.Keys.APIKeys, cfg.Keys.InvalidationThreshold, logger).WithMetrics(collector)

	global := ratelimit.NewGlobalLimiter(globalLimitsFrom(cfg.Limits.ModelTPMLimits)).WithMetrics(collector)
	perKey := ratelimit.NewPerKeyLimiter(perKeyLimitsFrom(cfg.Limits.ModelKeyLimits)).WithMetrics(collector)

	upstreamClient := upstream.New(cfg.Upstream.BaseURL, cfg.Upstream.Timeout)
	retry := retrypolicy.New(cfg.Upstream.MaxRetries, retrypolicy.DefaultRetryableStatuses, logger)

	shutdown, err := telemetry.Setup(context.Background(), cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.SampleRate, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("setup telemetry: %w", err)
	}

	sink, err := buildSink(cfg.Sink, logger)
	if err != nil {
		_ = shutdown(context.Background())
		return nil, nil, err
	}

	orch := &orchestrator.Orchestrator{
		Pool:                    pool,
		Global:                  global,
		PerKey:                  perKey,
		Upstream:                upstreamClient,
		Retry:                   retry,
		Sink:                    sink,
		Metrics:                 collector,
		Logger:                  logger,
		PayloadConfig:           payloadConfigFrom(cfg.Payload),
		FakeStreamEnabled:       cfg.Stream.FakeStreamEnabled,
		FakeStreamHeartbeatSecs: cfg.Stream.FakeStreamEmptyDataIntervalSeconds,
	}

	gw := &Gateway{
		Orchestrator:  orch,
		payloadConfig: orch.PayloadConfig,
		transformOpts: transform.Options{
			ShowSearchLink:   cfg.Stream.ShowSearchLink,
			ShowThinkingProc: cfg.Stream.ShowThinkingProcess,
		},
		optimizer: streamopt.Config{
			Enabled:    cfg.Stream.StreamOptimizerEnabled,
			ChunkRunes: cfg.Stream.StreamOptimizerChunkRunes,
		},
		telemetryStop: shutdown,
	}
	return gw, shutdown, nil
}

// NativeDialect builds a dialect.Dialect for a native-shaped request, with
// this gateway's configured transform and stream-optimizer options folded
// in.
func (g *Gateway) NativeDialect(model string, stream bool, req *gwtypes.GenerateContentRequest) dialect.Dialect {
	return dialect.NewNative(model, stream, req, g.transformOpts, g.optimizer)
}

// OpenAIDialect builds a dialect.Dialect for an OpenAI-compatible request.
func (g *Gateway) OpenAIDialect(req *gwtypes.OpenAIChatRequest) dialect.Dialect {
	return dialect.NewOpenAI(req, g.transformOpts, g.optimizer)
}

func buildSink(cfg config.SinkConfig, logger *zap.Logger) (gwtypes.Sink, error) {
	switch cfg.Driver {
	case "", "stdout":
		return stdout.New(logger), nil
	case "sqlite":
		return nil, fmt.Errorf("sqlite sink requires the gormsink package to be wired in by the process entry point (dsn %q)", cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported sink driver: %s", cfg.Driver)
	}
}

func globalLimitsFrom(modelTPM map[string]int) map[string]ratelimit.ModelLimit {
	out := make(map[string]ratelimit.ModelLimit, len(modelTPM))
	for model, tpm := range modelTPM {
		out[model] = ratelimit.ModelLimit{Limit: tpm, Window: time.Minute}
	}
	return out
}

func perKeyLimitsFrom(modelKey map[string]config.PerKeyLimitsConfig) map[string]ratelimit.KeyLimits {
	out := make(map[string]ratelimit.KeyLimits, len(modelKey))
	for model, lim := range modelKey {
		out[model] = ratelimit.KeyLimits{RPM: lim.RPM, TPM: lim.TPM, RPD: lim.RPD}
	}
	return out
}

func payloadConfigFrom(cfg config.PayloadConfig) payload.Config {
	safety := make([]gwtypes.SafetySetting, len(cfg.SafetySettings))
	for i, s := range cfg.SafetySettings {
		safety[i] = gwtypes.SafetySetting{Category: s.Category, Threshold: s.Threshold}
	}
	legacySafety := make([]gwtypes.SafetySetting, len(cfg.LegacySafetySettings))
	for i, s := range cfg.LegacySafetySettings {
		legacySafety[i] = gwtypes.SafetySetting{Category: s.Category, Threshold: s.Threshold}
	}
	legacyModels := make(map[string]bool, len(cfg.LegacyModelNames))
	for _, m := range cfg.LegacyModelNames {
		legacyModels[m] = true
	}
	return payload.Config{
		CodeExecutionEnabled: cfg.CodeExecutionEnabled,
		URLContextEnabled:    cfg.URLContextEnabled,
		URLContextModels:     cfg.URLContextModels,
		SafetySettings:       safety,
		LegacySafetySettings: legacySafety,
		LegacyModelNames:     legacyModels,
		ThinkingBudgetMap:    cfg.ThinkingBudgetMap,
		IncludeThoughtsFlag:  cfg.IncludeThoughtsFlag,
	}
}

// InitLogger builds a zap.Logger from LogConfig: JSON production encoding
// by default, a console encoder when configured, caller/stacktrace
// annotation gated by EnableCaller.
func InitLogger(cfg config.LogConfig) *zap.Logger {
	level := zapcore.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}

	var encoderCfg zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoderCfg = zap.NewDevelopmentEncoderConfig()
		encoding = "console"
	} else {
		encoderCfg = zap.NewProductionEncoderConfig()
		encoderCfg.TimeKey = "timestamp"
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapCfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      false,
		Encoding:         encoding,
		EncoderConfig:    encoderCfg,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	opts := []zap.Option{}
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	}

	logger, err := zapCfg.Build(opts...)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
