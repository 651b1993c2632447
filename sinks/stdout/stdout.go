// Package stdout is the default gwtypes.Sink implementation: it writes
// every request/error record as a structured zap log line rather than
// persisting to a database. It is what DefaultSinkConfig.Driver == "stdout"
// wires up, and needs no setup beyond a *zap.Logger.
package stdout

import (
	"context"

	"go.uber.org/zap"

	"github.com/basuigw/gemigate/gwtypes"
)

// Sink logs request/error records through zap instead of a store.
type Sink struct {
	logger *zap.Logger
}

// New wraps logger, defaulting to a no-op logger when nil.
func New(logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{logger: logger.With(zap.String("component", "stdout_sink"))}
}

func (s *Sink) RecordRequest(_ context.Context, log gwtypes.RequestLog) error {
	fields := []zap.Field{
		zap.String("trace_id", log.TraceID),
		zap.String("dialect", log.Dialect),
		zap.String("model", log.Model),
		zap.String("credential", log.Credential),
		zap.Bool("success", log.Success),
		zap.Int("status_code", log.StatusCode),
		zap.Int64("latency_ms", log.LatencyMS),
		zap.Bool("streamed", log.Streamed),
		zap.Time("timestamp", log.Timestamp),
	}
	if log.RequestBody != "" {
		fields = append(fields, zap.String("request_body", log.RequestBody))
	}
	if log.Success {
		s.logger.Info("request completed", fields...)
	} else {
		s.logger.Warn("request completed", fields...)
	}
	return nil
}

func (s *Sink) RecordError(_ context.Context, log gwtypes.ErrorLog) error {
	fields := []zap.Field{
		zap.String("trace_id", log.TraceID),
		zap.String("dialect", log.Dialect),
		zap.String("model", log.Model),
		zap.String("credential", log.Credential),
		zap.Int("status_code", log.StatusCode),
		zap.String("message", log.Message),
		zap.Time("timestamp", log.Timestamp),
	}
	if log.RequestBody != "" {
		fields = append(fields, zap.String("request_body", log.RequestBody))
	}
	s.logger.Error("request failed", fields...)
	return nil
}

var _ gwtypes.Sink = (*Sink)(nil)
