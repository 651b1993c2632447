// Package reqctx carries request-scoped identifiers through a
// context.Context, narrowed to the one key the orchestrator and its sinks
// need: a trace ID correlating a RequestLog/ErrorLog pair and the tracing
// span covering the same call.
package reqctx

import "context"

type contextKey string

const traceIDKey contextKey = "trace_id"

// WithTraceID attaches traceID to ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID retrieves a trace ID previously attached with WithTraceID.
func TraceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(traceIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
