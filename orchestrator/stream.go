package orchestrator

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel/trace"

	"github.com/basuigw/gemigate/dialect"
	"github.com/basuigw/gemigate/gwerrors"
	"github.com/basuigw/gemigate/gwtypes"
	"github.com/basuigw/gemigate/payload"
	"github.com/basuigw/gemigate/telemetry"
	"github.com/basuigw/gemigate/tokenizer"
	"github.com/basuigw/gemigate/upstream"
)

// Frame is one emitted SSE line, already framed as "data: <json>\n\n" (or
// the terminator sentinel). Err is set, and Data empty, on a terminal
// stream failure — the caller should stop forwarding and propagate Err
// without emitting a terminator.
type Frame struct {
	Data string
	Err  error
}

// Stream executes the streaming request path: shape payload, estimate
// tokens, acquire a credential, reserve global budget, then iterate the
// upstream's event stream, transforming and re-emitting each chunk. The
// returned channel is closed when the stream ends, whether normally
// (terminator frame emitted) or on failure (last frame carries Err, no
// terminator). Settlement runs before the channel closes in every case.
func (o *Orchestrator) Stream(ctx context.Context, d dialect.Dialect) (<-chan Frame, error) {
	ctx, _ = traceIDFor(ctx)
	ctx, span := telemetry.StartRequestSpan(ctx, d.Name(), d.Model(), true)

	if err := d.Validate(); err != nil {
		telemetry.EndRequestSpan(span, false, statusOf(err), "")
		o.recordRequestLog(ctx, d.Name(), d.Model(), "", false, statusOf(err), 0, true)
		o.recordErrorLog(ctx, d.Name(), d.Model(), "", statusOf(err), err.Error())
		return nil, err
	}

	decoded := payload.DecodeModel(d.Model())
	req := d.ShapePayload(o.PayloadConfig)
	estimated := tokenizer.EstimateNative(req)

	key, err := o.acquireCredential(decoded.RealModel, estimated)
	if err != nil {
		telemetry.EndRequestSpan(span, false, statusOf(err), "")
		o.recordRequestLog(ctx, d.Name(), decoded.RealModel, "", false, statusOf(err), 0, true)
		o.recordErrorLog(ctx, d.Name(), decoded.RealModel, "", statusOf(err), err.Error())
		return nil, err
	}

	if err := o.Global.Reserve(decoded.RealModel, estimated); err != nil {
		o.PerKey.Release(decoded.RealModel, key, estimated)
		telemetry.EndRequestSpan(span, false, statusOf(err), gwtypes.RedactCredential(key))
		o.recordRequestLog(ctx, d.Name(), decoded.RealModel, key, false, statusOf(err), 0, true)
		o.recordErrorLog(ctx, d.Name(), decoded.RealModel, key, statusOf(err), err.Error())
		return nil, err
	}

	out := make(chan Frame)
	go o.runStream(ctx, span, d, decoded.RealModel, key, estimated, req, out)
	return out, nil
}

func (o *Orchestrator) runStream(ctx context.Context, span trace.Span, d dialect.Dialect, model, key string, estimated int, req *gwtypes.GenerateContentRequest, out chan<- Frame) {
	defer close(out)
	defer span.End()

	if o.Metrics != nil {
		o.Metrics.ObserveTokens(model, "estimated", estimated)
	}

	s := o.startSettlement(model, key, estimated)
	maxAttempts := o.streamMaxAttempts()

	var lastUsage *gwtypes.UsageMetadata
	var finalErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		upstreamCtx, upstreamSpan := telemetry.StartUpstreamSpan(ctx, model, attempt)
		chunks, err := o.Upstream.StreamGenerateContent(upstreamCtx, model, key, req)
		upstreamSpan.End()
		if err != nil {
			finalErr = err
			if !o.retryableStreamErr(err) || attempt == maxAttempts {
				break
			}
			if nextKey, ok := o.Pool.HandleAPIFailure(model, key, attempt); ok {
				key = nextKey
				continue
			}
			break
		}

		usage, streamErr, emitted := o.forwardChunks(ctx, d, chunks, out)
		if streamErr == nil {
			lastUsage = usage
			finalErr = nil
			break
		}

		finalErr = streamErr
		if emitted > 0 || !o.retryableStreamErr(streamErr) || attempt == maxAttempts {
			break
		}
		if nextKey, ok := o.Pool.HandleAPIFailure(model, key, attempt); ok {
			key = nextKey
			continue
		}
		break
	}

	if finalErr != nil {
		var gwErr *gwerrors.Error
		keep := gwerrors.As(finalErr, &gwErr) && gwErr.KeepReservation
		latency := o.settle(s, 0, false, keep)
		if o.Metrics != nil {
			o.Metrics.ObserveRequest(model, d.Name(), false, latency)
		}
		telemetry.EndRequestSpan(span, false, statusOf(finalErr), gwtypes.RedactCredential(key))
		o.recordRequestLog(ctx, d.Name(), model, key, false, statusOf(finalErr), latency, true)
		o.recordErrorLog(ctx, d.Name(), model, key, statusOf(finalErr), finalErr.Error())
		out <- Frame{Err: finalErr}
		return
	}

	actual := 0
	if lastUsage != nil {
		actual = lastUsage.TotalTokenCount
	}
	latency := o.settle(s, actual, true, false)
	if o.Metrics != nil {
		o.Metrics.ObserveRequest(model, d.Name(), true, latency)
		o.Metrics.ObserveTokens(model, "actual", actual)
	}
	telemetry.EndRequestSpan(span, true, 200, gwtypes.RedactCredential(key))
	o.recordRequestLog(ctx, d.Name(), model, key, true, 200, latency, true)
	out <- Frame{Data: d.StreamTerminator()}
}

// forwardChunks reads every fragment off chunks, transforms and re-emits
// each as a "data: ...\n\n" frame, and returns the last usageMetadata seen
// together with the count of chunks successfully emitted (used by the
// caller to decide whether a mid-stream failure is still eligible for a
// whole-stream retry: once any chunk reached the client, retrying is
// forbidden).
func (o *Orchestrator) forwardChunks(ctx context.Context, d dialect.Dialect, chunks <-chan upstream.StreamChunk, out chan<- Frame) (*gwtypes.UsageMetadata, error, int) {
	var lastUsage *gwtypes.UsageMetadata
	emitted := 0

	for chunk := range chunks {
		if chunk.Err != nil {
			return lastUsage, chunk.Err, emitted
		}
		if chunk.Response.UsageMetadata != nil {
			lastUsage = chunk.Response.UsageMetadata
		}

		bodies, err := d.SplitStreamChunk(chunk.Response)
		if err != nil {
			return lastUsage, err, emitted
		}

		for _, body := range bodies {
			encoded, err := json.Marshal(body)
			if err != nil {
				return lastUsage, gwerrors.New(gwerrors.CodeInternal, "failed to encode stream chunk").WithCause(err), emitted
			}

			select {
			case out <- Frame{Data: "data: " + string(encoded) + "\n\n"}:
				emitted++
			case <-ctx.Done():
				return lastUsage, ctx.Err(), emitted
			}
		}
	}

	return lastUsage, nil, emitted
}

func (o *Orchestrator) streamMaxAttempts() int {
	if o.Retry == nil || o.Retry.MaxAttempts <= 0 {
		return 1
	}
	return o.Retry.MaxAttempts
}

func (o *Orchestrator) retryableStreamErr(err error) bool {
	var gwErr *gwerrors.Error
	if !gwerrors.As(err, &gwErr) {
		return false
	}
	if o.Retry == nil {
		return gwErr.Retryable
	}
	return gwErr.Retryable && o.Retry.RetryableStatuses[gwErr.HTTPStatus]
}
