package orchestrator

import (
	"context"
	"time"

	"github.com/basuigw/gemigate/gwerrors"
	"github.com/basuigw/gemigate/gwtypes"
	"github.com/basuigw/gemigate/payload"
	"github.com/basuigw/gemigate/retrypolicy"
	"github.com/basuigw/gemigate/telemetry"
	"github.com/basuigw/gemigate/tokenizer"
)

// runAuxiliary drives the auxiliary (non-chat) request types through the
// same credential-acquisition/reserve/retry/settle/log lifecycle Unary uses,
// parameterized over the upstream call's response type. Unlike Unary there
// is no dialect to transform through and no streaming concern — the
// response travels back to the caller exactly as the upstream returned it.
func runAuxiliary[T any](ctx context.Context, o *Orchestrator, opName, model string, estimated int, call retrypolicy.Call[T]) (T, error) {
	var zero T

	ctx, _ = traceIDFor(ctx)
	ctx, span := telemetry.StartRequestSpan(ctx, opName, model, false)
	defer span.End()

	key, err := o.acquireCredential(model, estimated)
	if err != nil {
		telemetry.EndRequestSpan(span, false, statusOf(err), "")
		o.recordRequestLog(ctx, opName, model, "", false, statusOf(err), 0, false)
		o.recordErrorLog(ctx, opName, model, "", statusOf(err), err.Error())
		return zero, err
	}

	if err := o.Global.Reserve(model, estimated); err != nil {
		o.PerKey.Release(model, key, estimated)
		telemetry.EndRequestSpan(span, false, statusOf(err), gwtypes.RedactCredential(key))
		o.recordRequestLog(ctx, opName, model, key, false, statusOf(err), 0, false)
		o.recordErrorLog(ctx, opName, model, key, statusOf(err), err.Error())
		return zero, err
	}

	if o.Metrics != nil {
		o.Metrics.ObserveTokens(model, "estimated", estimated)
	}

	s := o.startSettlement(model, key, estimated)

	result, callErr := retrypolicy.Do(ctx, o.Retry, o.Pool, model, key, call)
	if callErr != nil {
		var gwErr *gwerrors.Error
		keep := gwerrors.As(callErr, &gwErr) && gwErr.KeepReservation
		latency := o.settle(s, 0, false, keep)
		if o.Metrics != nil {
			o.Metrics.ObserveRequest(model, opName, false, latency)
		}
		telemetry.EndRequestSpan(span, false, statusOf(callErr), gwtypes.RedactCredential(key))
		o.recordRequestLog(ctx, opName, model, key, false, statusOf(callErr), latency, false)
		o.recordErrorLog(ctx, opName, model, key, statusOf(callErr), callErr.Error())
		return zero, callErr
	}

	// Auxiliary calls carry no upstream-reported usage figure to true up
	// against, unlike GenerateContent's UsageMetadata — the estimate is
	// settled as the actual.
	latency := o.settle(s, estimated, true, false)
	if o.Metrics != nil {
		o.Metrics.ObserveRequest(model, opName, true, latency)
		o.Metrics.ObserveTokens(model, "actual", estimated)
	}
	telemetry.EndRequestSpan(span, true, 200, gwtypes.RedactCredential(key))
	o.recordRequestLog(ctx, opName, model, key, true, 200, latency, false)

	return result, nil
}

// CountTokens runs the :countTokens request through the same
// credential-rotation/reserve/settle lifecycle as Unary, giving
// upstream.Client.CountTokens a production call site.
func (o *Orchestrator) CountTokens(ctx context.Context, model string, req *gwtypes.CountTokensRequest) (*gwtypes.CountTokensResponse, error) {
	decoded := payload.DecodeModel(model).RealModel
	estimated := tokenizer.EstimateNative(&gwtypes.GenerateContentRequest{Contents: req.Contents})

	return runAuxiliary(ctx, o, "count_tokens", decoded, estimated, func(ctx context.Context, key string, attempt int) (*gwtypes.CountTokensResponse, error) {
		upstreamCtx, upstreamSpan := telemetry.StartUpstreamSpan(ctx, decoded, attempt)
		resp, err := o.Upstream.CountTokens(upstreamCtx, decoded, key, req)
		upstreamSpan.End()
		return resp, err
	})
}

// EmbedContent runs the :embedContent request through the same lifecycle,
// giving upstream.Client.EmbedContent and tokenizer.EstimateEmbed
// production call sites.
func (o *Orchestrator) EmbedContent(ctx context.Context, model string, req *gwtypes.EmbedContentRequest) (*gwtypes.EmbedContentResponse, error) {
	decoded := payload.DecodeModel(model).RealModel
	estimated := tokenizer.EstimateEmbed(req)

	return runAuxiliary(ctx, o, "embed_content", decoded, estimated, func(ctx context.Context, key string, attempt int) (*gwtypes.EmbedContentResponse, error) {
		upstreamCtx, upstreamSpan := telemetry.StartUpstreamSpan(ctx, decoded, attempt)
		resp, err := o.Upstream.EmbedContent(upstreamCtx, decoded, key, req)
		upstreamSpan.End()
		return resp, err
	})
}

// BatchEmbedContents runs the :batchEmbedContents request through the same
// lifecycle, giving upstream.Client.BatchEmbedContents and
// tokenizer.EstimateBatchEmbed production call sites.
func (o *Orchestrator) BatchEmbedContents(ctx context.Context, model string, req *gwtypes.BatchEmbedContentsRequest) (*gwtypes.BatchEmbedContentsResponse, error) {
	decoded := payload.DecodeModel(model).RealModel
	estimated := tokenizer.EstimateBatchEmbed(req)

	return runAuxiliary(ctx, o, "batch_embed_contents", decoded, estimated, func(ctx context.Context, key string, attempt int) (*gwtypes.BatchEmbedContentsResponse, error) {
		upstreamCtx, upstreamSpan := telemetry.StartUpstreamSpan(ctx, decoded, attempt)
		resp, err := o.Upstream.BatchEmbedContents(upstreamCtx, decoded, key, req)
		upstreamSpan.End()
		return resp, err
	})
}

// ListModels fetches the upstream model catalog. Unlike the per-model
// request types above, it carries no token estimate and isn't subject to
// either rate-limiter tier; only credential rotation on failure applies.
func (o *Orchestrator) ListModels(ctx context.Context) (*gwtypes.ListModelsResponse, error) {
	ctx, _ = traceIDFor(ctx)
	ctx, span := telemetry.StartRequestSpan(ctx, "list_models", "", false)
	defer span.End()

	key, ok := o.Pool.GetNextWorkingKey()
	if !ok {
		err := gwerrors.New(gwerrors.CodeAllKeysRateLimited, "all keys rate-limited").WithHTTPStatus(429)
		telemetry.EndRequestSpan(span, false, statusOf(err), "")
		o.recordRequestLog(ctx, "list_models", "", "", false, statusOf(err), 0, false)
		o.recordErrorLog(ctx, "list_models", "", "", statusOf(err), err.Error())
		return nil, err
	}

	started := time.Now()
	resp, callErr := retrypolicy.Do(ctx, o.Retry, o.Pool, "", key, func(ctx context.Context, attemptKey string, attempt int) (*gwtypes.ListModelsResponse, error) {
		key = attemptKey
		upstreamCtx, upstreamSpan := telemetry.StartUpstreamSpan(ctx, "", attempt)
		resp, err := o.Upstream.ListModels(upstreamCtx, attemptKey)
		upstreamSpan.End()
		return resp, err
	})
	latency := time.Since(started).Milliseconds()

	if callErr != nil {
		if o.Metrics != nil {
			o.Metrics.ObserveRequest("", "list_models", false, latency)
		}
		telemetry.EndRequestSpan(span, false, statusOf(callErr), gwtypes.RedactCredential(key))
		o.recordRequestLog(ctx, "list_models", "", key, false, statusOf(callErr), latency, false)
		o.recordErrorLog(ctx, "list_models", "", key, statusOf(callErr), callErr.Error())
		return nil, callErr
	}

	o.Pool.RecordSuccess(key)
	if o.Metrics != nil {
		o.Metrics.ObserveRequest("", "list_models", true, latency)
	}
	telemetry.EndRequestSpan(span, true, 200, gwtypes.RedactCredential(key))
	o.recordRequestLog(ctx, "list_models", "", key, true, 200, latency, false)
	return resp, nil
}
