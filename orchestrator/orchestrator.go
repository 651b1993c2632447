// Package orchestrator implements the chat orchestrator (C8): the pipeline
// that ties key selection, the two rate-limiter tiers, the upstream client,
// the payload shaper/response transformer, and the retry policy into a
// single request lifecycle, for both the unary and streaming paths.
// The shape is a decorator over a single provider call (retry and
// credential-rotation wrapping the upstream call) adapted from "route
// across many providers" to "rotate across many credentials for one
// provider".
package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/google/uuid"

	"github.com/basuigw/gemigate/dialect"
	"github.com/basuigw/gemigate/gwerrors"
	"github.com/basuigw/gemigate/gwtypes"
	"github.com/basuigw/gemigate/keypool"
	"github.com/basuigw/gemigate/metrics"
	"github.com/basuigw/gemigate/payload"
	"github.com/basuigw/gemigate/ratelimit"
	"github.com/basuigw/gemigate/reqctx"
	"github.com/basuigw/gemigate/retrypolicy"
	"github.com/basuigw/gemigate/telemetry"
	"github.com/basuigw/gemigate/tokenizer"
	"github.com/basuigw/gemigate/upstream"
)

// traceIDFor returns ctx's existing trace ID, or mints and attaches a new
// one when the caller didn't set one — every request gets a correlation
// ID across its RequestLog/ErrorLog pair regardless of caller behavior.
func traceIDFor(ctx context.Context) (context.Context, string) {
	if id, ok := reqctx.TraceID(ctx); ok {
		return ctx, id
	}
	id := uuid.NewString()
	return reqctx.WithTraceID(ctx, id), id
}

// Orchestrator owns every shared resource the pipeline touches: the key
// pool, both limiter tiers, the upstream client, the retry policy, and the
// logging sink. One Orchestrator instance is a process-wide singleton: the
// limiters are owned by an application context rather than module globals.
type Orchestrator struct {
	Pool          *keypool.Pool
	Global        *ratelimit.GlobalLimiter
	PerKey        *ratelimit.PerKeyLimiter
	Upstream      *upstream.Client
	Retry         *retrypolicy.Policy
	Sink          gwtypes.Sink
	PayloadConfig payload.Config
	Metrics       *metrics.Collector
	Logger        *zap.Logger

	FakeStreamEnabled       bool
	FakeStreamHeartbeatSecs int
}

// Result is the outcome of a completed unary request, carrying whichever
// dialect-shaped body the caller should serialize.
type Result struct {
	Body       any
	Credential string
	LatencyMS  int64
}

// acquireCredential runs the key-selection loop bounded by pool size, each
// credential tried at most once. Returns
// the accepted credential, or a RateLimitExceededError("all keys
// rate-limited") if none accepted the reservation. A RequestTooLargeError
// from any credential's per-key check is surfaced immediately — rotation
// cannot help an oversized request.
func (o *Orchestrator) acquireCredential(model string, estimatedTokens int) (string, error) {
	n := o.Pool.Len()
	if n == 0 {
		return "", gwerrors.New(gwerrors.CodeNoAvailableKey, "no credentials configured").WithHTTPStatus(500)
	}

	key, ok := o.Pool.GetNextWorkingKey()
	if !ok {
		return "", gwerrors.New(gwerrors.CodeAllKeysRateLimited, "all keys rate-limited").WithHTTPStatus(429)
	}

	for attempt := 0; attempt < n; attempt++ {
		err := o.PerKey.CheckAndReserve(model, key, estimatedTokens)
		if err == nil {
			return key, nil
		}

		var gwErr *gwerrors.Error
		if gwerrors.As(err, &gwErr) && gwErr.Code == gwerrors.CodeRequestTooLarge {
			return "", err
		}

		next, ok := o.Pool.GetNextWorkingKey()
		if !ok {
			break
		}
		key = next
	}

	return "", gwerrors.New(gwerrors.CodeAllKeysRateLimited, "all keys rate-limited").WithHTTPStatus(429)
}

// settlement is the bookkeeping every exit path must perform: settlement
// always runs, whichever way the request exits.
type settlement struct {
	model           string
	key             string
	estimatedTokens int
	startedAt       time.Time
}

func (o *Orchestrator) startSettlement(model, key string, estimatedTokens int) settlement {
	return settlement{model: model, key: key, estimatedTokens: estimatedTokens, startedAt: time.Now()}
}

// settle trues up both limiter tiers. actualTokens is 0 on failure (unless
// the caller passed through an upstream-observed value, e.g. a partial
// stream). keepReservation, when true, skips the per-key release, used
// for the upstream-quota-exhausted case.
func (o *Orchestrator) settle(s settlement, actualTokens int, success bool, keepReservation bool) int64 {
	latency := time.Since(s.startedAt).Milliseconds()

	if !success && !keepReservation {
		o.PerKey.Release(s.model, s.key, s.estimatedTokens)
		o.Global.Adjust(s.model, s.estimatedTokens, 0)
		return latency
	}

	o.Global.Adjust(s.model, s.estimatedTokens, actualTokens)
	if success {
		o.PerKey.UpdateTokenUsage(s.model, s.key, s.estimatedTokens, actualTokens)
		o.Pool.RecordSuccess(s.key)
	}
	return latency
}

func (o *Orchestrator) recordRequestLog(ctx context.Context, dialectName, model, key string, success bool, status int, latencyMS int64, streamed bool) {
	if o.Sink == nil {
		return
	}
	traceID, _ := reqctx.TraceID(ctx)
	_ = o.Sink.RecordRequest(ctx, gwtypes.RequestLog{
		TraceID:    traceID,
		Dialect:    dialectName,
		Model:      model,
		Credential: gwtypes.RedactCredential(key),
		Success:    success,
		StatusCode: status,
		LatencyMS:  latencyMS,
		Streamed:   streamed,
		Timestamp:  time.Now(),
	})
}

func (o *Orchestrator) recordErrorLog(ctx context.Context, dialectName, model, key string, status int, message string) {
	if o.Sink == nil {
		return
	}
	traceID, _ := reqctx.TraceID(ctx)
	_ = o.Sink.RecordError(ctx, gwtypes.ErrorLog{
		TraceID:    traceID,
		Dialect:    dialectName,
		Model:      model,
		Credential: gwtypes.RedactCredential(key),
		StatusCode: status,
		Message:    message,
		Timestamp:  time.Now(),
	})
}

func statusOf(err error) int {
	var gwErr *gwerrors.Error
	if gwerrors.As(err, &gwErr) && gwErr.HTTPStatus != 0 {
		return gwErr.HTTPStatus
	}
	return 500
}

// Unary executes the unary request path end-to-end: shape payload,
// estimate tokens, acquire a credential, reserve global budget, call the
// upstream (through the retry policy), transform the response, and settle.
func (o *Orchestrator) Unary(ctx context.Context, d dialect.Dialect) (*Result, error) {
	ctx, _ = traceIDFor(ctx)
	ctx, span := telemetry.StartRequestSpan(ctx, d.Name(), d.Model(), false)
	defer span.End()

	if err := d.Validate(); err != nil {
		telemetry.EndRequestSpan(span, false, statusOf(err), "")
		o.recordRequestLog(ctx, d.Name(), d.Model(), "", false, statusOf(err), 0, false)
		o.recordErrorLog(ctx, d.Name(), d.Model(), "", statusOf(err), err.Error())
		return nil, err
	}

	decoded := payload.DecodeModel(d.Model())
	req := d.ShapePayload(o.PayloadConfig)
	estimated := tokenizer.EstimateNative(req)

	key, err := o.acquireCredential(decoded.RealModel, estimated)
	if err != nil {
		telemetry.EndRequestSpan(span, false, statusOf(err), "")
		o.recordRequestLog(ctx, d.Name(), decoded.RealModel, "", false, statusOf(err), 0, false)
		o.recordErrorLog(ctx, d.Name(), decoded.RealModel, "", statusOf(err), err.Error())
		return nil, err
	}

	if err := o.Global.Reserve(decoded.RealModel, estimated); err != nil {
		o.PerKey.Release(decoded.RealModel, key, estimated)
		telemetry.EndRequestSpan(span, false, statusOf(err), gwtypes.RedactCredential(key))
		o.recordRequestLog(ctx, d.Name(), decoded.RealModel, key, false, statusOf(err), 0, false)
		o.recordErrorLog(ctx, d.Name(), decoded.RealModel, key, statusOf(err), err.Error())
		return nil, err
	}

	if o.Metrics != nil {
		o.Metrics.ObserveTokens(decoded.RealModel, "estimated", estimated)
	}

	s := o.startSettlement(decoded.RealModel, key, estimated)

	resp, callErr := retrypolicy.Do(ctx, o.Retry, o.Pool, decoded.RealModel, key, func(ctx context.Context, attemptKey string, attempt int) (*gwtypes.GenerateContentResponse, error) {
		key = attemptKey
		upstreamCtx, upstreamSpan := telemetry.StartUpstreamSpan(ctx, decoded.RealModel, attempt)
		resp, err := o.Upstream.GenerateContent(upstreamCtx, decoded.RealModel, attemptKey, req)
		upstreamSpan.End()
		return resp, err
	})

	if callErr != nil {
		var gwErr *gwerrors.Error
		keep := gwerrors.As(callErr, &gwErr) && gwErr.KeepReservation
		latency := o.settle(s, 0, false, keep)
		if o.Metrics != nil {
			o.Metrics.ObserveRequest(decoded.RealModel, d.Name(), false, latency)
		}
		telemetry.EndRequestSpan(span, false, statusOf(callErr), gwtypes.RedactCredential(key))
		o.recordRequestLog(ctx, d.Name(), decoded.RealModel, key, false, statusOf(callErr), latency, false)
		o.recordErrorLog(ctx, d.Name(), decoded.RealModel, key, statusOf(callErr), callErr.Error())
		return nil, callErr
	}

	actual := d.ActualTokens(resp)
	latency := o.settle(s, actual, true, false)
	if o.Metrics != nil {
		o.Metrics.ObserveRequest(decoded.RealModel, d.Name(), true, latency)
		o.Metrics.ObserveTokens(decoded.RealModel, "actual", actual)
	}
	telemetry.EndRequestSpan(span, true, 200, gwtypes.RedactCredential(key))
	o.recordRequestLog(ctx, d.Name(), decoded.RealModel, key, true, 200, latency, false)

	body, transformErr := d.TransformResponse(resp)
	if transformErr != nil {
		return nil, transformErr
	}

	return &Result{Body: body, Credential: key, LatencyMS: latency}, nil
}
