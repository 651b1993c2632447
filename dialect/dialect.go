// Package dialect models the two downstream request shapes the gateway
// accepts as a shared interface: rather than inheritance, two
// implementations (native, OpenAI-compatible) share the orchestrator's
// pipeline through ShapePayload/TransformResponse/StreamTerminator. The
// interface shape is adapted from "provider abstraction" to "downstream
// dialect abstraction" since this gateway fronts a single upstream.
package dialect

import (
	"github.com/basuigw/gemigate/gwtypes"
	"github.com/basuigw/gemigate/payload"
	"github.com/basuigw/gemigate/transform"
)

// Dialect captures everything the orchestrator needs from a downstream
// request shape without caring which one it is.
type Dialect interface {
	// Name identifies the dialect for logging.
	Name() string

	// ShapePayload builds the native upstream request from this dialect's
	// incoming request plus the shaper configuration.
	ShapePayload(cfg payload.Config) *gwtypes.GenerateContentRequest

	// TransformResponse renders a unary upstream response into this
	// dialect's client-facing JSON body.
	TransformResponse(resp *gwtypes.GenerateContentResponse) (any, error)

	// TransformStreamChunk renders one streaming fragment into this
	// dialect's client-facing JSON body.
	TransformStreamChunk(resp *gwtypes.GenerateContentResponse) (any, error)

	// SplitStreamChunk renders one streaming fragment the same way
	// TransformStreamChunk does, then re-chunks its text delta per the
	// stream-optimizer configuration — a single-element slice when the
	// optimizer is disabled or the fragment carries no text delta.
	SplitStreamChunk(resp *gwtypes.GenerateContentResponse) ([]any, error)

	// StreamTerminator is the final SSE frame emitted when a stream
	// completes successfully.
	StreamTerminator() string

	// ActualTokens extracts the authoritative post-call token count from a
	// unary response, for settlement.
	ActualTokens(resp *gwtypes.GenerateContentResponse) int

	// Model returns the client-requested model name (with suffix grammar
	// intact; the orchestrator decodes it before calling the upstream).
	Model() string

	// IsStreamRequested reports whether the client asked for an SSE
	// response.
	IsStreamRequested() bool

	// Validate checks the request this dialect wraps before it reaches the
	// shaper, returning a gwerrors.CodeValidation error carrying one
	// FieldDetail per violation, or nil when the request is well-formed.
	Validate() error
}

const sseTerminator = "data: [DONE]\n\n"
