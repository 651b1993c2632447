package dialect

import (
	"github.com/basuigw/gemigate/gwerrors"
	"github.com/basuigw/gemigate/gwtypes"
	"github.com/basuigw/gemigate/payload"
	"github.com/basuigw/gemigate/streamopt"
	"github.com/basuigw/gemigate/transform"
)

// Native implements Dialect for a client speaking the upstream's own wire
// shape directly (no translation needed on the way out).
type Native struct {
	model             string
	stream            bool
	request           *gwtypes.GenerateContentRequest
	functions         []gwtypes.FunctionDeclaration
	responseJSON      bool
	requestedThinking *gwtypes.ThinkingConfig
	maxOutputTokens   int
	transformOpts     transform.Options
	optimizer         streamopt.Config
}

// NewNative builds a Native dialect handler from a decoded downstream
// request.
func NewNative(model string, stream bool, req *gwtypes.GenerateContentRequest, transformOpts transform.Options, optimizer streamopt.Config) *Native {
	n := &Native{model: model, stream: stream, request: req, transformOpts: transformOpts, optimizer: optimizer}
	if req != nil && req.GenerationConfig != nil {
		n.requestedThinking = req.GenerationConfig.ThinkingConfig
		n.maxOutputTokens = req.GenerationConfig.MaxOutputTokens
		n.responseJSON = req.GenerationConfig.ResponseMimeType == "application/json"
	}
	if req != nil {
		for _, tool := range req.Tools {
			n.functions = append(n.functions, tool.FunctionDeclarations...)
		}
	}
	return n
}

func (n *Native) Name() string { return "native" }
func (n *Native) Model() string { return n.model }
func (n *Native) IsStreamRequested() bool { return n.stream }

func (n *Native) options() payload.Options {
	var contents []gwtypes.NativeContent
	var systemInstruction *gwtypes.NativeContent
	if n.request != nil {
		contents = n.request.Contents
		systemInstruction = n.request.SystemInstruction
	}

	opts := payload.Options{
		Model:             n.model,
		Contents:          contents,
		SystemInstruction: systemInstruction,
		Functions:         n.functions,
		ResponseJSON:      n.responseJSON,
		RequestedThinking: n.requestedThinking,
		MaxOutputTokens:   n.maxOutputTokens,
	}
	if n.request != nil {
		opts.GenerationConfig = n.request.GenerationConfig
	}
	return opts
}

func (n *Native) ShapePayload(cfg payload.Config) *gwtypes.GenerateContentRequest {
	return payload.Shape(cfg, n.options())
}

// Validate reports every field-level problem with the decoded request
// before it reaches the shaper.
func (n *Native) Validate() error {
	details := payload.ValidateOptions(n.options())
	if len(details) == 0 {
		return nil
	}
	return gwerrors.New(gwerrors.CodeValidation, "request validation failed").
		WithHTTPStatus(422).
		WithDetails(details)
}

func (n *Native) isSearchModel() bool {
	return payload.DecodeModel(n.model).Search
}

func (n *Native) TransformResponse(resp *gwtypes.GenerateContentResponse) (any, error) {
	return renderNative(n.transformOpts, resp, n.isSearchModel()), nil
}

func (n *Native) TransformStreamChunk(resp *gwtypes.GenerateContentResponse) (any, error) {
	return renderNative(n.transformOpts, resp, n.isSearchModel()), nil
}

// SplitStreamChunk re-chunks a rendered fragment's text per the stream
// optimizer, only when the fragment is a single text-only candidate — tool
// calls and multi-candidate fragments pass through as one piece, since
// splitting their structure has no natural client-visible meaning.
func (n *Native) SplitStreamChunk(resp *gwtypes.GenerateContentResponse) ([]any, error) {
	base := renderNative(n.transformOpts, resp, n.isSearchModel())
	if !n.optimizer.Enabled || base == nil || len(base.Candidates) != 1 {
		return []any{base}, nil
	}
	parts := base.Candidates[0].Content.Parts
	if len(parts) != 1 || parts[0].Text == "" {
		return []any{base}, nil
	}

	fragments := streamopt.SplitText(n.optimizer, parts[0].Text)
	if len(fragments) <= 1 {
		return []any{base}, nil
	}

	out := make([]any, len(fragments))
	for i, frag := range fragments {
		chunk := *base
		cand := base.Candidates[0]
		cand.Content.Parts = []gwtypes.NativePart{{Text: frag, Thought: parts[0].Thought}}
		if i < len(fragments)-1 {
			cand.FinishReason = ""
			chunk.UsageMetadata = nil
		}
		chunk.Candidates = []gwtypes.Candidate{cand}
		out[i] = &chunk
	}
	return out, nil
}

func (n *Native) StreamTerminator() string { return sseTerminator }

func (n *Native) ActualTokens(resp *gwtypes.GenerateContentResponse) int {
	return transform.ActualTokens(resp)
}

// renderNative rebuilds a GenerateContentResponse with candidate parts
// replaced by their rendered text/tool-calls, matching the native dialect's
// own wire shape (the upstream's response, lightly post-processed).
func renderNative(opts transform.Options, resp *gwtypes.GenerateContentResponse, isSearchModel bool) *gwtypes.GenerateContentResponse {
	if resp == nil {
		return nil
	}
	out := *resp
	out.Candidates = make([]gwtypes.Candidate, len(resp.Candidates))
	for i, c := range resp.Candidates {
		rendered := transform.RenderCandidate(opts, c, isSearchModel)
		nc := c
		var parts []gwtypes.NativePart
		if len(rendered.ToolCalls) > 0 {
			for _, call := range rendered.ToolCalls {
				parts = append(parts, gwtypes.NativePart{
					FunctionCall: &gwtypes.FunctionCall{Name: call.Name, Args: call.Arguments},
				})
			}
		} else {
			parts = append(parts, gwtypes.NativePart{Text: rendered.Text, Thought: rendered.Thought})
		}
		nc.Content.Parts = parts
		out.Candidates[i] = nc
	}
	return &out
}
