package dialect

import (
	"encoding/json"

	"github.com/basuigw/gemigate/gwerrors"
	"github.com/basuigw/gemigate/gwtypes"
	"github.com/basuigw/gemigate/payload"
	"github.com/basuigw/gemigate/streamopt"
	"github.com/basuigw/gemigate/transform"
)

// OpenAI implements Dialect for a client speaking the OpenAI-compatible
// wire shape; requests and responses are translated on both sides of the
// native upstream call.
type OpenAI struct {
	req           *gwtypes.OpenAIChatRequest
	transformOpts transform.Options
	optimizer     streamopt.Config
}

// NewOpenAI builds an OpenAI dialect handler from a decoded
// /chat/completions request body.
func NewOpenAI(req *gwtypes.OpenAIChatRequest, transformOpts transform.Options, optimizer streamopt.Config) *OpenAI {
	return &OpenAI{req: req, transformOpts: transformOpts, optimizer: optimizer}
}

func (o *OpenAI) Name() string { return "openai" }
func (o *OpenAI) Model() string {
	if o.req == nil {
		return ""
	}
	return o.req.Model
}
func (o *OpenAI) IsStreamRequested() bool { return o.req != nil && o.req.Stream }

func (o *OpenAI) options() payload.Options {
	if o.req == nil {
		return payload.Options{}
	}
	contents, systemInstruction := convertMessages(o.req.Messages)

	return payload.Options{
		Model:             o.Model(),
		Contents:          contents,
		SystemInstruction: systemInstruction,
		Functions:         convertTools(o.req.Tools),
		ResponseJSON:      o.req.ResponseFormat != nil && o.req.ResponseFormat.Type == "json_object",
		MaxOutputTokens:   o.req.MaxTokens,
		GenerationConfig: &gwtypes.GenerationConfig{
			Temperature:   o.req.Temperature,
			TopP:          o.req.TopP,
			StopSequences: o.req.Stop,
		},
	}
}

func (o *OpenAI) ShapePayload(cfg payload.Config) *gwtypes.GenerateContentRequest {
	return payload.Shape(cfg, o.options())
}

// Validate reports every field-level problem with the decoded request
// before it reaches the shaper.
func (o *OpenAI) Validate() error {
	details := payload.ValidateOptions(o.options())
	if len(details) == 0 {
		return nil
	}
	return gwerrors.New(gwerrors.CodeValidation, "request validation failed").
		WithHTTPStatus(422).
		WithDetails(details)
}

func convertMessages(msgs []gwtypes.OpenAIMessage) ([]gwtypes.NativeContent, *gwtypes.NativeContent) {
	var contents []gwtypes.NativeContent
	var systemInstruction *gwtypes.NativeContent

	for _, m := range msgs {
		text := gwtypes.ExtractText(m.Content)

		if m.Role == "system" {
			systemInstruction = &gwtypes.NativeContent{Parts: []gwtypes.NativePart{{Text: text}}}
			continue
		}

		role := gwtypes.RoleUser
		if m.Role == "assistant" {
			role = gwtypes.RoleModel
		}

		var parts []gwtypes.NativePart
		if text != "" {
			parts = append(parts, gwtypes.NativePart{Text: text})
		}
		for _, tc := range m.ToolCalls {
			var args map[string]any
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
			parts = append(parts, gwtypes.NativePart{
				FunctionCall: &gwtypes.FunctionCall{Name: tc.Function.Name, Args: args},
			})
		}
		if m.Role == "tool" && m.ToolCallID != "" {
			var response map[string]any
			if err := json.Unmarshal([]byte(text), &response); err != nil {
				response = map[string]any{"result": text}
			}
			parts = append(parts, gwtypes.NativePart{
				FunctionResponse: &gwtypes.FunctionResponse{Name: m.Name, Response: response},
			})
		}

		if len(parts) > 0 {
			contents = append(contents, gwtypes.NativeContent{Role: role, Parts: parts})
		}
	}

	return contents, systemInstruction
}

func convertTools(tools []gwtypes.OpenAITool) []gwtypes.FunctionDeclaration {
	if len(tools) == 0 {
		return nil
	}
	out := make([]gwtypes.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		out = append(out, gwtypes.FunctionDeclaration{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
		})
	}
	return out
}

func (o *OpenAI) isSearchModel() bool {
	return payload.DecodeModel(o.Model()).Search
}

func (o *OpenAI) TransformResponse(resp *gwtypes.GenerateContentResponse) (any, error) {
	return transform.ToOpenAIChatResponse(o.transformOpts, resp, o.Model(), o.isSearchModel()), nil
}

func (o *OpenAI) TransformStreamChunk(resp *gwtypes.GenerateContentResponse) (any, error) {
	return transform.ToOpenAIStreamChunk(o.transformOpts, resp, o.Model(), o.isSearchModel()), nil
}

// SplitStreamChunk re-chunks a single-choice, tool-call-free text delta per
// the stream optimizer: each fragment is re-wrapped in an otherwise-
// identical chunk envelope, only the last fragment carrying the finish
// reason and usage.
func (o *OpenAI) SplitStreamChunk(resp *gwtypes.GenerateContentResponse) ([]any, error) {
	base := transform.ToOpenAIStreamChunk(o.transformOpts, resp, o.Model(), o.isSearchModel())
	if !o.optimizer.Enabled || base == nil || len(base.Choices) != 1 {
		return []any{base}, nil
	}
	choice := base.Choices[0]
	if len(choice.Delta.ToolCalls) > 0 || len(choice.Delta.Content) == 0 {
		return []any{base}, nil
	}

	var text string
	if err := json.Unmarshal(choice.Delta.Content, &text); err != nil {
		return []any{base}, nil
	}

	fragments := streamopt.SplitText(o.optimizer, text)
	if len(fragments) <= 1 {
		return []any{base}, nil
	}

	out := make([]any, len(fragments))
	for i, frag := range fragments {
		chunk := *base
		c := choice
		encoded, _ := json.Marshal(frag)
		c.Delta = gwtypes.OpenAIMessage{Role: choice.Delta.Role, Content: encoded}
		if i < len(fragments)-1 {
			c.FinishReason = ""
			chunk.Usage = nil
		}
		chunk.Choices = []gwtypes.OpenAIChoiceDelta{c}
		out[i] = &chunk
	}
	return out, nil
}

func (o *OpenAI) StreamTerminator() string { return sseTerminator }

func (o *OpenAI) ActualTokens(resp *gwtypes.GenerateContentResponse) int {
	return transform.ActualTokens(resp)
}
