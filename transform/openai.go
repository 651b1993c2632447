package transform

import (
	"encoding/json"
	"time"

	"github.com/basuigw/gemigate/gwtypes"
)

// ToOpenAIChatResponse builds an OpenAI-shaped chat completion response from
// the upstream's native response: (response, finishReason, usage) collapse
// into one struct here since Go returns a single value naturally.
func ToOpenAIChatResponse(opts Options, resp *gwtypes.GenerateContentResponse, model string, isSearchModel bool) *gwtypes.OpenAIChatResponse {
	choices := make([]gwtypes.OpenAIChoice, 0, len(resp.Candidates))
	for _, c := range resp.Candidates {
		rendered := RenderCandidate(opts, c, isSearchModel)
		choices = append(choices, gwtypes.OpenAIChoice{
			Index:        c.Index,
			FinishReason: mapFinishReason(c.FinishReason),
			Message:      toOpenAIMessage(rendered),
		})
	}

	out := &gwtypes.OpenAIChatResponse{
		ID:      resp.ResponseID,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: choices,
	}
	if resp.UsageMetadata != nil {
		out.Usage = &gwtypes.OpenAIUsage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		}
	}
	return out
}

// ToOpenAIStreamChunk builds one SSE delta chunk from a streaming fragment.
func ToOpenAIStreamChunk(opts Options, resp *gwtypes.GenerateContentResponse, model string, isSearchModel bool) *gwtypes.OpenAIChatStreamChunk {
	choices := make([]gwtypes.OpenAIChoiceDelta, 0, len(resp.Candidates))
	for _, c := range resp.Candidates {
		rendered := RenderCandidate(opts, c, isSearchModel)
		delta := gwtypes.OpenAIMessage{Role: "assistant"}
		if len(rendered.ToolCalls) > 0 {
			delta.ToolCalls = toOpenAIToolCalls(rendered.ToolCalls)
		} else if rendered.Text != "" {
			text, _ := json.Marshal(rendered.Text)
			delta.Content = text
		}
		choices = append(choices, gwtypes.OpenAIChoiceDelta{
			Index:        c.Index,
			FinishReason: mapFinishReason(c.FinishReason),
			Delta:        delta,
		})
	}

	return &gwtypes.OpenAIChatStreamChunk{
		ID:      resp.ResponseID,
		Object:  "chat.completion.chunk",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: choices,
	}
}

func toOpenAIMessage(rendered RenderedPart) gwtypes.OpenAIMessage {
	msg := gwtypes.OpenAIMessage{Role: "assistant"}
	if len(rendered.ToolCalls) > 0 {
		msg.ToolCalls = toOpenAIToolCalls(rendered.ToolCalls)
		return msg
	}
	text, _ := json.Marshal(rendered.Text)
	msg.Content = text
	return msg
}

func toOpenAIToolCalls(calls []ToolCallOut) []gwtypes.OpenAIToolCall {
	out := make([]gwtypes.OpenAIToolCall, len(calls))
	for i, c := range calls {
		args, _ := json.Marshal(c.Arguments)
		out[i] = gwtypes.OpenAIToolCall{
			ID:   c.ID,
			Type: "function",
			Function: gwtypes.OpenAIToolCallFunc{
				Name:      c.Name,
				Arguments: string(args),
			},
		}
	}
	return out
}

// mapFinishReason translates the native finish-reason vocabulary into
// OpenAI's, defaulting to "stop" for an empty/unrecognized reason.
func mapFinishReason(reason string) string {
	switch reason {
	case "", "STOP":
		return "stop"
	case "MAX_TOKENS":
		return "length"
	case "SAFETY", "RECITATION":
		return "content_filter"
	case "TOOL_CALLS", "FUNCTION_CALL":
		return "tool_calls"
	default:
		return "stop"
	}
}

// ActualTokensOpenAI extracts the authoritative token count from an
// OpenAI-compatible chat response's usage, for settlement.
func ActualTokensOpenAI(usage *gwtypes.OpenAIUsage) int {
	if usage == nil {
		return 0
	}
	return usage.TotalTokens
}
