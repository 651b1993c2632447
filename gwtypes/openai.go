package gwtypes

import "encoding/json"

// OpenAI-compatible-dialect wire types. Message.Content is polymorphic in
// the real wire format (a plain string, or a list of {type, text} parts);
// it is kept as json.RawMessage here and decoded by dialect.OpenAI.

// OpenAIMessage is one message in an OpenAI-compatible chat request.
type OpenAIMessage struct {
	Role       string              `json:"role"`
	Content    json.RawMessage     `json:"content,omitempty"`
	Name       string              `json:"name,omitempty"`
	ToolCalls  []OpenAIToolCall    `json:"tool_calls,omitempty"`
	ToolCallID string              `json:"tool_call_id,omitempty"`
}

// OpenAIContentPart is one element of a multi-part Content list.
type OpenAIContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ExtractText returns the plain-text content of an OpenAI message's
// polymorphic Content field: either a bare JSON string, or a list of
// {type:"text", text} parts (non-text parts, e.g. image_url, contribute
// nothing).
func ExtractText(content json.RawMessage) string {
	if len(content) == 0 {
		return ""
	}

	var asString string
	if err := json.Unmarshal(content, &asString); err == nil {
		return asString
	}

	var parts []OpenAIContentPart
	if err := json.Unmarshal(content, &parts); err == nil {
		var sb []byte
		for _, p := range parts {
			if p.Type == "text" && p.Text != "" {
				if len(sb) > 0 {
					sb = append(sb, '\n')
				}
				sb = append(sb, p.Text...)
			}
		}
		return string(sb)
	}

	return ""
}

// OpenAIToolCall is a model-emitted function call in OpenAI shape.
type OpenAIToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function OpenAIToolCallFunc `json:"function"`
}

// OpenAIToolCallFunc is the {name, arguments} pair inside a tool call.
type OpenAIToolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// OpenAITool is a user-declared function tool in OpenAI shape.
type OpenAITool struct {
	Type     string             `json:"type"`
	Function OpenAIToolFunction `json:"function"`
}

// OpenAIToolFunction is the {name, description, parameters} tool body.
type OpenAIToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// OpenAIResponseFormat requests structured JSON output.
type OpenAIResponseFormat struct {
	Type string `json:"type,omitempty"`
}

// OpenAIChatRequest is the /chat/completions request body.
type OpenAIChatRequest struct {
	Model          string                 `json:"model"`
	Messages       []OpenAIMessage        `json:"messages"`
	Stream         bool                   `json:"stream,omitempty"`
	Tools          []OpenAITool           `json:"tools,omitempty"`
	ResponseFormat *OpenAIResponseFormat  `json:"response_format,omitempty"`
	MaxTokens      int                    `json:"max_tokens,omitempty"`
	Temperature    float32                `json:"temperature,omitempty"`
	TopP           float32                `json:"top_p,omitempty"`
	Stop           []string               `json:"stop,omitempty"`
	ReasoningEffort string                `json:"reasoning_effort,omitempty"`
}

// OpenAIUsage mirrors the OpenAI usage object.
type OpenAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// OpenAIChoice is one choice in a chat completion response.
type OpenAIChoice struct {
	Index        int           `json:"index"`
	Message      OpenAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason,omitempty"`
}

// OpenAIChatResponse is the /chat/completions response body.
type OpenAIChatResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created,omitempty"`
	Model   string         `json:"model"`
	Choices []OpenAIChoice `json:"choices"`
	Usage   *OpenAIUsage   `json:"usage,omitempty"`
}

// OpenAIChoiceDelta is one streamed delta in an OpenAI-compatible SSE chunk.
type OpenAIChoiceDelta struct {
	Index        int           `json:"index"`
	Delta        OpenAIMessage `json:"delta"`
	FinishReason string        `json:"finish_reason,omitempty"`
}

// OpenAIChatStreamChunk is one `data: ...` SSE frame in OpenAI shape.
type OpenAIChatStreamChunk struct {
	ID      string              `json:"id"`
	Object  string              `json:"object"`
	Created int64               `json:"created,omitempty"`
	Model   string              `json:"model"`
	Choices []OpenAIChoiceDelta `json:"choices"`
	Usage   *OpenAIUsage        `json:"usage,omitempty"`
}

// OpenAIEmbeddingRequest is the /embeddings request body.
type OpenAIEmbeddingRequest struct {
	Model string          `json:"model"`
	Input json.RawMessage `json:"input"`
}

// OpenAIEmbeddingData is one embedding result.
type OpenAIEmbeddingData struct {
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
	Object    string    `json:"object"`
}

// OpenAIEmbeddingResponse is the /embeddings response body.
type OpenAIEmbeddingResponse struct {
	Object string                `json:"object"`
	Data   []OpenAIEmbeddingData `json:"data"`
	Model  string                `json:"model"`
	Usage  OpenAIUsage           `json:"usage"`
}

// OpenAIModel is one entry in an OpenAI-compatible /models listing.
type OpenAIModel struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

// OpenAIModelList is the /models response body.
type OpenAIModelList struct {
	Object string        `json:"object"`
	Data   []OpenAIModel `json:"data"`
}
