// Package gwtypes holds the wire-shape types shared by every component of
// the gateway core: the native (Gemini-shaped) request/response types, the
// OpenAI-compatible request/response types, and the opaque logging sink
// contract.
package gwtypes

// Role names used in the native dialect's Content.Role field.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// NativeContent is one turn of a native-dialect conversation.
type NativeContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []NativePart `json:"parts"`
}

// NativePart is a single content part. Exactly one of the pointer/value
// fields is populated among its five part kinds, plus Text.
type NativePart struct {
	Text                string               `json:"text,omitempty"`
	Thought             bool                 `json:"thought,omitempty"`
	InlineData          *InlineData          `json:"inlineData,omitempty"`
	FunctionCall        *FunctionCall        `json:"functionCall,omitempty"`
	FunctionResponse    *FunctionResponse    `json:"functionResponse,omitempty"`
	ExecutableCode      *ExecutableCode      `json:"executableCode,omitempty"`
	CodeExecutionResult *CodeExecutionResult `json:"codeExecutionResult,omitempty"`
}

// InlineData carries base64-encoded media (e.g. generated images).
type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// FunctionCall is a model-emitted tool invocation.
type FunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// FunctionResponse is a caller-supplied tool result fed back to the model.
type FunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// ExecutableCode is a code-execution-tool part the model asked to run.
type ExecutableCode struct {
	Language string `json:"language,omitempty"`
	Code     string `json:"code"`
}

// CodeExecutionResult is the outcome of running an ExecutableCode part.
type CodeExecutionResult struct {
	Outcome string `json:"outcome,omitempty"`
	Output  string `json:"output,omitempty"`
}

// Tool bundles at most one of each built-in/declared tool kind: a
// request assembles at most one Tool object.
type Tool struct {
	GoogleSearch         *struct{}             `json:"googleSearch,omitempty"`
	CodeExecution        *struct{}             `json:"codeExecution,omitempty"`
	URLContext           *struct{}             `json:"urlContext,omitempty"`
	FunctionDeclarations []FunctionDeclaration `json:"functionDeclarations,omitempty"`
}

// FunctionDeclaration is a user-declared callable tool.
type FunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// SafetySetting is a single category/threshold pair.
type SafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

// ThinkingConfig controls the model's internal reasoning budget.
type ThinkingConfig struct {
	ThinkingBudget  *int `json:"thinkingBudget,omitempty"`
	IncludeThoughts bool `json:"includeThoughts,omitempty"`
}

// GenerationConfig is the native dialect's sampling/output configuration.
type GenerationConfig struct {
	Temperature      float32         `json:"temperature,omitempty"`
	TopP             float32         `json:"topP,omitempty"`
	TopK             int             `json:"topK,omitempty"`
	MaxOutputTokens  int             `json:"maxOutputTokens,omitempty"`
	StopSequences    []string        `json:"stopSequences,omitempty"`
	ResponseMimeType string          `json:"responseMimeType,omitempty"`
	ThinkingConfig   *ThinkingConfig `json:"thinkingConfig,omitempty"`
}

// GenerateContentRequest is the native-dialect upstream request shape for
// both /generateContent and :streamGenerateContent.
type GenerateContentRequest struct {
	Contents          []NativeContent   `json:"contents"`
	Tools             []Tool            `json:"tools,omitempty"`
	SafetySettings    []SafetySetting   `json:"safetySettings,omitempty"`
	SystemInstruction *NativeContent    `json:"systemInstruction,omitempty"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
}

// Candidate is one generated response alternative.
type Candidate struct {
	Content           NativeContent      `json:"content"`
	FinishReason      string             `json:"finishReason,omitempty"`
	Index             int                `json:"index"`
	GroundingMetadata *GroundingMetadata `json:"groundingMetadata,omitempty"`
}

// GroundingMetadata carries web-search citations for "-search" models.
type GroundingMetadata struct {
	GroundingChunks []GroundingChunk `json:"groundingChunks,omitempty"`
}

// GroundingChunk wraps a single citation source.
type GroundingChunk struct {
	Web *WebChunk `json:"web,omitempty"`
}

// WebChunk is a {title, uri} citation pair.
type WebChunk struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// UsageMetadata is the upstream's token accounting for a single call.
type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// GenerateContentResponse is the native-dialect upstream response shape.
type GenerateContentResponse struct {
	Candidates    []Candidate    `json:"candidates"`
	UsageMetadata *UsageMetadata `json:"usageMetadata,omitempty"`
	ModelVersion  string         `json:"modelVersion,omitempty"`
	ResponseID    string         `json:"responseId,omitempty"`
}

// CountTokensRequest mirrors a generateContent request for /countTokens.
type CountTokensRequest struct {
	Contents []NativeContent `json:"contents"`
}

// CountTokensResponse is the upstream's authoritative token count.
type CountTokensResponse struct {
	TotalTokens int `json:"totalTokens"`
}

// EmbedContentRequest embeds a single piece of content.
type EmbedContentRequest struct {
	Model   string        `json:"model,omitempty"`
	Content NativeContent `json:"content"`
}

// BatchEmbedContentsRequest embeds many pieces of content in one call.
type BatchEmbedContentsRequest struct {
	Requests []EmbedContentRequest `json:"requests"`
}

// Embedding is a single embedding vector.
type Embedding struct {
	Values []float64 `json:"values"`
}

// EmbedContentResponse is the response to a single embed call.
type EmbedContentResponse struct {
	Embedding Embedding `json:"embedding"`
}

// BatchEmbedContentsResponse is the response to a batch embed call.
type BatchEmbedContentsResponse struct {
	Embeddings []Embedding `json:"embeddings"`
}

// Model describes one upstream model as returned by /models.
type Model struct {
	Name             string   `json:"name"`
	BaseModelID      string   `json:"baseModelId,omitempty"`
	Version          string   `json:"version,omitempty"`
	DisplayName      string   `json:"displayName,omitempty"`
	Description      string   `json:"description,omitempty"`
	InputTokenLimit  int      `json:"inputTokenLimit,omitempty"`
	OutputTokenLimit int      `json:"outputTokenLimit,omitempty"`
	SupportedMethods []string `json:"supportedGenerationMethods,omitempty"`
}

// ListModelsResponse wraps the /models listing.
type ListModelsResponse struct {
	Models []Model `json:"models"`
}
