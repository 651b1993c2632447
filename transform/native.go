// Package transform implements the response transformer (C7): normalizing
// an upstream GenerateContentResponse into either dialect's client-facing
// shape, via a part-walking loop generalized to five part kinds plus a
// citation-footer rule; the native path is a closer-to-identity pass since
// the upstream already speaks this dialect.
package transform

import (
	"fmt"
	"strings"

	"github.com/basuigw/gemigate/gwtypes"
)

// Options configures dialect-independent transform behavior.
type Options struct {
	ShowSearchLink     bool // append the citations footer for -search models
	ShowThinkingProc   bool // copy the thought flag through
	ImageUploader      ImageUploader
}

// ImageUploader turns inline base64 image data into an externally hosted
// URL. Nil means "no uploader configured" — the transformer falls back to
// a pass-through data URL.
type ImageUploader interface {
	Upload(mimeType, base64Data string) (url string, ok bool)
}

// RenderedPart is one piece of transformed content, collapsed to either
// text or a tool call by the caller.
type RenderedPart struct {
	Text         string
	ToolCalls    []ToolCallOut
	Thought      bool
}

// ToolCallOut is a normalized function-call emission, dialect-agnostic.
type ToolCallOut struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// RenderCandidate walks one candidate's parts: text,
// executableCode/codeExecutionResult formatted as fenced blocks, inlineData
// resolved to a URL, functionCall parts collected separately. Tool calls, if
// present, replace the text content in the caller's final rendering.
func RenderCandidate(opts Options, candidate gwtypes.Candidate, isSearchModel bool) RenderedPart {
	var sb strings.Builder
	var calls []ToolCallOut
	thought := false

	for i, part := range candidate.Content.Parts {
		if opts.ShowThinkingProc && part.Thought {
			thought = true
		}

		switch {
		case part.FunctionCall != nil:
			calls = append(calls, ToolCallOut{
				ID:        fmt.Sprintf("call_%s_%d", part.FunctionCall.Name, i),
				Name:      part.FunctionCall.Name,
				Arguments: part.FunctionCall.Args,
			})
		case part.ExecutableCode != nil:
			sb.WriteString(fencedCodeBlock(part.ExecutableCode.Language, part.ExecutableCode.Code))
		case part.CodeExecutionResult != nil:
			sb.WriteString(executionResultBlock(part.CodeExecutionResult.Output))
		case part.InlineData != nil:
			sb.WriteString(inlineDataURL(opts.ImageUploader, part.InlineData))
		case part.Text != "":
			sb.WriteString(part.Text)
		}
	}

	if isSearchModel && opts.ShowSearchLink && candidate.GroundingMetadata != nil {
		if footer := citationsFooter(candidate.GroundingMetadata); footer != "" {
			sb.WriteString(footer)
		}
	}

	return RenderedPart{Text: sb.String(), ToolCalls: calls, Thought: thought}
}

func fencedCodeBlock(language, code string) string {
	return fmt.Sprintf("\n```%s\n%s\n```\n", language, code)
}

func executionResultBlock(output string) string {
	return fmt.Sprintf("\n```\nexecution result:\n%s\n```\n", output)
}

func inlineDataURL(uploader ImageUploader, data *gwtypes.InlineData) string {
	if uploader != nil {
		if url, ok := uploader.Upload(data.MimeType, data.Data); ok {
			return url
		}
	}
	return fmt.Sprintf("data:%s;base64,%s", data.MimeType, data.Data)
}

func citationsFooter(meta *gwtypes.GroundingMetadata) string {
	if len(meta.GroundingChunks) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\n\n---\nSources:\n")
	n := 0
	for _, chunk := range meta.GroundingChunks {
		if chunk.Web == nil {
			continue
		}
		n++
		sb.WriteString(fmt.Sprintf("%d. [%s](%s)\n", n, chunk.Web.Title, chunk.Web.URI))
	}
	if n == 0 {
		return ""
	}
	return sb.String()
}

// IsPassThroughChunk reports whether a streaming chunk should skip
// transformation entirely: no image uploader configured, and the chunk
// carries inline image data. The raw chunk is forwarded as-is in that case.
func IsPassThroughChunk(opts Options, resp *gwtypes.GenerateContentResponse) bool {
	if opts.ImageUploader != nil {
		return false
	}
	for _, c := range resp.Candidates {
		for _, p := range c.Content.Parts {
			if p.InlineData != nil {
				return true
			}
		}
	}
	return false
}

// ActualTokens extracts the authoritative token count from a native
// response's usage metadata, for settlement. Returns 0 if absent.
func ActualTokens(resp *gwtypes.GenerateContentResponse) int {
	if resp == nil || resp.UsageMetadata == nil {
		return 0
	}
	return resp.UsageMetadata.TotalTokenCount
}
