// Package tokenizer implements the gateway's mixed-script token estimator
// (C1), narrowed to one exact CJK range and fixed per-character weights.
package tokenizer

import (
	"math"

	"github.com/basuigw/gemigate/gwtypes"
)

// isCJK reports whether r falls in the canonical CJK range (U+4E00..U+9FFF,
// CJK Unified Ideographs). Additional ranges (extension blocks,
// compatibility ideographs, fullwidth forms) are deliberately excluded
// rather than risk silently over-counting.
func isCJK(r rune) bool {
	return r >= 0x4E00 && r <= 0x9FFF
}

// countText returns the fractional token weight of s: 1.0 per CJK rune,
// 0.25 per other rune. Not yet floored — callers sum across fields first.
func countText(s string) float64 {
	var weight float64
	for _, r := range s {
		if isCJK(r) {
			weight += 1.0
		} else {
			weight += 0.25
		}
	}
	return weight
}

// EstimateNative walks a native-dialect GenerateContentRequest's contents
// and system instruction. Batch-embedding requests go through
// EstimateBatchEmbed.
func EstimateNative(req *gwtypes.GenerateContentRequest) int {
	var weight float64
	if req != nil {
		for _, c := range req.Contents {
			for _, p := range c.Parts {
				weight += countText(p.Text)
			}
		}
		if req.SystemInstruction != nil {
			for _, p := range req.SystemInstruction.Parts {
				weight += countText(p.Text)
			}
		}
	}
	return clampFloor(weight)
}

// EstimateBatchEmbed walks a batch-embedding request's text fields.
func EstimateBatchEmbed(req *gwtypes.BatchEmbedContentsRequest) int {
	var weight float64
	if req != nil {
		for _, r := range req.Requests {
			for _, p := range r.Content.Parts {
				weight += countText(p.Text)
			}
		}
	}
	return clampFloor(weight)
}

// EstimateEmbed walks a single embed-content request.
func EstimateEmbed(req *gwtypes.EmbedContentRequest) int {
	var weight float64
	if req != nil {
		for _, p := range req.Content.Parts {
			weight += countText(p.Text)
		}
	}
	return clampFloor(weight)
}

// EstimateOpenAIChat walks an OpenAI-compatible chat request's messages.
// Content is either a bare JSON string or a list of {type:"text", text}
// parts.
func EstimateOpenAIChat(req *gwtypes.OpenAIChatRequest) int {
	var weight float64
	if req != nil {
		for _, m := range req.Messages {
			weight += countText(gwtypes.ExtractText(m.Content))
		}
	}
	return clampFloor(weight)
}

// clampFloor floors the accumulated weight and enforces a 1-token floor:
// every non-empty payload estimates to at least 1 token.
func clampFloor(weight float64) int {
	n := int(math.Floor(weight))
	if n < 1 {
		n = 1
	}
	return n
}
