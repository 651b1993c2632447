// Package payload implements the upstream payload shaper (C6): model-name
// suffix decoding, tool composition, safety settings, thinking budget, and
// the cleanup passes the upstream requires before a request is accepted,
// via a request-assembly pass plus an empty-tools rewriter generalized to
// the model suffix grammar and tool-suppression rules this gateway
// implements.
package payload

import (
	"strconv"
	"strings"

	"github.com/basuigw/gemigate/gwerrors"
	"github.com/basuigw/gemigate/gwtypes"
)

// Suffixes, stripped in a fixed order to recover the "real" upstream model
// name. They combine (e.g. "-search-non-thinking").
const (
	suffixSearch      = "-search"
	suffixImage       = "-image"
	suffixImageGen    = "-image-generation"
	suffixNonThinking = "-non-thinking"
)

// Decoded holds the outcome of stripping the suffix grammar from a
// client-supplied model name.
type Decoded struct {
	RealModel   string
	Search      bool
	Image       bool
	NonThinking bool
}

// DecodeModel strips the suffix grammar in the fixed order search -> image
// -> non-thinking, toggling one feature flag per suffix encountered.
func DecodeModel(model string) Decoded {
	d := Decoded{RealModel: model}

	if strings.HasSuffix(d.RealModel, suffixSearch) {
		d.Search = true
		d.RealModel = strings.TrimSuffix(d.RealModel, suffixSearch)
	}
	if strings.HasSuffix(d.RealModel, suffixImageGen) {
		d.Image = true
		d.RealModel = strings.TrimSuffix(d.RealModel, suffixImageGen)
	} else if strings.HasSuffix(d.RealModel, suffixImage) {
		d.Image = true
		d.RealModel = strings.TrimSuffix(d.RealModel, suffixImage)
	}
	if strings.HasSuffix(d.RealModel, suffixNonThinking) {
		d.NonThinking = true
		d.RealModel = strings.TrimSuffix(d.RealModel, suffixNonThinking)
	}

	return d
}

// jsonSchemaKeywordsToStrip are upstream-rejected JSON Schema keywords,
// recursively removed from user-declared function parameter schemas.
var jsonSchemaKeywordsToStrip = map[string]bool{
	"exclusiveMinimum": true,
	"exclusiveMaximum": true,
	"const":            true,
	"examples":         true,
	"$schema":          true,
	"$id":              true,
	"$ref":             true,
	"allOf":            true,
	"anyOf":            true,
	"oneOf":            true,
	"not":              true,
	"if":               true,
	"then":             true,
	"else":             true,
	"definitions":      true,
	"readOnly":         true,
	"writeOnly":        true,
}

// SanitizeSchema recursively strips keywords the upstream rejects from a
// JSON Schema object, walking nested objects and arrays. The input is not
// mutated; a cleaned copy is returned.
func SanitizeSchema(schema map[string]any) map[string]any {
	if schema == nil {
		return nil
	}
	out := make(map[string]any, len(schema))
	for k, v := range schema {
		if jsonSchemaKeywordsToStrip[k] {
			continue
		}
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return SanitizeSchema(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = sanitizeValue(e)
		}
		return out
	default:
		return v
	}
}

// Config configures the model/feature-dependent choices the shaper makes
// that come from outside the request itself.
type Config struct {
	CodeExecutionEnabled bool
	URLContextEnabled    bool
	URLContextModels     map[string]bool
	SafetySettings       []gwtypes.SafetySetting
	LegacySafetySettings []gwtypes.SafetySetting
	LegacyModelNames     map[string]bool
	ThinkingBudgetMap    map[string]int
	IncludeThoughtsFlag  bool // global "budget+includeThoughts" vs "budget only" switch
}

// Options are the per-request inputs the shaper folds into the built
// payload, orthogonal to what travels on GenerateContentRequest already.
type Options struct {
	Model               string
	Contents            []gwtypes.NativeContent
	SystemInstruction   *gwtypes.NativeContent
	Functions           []gwtypes.FunctionDeclaration
	HasHistoryFuncCall  bool
	ResponseJSON        bool
	RequestedThinking   *gwtypes.ThinkingConfig
	GenerationConfig    *gwtypes.GenerationConfig
	MaxOutputTokens     int // 0 = unspecified; negative is rejected by caller
}

// Shape builds the native-dialect upstream request from the decoded model
// and request options, applying every rule in the payload shaper's
// contract.
func Shape(cfg Config, opts Options) *gwtypes.GenerateContentRequest {
	decoded := DecodeModel(opts.Model)

	req := &gwtypes.GenerateContentRequest{
		Contents:          filterEmptyParts(opts.Contents),
		SystemInstruction: opts.SystemInstruction,
		SafetySettings:    safetySettingsFor(cfg, decoded.RealModel),
	}

	req.Tools = composeTools(cfg, decoded, opts)
	req.GenerationConfig = buildGenerationConfig(cfg, decoded, opts)

	return req
}

func filterEmptyParts(contents []gwtypes.NativeContent) []gwtypes.NativeContent {
	out := make([]gwtypes.NativeContent, 0, len(contents))
	for _, c := range contents {
		parts := make([]gwtypes.NativePart, 0, len(c.Parts))
		for _, p := range c.Parts {
			if isEmptyPart(p) {
				continue
			}
			parts = append(parts, p)
		}
		if len(parts) == 0 {
			continue
		}
		c.Parts = parts
		out = append(out, c)
	}
	return out
}

func isEmptyPart(p gwtypes.NativePart) bool {
	return p.Text == "" &&
		p.InlineData == nil &&
		p.FunctionCall == nil &&
		p.FunctionResponse == nil &&
		p.ExecutableCode == nil &&
		p.CodeExecutionResult == nil
}

func hasMediaParts(contents []gwtypes.NativeContent) bool {
	for _, c := range contents {
		for _, p := range c.Parts {
			if p.InlineData != nil {
				return true
			}
		}
	}
	return false
}

func historyHasFunctionCall(contents []gwtypes.NativeContent) bool {
	for _, c := range contents {
		for _, p := range c.Parts {
			if p.FunctionCall != nil {
				return true
			}
		}
	}
	return false
}

// composeTools assembles at most one Tool object: built-in tools are
// mutually exclusive with function calling, and built-in tools specifically
// (googleSearch/codeExecution/urlContext) are suppressed when structured
// JSON output is requested. Function declarations are never suppressed by
// ResponseJSON — the upstream accepts functionDeclarations alongside
// responseMimeType=application/json.
func composeTools(cfg Config, decoded Decoded, opts Options) []gwtypes.Tool {
	hasFunctions := len(opts.Functions) > 0 || opts.HasHistoryFuncCall || historyHasFunctionCall(opts.Contents)

	if hasFunctions {
		return []gwtypes.Tool{{FunctionDeclarations: sanitizeFunctions(opts.Functions)}}
	}

	if opts.ResponseJSON {
		return nil
	}

	var tool gwtypes.Tool
	built := false

	if decoded.Search {
		tool.GoogleSearch = &struct{}{}
		built = true
	}
	if cfg.CodeExecutionEnabled && !decoded.Search && !decoded.NonThinking && !decoded.Image && !hasMediaParts(opts.Contents) {
		tool.CodeExecution = &struct{}{}
		built = true
	}
	if cfg.URLContextEnabled && cfg.URLContextModels[decoded.RealModel] {
		tool.URLContext = &struct{}{}
		built = true
	}

	if !built {
		return nil
	}
	return []gwtypes.Tool{tool}
}

func sanitizeFunctions(fns []gwtypes.FunctionDeclaration) []gwtypes.FunctionDeclaration {
	if len(fns) == 0 {
		return nil
	}
	out := make([]gwtypes.FunctionDeclaration, len(fns))
	for i, f := range fns {
		out[i] = gwtypes.FunctionDeclaration{
			Name:        f.Name,
			Description: f.Description,
			Parameters:  SanitizeSchema(f.Parameters),
		}
	}
	return out
}

func safetySettingsFor(cfg Config, realModel string) []gwtypes.SafetySetting {
	if cfg.LegacyModelNames[realModel] && len(cfg.LegacySafetySettings) > 0 {
		return cfg.LegacySafetySettings
	}
	return cfg.SafetySettings
}

// thinkingBudgetForNonThinking250Pro is the fixed override for the legacy
// 2.5-pro family, which rejects a zero thinking budget.
const thinkingBudgetForNonThinking250Pro = 128

func buildGenerationConfig(cfg Config, decoded Decoded, opts Options) *gwtypes.GenerationConfig {
	gc := &gwtypes.GenerationConfig{}
	if opts.GenerationConfig != nil {
		*gc = *opts.GenerationConfig
	}
	if opts.ResponseJSON {
		gc.ResponseMimeType = "application/json"
	}

	gc.ThinkingConfig = thinkingConfigFor(cfg, decoded, opts)

	if opts.MaxOutputTokens != 0 {
		gc.MaxOutputTokens = opts.MaxOutputTokens
	}

	if isZeroGenerationConfig(gc) {
		return nil
	}
	return gc
}

func isZeroGenerationConfig(gc *gwtypes.GenerationConfig) bool {
	return gc.Temperature == 0 && gc.TopP == 0 && gc.TopK == 0 &&
		gc.MaxOutputTokens == 0 && len(gc.StopSequences) == 0 &&
		gc.ResponseMimeType == "" && gc.ThinkingConfig == nil
}

func thinkingConfigFor(cfg Config, decoded Decoded, opts Options) *gwtypes.ThinkingConfig {
	if opts.RequestedThinking != nil {
		return opts.RequestedThinking
	}

	if decoded.NonThinking {
		budget := 0
		if strings.Contains(decoded.RealModel, "2.5-pro") {
			budget = thinkingBudgetForNonThinking250Pro
		}
		return &gwtypes.ThinkingConfig{ThinkingBudget: &budget}
	}

	if budget, ok := cfg.ThinkingBudgetMap[decoded.RealModel]; ok {
		b := budget
		if cfg.IncludeThoughtsFlag {
			return &gwtypes.ThinkingConfig{ThinkingBudget: &b, IncludeThoughts: true}
		}
		return &gwtypes.ThinkingConfig{ThinkingBudget: &b}
	}

	return nil
}

// ValidateMaxOutputTokens rejects a non-positive, explicitly supplied
// maxOutputTokens value. Used when the field arrives as a raw query or form
// value rather than already parsed into Options.MaxOutputTokens; an empty
// value means "unspecified" and is accepted, while an explicit "0" is
// rejected.
func ValidateMaxOutputTokens(raw string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// ValidateOptions checks the request-derived fields a dialect has already
// parsed into Options, returning one FieldDetail per violation so callers
// can surface a 422 with the complete set of problems in one response
// rather than failing fast on the first field.
func ValidateOptions(opts Options) []gwerrors.FieldDetail {
	var details []gwerrors.FieldDetail

	if strings.TrimSpace(opts.Model) == "" {
		details = append(details, gwerrors.FieldDetail{
			Field:   "model",
			Message: "model is required",
		})
	}

	if len(opts.Contents) == 0 {
		details = append(details, gwerrors.FieldDetail{
			Field:   "contents",
			Message: "contents must not be empty",
		})
	} else if len(filterEmptyParts(opts.Contents)) == 0 {
		details = append(details, gwerrors.FieldDetail{
			Field:   "contents",
			Message: "contents must include at least one non-empty part",
		})
	}

	if opts.MaxOutputTokens < 0 {
		details = append(details, gwerrors.FieldDetail{
			Field:   "max_output_tokens",
			Message: "must be a positive integer when set",
		})
	}

	return details
}
