package payload

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basuigw/gemigate/gwtypes"
)

func TestDecodeModel_SuffixCombination(t *testing.T) {
	d := DecodeModel("gemini-2.0-flash-search-non-thinking")
	assert.Equal(t, "gemini-2.0-flash", d.RealModel)
	assert.True(t, d.Search)
	assert.True(t, d.NonThinking)
	assert.False(t, d.Image)
}

func TestDecodeModel_ImageGeneration(t *testing.T) {
	d := DecodeModel("gemini-2.0-flash-image-generation")
	assert.Equal(t, "gemini-2.0-flash", d.RealModel)
	assert.True(t, d.Image)
}

func TestDecodeModel_NoSuffix(t *testing.T) {
	d := DecodeModel("gemini-2.0-flash")
	assert.Equal(t, "gemini-2.0-flash", d.RealModel)
	assert.False(t, d.Search || d.Image || d.NonThinking)
}

func baseOpts(model string) Options {
	return Options{
		Model: model,
		Contents: []gwtypes.NativeContent{
			{Role: gwtypes.RoleUser, Parts: []gwtypes.NativePart{{Text: "hi"}}},
		},
	}
}

// Tools + structured output -> built-in tools absent, function
// declarations present and sanitized.
func TestShape_FunctionsWithStructuredOutput(t *testing.T) {
	cfg := Config{CodeExecutionEnabled: true}
	opts := baseOpts("gemini-2.0-flash")
	opts.ResponseJSON = true
	opts.Functions = []gwtypes.FunctionDeclaration{{
		Name: "get_weather",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"city": map[string]any{"type": "string", "$ref": "#/defs/city"},
			},
			"$schema": "http://json-schema.org/draft-07/schema#",
		},
	}}

	req := Shape(cfg, opts)
	require.Len(t, req.Tools, 1)
	assert.Nil(t, req.Tools[0].GoogleSearch)
	assert.Nil(t, req.Tools[0].CodeExecution)
	assert.Nil(t, req.Tools[0].URLContext)
	require.Len(t, req.Tools[0].FunctionDeclarations, 1)
	assert.Equal(t, "get_weather", req.Tools[0].FunctionDeclarations[0].Name)
	params := req.Tools[0].FunctionDeclarations[0].Parameters
	_, hasRef := params["properties"].(map[string]any)["city"].(map[string]any)["$ref"]
	_, hasSchema := params["$schema"]
	assert.False(t, hasRef)
	assert.False(t, hasSchema)
	assert.Equal(t, "application/json", req.GenerationConfig.ResponseMimeType)
}

func TestShape_FunctionsSuppressBuiltinTools(t *testing.T) {
	cfg := Config{CodeExecutionEnabled: true, URLContextEnabled: true, URLContextModels: map[string]bool{"gemini-2.0-flash": true}}
	opts := baseOpts("gemini-2.0-flash-search")
	opts.Functions = []gwtypes.FunctionDeclaration{{Name: "f"}}

	req := Shape(cfg, opts)
	require.Len(t, req.Tools, 1)
	assert.Nil(t, req.Tools[0].GoogleSearch)
	assert.Nil(t, req.Tools[0].CodeExecution)
	assert.Nil(t, req.Tools[0].URLContext)
	assert.Len(t, req.Tools[0].FunctionDeclarations, 1)
}

func TestShape_HistoryFunctionCallSuppressesBuiltins(t *testing.T) {
	cfg := Config{CodeExecutionEnabled: true}
	opts := baseOpts("gemini-2.0-flash")
	opts.Contents = append(opts.Contents, gwtypes.NativeContent{
		Role:  gwtypes.RoleModel,
		Parts: []gwtypes.NativePart{{FunctionCall: &gwtypes.FunctionCall{Name: "f"}}},
	})

	req := Shape(cfg, opts)
	require.Len(t, req.Tools, 1)
	assert.Nil(t, req.Tools[0].GoogleSearch)
	assert.Nil(t, req.Tools[0].CodeExecution)
}

func TestShape_SearchEnablesGoogleSearchTool(t *testing.T) {
	req := Shape(Config{}, baseOpts("gemini-2.0-flash-search"))
	require.Len(t, req.Tools, 1)
	assert.NotNil(t, req.Tools[0].GoogleSearch)
}

func TestShape_CodeExecutionDisabledWithMediaParts(t *testing.T) {
	cfg := Config{CodeExecutionEnabled: true}
	opts := baseOpts("gemini-2.0-flash")
	opts.Contents[0].Parts = append(opts.Contents[0].Parts, gwtypes.NativePart{
		InlineData: &gwtypes.InlineData{MimeType: "image/png", Data: "xx"},
	})

	req := Shape(cfg, opts)
	assert.Nil(t, req.Tools)
}

func TestShape_EmptyPartsFiltered(t *testing.T) {
	opts := baseOpts("gemini-2.0-flash")
	opts.Contents = append(opts.Contents, gwtypes.NativeContent{
		Role:  gwtypes.RoleUser,
		Parts: []gwtypes.NativePart{{}}, // becomes empty after filtering
	})

	req := Shape(Config{}, opts)
	assert.Len(t, req.Contents, 1)
}

func TestShape_NonThinkingZerosBudget(t *testing.T) {
	req := Shape(Config{}, baseOpts("gemini-2.0-flash-non-thinking"))
	require.NotNil(t, req.GenerationConfig)
	require.NotNil(t, req.GenerationConfig.ThinkingConfig)
	assert.Equal(t, 0, *req.GenerationConfig.ThinkingConfig.ThinkingBudget)
}

func TestShape_NonThinking25ProGetsFixedBudget(t *testing.T) {
	req := Shape(Config{}, baseOpts("gemini-2.5-pro-non-thinking"))
	require.NotNil(t, req.GenerationConfig.ThinkingConfig)
	assert.Equal(t, thinkingBudgetForNonThinking250Pro, *req.GenerationConfig.ThinkingConfig.ThinkingBudget)
}

func TestShape_ThinkingBudgetMapWithIncludeThoughts(t *testing.T) {
	cfg := Config{
		ThinkingBudgetMap:   map[string]int{"gemini-2.5-flash": 2048},
		IncludeThoughtsFlag: true,
	}
	req := Shape(cfg, baseOpts("gemini-2.5-flash"))
	require.NotNil(t, req.GenerationConfig.ThinkingConfig)
	assert.Equal(t, 2048, *req.GenerationConfig.ThinkingConfig.ThinkingBudget)
	assert.True(t, req.GenerationConfig.ThinkingConfig.IncludeThoughts)
}

func TestSanitizeSchema_StripsRejectedKeywords(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"$ref": "#/foo",
		"properties": map[string]any{
			"x": map[string]any{"const": 1, "type": "number"},
		},
		"allOf": []any{map[string]any{"oneOf": []any{}}},
	}
	out := SanitizeSchema(schema)
	_, hasRef := out["$ref"]
	_, hasAllOf := out["allOf"]
	assert.False(t, hasRef)
	assert.False(t, hasAllOf)
	props := out["properties"].(map[string]any)
	x := props["x"].(map[string]any)
	_, hasConst := x["const"]
	assert.False(t, hasConst)
	assert.Equal(t, "number", x["type"])
}

func TestValidateOptions_AcceptsWellFormedOptions(t *testing.T) {
	assert.Empty(t, ValidateOptions(baseOpts("gemini-2.0-flash")))
}

func TestValidateOptions_RejectsEmptyModel(t *testing.T) {
	opts := baseOpts("")
	details := ValidateOptions(opts)
	require.Len(t, details, 1)
	assert.Equal(t, "model", details[0].Field)
}

func TestValidateOptions_RejectsEmptyContents(t *testing.T) {
	opts := baseOpts("gemini-2.0-flash")
	opts.Contents = nil
	details := ValidateOptions(opts)
	require.Len(t, details, 1)
	assert.Equal(t, "contents", details[0].Field)
}

func TestValidateOptions_RejectsContentsThatAreAllEmptyParts(t *testing.T) {
	opts := baseOpts("gemini-2.0-flash")
	opts.Contents = []gwtypes.NativeContent{{Role: gwtypes.RoleUser, Parts: []gwtypes.NativePart{{}}}}
	details := ValidateOptions(opts)
	require.Len(t, details, 1)
	assert.Equal(t, "contents", details[0].Field)
}

func TestValidateOptions_RejectsNegativeMaxOutputTokens(t *testing.T) {
	opts := baseOpts("gemini-2.0-flash")
	opts.MaxOutputTokens = -1
	details := ValidateOptions(opts)
	require.Len(t, details, 1)
	assert.Equal(t, "max_output_tokens", details[0].Field)
}

func TestValidateOptions_AccumulatesMultipleViolations(t *testing.T) {
	opts := Options{MaxOutputTokens: -5}
	details := ValidateOptions(opts)
	assert.Len(t, details, 3)
}

func TestValidateMaxOutputTokens_EmptyIsUnspecified(t *testing.T) {
	n, ok := ValidateMaxOutputTokens("")
	assert.True(t, ok)
	assert.Equal(t, 0, n)
}

func TestValidateMaxOutputTokens_RejectsNonPositive(t *testing.T) {
	_, ok := ValidateMaxOutputTokens("0")
	assert.False(t, ok)
	_, ok = ValidateMaxOutputTokens("-3")
	assert.False(t, ok)
	_, ok = ValidateMaxOutputTokens("not-a-number")
	assert.False(t, ok)
}

func TestValidateMaxOutputTokens_AcceptsPositive(t *testing.T) {
	n, ok := ValidateMaxOutputTokens("512")
	assert.True(t, ok)
	assert.Equal(t, 512, n)
}

// Property: when functionDeclarations is non-empty or history contains any
// functionCall, the built tools contain none of the built-ins.
func TestProperty_FunctionsExcludeBuiltinTools(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("functions suppress built-in tools", prop.ForAll(
		func(fnName string, search bool) bool {
			cfg := Config{CodeExecutionEnabled: true, URLContextEnabled: true, URLContextModels: map[string]bool{"m": true}}
			model := "m"
			if search {
				model += "-search"
			}
			opts := baseOpts(model)
			opts.Functions = []gwtypes.FunctionDeclaration{{Name: fnName}}

			req := Shape(cfg, opts)
			if len(req.Tools) == 0 {
				return true
			}
			t := req.Tools[0]
			return t.GoogleSearch == nil && t.CodeExecution == nil && t.URLContext == nil
		},
		gen.Identifier(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
