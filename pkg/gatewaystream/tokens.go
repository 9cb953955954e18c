// Package gatewaystream implements the streaming translator: the SSE
// state machine (§4.C), token estimator (§4.D), stop-reason resolver
// (§4.E), the Anthropic (§4.F) and OpenAI (§4.G) emitters, and the
// non-stream collector (§4.J). All five share one per-request
// UpstreamEvent sequence; this package is where that sequence turns
// into client-visible output.
package gatewaystream

import "math"

// TextTokens applies the length/4 heuristic from spec §4.D: coarse,
// deterministic accountancy for client-visible usage fields, not a
// real tokenizer.
func TextTokens(s string) int {
	if s == "" {
		return 0
	}
	return int(math.Ceil(float64(len([]rune(s))) / 4.0))
}

// ToolUseStartTokens is the structural surcharge spec §4.D assigns when
// a tool-use content block opens: 12 plus the name's text tokens.
func ToolUseStartTokens(name string) int {
	return 12 + TextTokens(name)
}

// ToolInputFragmentTokens charges a delta's fragment length the same
// way as any other text.
func ToolInputFragmentTokens(fragment string) int {
	return TextTokens(fragment)
}

// ToolResultTokens charges the request-side structural surcharge for a
// tool result block: 10 plus the text tokens of each inner text.
func ToolResultTokens(innerTexts []string) int {
	total := 10
	for _, t := range innerTexts {
		total += TextTokens(t)
	}
	return total
}

// ToolDefinitionTokens charges the request-side structural surcharge
// for a tool definition: 20 plus name + description + the JSON schema's
// text tokens.
func ToolDefinitionTokens(name, description, jsonSchema string) int {
	return 20 + TextTokens(name) + TextTokens(description) + TextTokens(jsonSchema)
}

// MessageStructuralTokens charges the per-message structural surcharge
// (4) plus the caller-supplied recursive content token count.
func MessageStructuralTokens(contentTokens int) int {
	return 4 + contentTokens
}

// FloorOutputTokens enforces the minimum-output-tokens-is-1 rule
// whenever any tool activity occurred (spec §4.D), and more generally
// whenever any content block was opened at all (testable property #4).
func FloorOutputTokens(counted int, anyBlockOpened bool) int {
	if anyBlockOpened && counted < 1 {
		return 1
	}
	return counted
}
