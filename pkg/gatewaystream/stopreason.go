package gatewaystream

import "github.com/kiro-gateway/gateway/pkg/gatewayerrors"

// Anthropic stop_reason values (spec §4.E).
const (
	StopEndTurn   = "end_turn"
	StopToolUse   = "tool_use"
	StopMaxTokens = "max_tokens"
	StopError     = "error"
)

// OpenAI finish_reason values (spec §4.E's projection table).
const (
	FinishStop      = "stop"
	FinishLength    = "length"
	FinishToolCalls = "tool_calls"
)

// ResolveAnthropic implements spec §4.E's Anthropic stop_reason mapping.
//
// Open question (spec §9, decided): when both an exception and
// completed/active tool-use are present, the exception wins — "the
// client's correctness depends on truncation signalling," per the
// spec's own recommendation. That is why this check runs first,
// unconditionally of the tool flags.
func ResolveAnthropic(exceptionType string, hasActiveTools, hasCompletedTools bool) string {
	if exceptionType != "" {
		if gatewayerrors.IsContentLengthExceeded(exceptionType) {
			return StopMaxTokens
		}
		return StopError
	}
	if hasCompletedTools {
		return StopToolUse
	}
	if hasActiveTools {
		return StopToolUse
	}
	return StopEndTurn
}

// ResolveCollected implements spec §4.J's non-streaming stop_reason
// rule: "tool_use" if any tool uses were collected, else "end_turn".
func ResolveCollected(c Collected) string {
	if len(c.ToolUses) > 0 {
		return StopToolUse
	}
	return StopEndTurn
}

// ResolveOpenAI projects an Anthropic stop_reason to an OpenAI
// finish_reason, per spec §4.E.
func ResolveOpenAI(anthropicStopReason string) string {
	switch anthropicStopReason {
	case StopMaxTokens:
		return FinishLength
	case StopToolUse:
		return FinishToolCalls
	case StopError:
		return FinishStop
	default:
		return FinishStop
	}
}
