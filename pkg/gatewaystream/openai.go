package gatewaystream

import (
	"github.com/kiro-gateway/gateway/pkg/gatewayerrors"
	"github.com/kiro-gateway/gateway/pkg/upstream"
)

// OpenAIEmitter re-projects the same upstream.Event sequence consumed
// by AnthropicEmitter into OpenAI chat.completion.chunk frames, per
// spec §4.G. It keeps its own, simpler index bookkeeping — a dense
// 0..N tool_index, with no block open/close invariants to enforce,
// since OpenAI's wire shape has no block lifecycle events of its own.
type OpenAIEmitter struct {
	id           string
	model        string
	created      int64
	outputTokens int

	toolIndexByToolUseID map[string]int
	nextToolIndex        int
	sawToolUse           bool
	sawAnyContent        bool

	exceptionType string
}

func NewOpenAIEmitter(id, model string, created int64) *OpenAIEmitter {
	return &OpenAIEmitter{
		id:                   id,
		model:                model,
		created:              created,
		toolIndexByToolUseID: make(map[string]int),
	}
}

func (e *OpenAIEmitter) chunk(delta map[string]interface{}, finishReason interface{}) SSEEvent {
	return SSEEvent{Data: map[string]interface{}{
		"id":      e.id,
		"object":  "chat.completion.chunk",
		"created": e.created,
		"model":   e.model,
		"choices": []interface{}{
			map[string]interface{}{
				"index":         0,
				"delta":         delta,
				"finish_reason": finishReason,
			},
		},
	}}
}

// Start emits the first role chunk, per spec §4.G.
func (e *OpenAIEmitter) Start() []SSEEvent {
	return []SSEEvent{e.chunk(map[string]interface{}{"role": "assistant"}, nil)}
}

// NonOK mirrors AnthropicEmitter.NonOK for the OpenAI shape.
func (e *OpenAIEmitter) NonOK(statusCode int, body string) []SSEEvent {
	return []SSEEvent{{Data: map[string]interface{}{
		"error": map[string]interface{}{
			"message": body,
			"type":    "upstream_error",
			"code":    statusCode,
		},
	}}}
}

// HandleEvent returns the chunks produced by one upstream.Event and a
// shouldTerminate flag. shouldTerminate is true exactly when a
// ContentLengthExceeded exception fires, per spec §4.G's "stop reading
// further bytes after emitting the terminal chunk" instruction — every
// other exception type surfaces as an additional error chunk (spec
// §4.E) but lets the stream keep running to its normal Finish().
func (e *OpenAIEmitter) HandleEvent(ev upstream.Event) (chunks []SSEEvent, shouldTerminate bool) {
	switch ev.Kind {
	case upstream.EventTextDelta:
		e.sawAnyContent = true
		e.outputTokens += TextTokens(ev.Content)
		return []SSEEvent{e.chunk(map[string]interface{}{"content": ev.Content}, nil)}, false

	case upstream.EventToolUseStart:
		e.sawToolUse = true
		idx := e.allocateToolIndex(ev.ToolUseID)
		e.outputTokens += ToolUseStartTokens(ev.ToolName)
		chunks = append(chunks, e.toolCallChunk(idx, ev.ToolUseID, ev.ToolName, ""))
		if ev.HasInputFrag && ev.InputFragment != "" {
			e.outputTokens += ToolInputFragmentTokens(ev.InputFragment)
			chunks = append(chunks, e.toolCallArgumentsChunk(idx, ev.InputFragment))
		} else if ev.HasInputObject {
			if encoded, err := jsonMarshalCompact(ev.InputObject); err == nil {
				chunks = append(chunks, e.toolCallArgumentsChunk(idx, encoded))
			}
		}
		return chunks, false

	case upstream.EventToolUseDelta:
		idx, ok := e.toolIndexByToolUseID[ev.ToolUseID]
		if !ok {
			idx = e.allocateToolIndex(ev.ToolUseID)
			chunks = append(chunks, e.toolCallChunk(idx, ev.ToolUseID, "", ""))
		}
		if ev.HasInputFrag {
			e.outputTokens += ToolInputFragmentTokens(ev.InputFragment)
			chunks = append(chunks, e.toolCallArgumentsChunk(idx, ev.InputFragment))
		} else if ev.HasInputObject {
			// content_block_stop has no OpenAI analogue (spec §4.G), but an
			// object-form fragment still needs to surface as arguments.
			if encoded, err := jsonMarshalCompact(ev.InputObject); err == nil {
				chunks = append(chunks, e.toolCallArgumentsChunk(idx, encoded))
			}
		}
		return chunks, false

	case upstream.EventToolUseStop:
		// content_block_stop is not projected into OpenAI chunks.
		return nil, false

	case upstream.EventException:
		e.exceptionType = ev.ExceptionType

		if gatewayerrors.IsContentLengthExceeded(ev.ExceptionType) {
			finishReason := ResolveOpenAI(ResolveAnthropic(ev.ExceptionType, false, e.sawToolUse))
			terminal := e.chunk(map[string]interface{}{}, finishReason)
			return []SSEEvent{terminal}, true
		}

		errorChunk := SSEEvent{Data: map[string]interface{}{
			"error": map[string]interface{}{
				"message": ev.ExceptionType,
				"type":    "upstream_exception",
			},
		}}
		return []SSEEvent{errorChunk}, false

	default:
		return nil, false
	}
}

func (e *OpenAIEmitter) allocateToolIndex(toolUseID string) int {
	idx := e.nextToolIndex
	e.toolIndexByToolUseID[toolUseID] = idx
	e.nextToolIndex++
	return idx
}

func (e *OpenAIEmitter) toolCallChunk(index int, id, name, arguments string) SSEEvent {
	return e.chunk(map[string]interface{}{
		"tool_calls": []interface{}{
			map[string]interface{}{
				"index": index,
				"id":    id,
				"type":  "function",
				"function": map[string]interface{}{
					"name":      name,
					"arguments": arguments,
				},
			},
		},
	}, nil)
}

func (e *OpenAIEmitter) toolCallArgumentsChunk(index int, arguments string) SSEEvent {
	return e.chunk(map[string]interface{}{
		"tool_calls": []interface{}{
			map[string]interface{}{
				"index": index,
				"function": map[string]interface{}{
					"arguments": arguments,
				},
			},
		},
	}, nil)
}

// Finish emits the terminal chunk (finish_reason resolved from
// observed signals, mirroring §4.E). It does not check whether
// HandleEvent already emitted a terminal chunk for a
// ContentLengthExceeded exception; streamOpenAI skips Finish then.
func (e *OpenAIEmitter) Finish() []SSEEvent {
	anthropicReason := ResolveAnthropic(e.exceptionType, false, e.sawToolUse)
	finishReason := ResolveOpenAI(anthropicReason)
	return []SSEEvent{e.chunk(map[string]interface{}{}, finishReason)}
}
