package gatewaystream

import (
	"sort"

	"github.com/google/uuid"

	"github.com/kiro-gateway/gateway/pkg/upstream"
)

// blockState tracks one Anthropic content block's lifecycle, per spec
// §3's `active_blocks: map<index → {started, stopped}>`.
type blockState struct {
	started bool
	stopped bool
}

// AnthropicEmitter drives §4.C's SSE state machine to produce the
// Anthropic SSE sequence described in §4.F, accounting tokens via §4.D
// and resolving the final stop_reason via §4.E. One emitter exists per
// in-flight request and is destroyed when the stream closes (spec §3's
// per-stream-state lifecycle) — it is owned by a single goroutine and
// never shared.
type AnthropicEmitter struct {
	messageID    string
	model        string
	inputTokens  int
	outputTokens int

	textBlockOpen         bool
	activeBlocks          map[int]*blockState
	toolUseIDByBlockIndex map[int]string
	blockIndexByToolUseID map[string]int
	completedToolUseIDs   map[string]bool
	forcedExceptionType   string
	anyBlockOpened        bool
}

// NewAnthropicEmitter creates a per-stream emitter. inputTokens is
// computed once from the client request via §4.D before the upstream
// call is even made.
func NewAnthropicEmitter(model string, inputTokens int) *AnthropicEmitter {
	return &AnthropicEmitter{
		messageID:             "msg_" + uuid.NewString(),
		model:                 model,
		inputTokens:           inputTokens,
		activeBlocks:          make(map[int]*blockState),
		toolUseIDByBlockIndex: make(map[int]string),
		blockIndexByToolUseID: make(map[string]int),
		completedToolUseIDs:   make(map[string]bool),
	}
}

// Start emits message_start followed by ping, per spec §4.F step 1-2.
func (e *AnthropicEmitter) Start() []SSEEvent {
	return []SSEEvent{
		{Event: "message_start", Data: map[string]interface{}{
			"type": "message_start",
			"message": map[string]interface{}{
				"id":          e.messageID,
				"type":        "message",
				"role":        "assistant",
				"model":       e.model,
				"content":     []interface{}{},
				"stop_reason": nil,
				"usage": map[string]interface{}{
					"input_tokens":  e.inputTokens,
					"output_tokens": 0,
				},
			},
		}},
		{Event: "ping", Data: map[string]interface{}{"type": "ping"}},
	}
}

// NonOK emits a single error SSE record and closes, per spec §4.F step
// 5 / §7's UpstreamNon2xx policy: no message_start is emitted for a
// non-2xx upstream response.
func (e *AnthropicEmitter) NonOK(statusCode int, body string) []SSEEvent {
	return []SSEEvent{
		{Event: "error", Data: map[string]interface{}{
			"type": "error",
			"error": map[string]interface{}{
				"type":    "upstream_error",
				"message": body,
				"status":  statusCode,
			},
		}},
	}
}

// HandleEvent feeds one upstream.Event through the SSE state machine,
// returning the Anthropic SSE events it produces and updating token
// counters (§4.D) and block state (§4.C) along the way.
func (e *AnthropicEmitter) HandleEvent(ev upstream.Event) []SSEEvent {
	switch ev.Kind {
	case upstream.EventTextDelta:
		return e.handleTextDelta(ev.Content)

	case upstream.EventToolUseStart:
		out := e.openToolBlock(ev.ToolUseID, ev.ToolName)
		// Spec §4.B: a single upstream event may fuse start+delta when
		// `name` and `input` arrive together; split it into the logical
		// pair here.
		if ev.HasInputFrag && ev.InputFragment != "" {
			out = append(out, e.toolInputDelta(ev.ToolUseID, ev.InputFragment)...)
		} else if ev.HasInputObject {
			out = append(out, e.toolInputDeltaFromObject(ev.ToolUseID, ev.InputObject)...)
		}
		return out

	case upstream.EventToolUseDelta:
		if _, started := e.blockIndexByToolUseID[ev.ToolUseID]; !started {
			// Spec §4.C edge policy: a tool-use delta before its start
			// synthesises a content_block_start first with empty input.
			out := e.openToolBlock(ev.ToolUseID, "")
			out = append(out, e.deltaForInput(ev)...)
			return out
		}
		return e.deltaForInput(ev)

	case upstream.EventToolUseStop:
		return e.stopToolBlock(ev.ToolUseID)

	case upstream.EventException:
		e.forcedExceptionType = ev.ExceptionType
		return nil

	default:
		return nil
	}
}

func (e *AnthropicEmitter) deltaForInput(ev upstream.Event) []SSEEvent {
	if ev.HasInputFrag {
		return e.toolInputDelta(ev.ToolUseID, ev.InputFragment)
	}
	if ev.HasInputObject {
		return e.toolInputDeltaFromObject(ev.ToolUseID, ev.InputObject)
	}
	return nil
}

func (e *AnthropicEmitter) handleTextDelta(content string) []SSEEvent {
	var out []SSEEvent
	if !e.textBlockOpen {
		// Spec §4.C edge policy: upstream text before any tool appears
		// opens text block 0 first.
		out = append(out, e.openTextBlock()...)
	}
	out = append(out, SSEEvent{Event: "content_block_delta", Data: map[string]interface{}{
		"type":  "content_block_delta",
		"index": 0,
		"delta": map[string]interface{}{
			"type": "text_delta",
			"text": content,
		},
	}})
	e.outputTokens += TextTokens(content)
	return out
}

func (e *AnthropicEmitter) openTextBlock() []SSEEvent {
	e.textBlockOpen = true
	e.activeBlocks[0] = &blockState{started: true}
	e.anyBlockOpened = true
	return []SSEEvent{{Event: "content_block_start", Data: map[string]interface{}{
		"type":  "content_block_start",
		"index": 0,
		"content_block": map[string]interface{}{
			"type": "text",
			"text": "",
		},
	}}}
}

// nextToolIndex implements spec §4.C's index-allocation rule (decided
// Open Question): text is fixed at index 0 and tool-use blocks start
// at 1, allocated in upstream arrival order.
func (e *AnthropicEmitter) nextToolIndex() int {
	return len(e.toolUseIDByBlockIndex) + 1
}

func (e *AnthropicEmitter) openToolBlock(toolUseID, name string) []SSEEvent {
	if idx, ok := e.blockIndexByToolUseID[toolUseID]; ok {
		if e.activeBlocks[idx] != nil && e.activeBlocks[idx].started && !e.activeBlocks[idx].stopped {
			return nil // content_block_start only if not already open (§4.C invariant)
		}
	}
	idx := e.nextToolIndex()
	e.toolUseIDByBlockIndex[idx] = toolUseID
	e.blockIndexByToolUseID[toolUseID] = idx
	e.activeBlocks[idx] = &blockState{started: true}
	e.anyBlockOpened = true
	e.outputTokens += ToolUseStartTokens(name)

	return []SSEEvent{{Event: "content_block_start", Data: map[string]interface{}{
		"type":  "content_block_start",
		"index": idx,
		"content_block": map[string]interface{}{
			"type":  "tool_use",
			"id":    toolUseID,
			"name":  name,
			"input": map[string]interface{}{},
		},
	}}}
}

func (e *AnthropicEmitter) toolInputDelta(toolUseID, fragment string) []SSEEvent {
	idx, ok := e.blockIndexByToolUseID[toolUseID]
	if !ok {
		return nil
	}
	block := e.activeBlocks[idx]
	if block == nil || !block.started || block.stopped {
		return nil // content_block_delta only if open and not stopped (§4.C invariant)
	}
	e.outputTokens += ToolInputFragmentTokens(fragment)
	return []SSEEvent{{Event: "content_block_delta", Data: map[string]interface{}{
		"type":  "content_block_delta",
		"index": idx,
		"delta": map[string]interface{}{
			"type":         "input_json_delta",
			"partial_json": fragment,
		},
	}}}
}

func (e *AnthropicEmitter) toolInputDeltaFromObject(toolUseID string, obj map[string]interface{}) []SSEEvent {
	encoded, err := jsonMarshalCompact(obj)
	if err != nil {
		return nil
	}
	return e.toolInputDelta(toolUseID, encoded)
}

func (e *AnthropicEmitter) stopToolBlock(toolUseID string) []SSEEvent {
	idx, ok := e.blockIndexByToolUseID[toolUseID]
	if !ok {
		return nil
	}
	block := e.activeBlocks[idx]
	if block == nil || !block.started || block.stopped {
		return nil // content_block_stop only if open (§4.C invariant)
	}
	block.stopped = true
	// Record-then-remove ordering, per spec §3's invariant.
	e.completedToolUseIDs[toolUseID] = true
	delete(e.blockIndexByToolUseID, toolUseID)

	return []SSEEvent{{Event: "content_block_stop", Data: map[string]interface{}{
		"type":  "content_block_stop",
		"index": idx,
	}}}
}

// closeOpenBlocks synthesises content_block_stop for every block still
// open, in ascending index order, per spec §4.C's "stream ends with
// open blocks" edge policy.
func (e *AnthropicEmitter) closeOpenBlocks() []SSEEvent {
	var indices []int
	for idx, b := range e.activeBlocks {
		if b.started && !b.stopped {
			indices = append(indices, idx)
		}
	}
	sort.Ints(indices)

	var out []SSEEvent
	for _, idx := range indices {
		e.activeBlocks[idx].stopped = true
		if toolID, ok := e.toolUseIDByBlockIndex[idx]; ok {
			e.completedToolUseIDs[toolID] = true
			delete(e.blockIndexByToolUseID, toolID)
		}
		out = append(out, SSEEvent{Event: "content_block_stop", Data: map[string]interface{}{
			"type":  "content_block_stop",
			"index": idx,
		}})
	}
	return out
}

// Finish closes any open blocks, resolves the stop reason, and emits
// the terminal message_delta/message_stop pair, per spec §4.F step 4.
func (e *AnthropicEmitter) Finish() []SSEEvent {
	out := e.closeOpenBlocks()

	hasActiveTools := false // all blocks were just closed above
	hasCompletedTools := len(e.completedToolUseIDs) > 0
	stopReason := ResolveAnthropic(e.forcedExceptionType, hasActiveTools, hasCompletedTools)

	outputTokens := FloorOutputTokens(e.outputTokens, e.anyBlockOpened)

	out = append(out,
		SSEEvent{Event: "message_delta", Data: map[string]interface{}{
			"type": "message_delta",
			"delta": map[string]interface{}{
				"stop_reason":   stopReason,
				"stop_sequence": nil,
			},
			"usage": map[string]interface{}{
				"output_tokens": outputTokens,
			},
		}},
		SSEEvent{Event: "message_stop", Data: map[string]interface{}{
			"type": "message_stop",
		}},
	)
	return out
}

// ExceptionEncountered reports whether an upstream exception event was
// observed, so the caller can decide whether to keep reading bytes
// (it should not, for OpenAI projection — see §4.G).
func (e *AnthropicEmitter) ExceptionEncountered() bool {
	return e.forcedExceptionType != ""
}
