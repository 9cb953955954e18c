// Package upstream interprets decoded eventstream.Message payloads as
// typed UpstreamEvent values (spec §4.B) and issues the HTTPS call that
// produces the binary stream in the first place (spec §4.I).
package upstream

import (
	"encoding/json"
	"strings"

	"github.com/kiro-gateway/gateway/pkg/eventstream"
)

// EventKind tags the union described in spec §3.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventTextDelta
	EventToolUseStart
	EventToolUseDelta
	EventToolUseStop
	EventException
	EventMetadata
)

// Event is the typed upstream event the SSE state machine consumes.
// Only the fields relevant to Kind are populated.
type Event struct {
	Kind           EventKind
	Content        string                 // EventTextDelta
	ToolUseID      string                 // EventToolUseStart/Delta/Stop
	ToolName       string                 // EventToolUseStart
	InputFragment  string                 // EventToolUseStart/Delta: string fragment form
	InputObject    map[string]interface{} // EventToolUseStart/Delta: object form, "object wins"
	HasInputObject bool
	HasInputFrag   bool
	ExceptionType  string // EventException
	ConversationID string // EventMetadata
}

// rawPayload mirrors the heterogeneous upstream JSON shape described in
// spec §4.B; classification matches on field presence, not a schema.
type rawPayload struct {
	AssistantResponseEvent *rawPayload `json:"assistantResponseEvent,omitempty"`

	Content *string `json:"content,omitempty"`

	ToolUseID *string         `json:"toolUseId,omitempty"`
	Name      *string         `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	Stop      *bool           `json:"stop,omitempty"`

	ExceptionType *string `json:"exception_type,omitempty"`
	Type          *string `json:"__type,omitempty"`

	ConversationID *string `json:"conversationId,omitempty"`
}

// Interpret classifies one decoded Message into a typed Event, per the
// classification table in spec §4.B. Malformed or non-JSON payloads
// become EventUnknown rather than an error — the decoder's error budget
// governs frame corruption; payload-shape ambiguity does not count
// against it.
//
// Open question (spec §9, decided): when the message carries no
// `:event-type` header the upstream is treated as if it had sent
// `assistantResponseEvent`, mirroring a heuristic in the original
// implementation that this gateway preserves without fully explaining.
func Interpret(msg *eventstream.Message) Event {
	eventType := ":event-type"
	if hv, ok := msg.Headers[eventType]; ok && hv.String() != "" {
		_ = hv // event-type header is informational; classification below is payload-driven
	}

	var p rawPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return Event{Kind: EventUnknown}
	}

	body := &p
	if p.AssistantResponseEvent != nil {
		body = p.AssistantResponseEvent
	}

	return classify(body)
}

func classify(p *rawPayload) Event {
	switch {
	case p.Content != nil:
		return Event{Kind: EventTextDelta, Content: *p.Content}

	case p.ToolUseID != nil && p.Name != nil:
		if isSearchTool(*p.Name) {
			return Event{Kind: EventUnknown}
		}
		ev := Event{Kind: EventToolUseStart, ToolUseID: *p.ToolUseID, ToolName: *p.Name}
		applyInput(&ev, p.Input)
		return ev

	case p.ToolUseID != nil && len(p.Input) > 0 && p.Name == nil:
		ev := Event{Kind: EventToolUseDelta, ToolUseID: *p.ToolUseID}
		applyInput(&ev, p.Input)
		return ev

	case p.ToolUseID != nil && p.Stop != nil && *p.Stop:
		return Event{Kind: EventToolUseStop, ToolUseID: *p.ToolUseID}

	case p.ExceptionType != nil:
		return Event{Kind: EventException, ExceptionType: *p.ExceptionType}

	case p.Type != nil:
		return Event{Kind: EventException, ExceptionType: *p.Type}

	case p.ConversationID != nil:
		return Event{Kind: EventMetadata, ConversationID: *p.ConversationID}

	default:
		return Event{Kind: EventUnknown}
	}
}

// applyInput decodes the `input` field, which may arrive as a JSON
// string fragment (to be concatenated by the caller) or a JSON object
// (which replaces any accumulated fragments — "object wins", per
// spec §3/§4.J).
func applyInput(ev *Event, raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		ev.InputFragment = asString
		ev.HasInputFrag = true
		return
	}
	var asObject map[string]interface{}
	if err := json.Unmarshal(raw, &asObject); err == nil {
		ev.InputObject = asObject
		ev.HasInputObject = true
		return
	}
	// Neither a string nor an object: json.RawMessage only ever holds
	// syntactically valid JSON, so this is a well-formed value of some
	// other JSON type (number, bool, null, array) that spec §4.B's wire
	// model has no use for. Leave both input fields unset.
}

// isSearchTool drops tool_use events whose name matches the upstream's
// built-in web-search tool, per spec §4.B: "Tools whose name matches
// web_search or websearch are silently dropped at this stage."
func isSearchTool(name string) bool {
	lower := strings.ToLower(name)
	return lower == "web_search" || lower == "websearch"
}
