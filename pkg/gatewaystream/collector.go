package gatewaystream

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/kiro-gateway/gateway/pkg/upstream"
)

// ToolUse is one fully reassembled tool call, per spec §4.J.
type ToolUse struct {
	ID    string
	Name  string
	Input map[string]interface{}
}

// Collected is the non-streaming result, per spec §4.J's
// `{text, tool_uses}` emission; the caller resolves stop_reason.
type Collected struct {
	Text     string
	ToolUses []ToolUse
}

// Collector drains a complete upstream event sequence and reassembles
// text and tool-use inputs, for the non-streaming request path
// (spec §4.J). It is the JSON counterpart to AnthropicEmitter/
// OpenAIEmitter, which instead project the same events live over SSE.
type Collector struct {
	log *zap.Logger

	text string

	order   []string // first-seen order of tool_use_ids, for deterministic output
	uses    map[string]*ToolUse
	buffers map[string]string // per-id string-fragment buffer
}

func NewCollector(log *zap.Logger) *Collector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Collector{
		log:     log,
		uses:    make(map[string]*ToolUse),
		buffers: make(map[string]string),
	}
}

// HandleEvent folds one upstream.Event into the collector's accumulators.
func (c *Collector) HandleEvent(ev upstream.Event) {
	switch ev.Kind {
	case upstream.EventTextDelta:
		c.text += ev.Content

	case upstream.EventToolUseStart:
		c.ensure(ev.ToolUseID, ev.ToolName)
		c.applyInput(ev)

	case upstream.EventToolUseDelta:
		c.ensure(ev.ToolUseID, "")
		c.applyInput(ev)

	case upstream.EventToolUseStop:
		c.finalizeInput(ev.ToolUseID)

	default:
		// Exception and metadata events carry no collector-visible state;
		// the caller inspects them separately for stop_reason/diagnostics.
	}
}

// Finish parses any tool whose buffer was never finalized by an
// explicit stop event (spec §4.J: "or after the whole stream if no
// stop") and returns the collected result.
func (c *Collector) Finish() Collected {
	for id := range c.buffers {
		c.finalizeInput(id)
	}

	result := Collected{Text: c.text}
	for _, id := range c.order {
		use := c.uses[id]
		if use.Input == nil {
			use.Input = map[string]interface{}{}
		}
		result.ToolUses = append(result.ToolUses, *use)
	}
	return result
}

func (c *Collector) ensure(id, name string) {
	if _, ok := c.uses[id]; ok {
		if name != "" {
			c.uses[id].Name = name
		}
		return
	}
	c.order = append(c.order, id)
	c.uses[id] = &ToolUse{ID: id, Name: name}
}

// applyInput implements the "object wins" rule: an object fragment
// assigns tool.input directly (overriding anything accumulated so
// far); a string fragment appends to the per-id buffer for later
// parsing at tool-stop or stream end.
func (c *Collector) applyInput(ev upstream.Event) {
	if ev.HasInputObject {
		c.uses[ev.ToolUseID].Input = ev.InputObject
		delete(c.buffers, ev.ToolUseID)
		return
	}
	if ev.HasInputFrag {
		c.buffers[ev.ToolUseID] += ev.InputFragment
	}
}

// finalizeInput attempts a single JSON.parse of the accumulated buffer
// for one tool, per spec §4.J/§9: malformed JSON keeps input={} and
// logs a warning rather than raising.
func (c *Collector) finalizeInput(id string) {
	buf, ok := c.buffers[id]
	delete(c.buffers, id)
	if !ok || buf == "" {
		return
	}
	use, ok := c.uses[id]
	if !ok {
		return
	}
	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(buf), &parsed); err != nil {
		c.log.Warn("tool input buffer did not parse as JSON, defaulting to empty object",
			zap.String("tool_use_id", id), zap.Error(err))
		use.Input = map[string]interface{}{}
		return
	}
	use.Input = parsed
}
