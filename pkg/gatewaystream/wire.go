package gatewaystream

import (
	"encoding/json"
	"io"

	"github.com/kiro-gateway/gateway/pkg/sse"
)

// SSEEvent is one emitted Anthropic or OpenAI SSE record before wire
// serialization: an event type name and a JSON-able payload.
type SSEEvent struct {
	Event string
	Data  interface{}
}

// Writer serializes SSEEvents as `event: <type>\ndata: <json>\n\n`
// records (spec §4.F's wire format), reusing pkg/sse.SSEWriter's
// field-framing rather than hand-rolling it again here.
type Writer struct {
	w *sse.SSEWriter
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: sse.NewSSEWriter(w)}
}

// WriteEvent marshals ev.Data and writes it as a named SSE event. An
// empty ev.Event writes a bare data-only record (used for the OpenAI
// projector's chunks, which carry no `event:` line).
func (w *Writer) WriteEvent(ev SSEEvent) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	if ev.Event == "" {
		return w.w.WriteData(string(data))
	}
	return w.w.WriteNamedEvent(ev.Event, string(data))
}

// WriteDone writes the literal `data: [DONE]\n\n` record OpenAI
// streams terminate with (spec §4.G).
func (w *Writer) WriteDone() error {
	return w.w.WriteData("[DONE]")
}

// jsonMarshalCompact is a small convenience wrapper shared by both
// emitters when an "object wins" input fragment needs re-serializing
// as the partial_json/arguments string clients expect.
func jsonMarshalCompact(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
