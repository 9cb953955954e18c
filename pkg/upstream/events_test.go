package upstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiro-gateway/gateway/pkg/eventstream"
)

func msg(payload string) *eventstream.Message {
	return &eventstream.Message{Payload: []byte(payload)}
}

func TestInterpret_TextDelta(t *testing.T) {
	t.Parallel()

	ev := Interpret(msg(`{"content":"hi"}`))
	require.Equal(t, EventTextDelta, ev.Kind)
	assert.Equal(t, "hi", ev.Content)
}

func TestInterpret_ToolUseStartWithFusedInput(t *testing.T) {
	t.Parallel()

	ev := Interpret(msg(`{"toolUseId":"t1","name":"calc","input":""}`))
	require.Equal(t, EventToolUseStart, ev.Kind)
	assert.Equal(t, "t1", ev.ToolUseID)
	assert.Equal(t, "calc", ev.ToolName)
	assert.True(t, ev.HasInputFrag)
	assert.Equal(t, "", ev.InputFragment)
}

func TestInterpret_ToolUseDeltaStringFragment(t *testing.T) {
	t.Parallel()

	ev := Interpret(msg(`{"toolUseId":"t1","input":"{\"x\":"}`))
	require.Equal(t, EventToolUseDelta, ev.Kind)
	assert.True(t, ev.HasInputFrag)
	assert.Equal(t, `{"x":`, ev.InputFragment)
}

func TestInterpret_ToolUseDeltaObjectWins(t *testing.T) {
	t.Parallel()

	ev := Interpret(msg(`{"toolUseId":"t1","input":{"x":1}}`))
	require.Equal(t, EventToolUseDelta, ev.Kind)
	assert.True(t, ev.HasInputObject)
	assert.Equal(t, float64(1), ev.InputObject["x"])
}

func TestInterpret_ToolUseStop(t *testing.T) {
	t.Parallel()

	ev := Interpret(msg(`{"toolUseId":"t1","stop":true}`))
	assert.Equal(t, EventToolUseStop, ev.Kind)
	assert.Equal(t, "t1", ev.ToolUseID)
}

func TestInterpret_Exception(t *testing.T) {
	t.Parallel()

	ev := Interpret(msg(`{"__type":"ContentLengthExceededException"}`))
	require.Equal(t, EventException, ev.Kind)
	assert.Equal(t, "ContentLengthExceededException", ev.ExceptionType)
}

func TestInterpret_Metadata(t *testing.T) {
	t.Parallel()

	ev := Interpret(msg(`{"conversationId":"c1"}`))
	assert.Equal(t, EventMetadata, ev.Kind)
	assert.Equal(t, "c1", ev.ConversationID)
}

func TestInterpret_NonJSONPayloadIsUnknown(t *testing.T) {
	t.Parallel()

	ev := Interpret(msg(`not json`))
	assert.Equal(t, EventUnknown, ev.Kind)
}

func TestInterpret_AssistantResponseEventUnwrapped(t *testing.T) {
	t.Parallel()

	ev := Interpret(msg(`{"assistantResponseEvent":{"content":"wrapped"}}`))
	require.Equal(t, EventTextDelta, ev.Kind)
	assert.Equal(t, "wrapped", ev.Content)
}

func TestInterpret_ToolUseDeltaNonStringNonObjectInputIgnored(t *testing.T) {
	t.Parallel()

	// json.RawMessage only ever captures syntactically valid JSON (the
	// outer Unmarshal would have failed otherwise), so an `input` that is
	// neither a string nor an object is a well-formed value of some other
	// JSON type (here, a number) rather than a malformed fragment. Spec
	// §4.B's wire model has no use for it; applyInput leaves both input
	// fields unset rather than guessing.
	ev := Interpret(msg(`{"toolUseId":"t1","input":42}`))
	require.Equal(t, EventToolUseDelta, ev.Kind)
	assert.False(t, ev.HasInputObject)
	assert.False(t, ev.HasInputFrag)
}

func TestInterpret_WebSearchToolDropped(t *testing.T) {
	t.Parallel()

	ev := Interpret(msg(`{"toolUseId":"t1","name":"web_search","input":""}`))
	assert.Equal(t, EventUnknown, ev.Kind)

	ev2 := Interpret(msg(`{"toolUseId":"t1","name":"WebSearch","input":""}`))
	assert.Equal(t, EventUnknown, ev2.Kind)
}
