package gatewaystream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kiro-gateway/gateway/pkg/upstream"
)

func TestCollector_TextOnly(t *testing.T) {
	c := NewCollector(zap.NewNop())
	c.HandleEvent(upstream.Event{Kind: upstream.EventTextDelta, Content: "hello "})
	c.HandleEvent(upstream.Event{Kind: upstream.EventTextDelta, Content: "world"})

	got := c.Finish()
	assert.Equal(t, "hello world", got.Text)
	assert.Empty(t, got.ToolUses)
	assert.Equal(t, StopEndTurn, ResolveCollected(got))
}

func TestCollector_ToolUseFragmentReassembly(t *testing.T) {
	c := NewCollector(zap.NewNop())
	c.HandleEvent(upstream.Event{Kind: upstream.EventToolUseStart, ToolUseID: "t1", ToolName: "lookup"})
	c.HandleEvent(upstream.Event{Kind: upstream.EventToolUseDelta, ToolUseID: "t1", HasInputFrag: true, InputFragment: `{"q"`})
	c.HandleEvent(upstream.Event{Kind: upstream.EventToolUseDelta, ToolUseID: "t1", HasInputFrag: true, InputFragment: `:"hi"}`})
	c.HandleEvent(upstream.Event{Kind: upstream.EventToolUseStop, ToolUseID: "t1"})

	got := c.Finish()
	assert.Equal(t, "", got.Text)
	require.Len(t, got.ToolUses, 1)
	assert.Equal(t, "t1", got.ToolUses[0].ID)
	assert.Equal(t, "lookup", got.ToolUses[0].Name)
	assert.Equal(t, "hi", got.ToolUses[0].Input["q"])
	assert.Equal(t, StopToolUse, ResolveCollected(got))
}

func TestCollector_ObjectFragmentWins(t *testing.T) {
	c := NewCollector(zap.NewNop())
	c.HandleEvent(upstream.Event{Kind: upstream.EventToolUseStart, ToolUseID: "t1", ToolName: "lookup"})
	c.HandleEvent(upstream.Event{Kind: upstream.EventToolUseDelta, ToolUseID: "t1", HasInputFrag: true, InputFragment: `{"q"`})
	c.HandleEvent(upstream.Event{
		Kind: upstream.EventToolUseDelta, ToolUseID: "t1",
		HasInputObject: true, InputObject: map[string]interface{}{"q": "overridden"},
	})

	got := c.Finish()
	require.Len(t, got.ToolUses, 1)
	assert.Equal(t, "overridden", got.ToolUses[0].Input["q"])
}

func TestCollector_MalformedBufferDefaultsToEmptyObject(t *testing.T) {
	c := NewCollector(zap.NewNop())
	c.HandleEvent(upstream.Event{Kind: upstream.EventToolUseStart, ToolUseID: "t1", ToolName: "lookup"})
	c.HandleEvent(upstream.Event{Kind: upstream.EventToolUseDelta, ToolUseID: "t1", HasInputFrag: true, InputFragment: `not json`})
	c.HandleEvent(upstream.Event{Kind: upstream.EventToolUseStop, ToolUseID: "t1"})

	got := c.Finish()
	require.Len(t, got.ToolUses, 1)
	assert.Empty(t, got.ToolUses[0].Input)
}

func TestCollector_NoStopEventStillParsesAtStreamEnd(t *testing.T) {
	c := NewCollector(zap.NewNop())
	c.HandleEvent(upstream.Event{Kind: upstream.EventToolUseStart, ToolUseID: "t1", ToolName: "lookup"})
	c.HandleEvent(upstream.Event{Kind: upstream.EventToolUseDelta, ToolUseID: "t1", HasInputFrag: true, InputFragment: `{"q":"hi"}`})

	got := c.Finish()
	require.Len(t, got.ToolUses, 1)
	assert.Equal(t, "hi", got.ToolUses[0].Input["q"])
}
