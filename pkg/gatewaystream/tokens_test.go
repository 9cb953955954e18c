package gatewaystream

import "testing"

func TestTextTokens(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"abcdefgh", 2},
	}
	for _, c := range cases {
		if got := TextTokens(c.in); got != c.want {
			t.Errorf("TextTokens(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestToolUseStartTokens(t *testing.T) {
	if got := ToolUseStartTokens("get_weather"); got != 12+TextTokens("get_weather") {
		t.Errorf("ToolUseStartTokens mismatch: %d", got)
	}
}

func TestToolResultTokens(t *testing.T) {
	got := ToolResultTokens([]string{"abcd", "abcdefgh"})
	want := 10 + 1 + 2
	if got != want {
		t.Errorf("ToolResultTokens = %d, want %d", got, want)
	}
}

func TestToolDefinitionTokens(t *testing.T) {
	got := ToolDefinitionTokens("name", "description", `{"type":"object"}`)
	want := 20 + TextTokens("name") + TextTokens("description") + TextTokens(`{"type":"object"}`)
	if got != want {
		t.Errorf("ToolDefinitionTokens = %d, want %d", got, want)
	}
}

func TestMessageStructuralTokens(t *testing.T) {
	if got := MessageStructuralTokens(10); got != 14 {
		t.Errorf("MessageStructuralTokens = %d, want 14", got)
	}
}

func TestFloorOutputTokens(t *testing.T) {
	if got := FloorOutputTokens(0, true); got != 1 {
		t.Errorf("FloorOutputTokens(0, true) = %d, want 1", got)
	}
	if got := FloorOutputTokens(0, false); got != 0 {
		t.Errorf("FloorOutputTokens(0, false) = %d, want 0", got)
	}
	if got := FloorOutputTokens(5, true); got != 5 {
		t.Errorf("FloorOutputTokens(5, true) = %d, want 5", got)
	}
}
