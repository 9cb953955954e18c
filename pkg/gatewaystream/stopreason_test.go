package gatewaystream

import "testing"

func TestResolveAnthropic_ExceptionWinsOverTools(t *testing.T) {
	got := ResolveAnthropic("ContentLengthExceedsThresholdException", true, true)
	if got != StopMaxTokens {
		t.Errorf("got %q, want %q", got, StopMaxTokens)
	}
}

func TestResolveAnthropic_GenericExceptionIsError(t *testing.T) {
	got := ResolveAnthropic("SomeOtherException", false, false)
	if got != StopError {
		t.Errorf("got %q, want %q", got, StopError)
	}
}

func TestResolveAnthropic_ToolUseNoException(t *testing.T) {
	if got := ResolveAnthropic("", false, true); got != StopToolUse {
		t.Errorf("completed tools: got %q, want %q", got, StopToolUse)
	}
	if got := ResolveAnthropic("", true, false); got != StopToolUse {
		t.Errorf("active tools: got %q, want %q", got, StopToolUse)
	}
}

func TestResolveAnthropic_EndTurn(t *testing.T) {
	if got := ResolveAnthropic("", false, false); got != StopEndTurn {
		t.Errorf("got %q, want %q", got, StopEndTurn)
	}
}

func TestResolveOpenAI_Projection(t *testing.T) {
	cases := map[string]string{
		StopMaxTokens: FinishLength,
		StopToolUse:   FinishToolCalls,
		StopError:     FinishStop,
		StopEndTurn:   FinishStop,
	}
	for in, want := range cases {
		if got := ResolveOpenAI(in); got != want {
			t.Errorf("ResolveOpenAI(%q) = %q, want %q", in, got, want)
		}
	}
}
