package events

import "testing"

func TestStreamKindString(t *testing.T) {
	tests := []struct {
		kind StreamKind
		want string
	}{
		{Ignored, "ignored"},
		{ResponseCreated, "response_created"},
		{TextDelta, "text_delta"},
		{TextDone, "text_done"},
		{ThinkingDelta, "thinking_delta"},
		{ThinkingDone, "thinking_done"},
		{ToolCallStart, "tool_call_start"},
		{ToolCallDelta, "tool_call_delta"},
		{ToolCallDone, "tool_call_done"},
		{ResponseDone, "response_done"},
		{Error, "error"},
		{StreamKind(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestStreamEventConstructors(t *testing.T) {
	ev := TextDeltaEvent("hi")
	if ev.Kind != TextDelta || ev.Text != "hi" {
		t.Error("TextDeltaEvent failed")
	}

	ev = ToolCallStartEvent("c1", "shell")
	if ev.Kind != ToolCallStart || ev.ToolCallName != "shell" {
		t.Error("ToolCallStartEvent failed")
	}

	ev = ToolCallDoneEvent("c1", []byte(`{"cmd":"ls"}`))
	if ev.Kind != ToolCallDone || string(ev.ToolCallInput) != `{"cmd":"ls"}` {
		t.Error("ToolCallDoneEvent failed")
	}

	ev = ResponseDoneEvent("stop", Usage{InputTokens: 10, OutputTokens: 5})
	if ev.Kind != ResponseDone || ev.FinishReason != "stop" || ev.Usage.OutputTokens != 5 {
		t.Error("ResponseDoneEvent failed")
	}

	ev = ErrorEvent(errBoom, true)
	if ev.Kind != Error || !ev.Retryable || ev.Err != errBoom {
		t.Error("ErrorEvent failed")
	}
}

var errBoom = sentinelErr("boom")

type sentinelErr string

func (e sentinelErr) Error() string { return string(e) }
