package compat

import (
	"encoding/json"
	"strings"
	"testing"

	"agentcore/pkg/events"
	"agentcore/pkg/session"
)

func TestNamedConstructorsSetBaseURL(t *testing.T) {
	v := Volcengine("key", "doubao-pro-32k")
	if v.cfg.BaseURL == "" || v.cfg.Name != "volcengine" {
		t.Fatalf("unexpected volcengine config: %+v", v.cfg)
	}
	z := ZAI("key", "glm-4.5")
	if z.cfg.BaseURL == "" || z.cfg.Name != "zai" {
		t.Fatalf("unexpected zai config: %+v", z.cfg)
	}
}

func TestTranslateMessageDispatchesOnSourceKind(t *testing.T) {
	msg := session.TrackedMessage{
		Source: session.Source{Kind: session.SourceTool},
		Blocks: []session.ContentBlock{session.ToolResultTextBlock("call_1", "ok", false)},
	}
	out, err := translateMessage(msg)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].Role != "tool" || out[0].ToolCallID != "call_1" {
		t.Fatalf("unexpected translation: %+v", out)
	}
}

func newChunk(t *testing.T, raw string) chatChunk {
	t.Helper()
	var c chatChunk
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestTranslateChunkTextDelta(t *testing.T) {
	state := &streamState{toolNames: map[int]string{}, toolIDs: map[int]string{}, toolArgs: map[int]*strings.Builder{}}
	chunk := newChunk(t, `{"choices":[{"delta":{"content":"hello"}}]}`)

	var got []events.StreamEvent
	if err := translateChunk(chunk, state, func(e events.StreamEvent) error {
		got = append(got, e)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Kind != events.TextDelta || got[0].Text != "hello" {
		t.Fatalf("unexpected events: %+v", got)
	}
}

func TestTranslateChunkAccumulatesToolCallArguments(t *testing.T) {
	state := &streamState{toolNames: map[int]string{}, toolIDs: map[int]string{}, toolArgs: map[int]*strings.Builder{}}
	var got []events.StreamEvent
	emit := func(e events.StreamEvent) error {
		got = append(got, e)
		return nil
	}

	first := newChunk(t, `{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"c1","function":{"name":"shell","arguments":"{\"cmd\":"}}]}}]}`)
	second := newChunk(t, `{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"ls\"}"}}]}}]}`)

	if err := translateChunk(first, state, emit); err != nil {
		t.Fatal(err)
	}
	if err := translateChunk(second, state, emit); err != nil {
		t.Fatal(err)
	}
	if err := state.flush(emit); err != nil {
		t.Fatal(err)
	}

	if len(got) == 0 || got[0].Kind != events.ToolCallStart {
		t.Fatalf("expected start event first, got %+v", got)
	}
	last := got[len(got)-1]
	if last.Kind != events.ToolCallDone || string(last.ToolCallInput) != `{"cmd":"ls"}` {
		t.Fatalf("unexpected final event: %+v", last)
	}
}

func TestExtractErrorMessagePrefersErrorMessageField(t *testing.T) {
	got := extractErrorMessage([]byte(`{"error":{"message":"invalid api key","type":"auth_error"}}`))
	if got != "invalid api key" {
		t.Fatalf("got %q", got)
	}
}

func TestExtractErrorMessageFallsBackToMsgField(t *testing.T) {
	got := extractErrorMessage([]byte(`{"error":{"msg":"rate limited"}}`))
	if got != "rate limited" {
		t.Fatalf("got %q", got)
	}
}

func TestExtractErrorMessageFallsBackToRawBody(t *testing.T) {
	got := extractErrorMessage([]byte("  upstream unavailable  "))
	if got != "upstream unavailable" {
		t.Fatalf("got %q", got)
	}
}

func TestParseSSESkipsDoneSentinel(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\n" +
		"data: [DONE]\n\n"
	var gotCount int
	err := parseSSE(strings.NewReader(body), func(c chatChunk) error {
		gotCount++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if gotCount != 1 {
		t.Fatalf("expected 1 chunk, got %d", gotCount)
	}
}
