package openai

import (
	"testing"

	"github.com/openai/openai-go"

	"agentcore/pkg/events"
)

func TestTranslateChunkTextDelta(t *testing.T) {
	state := &streamState{toolArgs: map[int64]*toolCallAccum{}}
	chunk := openai.ChatCompletionChunk{
		Choices: []openai.ChatCompletionChunkChoice{
			{Delta: openai.ChatCompletionChunkChoiceDelta{Content: "hello"}},
		},
	}

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

func TestTranslateChunkEmptyDeltaEmitsNothing(t *testing.T) {
	state := &streamState{toolArgs: map[int64]*toolCallAccum{}}
	chunk := openai.ChatCompletionChunk{
		Choices: []openai.ChatCompletionChunkChoice{{}},
	}

	var got []events.StreamEvent
	if err := translateChunk(chunk, state, func(e events.StreamEvent) error {
		got = append(got, e)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no events, got %+v", got)
	}
}

func TestTranslateChunkAccumulatesToolCallArguments(t *testing.T) {
	state := &streamState{toolArgs: map[int64]*toolCallAccum{}}
	var got []events.StreamEvent
	emit := func(e events.StreamEvent) error {
		got = append(got, e)
		return nil
	}

	first := openai.ChatCompletionChunk{Choices: []openai.ChatCompletionChunkChoice{{
		Delta: openai.ChatCompletionChunkChoiceDelta{ToolCalls: []openai.ChatCompletionChunkChoiceDeltaToolCall{
			{Index: 0, ID: "c1", Function: openai.ChatCompletionChunkChoiceDeltaToolCallFunction{Name: "shell", Arguments: `{"cmd":`}},
		}},
	}}}
	second := openai.ChatCompletionChunk{Choices: []openai.ChatCompletionChunkChoice{{
		Delta: openai.ChatCompletionChunkChoiceDelta{ToolCalls: []openai.ChatCompletionChunkChoiceDeltaToolCall{
			{Index: 0, Function: openai.ChatCompletionChunkChoiceDeltaToolCallFunction{Arguments: `"ls"}`}},
		}},
	}}}

	if err := translateChunk(first, state, emit); err != nil {
		t.Fatal(err)
	}
	if err := translateChunk(second, state, emit); err != nil {
		t.Fatal(err)
	}
	if err := state.flushPendingToolCalls(emit); err != nil {
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
