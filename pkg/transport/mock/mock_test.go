package mock

import (
	"context"
	"errors"
	"testing"

	"agentcore/pkg/events"
	"agentcore/pkg/transport"
)

func TestGenerateEmitsScriptedSequenceInOrder(t *testing.T) {
	p := New(Config{Responses: [][]events.StreamEvent{
		{events.TextDeltaEvent("hi"), events.ResponseDoneEvent("stop", events.Usage{})},
	}})

	var got []events.StreamEvent
	err := p.Generate(context.Background(), transport.GenerateRequest{}, func(e events.StreamEvent) error {
		got = append(got, e)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Kind != events.TextDelta || got[1].Kind != events.ResponseDone {
		t.Fatalf("unexpected events: %+v", got)
	}
}

func TestGenerateAdvancesThroughScriptsPerCall(t *testing.T) {
	p := New(Config{Responses: [][]events.StreamEvent{
		{events.ResponseDoneEvent("stop", events.Usage{})},
		{events.ResponseDoneEvent("tool_calls", events.Usage{})},
	}})

	for i, want := range []string{"stop", "tool_calls"} {
		var got events.StreamEvent
		err := p.Generate(context.Background(), transport.GenerateRequest{}, func(e events.StreamEvent) error {
			got = e
			return nil
		})
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if got.FinishReason != want {
			t.Fatalf("call %d: expected finish reason %q, got %q", i, want, got.FinishReason)
		}
	}

	if _, err := errNoMoreScripts(p); err == nil {
		t.Fatal("expected error once scripts are exhausted")
	}
}

func errNoMoreScripts(p *Provider) (struct{}, error) {
	return struct{}{}, p.Generate(context.Background(), transport.GenerateRequest{}, func(events.StreamEvent) error { return nil })
}

func TestGenerateInjectsFailureAfterN(t *testing.T) {
	wantErr := errors.New("boom")
	p := New(Config{
		Responses:  [][]events.StreamEvent{{events.TextDeltaEvent("a"), events.TextDeltaEvent("b"), events.ResponseDoneEvent("stop", events.Usage{})}},
		FailAfterN: 1,
		FailErr:    wantErr,
	})

	var count int
	err := p.Generate(context.Background(), transport.GenerateRequest{}, func(events.StreamEvent) error {
		count++
		return nil
	})
	if err != wantErr {
		t.Fatalf("expected injected error, got %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 event before failure, got %d", count)
	}
}

func TestRecordCapturesRequests(t *testing.T) {
	p := New(Config{Record: true, Responses: [][]events.StreamEvent{{events.ResponseDoneEvent("stop", events.Usage{})}}})
	req := transport.GenerateRequest{Model: "test-model"}
	if err := p.Generate(context.Background(), req, func(events.StreamEvent) error { return nil }); err != nil {
		t.Fatal(err)
	}
	recorded := p.Recorded()
	if len(recorded) != 1 || recorded[0].Model != "test-model" {
		t.Fatalf("unexpected recorded requests: %+v", recorded)
	}
	if p.CallCount() != 1 {
		t.Fatalf("expected call count 1, got %d", p.CallCount())
	}
}
