package turn

import (
	"strings"

	"agentcore/pkg/events"
	"agentcore/pkg/session"
)

// pendingToolCall is one tool-use block being assembled from
// ToolCallStart/Delta/Done events, in the order the model emitted it.
type pendingToolCall struct {
	id   string
	name string
	args []byte
}

// streamAccumulator folds one provider stream's events into a finished
// assistant message. Providers only emit *Delta events for text and
// thinking (no *Done counterpart — see events.StreamEvent's field
// comments), so the accumulator, not the provider, owns "what's the
// final text" the way spec.md §4.1 step 3's "record the final content
// into a provisional assistant message" describes.
type streamAccumulator struct {
	text     strings.Builder
	thinking strings.Builder
	thinkSig string

	toolCalls []pendingToolCall
	toolIndex map[string]int

	finishReason string
	usageEv      events.Usage

	err       error
	retryable bool
}

func (a *streamAccumulator) apply(ev events.StreamEvent) error {
	switch ev.Kind {
	case events.TextDelta:
		a.text.WriteString(ev.Text)
	case events.TextDone:
		if ev.Text != "" {
			a.text.Reset()
			a.text.WriteString(ev.Text)
		}
	case events.ThinkingDelta:
		a.thinking.WriteString(ev.ThinkingText)
	case events.ThinkingDone:
		if ev.ThinkingText != "" {
			a.thinking.Reset()
			a.thinking.WriteString(ev.ThinkingText)
		}
		a.thinkSig = ev.ThinkingSig
	case events.ToolCallStart:
		if a.toolIndex == nil {
			a.toolIndex = map[string]int{}
		}
		if _, seen := a.toolIndex[ev.ToolCallID]; !seen {
			a.toolIndex[ev.ToolCallID] = len(a.toolCalls)
			a.toolCalls = append(a.toolCalls, pendingToolCall{id: ev.ToolCallID, name: ev.ToolCallName})
		}
	case events.ToolCallDone:
		idx, ok := a.toolIndex[ev.ToolCallID]
		if !ok {
			if a.toolIndex == nil {
				a.toolIndex = map[string]int{}
			}
			idx = len(a.toolCalls)
			a.toolIndex[ev.ToolCallID] = idx
			a.toolCalls = append(a.toolCalls, pendingToolCall{id: ev.ToolCallID})
		}
		a.toolCalls[idx].args = ev.ToolCallInput
	case events.ResponseDone:
		a.finishReason = ev.FinishReason
		a.usageEv = ev.Usage
	case events.Error:
		a.err = ev.Err
		a.retryable = ev.Retryable
	}
	return nil
}

// toAssistantMessage builds the provisional assistant TrackedMessage from
// whatever accumulated during the stream: thinking block (if any), text
// block (if any), then one ToolUse block per accumulated tool call in
// first-seen order.
func (a *streamAccumulator) toAssistantMessage() session.TrackedMessage {
	var blocks []session.ContentBlock
	if a.thinking.Len() > 0 {
		blocks = append(blocks, session.ThinkingBlock(a.thinking.String(), a.thinkSig))
	}
	if a.text.Len() > 0 {
		blocks = append(blocks, session.TextBlock(a.text.String()))
	}
	for _, tc := range a.toolCalls {
		args := tc.args
		if args == nil {
			args = []byte("{}")
		}
		blocks = append(blocks, session.ToolUseBlock(tc.id, tc.name, args))
	}
	return session.TrackedMessage{Source: session.Source{Kind: session.SourceAssistant}, Blocks: blocks}
}

func (a *streamAccumulator) usage() session.Usage {
	return session.Usage{
		InputTokens:         a.usageEv.InputTokens,
		OutputTokens:        a.usageEv.OutputTokens,
		CacheReadTokens:     a.usageEv.CacheReadTokens,
		CacheCreationTokens: a.usageEv.CacheCreationTokens,
		ReasoningTokens:     a.usageEv.ReasoningTokens,
	}
}
