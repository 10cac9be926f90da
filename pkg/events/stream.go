// Package events defines the unified stream-event tagged sum emitted by
// every provider transport, and the bus that fans a session's events out
// to its subscribers (UI bridge, rollout writer, metrics collector).
package events

import "time"

// StreamKind tags the payload carried by a StreamEvent. Every provider
// transport adapter normalizes its wire format down to this one set
// before anything downstream (turn runner, rollout writer, approval
// bridge) ever sees an event.
type StreamKind int

const (
	Ignored StreamKind = iota
	ResponseCreated
	TextDelta
	TextDone
	ThinkingDelta
	ThinkingDone
	ToolCallStart
	ToolCallDelta
	ToolCallDone
	ResponseDone
	Error

	// Turn-runner lifecycle events (spec.md §4.1/§4.3/§4.7), normalized
	// into the same StreamEvent sum so the bus and its subscribers (UI
	// bridge, rollout writer) don't need a second event type.
	TaskStarted
	ToolProgress
	ApprovalRequested
	Compacted
	TurnCancelled
)

func (k StreamKind) String() string {
	switch k {
	case Ignored:
		return "ignored"
	case ResponseCreated:
		return "response_created"
	case TextDelta:
		return "text_delta"
	case TextDone:
		return "text_done"
	case ThinkingDelta:
		return "thinking_delta"
	case ThinkingDone:
		return "thinking_done"
	case ToolCallStart:
		return "tool_call_start"
	case ToolCallDelta:
		return "tool_call_delta"
	case ToolCallDone:
		return "tool_call_done"
	case ResponseDone:
		return "response_done"
	case Error:
		return "error"
	case TaskStarted:
		return "task_started"
	case ToolProgress:
		return "tool_progress"
	case ApprovalRequested:
		return "approval_requested"
	case Compacted:
		return "compacted"
	case TurnCancelled:
		return "turn_cancelled"
	default:
		return "unknown"
	}
}

// StreamEvent is the single tagged-sum type a provider transport yields
// from a streaming generation call. Exactly one of the typed fields is
// populated, selected by Kind.
type StreamEvent struct {
	Kind      StreamKind
	Timestamp time.Time

	ResponseID string // ResponseCreated

	Text         string // TextDelta (delta) / TextDone (complete)
	ThinkingText string // ThinkingDelta (delta) / ThinkingDone (complete)
	ThinkingSig  string // ThinkingDone only

	ToolCallID    string // ToolCallStart/Delta/Done
	ToolCallName  string // ToolCallStart
	ToolCallDelta string // ToolCallDelta: raw JSON fragment
	ToolCallInput []byte // ToolCallDone: full raw JSON arguments

	FinishReason string // ResponseDone: "stop", "tool_calls", "max_tokens", "content_filter", ...
	Usage        Usage  // ResponseDone

	Err       error // Error
	Retryable bool  // Error

	ContextWindow int    // TaskStarted
	RequestID     string // ApprovalRequested
	AllowRemember bool   // ApprovalRequested
}

// Usage mirrors session.Usage without importing pkg/session, so transport
// adapters stay independent of the session package.
type Usage struct {
	InputTokens         int
	OutputTokens        int
	CacheReadTokens     int
	CacheCreationTokens int
	ReasoningTokens     int
}

func TextDeltaEvent(delta string) StreamEvent {
	return StreamEvent{Kind: TextDelta, Timestamp: time.Now(), Text: delta}
}

func TextDoneEvent(complete string) StreamEvent {
	return StreamEvent{Kind: TextDone, Timestamp: time.Now(), Text: complete}
}

func ThinkingDeltaEvent(delta string) StreamEvent {
	return StreamEvent{Kind: ThinkingDelta, Timestamp: time.Now(), ThinkingText: delta}
}

func ThinkingDoneEvent(complete, signature string) StreamEvent {
	return StreamEvent{Kind: ThinkingDone, Timestamp: time.Now(), ThinkingText: complete, ThinkingSig: signature}
}

func ToolCallStartEvent(id, name string) StreamEvent {
	return StreamEvent{Kind: ToolCallStart, Timestamp: time.Now(), ToolCallID: id, ToolCallName: name}
}

func ToolCallDeltaEvent(id, delta string) StreamEvent {
	return StreamEvent{Kind: ToolCallDelta, Timestamp: time.Now(), ToolCallID: id, ToolCallDelta: delta}
}

func ToolCallDoneEvent(id string, input []byte) StreamEvent {
	return StreamEvent{Kind: ToolCallDone, Timestamp: time.Now(), ToolCallID: id, ToolCallInput: input}
}

func ResponseDoneEvent(finishReason string, usage Usage) StreamEvent {
	return StreamEvent{Kind: ResponseDone, Timestamp: time.Now(), FinishReason: finishReason, Usage: usage}
}

func ErrorEvent(err error, retryable bool) StreamEvent {
	return StreamEvent{Kind: Error, Timestamp: time.Now(), Err: err, Retryable: retryable}
}

func TaskStartedEvent(contextWindow int) StreamEvent {
	return StreamEvent{Kind: TaskStarted, Timestamp: time.Now(), ContextWindow: contextWindow}
}

func ToolProgressEvent(callID, text string) StreamEvent {
	return StreamEvent{Kind: ToolProgress, Timestamp: time.Now(), ToolCallID: callID, Text: text}
}

func ApprovalRequestedEvent(requestID, toolName, description string, allowRemember bool) StreamEvent {
	return StreamEvent{
		Kind: ApprovalRequested, Timestamp: time.Now(),
		RequestID: requestID, ToolCallName: toolName, Text: description, AllowRemember: allowRemember,
	}
}

func CompactedEvent() StreamEvent {
	return StreamEvent{Kind: Compacted, Timestamp: time.Now()}
}

func TurnCancelledEvent() StreamEvent {
	return StreamEvent{Kind: TurnCancelled, Timestamp: time.Now()}
}
