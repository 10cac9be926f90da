package turn

import (
	"agentcore/pkg/session"
)

// FinishReason is the normalized termination reason for one RunTurn call,
// per spec.md §4.1's {Completed, ToolLimitReached, Cancelled, Failed} set.
type FinishReason int

const (
	Completed FinishReason = iota
	ToolLimitReached
	Cancelled
	Failed
)

func (f FinishReason) String() string {
	switch f {
	case Completed:
		return "completed"
	case ToolLimitReached:
		return "tool_limit_reached"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// TurnOutcome is the result of one RunTurn call. Besides the normalized
// FinishReason, it carries the provider's raw finish reason from the last
// ResponseDone event (RawFinishReason, e.g. "stop", "length",
// "content_filter") so callers that need to react differently to a
// length-truncation stop than a content-filter stop aren't forced to
// string-sniff provider errors — the supplemented feature SPEC_FULL.md §11
// recovers from codex-rs/core/src/event_mapping.rs.
type TurnOutcome struct {
	FinishReason    FinishReason
	RawFinishReason string

	LastMessage *session.TrackedMessage
	Usage       session.Usage
	TurnsUsed   int

	// NeedsCompaction is set when this turn's running token total crossed
	// the auto-compact threshold; the caller should run the Compactor
	// before starting the next turn.
	NeedsCompaction bool

	Err error
}
