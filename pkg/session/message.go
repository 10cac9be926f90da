package session

import "fmt"

// SourceKind tags the origin of a TrackedMessage.
type SourceKind int

const (
	SourceUser SourceKind = iota
	SourceAssistant
	SourceTool
	SourceSubagent
	SourceSystem
	SourceCompactionSummary
)

// Source identifies who/what produced a tracked message and carries the
// variant-specific correlation id (request_id, call_id, agent_id).
type Source struct {
	Kind SourceKind

	RequestID string // SourceAssistant, optional
	CallID    string // SourceTool
	AgentID   string // SourceSubagent
}

// TrackedMessage is one entry in a session's conversation history.
type TrackedMessage struct {
	ID     string
	TurnID string
	Source Source
	Blocks []ContentBlock
}

// ToolUseIDs returns the ids of every ToolUse block in the message.
func (m TrackedMessage) ToolUseIDs() []string {
	var ids []string
	for _, b := range m.Blocks {
		if b.Kind == ContentToolUse {
			ids = append(ids, b.ToolUse.ID)
		}
	}
	return ids
}

// ToolResultCallIDs returns the call_ids of every ToolResult block.
func (m TrackedMessage) ToolResultCallIDs() []string {
	var ids []string
	for _, b := range m.Blocks {
		if b.Kind == ContentToolResult {
			ids = append(ids, b.Result.CallID)
		}
	}
	return ids
}

// History is the ordered, append-only sequence of tracked messages for one
// session, with a single privileged Replace used only by the Compactor.
// All readers receive a defensive copy via Snapshot so no caller can tear
// a partially-updated message out from under the Turn runner.
type History struct {
	messages []TrackedMessage
}

// Append adds a message to the end of history.
func (h *History) Append(m TrackedMessage) {
	h.messages = append(h.messages, m)
}

// Snapshot returns an immutable copy of the current history.
func (h *History) Snapshot() []TrackedMessage {
	out := make([]TrackedMessage, len(h.messages))
	copy(out, h.messages)
	return out
}

// Replace atomically swaps the entire history. Used only by the Compactor;
// the new sequence must not reference any call_id from the discarded one.
func (h *History) Replace(messages []TrackedMessage) {
	h.messages = messages
}

// Len returns the number of tracked messages.
func (h *History) Len() int { return len(h.messages) }

// Validate checks the history well-formedness invariant from spec.md §8:
// every ToolResult.call_id matches a ToolUse.id earlier in the same
// session, and every ToolUse.id has at most one matching ToolResult.
func (h *History) Validate() error {
	seenToolUse := map[string]bool{}
	resultSeen := map[string]bool{}
	for _, m := range h.messages {
		for _, b := range m.Blocks {
			switch b.Kind {
			case ContentToolUse:
				if seenToolUse[b.ToolUse.ID] {
					return fmt.Errorf("session: duplicate tool_use id %q", b.ToolUse.ID)
				}
				seenToolUse[b.ToolUse.ID] = true
			case ContentToolResult:
				callID := b.Result.CallID
				if !seenToolUse[callID] {
					return fmt.Errorf("session: tool_result %q has no prior tool_use", callID)
				}
				if resultSeen[callID] {
					return fmt.Errorf("session: tool_use %q has more than one tool_result", callID)
				}
				resultSeen[callID] = true
			}
		}
	}
	return nil
}
