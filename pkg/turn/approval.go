package turn

import (
	"context"

	"agentcore/pkg/permission"
	"agentcore/pkg/tool"
)

// ApprovalResponseKind is the external UI's answer to an ApprovalRequested
// event, per spec.md §4.3's approval loop.
type ApprovalResponseKind int

const (
	ApprovalApprove ApprovalResponseKind = iota
	ApprovalDeny
	ApprovalTimeout
)

// ApprovalResponse is what an ApprovalSink returns for one request.
type ApprovalResponse struct {
	Kind     ApprovalResponseKind
	Remember bool
}

// ApprovalSink round-trips a NeedsApproval decision to whatever external
// surface collects human approval (CLI prompt, UI bridge, test harness).
type ApprovalSink interface {
	RequestApproval(ctx context.Context, req permission.ApprovalRequest) (ApprovalResponse, error)
}

// PermissionCheck classifies one tool call against the session's sandbox
// policy and remembered-approval cache. Tool-specific argument shape
// (a shell argv, a file path, a network host) is the caller's concern —
// the turn runner stays generic over what "path" or "command" means for
// a given tool, the same way tool.Registry stays generic over parameter
// schemas. Implementations typically close over a *permission.Evaluator
// and dispatch on call.Name.
type PermissionCheck func(call tool.Call, d tool.Descriptor) permission.Decision

// allowAll is the default PermissionCheck used when a Runner is built
// without one: every call is allowed, matching sandbox Mode=None.
func allowAll(tool.Call, tool.Descriptor) permission.Decision {
	return permission.Decision{Kind: permission.Allow}
}

// resolveApproval runs one NeedsApproval decision through sink, returning
// the final allow/deny verdict and recording a remembered pattern on the
// evaluator when the user approved with remember=true. evaluator may be
// nil (no pattern to remember against, e.g. when PermissionCheck doesn't
// use one).
func resolveApproval(ctx context.Context, sink ApprovalSink, evaluator *permission.Evaluator, toolName string, d permission.Decision) (bool, error) {
	if sink == nil {
		return false, nil // no sink configured: conservatively deny
	}
	resp, err := sink.RequestApproval(ctx, d.Request)
	if err != nil {
		return false, err
	}
	switch resp.Kind {
	case ApprovalApprove:
		if resp.Remember && evaluator != nil {
			evaluator.Remember(toolName, d.Request.Description)
		}
		return true, nil
	default:
		return false, nil
	}
}
