// Package turn runs one request/response agentic cycle: build a prompt
// from session history, stream a provider turn, dispatch any resulting
// tool calls through the scheduler and permission checker, and loop until
// the model stops asking for tools or a limit/cancellation fires.
package turn

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"agentcore/pkg/events"
	"agentcore/pkg/permission"
	"agentcore/pkg/scheduler"
	"agentcore/pkg/session"
	"agentcore/pkg/tool"
	"agentcore/pkg/transport"
)

// Runner executes turns for any number of concurrent sessions against a
// shared provider, tool registry, and scheduler. Grounded on the
// teacher's Harness.StreamTurn/RunToolLoop split (pkg/harness/harness.go,
// pkg/harness/toolloop.go), generalized to the safety-class scheduler and
// permission checker SPEC_FULL.md's component design adds.
type Runner struct {
	Provider  transport.Provider
	Tools     *tool.Registry
	Scheduler *scheduler.Scheduler
	Bus       *events.Bus
	Retry     transport.RetryConfig

	// Permission classifies one call against a session's sandbox policy;
	// defaults to allow-all (Mode=None) if unset.
	Permission PermissionCheck
	// Evaluator, if set, is used to record remembered approval patterns.
	Evaluator *permission.Evaluator
	// Approvals rounds NeedsApproval decisions to an external surface; a
	// nil Approvals conservatively denies every NeedsApproval call.
	Approvals ApprovalSink

	// DefaultMaxTurns bounds the model↔tool loop when a call doesn't
	// override it. 0 falls back to 10, matching the teacher's LoopOptions.
	DefaultMaxTurns int

	mu              sync.Mutex
	pendingModifier map[string][]tool.ContextModifier // sessionID -> modifiers from the last tool batch
}

// New builds a Runner. Permission, Evaluator, and Approvals may be left
// zero-valued; every NeedsApproval call is then denied and every Allow
// call proceeds unconditionally (Mode=None semantics).
func New(provider transport.Provider, tools *tool.Registry, sched *scheduler.Scheduler, bus *events.Bus) *Runner {
	return &Runner{
		Provider:        provider,
		Tools:           tools,
		Scheduler:       sched,
		Bus:             bus,
		Retry:           transport.DefaultRetryConfig(),
		Permission:      allowAll,
		DefaultMaxTurns: 10,
		pendingModifier: map[string][]tool.ContextModifier{},
	}
}

// RunTurn executes spec.md §4.1's algorithm: build the request, stream
// the provider, dispatch tool calls, and loop until a stop/length reason
// arrives with no outstanding tool calls, the per-turn cap is hit, or ctx
// is cancelled. newInput, if non-empty, is appended to history as a new
// user message before the first iteration.
func (r *Runner) RunTurn(ctx context.Context, sess *session.Session, system string, newInput []session.ContentBlock, maxTurnsOverride int) (TurnOutcome, error) {
	maxTurns := maxTurnsOverride
	if maxTurns <= 0 {
		maxTurns = r.DefaultMaxTurns
	}
	if maxTurns <= 0 {
		maxTurns = 10
	}

	if len(newInput) > 0 {
		sess.Append(session.TrackedMessage{
			ID:     uuid.NewString(),
			Source: session.Source{Kind: session.SourceUser},
			Blocks: newInput,
		})
	}

	contextWindow := sess.TokenUsage().ContextWindow
	r.publish(sess.ID, events.TaskStartedEvent(contextWindow))

	outcome := TurnOutcome{}

	for i := 0; i < maxTurns; i++ {
		if ctx.Err() != nil {
			outcome.FinishReason = Cancelled
			r.recordCancellation(sess)
			r.publish(sess.ID, events.TurnCancelledEvent())
			return outcome, nil
		}

		turnsUsed, limitReached := sess.BeginTurn()
		outcome.TurnsUsed = turnsUsed
		if limitReached {
			outcome.FinishReason = ToolLimitReached
			return outcome, nil
		}

		req := r.buildRequest(sess, system)

		var acc streamAccumulator
		genErr := transport.WithRetry(ctx, r.Retry, func(err error) bool {
			se, ok := err.(streamErrWrapper)
			return ok && se.retryable
		}, func(attempt int) error {
			acc = streamAccumulator{}
			err := r.Provider.Generate(ctx, req, func(ev events.StreamEvent) error {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.publish(sess.ID, ev)
				return acc.apply(ev)
			})
			if err != nil {
				return err
			}
			if acc.err != nil {
				return streamErrWrapper{err: acc.err, retryable: acc.retryable}
			}
			return nil
		})

		if genErr != nil {
			if ctx.Err() != nil {
				outcome.FinishReason = Cancelled
				r.recordCancellation(sess)
				r.publish(sess.ID, events.TurnCancelledEvent())
				return outcome, nil
			}
			outcome.FinishReason = Failed
			outcome.Err = genErr
			return outcome, genErr
		}

		assistantMsg := acc.toAssistantMessage()
		assistantMsg.ID = uuid.NewString()
		sess.Append(assistantMsg)
		outcome.LastMessage = &assistantMsg
		outcome.RawFinishReason = acc.finishReason

		total := sess.TokenUsage().Append(acc.usage())
		outcome.Usage = acc.usage()
		if total >= sessionAutoCompactThreshold(sess) {
			outcome.NeedsCompaction = true
		}

		if len(acc.toolCalls) == 0 {
			outcome.FinishReason = Completed
			return outcome, nil
		}

		if ctx.Err() != nil {
			outcome.FinishReason = Cancelled
			r.recordCancellation(sess)
			r.publish(sess.ID, events.TurnCancelledEvent())
			return outcome, nil
		}

		results, err := r.dispatchToolCalls(ctx, sess, acc.toolCalls)
		if err != nil {
			outcome.FinishReason = Failed
			outcome.Err = err
			return outcome, err
		}

		toolMsg := session.TrackedMessage{ID: uuid.NewString(), Source: session.Source{Kind: session.SourceTool}}
		for _, res := range results {
			toolMsg.Blocks = append(toolMsg.Blocks, session.ToolResultTextBlock(res.CallID, res.Text, res.IsError))
		}
		sess.Append(toolMsg)
		r.applyModifiers(sess, results)
	}

	outcome.FinishReason = ToolLimitReached
	return outcome, nil
}

func (r *Runner) publish(sessionID string, ev events.StreamEvent) {
	if r.Bus != nil {
		r.Bus.Publish(sessionID, ev)
	}
}

func (r *Runner) recordCancellation(sess *session.Session) {
	sess.Append(session.TrackedMessage{
		ID:     uuid.NewString(),
		Source: session.Source{Kind: session.SourceAssistant},
		Blocks: []session.ContentBlock{session.TextBlock("[interrupted]")},
	})
}

func sessionAutoCompactThreshold(sess *session.Session) int {
	return session.AutoCompactThreshold(sess.TokenUsage().ContextWindow)
}

// buildRequest snapshots history and any pending context modifiers into a
// provider-neutral GenerateRequest, per spec.md §4.1 step 2.
func (r *Runner) buildRequest(sess *session.Session, system string) transport.GenerateRequest {
	sys := system
	if mods := r.takePendingModifiers(sess.ID); len(mods) > 0 {
		sys += "\n\n" + renderContextModifiers(mods)
	}
	return transport.GenerateRequest{
		Model:    sess.Provider.Model,
		System:   sys,
		Messages: sess.Snapshot(),
		Tools:    r.toolSpecs(),
	}
}

func (r *Runner) toolSpecs() []transport.ToolSpec {
	descs := r.Tools.List()
	specs := make([]transport.ToolSpec, 0, len(descs))
	for _, d := range descs {
		specs = append(specs, transport.ToolSpec{Name: d.Name, Description: d.Description, Parameters: d.Parameters})
	}
	return specs
}

func renderContextModifiers(mods []tool.ContextModifier) string {
	s := "<files_read_since_last_turn>\n"
	for _, m := range mods {
		if m.FileRead != nil {
			s += fmt.Sprintf("- %s\n", m.FileRead.Path)
		}
	}
	s += "</files_read_since_last_turn>"
	return s
}

// dispatchToolCalls runs each accumulated tool call through the
// permission checker (and approval loop, if NeedsApproval), then hands
// the surviving Allow calls to the scheduler. Denied calls and malformed
// JSON arguments produce synthetic error results without ever reaching a
// Handler, per spec.md §4.1's edge-case rules.
func (r *Runner) dispatchToolCalls(ctx context.Context, sess *session.Session, calls []pendingToolCall) ([]tool.Result, error) {
	results := make([]tool.Result, len(calls))
	var toSchedule []tool.Call
	scheduleIdx := map[int]int{} // index into toSchedule -> index into calls

	for i, pc := range calls {
		call := tool.Call{ID: pc.id, SessionID: sess.ID, WorkingDir: sess.WorkingDir, Name: pc.name, Arguments: pc.args}

		if !json.Valid(pc.args) {
			results[i] = tool.Result{CallID: pc.id, IsError: true, Text: "malformed tool-call arguments: invalid JSON"}
			continue
		}

		d, ok := r.Tools.Lookup(pc.name)
		if !ok {
			results[i] = tool.Result{CallID: pc.id, IsError: true, Text: fmt.Sprintf("unknown tool %q", pc.name)}
			continue
		}

		decision := r.checkPermission(call, d)
		switch decision.Kind {
		case permission.Deny:
			results[i] = tool.Result{CallID: pc.id, IsError: true, Text: "denied: " + decision.Reason}
			continue
		case permission.NeedsApproval:
			r.publish(sess.ID, events.ApprovalRequestedEvent(decision.Request.ID, pc.name, decision.Request.Description, decision.Request.AllowRemember))
			approved, err := resolveApproval(ctx, r.Approvals, r.Evaluator, pc.name, decision)
			if err != nil {
				return nil, err
			}
			if !approved {
				results[i] = tool.Result{CallID: pc.id, IsError: true, Text: "tool call was not approved"}
				continue
			}
		}

		idx := len(toSchedule)
		toSchedule = append(toSchedule, call)
		scheduleIdx[idx] = i
	}

	if len(toSchedule) > 0 {
		outcomes, err := r.Scheduler.Run(ctx, toSchedule, func(callID, text string) {
			r.publish(sess.ID, events.ToolProgressEvent(callID, text))
		})
		if err != nil {
			return nil, err
		}
		for idx, outcome := range outcomes {
			origIdx := scheduleIdx[idx]
			if outcome.Err != nil {
				results[origIdx] = tool.Result{CallID: outcome.Call.ID, IsError: true, Text: outcome.Err.Error()}
				continue
			}
			results[origIdx] = outcome.Result
		}
	}

	return results, nil
}

func (r *Runner) checkPermission(call tool.Call, d tool.Descriptor) permission.Decision {
	check := r.Permission
	if check == nil {
		check = allowAll
	}
	return check(call, d)
}

func (r *Runner) applyModifiers(sess *session.Session, results []tool.Result) {
	var mods []tool.ContextModifier
	for _, res := range results {
		for _, m := range res.Modifiers {
			// A PermissionGranted modifier takes effect immediately on the
			// evaluator's session-scoped allow list (spec.md §4.5) and has
			// nothing to render into the next request's system prompt, so
			// it's applied here instead of queued alongside FileRead.
			if m.PermissionGranted != nil {
				if r.Evaluator != nil {
					r.Evaluator.Remember(m.PermissionGranted.Tool, m.PermissionGranted.Pattern)
				}
				continue
			}
			mods = append(mods, m)
		}
	}
	if len(mods) == 0 {
		return
	}
	r.mu.Lock()
	r.pendingModifier[sess.ID] = append(r.pendingModifier[sess.ID], mods...)
	r.mu.Unlock()
}

func (r *Runner) takePendingModifiers(sessionID string) []tool.ContextModifier {
	r.mu.Lock()
	defer r.mu.Unlock()
	mods := r.pendingModifier[sessionID]
	delete(r.pendingModifier, sessionID)
	return mods
}

// streamErrWrapper lets WithRetry's shouldRetry distinguish a retryable
// mid-stream error from a hard one without changing transport.Provider's
// error type.
type streamErrWrapper struct {
	err       error
	retryable bool
}

func (e streamErrWrapper) Error() string { return e.err.Error() }
func (e streamErrWrapper) Unwrap() error { return e.err }
