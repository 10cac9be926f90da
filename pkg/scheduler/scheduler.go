// Package scheduler executes one assistant response's tool calls while
// honoring each tool's safety class, the way spec.md §4.5 describes: Safe
// tools run concurrently, any Unsafe tool forces serial execution of
// itself and serializes around everything else in the batch.
package scheduler

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"agentcore/pkg/tool"
)

// Outcome pairs a tool.Result with the call it answers and any execution
// error (distinct from a tool-level IsError result).
type Outcome struct {
	Call   tool.Call
	Result tool.Result
	Err    error
}

// Scheduler dispatches tool calls to a registry's handlers.
type Scheduler struct {
	registry *tool.Registry
}

// New builds a Scheduler bound to registry.
func New(registry *tool.Registry) *Scheduler {
	return &Scheduler{registry: registry}
}

// Run executes calls, honoring safety-class batching, and returns one
// Outcome per call in the same order calls were given so the caller can
// align tool-result messages with tool-use ids. onProgress, if non-nil,
// is wired into each call's EmitProgress before dispatch.
//
// Batching: calls are partitioned into maximal runs where a run is either
// (a) a single Unsafe call, serialized against every other call, or (b) a
// contiguous group of Safe calls, run concurrently via an errgroup. This
// mirrors "any Unsafe tool forces serial execution of itself and
// serializes around all other tools in the batch" literally: an Unsafe
// call never overlaps with any other call in its batch, Safe or Unsafe.
func (s *Scheduler) Run(ctx context.Context, calls []tool.Call, onProgress func(callID, text string)) ([]Outcome, error) {
	outcomes := make([]Outcome, len(calls))
	safety := make([]tool.SafetyClass, len(calls))
	for i, c := range calls {
		d, ok := s.registry.Lookup(c.Name)
		if !ok {
			outcomes[i] = Outcome{Call: c, Err: fmt.Errorf("scheduler: unknown tool %q", c.Name)}
			safety[i] = tool.Unsafe // treat unknown tools conservatively
			continue
		}
		safety[i] = d.Safety
	}

	i := 0
	for i < len(calls) {
		if outcomes[i].Err != nil && safety[i] == tool.Unsafe {
			// already resolved as unknown-tool above; still serializes the batch
			i++
			continue
		}
		if safety[i] == tool.Unsafe {
			s.runOne(ctx, calls[i], onProgress, &outcomes[i])
			i++
			continue
		}

		j := i
		for j < len(calls) && safety[j] == tool.Safe {
			j++
		}
		if err := s.runSafeGroup(ctx, calls[i:j], outcomes[i:j], onProgress); err != nil {
			return outcomes, err
		}
		i = j

		if ctx.Err() != nil {
			return outcomes, ctx.Err()
		}
	}

	return outcomes, nil
}

func (s *Scheduler) runOne(ctx context.Context, call tool.Call, onProgress func(callID, text string), out *Outcome) {
	if ctx.Err() != nil {
		out.Call = call
		out.Result = cancelledResult(call.ID)
		return
	}
	d, ok := s.registry.Lookup(call.Name)
	if !ok {
		out.Call = call
		out.Err = fmt.Errorf("scheduler: unknown tool %q", call.Name)
		return
	}
	call.EmitProgress = progressFunc(call.ID, onProgress)
	result, err := d.Handler.Handle(ctx, call)
	out.Call = call
	out.Result = result
	out.Err = err
}

func (s *Scheduler) runSafeGroup(ctx context.Context, calls []tool.Call, out []Outcome, onProgress func(callID, text string)) error {
	g, gctx := errgroup.WithContext(ctx)
	for idx := range calls {
		idx := idx
		call := calls[idx]
		g.Go(func() error {
			s.runOne(gctx, call, onProgress, &out[idx])
			return nil // individual handler errors surface via Outcome.Err, not the group
		})
	}
	return g.Wait()
}

func progressFunc(callID string, onProgress func(callID, text string)) func(text string) {
	if onProgress == nil {
		return nil
	}
	return func(text string) { onProgress(callID, text) }
}

func cancelledResult(callID string) tool.Result {
	return tool.Result{CallID: callID, Text: "tool execution cancelled", IsError: true}
}
