package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"agentcore/pkg/shellexec"
	"agentcore/pkg/tool"
)

// shellArgs is the JSON shape a model supplies for the shell tool: either
// a pre-tokenized argv or a shell script body, never both.
type shellArgs struct {
	Command []string `json:"command"`
	Script  string   `json:"script"`
	Timeout int      `json:"timeout_seconds"`
}

func (a shellArgs) argv() []string {
	if len(a.Command) > 0 {
		return a.Command
	}
	return nil
}

var shellToolSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"command":         map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"script":          map[string]any{"type": "string"},
		"timeout_seconds": map[string]any{"type": "integer"},
	},
}

// registerShellTool adds the "shell" tool: the one built-in tool this
// runtime ships, since every other tool (file read/write, search,
// editor) is domain-specific external-collaborator territory per
// spec.md §1, but a coding agent with no way to run a command isn't
// exercisable at all. Grounded on the teacher's shell handler
// (pkg/harness/harness.go's built-in bash tool), rebuilt on
// agentcore/pkg/shellexec instead of the teacher's inline exec.Command
// plumbing.
func registerShellTool(reg *tool.Registry, workingDir string) error {
	return reg.Register(tool.Descriptor{
		Name:        "shell",
		Description: "Run a shell command and return its output.",
		Parameters:  shellToolSchema,
		Safety:      tool.Unsafe,
		Handler: tool.HandlerFunc(func(ctx context.Context, call tool.Call) (tool.Result, error) {
			var args shellArgs
			if err := json.Unmarshal(call.Arguments, &args); err != nil {
				return tool.Result{CallID: call.ID, Text: fmt.Sprintf("invalid arguments: %v", err), IsError: true}, nil
			}

			dir := call.WorkingDir
			if dir == "" {
				dir = workingDir
			}

			res, err := shellexec.Run(ctx, shellexec.Request{
				Argv:       args.argv(),
				Script:     args.Script,
				Dir:        dir,
				Timeout:    clampTimeout(args.Timeout),
				OnProgress: call.EmitProgress,
			})
			if err != nil {
				return tool.Result{CallID: call.ID, Text: err.Error(), IsError: true}, nil
			}
			return tool.Result{
				CallID:  call.ID,
				Text:    res.Formatted,
				IsError: res.ExitCode != 0 || res.TimedOut,
			}, nil
		}),
	})
}

// clampTimeout converts a model-supplied second count into a Duration,
// falling back to shellexec's own default when unset or non-positive.
// shellexec.Run clamps anything above MaxTimeout itself.
func clampTimeout(seconds int) time.Duration {
	if seconds <= 0 {
		return shellexec.DefaultTimeout
	}
	return time.Duration(seconds) * time.Second
}
