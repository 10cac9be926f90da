package main

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentcore/pkg/config"
	"agentcore/pkg/corelog"
	"agentcore/pkg/permission"
	"agentcore/pkg/session"
	"agentcore/pkg/tool"
)

func TestParseArgsDefaults(t *testing.T) {
	a, err := parseArgs([]string{"-prompt", "hello", "-model", "sonnet"})
	require.NoError(t, err)
	assert.Equal(t, "hello", a.prompt)
	assert.Equal(t, "sonnet", a.model)
	assert.Equal(t, ".", a.workingDir)
	assert.False(t, a.serve)
	assert.False(t, a.ephemeral)
}

func TestParseArgsRejectsUnknownFlag(t *testing.T) {
	_, err := parseArgs([]string{"-bogus"})
	require.Error(t, err)
}

func TestCheckToolPermissionAllowsReadOnly(t *testing.T) {
	evaluator := permission.NewEvaluator(permission.Policy{Mode: permission.ModeReadOnly})
	d := tool.Descriptor{Name: "shell", ReadOnly: true}
	call := tool.Call{ID: "1", Name: "shell", Arguments: []byte(`{"command":["rm","-rf","/"]}`)}

	got := checkToolPermission(evaluator, call, d)
	assert.Equal(t, permission.Allow, got.Kind, "read-only descriptor should always Allow")
}

func TestCheckToolPermissionAllowsNonShellTools(t *testing.T) {
	evaluator := permission.NewEvaluator(permission.Policy{Mode: permission.ModeStrict})
	d := tool.Descriptor{Name: "fetch"}
	call := tool.Call{ID: "1", Name: "fetch", Arguments: []byte(`{}`)}

	got := checkToolPermission(evaluator, call, d)
	assert.Equal(t, permission.Allow, got.Kind, "only the shell tool is analyzed in this binary")
}

func TestCheckToolPermissionDeniesDangerousShellCommand(t *testing.T) {
	evaluator := permission.NewEvaluator(permission.Policy{Mode: permission.ModeNone})
	d := tool.Descriptor{Name: "shell"}
	call := tool.Call{ID: "1", Name: "shell", Arguments: []byte(`{"command":["rm","-rf","/"]}`)}

	got := checkToolPermission(evaluator, call, d)
	assert.Equal(t, permission.Deny, got.Kind, "rm -rf / should be denied")
}

func TestCheckToolPermissionNeedsApprovalForScript(t *testing.T) {
	evaluator := permission.NewEvaluator(permission.Policy{Mode: permission.ModeNone})
	d := tool.Descriptor{Name: "shell"}
	call := tool.Call{ID: "1", Name: "shell", Arguments: []byte(`{"script":"echo hi"}`)}

	got := checkToolPermission(evaluator, call, d)
	require.Equal(t, permission.NeedsApproval, got.Kind, "a benign script-form command should need approval")
	assert.Equal(t, "sh -lc echo hi", got.Request.Description)
}

func TestCheckToolPermissionMalformedArguments(t *testing.T) {
	evaluator := permission.NewEvaluator(permission.Policy{Mode: permission.ModeNone})
	d := tool.Descriptor{Name: "shell"}
	call := tool.Call{ID: "1", Name: "shell", Arguments: []byte(`not json`)}

	got := checkToolPermission(evaluator, call, d)
	assert.Equal(t, permission.Deny, got.Kind, "malformed shell arguments should be denied")
}

func TestToEventsUsage(t *testing.T) {
	u := session.Usage{InputTokens: 10, OutputTokens: 20, CacheReadTokens: 1, CacheCreationTokens: 2, ReasoningTokens: 3}
	got := toEventsUsage(u)
	assert.Equal(t, 10, got.InputTokens)
	assert.Equal(t, 20, got.OutputTokens)
	assert.Equal(t, 1, got.CacheReadTokens)
	assert.Equal(t, 2, got.CacheCreationTokens)
	assert.Equal(t, 3, got.ReasoningTokens)
}

func TestLastMessageTextNil(t *testing.T) {
	assert.Equal(t, "", lastMessageText(nil))
}

func TestLastMessageTextConcatenatesTextBlocksOnly(t *testing.T) {
	m := &session.TrackedMessage{
		Blocks: []session.ContentBlock{
			session.TextBlock("hello "),
			{Kind: session.ContentThinking, Thinking: "ignored"},
			session.TextBlock("world"),
		},
	}
	assert.Equal(t, "hello world", lastMessageText(m))
}

func TestShellArgsArgvPrefersCommandOverScript(t *testing.T) {
	var a shellArgs
	require.NoError(t, json.Unmarshal([]byte(`{"command":["echo","hi"],"script":"echo bye"}`), &a))
	assert.Equal(t, []string{"echo", "hi"}, a.argv())
}

func TestSandboxModeForNone(t *testing.T) {
	assert.Equal(t, "none", sandboxModeFor(config.SandboxConfig{Mode: "none"}))
}

func TestSandboxModeForNetworkDenied(t *testing.T) {
	assert.Equal(t, "full", sandboxModeFor(config.SandboxConfig{Mode: "workspace-write", AllowNetwork: false}))
}

func TestSandboxModeForPathRestrictedNetworkAllowed(t *testing.T) {
	got := sandboxModeFor(config.SandboxConfig{Mode: "workspace-write", AllowNetwork: true})
	assert.Equal(t, "path-restricted-network-allowed", got, "no built-in sandbox.md mode matches this combination")
}

func TestBuildSystemPromptIncludesBaseInstructionsAndEnvironment(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Exec.Instructions = "you are a terse assistant"
	a := cliArgs{workingDir: "/tmp/work"}

	got, err := buildSystemPrompt(cfg, a, false)
	require.NoError(t, err)
	assert.Contains(t, got, "you are a terse assistant")
	assert.Contains(t, got, "/tmp/work")
}

func TestBuildSystemPromptAppendsCustomInstructions(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Exec.AppendSystem = "always double-check file paths"
	a := cliArgs{workingDir: "."}

	got, err := buildSystemPrompt(cfg, a, true)
	require.NoError(t, err)
	assert.Contains(t, got, "always double-check file paths")
	assert.Contains(t, got, "<additional_instructions>")
}

func TestBuildRegistryFallsBackToMock(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("VOLCENGINE_API_KEY", "")
	t.Setenv("ZAI_API_KEY", "")

	cfg := config.DefaultConfig()
	logger := corelog.New(corelog.LevelError)

	reg := buildRegistry(context.Background(), cfg, logger)

	p, expanded, err := reg.Route("mock-test-model")
	require.NoError(t, err)
	assert.Equal(t, "mock", p.Name(), "expected the mock provider when no credentials resolve")
	assert.Equal(t, "mock-test-model", expanded)
}
