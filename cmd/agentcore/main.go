// Command agentcore is the thin entrypoint wiring every core package —
// config, provider registry, tool registry, scheduler, permission
// evaluator, rollout store, metrics collector, approval bridge, and the
// turn runner — into one runnable turn. Per spec.md §6, "the only CLI
// bits the core consumes" are a session id, a working directory, a
// provider descriptor, and a model alias; everything else (subcommand
// surfaces, full flag-driven configuration, TUI rendering) is explicitly
// named an external-collaborator concern. This binary does not attempt
// to be the teacher's cmd/godex — no exec/proxy/probe/auth/aliases
// subcommand dispatch, no API-key administration, no auth setup flow.
// It runs one turn against one session and exits.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"agentcore/pkg/approvalbridge"
	"agentcore/pkg/compact"
	"agentcore/pkg/config"
	"agentcore/pkg/corelog"
	"agentcore/pkg/events"
	"agentcore/pkg/metrics"
	"agentcore/pkg/permission"
	"agentcore/pkg/rollout"
	"agentcore/pkg/scheduler"
	"agentcore/pkg/session"
	"agentcore/pkg/tool"
	"agentcore/pkg/transport"
	"agentcore/pkg/turn"
	"agentcore/pkg/turn/prompt"
)

// Version is set at build time via -ldflags, matching the teacher's own
// convention (cmd/godex/main.go's Version var).
var Version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type cliArgs struct {
	configPath string
	sessionID  string
	workingDir string
	providerName string
	model      string
	prompt     string
	serve      bool
	ephemeral  bool
}

func parseArgs(args []string) (cliArgs, error) {
	fs := flag.NewFlagSet("agentcore", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var a cliArgs
	fs.StringVar(&a.configPath, "config", config.DefaultPath(), "path to config.yaml")
	fs.StringVar(&a.sessionID, "session", "", "resume this session id (empty starts a new session)")
	fs.StringVar(&a.workingDir, "workdir", ".", "session working directory")
	fs.StringVar(&a.providerName, "provider", "", "provider name override (anthropic, openai, gemini); empty infers from -model")
	fs.StringVar(&a.model, "model", "", "model alias or literal model id; empty uses the configured default")
	fs.StringVar(&a.prompt, "prompt", "", "user input for this turn")
	fs.BoolVar(&a.serve, "serve", false, "also start the local approval bridge (HTTP+SSE) for this run")
	fs.BoolVar(&a.ephemeral, "ephemeral", false, "don't persist this session to rollout storage")
	if err := fs.Parse(args); err != nil {
		return cliArgs{}, err
	}
	return a, nil
}

func run(args []string) error {
	if len(args) == 1 && (args[0] == "--version" || args[0] == "version" || args[0] == "-v") {
		fmt.Println(Version)
		return nil
	}

	a, err := parseArgs(args)
	if err != nil {
		return err
	}
	if strings.TrimSpace(a.prompt) == "" && !a.serve {
		return fmt.Errorf("-prompt is required (or pass -serve to only run the approval bridge)")
	}

	cfg := config.LoadFrom(a.configPath)
	logger := corelog.New(corelog.ParseLevel(os.Getenv("AGENTCORE_LOG_LEVEL")))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	registry := buildRegistry(ctx, cfg, logger)

	modelArg := a.model
	if modelArg == "" {
		modelArg = cfg.Exec.Model
	}
	provClient, expandedModel, err := registry.Route(modelArg)
	if err != nil {
		return fmt.Errorf("route model: %w", err)
	}
	providerName := a.providerName
	if providerName == "" {
		providerName = provClient.Name()
	}

	toolsReg := tool.NewRegistry()
	if err := registerShellTool(toolsReg, a.workingDir); err != nil {
		return fmt.Errorf("register shell tool: %w", err)
	}
	toolsReg.Freeze()

	sched := scheduler.New(toolsReg)
	bus := events.NewBus()
	evaluator := permission.NewEvaluator(cfg.Sandbox.Policy())

	metricsCollector, err := metrics.NewCollector(metrics.Config{Enabled: true})
	if err != nil {
		return fmt.Errorf("metrics collector: %w", err)
	}
	defer metricsCollector.Close()

	rolloutDir := filepath.Join(filepath.Dir(config.DefaultPath()), "rollouts")
	store, err := rollout.NewStore(rolloutDir)
	if err != nil {
		return fmt.Errorf("rollout store: %w", err)
	}

	var bridge *approvalbridge.Bridge
	if a.serve {
		bridge = approvalbridge.New(approvalbridge.Config{}, bus, logger)
		go func() {
			if err := bridge.Serve(ctx); err != nil {
				logger.Error("approval bridge exited", "error", err.Error())
			}
		}()
	}

	runner := turn.New(provClient, toolsReg, sched, bus)
	runner.Retry = cfg.Client.RetryConfig()
	runner.Evaluator = evaluator
	if bridge != nil {
		// Assigning a nil *Bridge to the ApprovalSink interface field
		// directly would leave it holding a non-nil interface wrapping a
		// nil pointer, defeating the runner's own "sink == nil" check —
		// so Approvals is only ever set when a bridge actually exists.
		runner.Approvals = bridge
	}
	runner.DefaultMaxTurns = cfg.Exec.MaxTurns
	runner.Permission = func(call tool.Call, d tool.Descriptor) permission.Decision {
		return checkToolPermission(evaluator, call, d)
	}

	if strings.TrimSpace(a.prompt) == "" {
		// -serve with no prompt: block until the context is cancelled,
		// keeping the bridge alive for an external UI to drive approvals
		// for sessions started elsewhere in this same process in the future.
		<-ctx.Done()
		return nil
	}

	sess, writer, err := openSession(store, a, providerName, expandedModel, cfg)
	if err != nil {
		return err
	}
	defer writer.Close()

	startLen := sess.HistoryLen()
	writer.Append(rollout.TurnContextItem(rollout.TurnContext{MaxTurns: cfg.Exec.MaxTurns}))

	system, err := buildSystemPrompt(cfg, a, bridge != nil)
	if err != nil {
		return fmt.Errorf("build system prompt: %w", err)
	}
	newInput := []session.ContentBlock{session.TextBlock(a.prompt)}

	turnCtx := ctx
	if cfg.Exec.Timeout > 0 {
		var timeoutCancel context.CancelFunc
		turnCtx, timeoutCancel = context.WithTimeout(ctx, cfg.Exec.Timeout)
		defer timeoutCancel()
	}

	start := time.Now()
	outcome, err := runner.RunTurn(turnCtx, sess, system, newInput, 0)
	latency := time.Since(start)

	if err != nil {
		metricsCollector.Record(metrics.FromError(providerName, expandedModel, latency, err))
		persistNewMessages(writer, sess, startLen)
		return fmt.Errorf("run turn: %w", err)
	}
	metricsCollector.Record(metrics.FromUsage(providerName, expandedModel, latency, toEventsUsage(outcome.Usage)))
	persistNewMessages(writer, sess, startLen)

	if err := printOutcome(sess, outcome); err != nil {
		return err
	}

	if outcome.NeedsCompaction {
		compactSession(ctx, provClient, bus, writer, sess, logger)
	}
	return nil
}

// compactSession runs the Compactor against sess once a turn has crossed
// its auto-compact threshold. ctx is the process-lifetime context rather
// than the just-finished turn's (possibly already-expired) deadline — a
// compaction summarization call deserves its own budget. A failed
// compaction is logged and otherwise ignored: per pkg/compact's contract
// sess is left completely unchanged on error, so the next turn simply
// tries again once it re-crosses the threshold.
func compactSession(ctx context.Context, provClient transport.Provider, bus *events.Bus, writer rollout.WriteCloser, sess *session.Session, logger *corelog.Logger) {
	logger.Info("session crossed the auto-compact threshold, compacting", "session", sess.ID)
	compactor := compact.New(provClient, bus)
	if err := compactor.Run(ctx, sess); err != nil {
		logger.Error("compaction failed", "session", sess.ID, "error", err.Error())
		return
	}
	_ = writer.Append(rollout.CompactedItem())
	persistNewMessages(writer, sess, 0)
}

// buildSystemPrompt composes the turn's system prompt from
// cfg.Exec.Instructions plus the permission/sandbox/environment context a
// model needs to behave correctly in this run, via prompt.Builder rather
// than hand-concatenating cfg.Exec.Instructions and AppendSystem. hasBridge
// picks the permission-mode framing: with an approval bridge attached, a
// NeedsApproval decision actually reaches a human, so the model is told to
// describe risky actions before taking them ("suggest"); with no bridge,
// every NeedsApproval is auto-denied (turn.Runner's nil-sink default), so
// the model is told every action needs explicit permission up front —
// closer in practice to how an unattended run actually behaves.
func buildSystemPrompt(cfg config.Config, a cliArgs, hasBridge bool) (string, error) {
	b := prompt.NewBuilder()
	b.BaseInstructions = cfg.Exec.Instructions
	if hasBridge {
		b.PermissionMode = "suggest"
	} else {
		b.PermissionMode = "ask-every-time"
	}
	b.SandboxMode = sandboxModeFor(cfg.Sandbox)
	b.Environment = &prompt.EnvironmentInfo{
		WorkingDir: a.workingDir,
		Shell:      "sh",
		Platform:   runtime.GOOS,
		OSName:     runtime.GOOS,
	}
	if cfg.Exec.AppendSystem != "" {
		b.CustomSections = map[string]string{"additional_instructions": cfg.Exec.AppendSystem}
	}
	return b.Build()
}

// sandboxModeFor maps this runtime's path-based permission.Policy modes
// onto prompt.Builder's coarser full/network-off/none vocabulary.
// permission.ModeNone disables path checks entirely, matching "none";
// a network-denied policy matches "full" (writes confined, network off);
// anything else (a path-restricted policy that does allow network) has no
// exact match in the three built-in sandbox.md branches, so it falls
// through to that template's generic "consult the sandbox configuration"
// text rather than claiming a stronger guarantee than is actually enforced.
func sandboxModeFor(s config.SandboxConfig) string {
	mode := strings.ToLower(strings.TrimSpace(s.Mode))
	if mode == "none" {
		return "none"
	}
	if !s.AllowNetwork {
		return "full"
	}
	return "path-restricted-network-allowed"
}

// openSession resumes sessionID under workingDir if given, otherwise
// starts a fresh Session, and opens its rollout writer (a no-op writer
// for ephemeral sessions).
func openSession(store *rollout.Store, a cliArgs, providerName, model string, cfg config.Config) (*session.Session, rollout.WriteCloser, error) {
	var sess *session.Session
	if strings.TrimSpace(a.sessionID) != "" {
		resumed, err := store.Resume(a.workingDir, a.sessionID)
		if err != nil {
			return nil, nil, fmt.Errorf("resume session %q: %w", a.sessionID, err)
		}
		sess = resumed
	} else {
		sess = session.New(a.workingDir, session.ProviderDescriptor{Provider: providerName, Model: model}, 0, cfg.Exec.MaxTurns, a.ephemeral)
	}

	writer, err := store.CreateWriter(sess)
	if err != nil {
		return nil, nil, fmt.Errorf("create rollout writer: %w", err)
	}
	return sess, writer, nil
}

// persistNewMessages appends every TrackedMessage added to sess since
// startLen to writer and flushes the turn boundary. Errors are logged by
// the caller's writer implementation returning them on Close, matching
// the teacher's fire-and-forget rollout append pattern — a persistence
// failure must never fail the turn that already completed.
func persistNewMessages(writer rollout.WriteCloser, sess *session.Session, startLen int) {
	history := sess.Snapshot()
	for _, m := range history[startLen:] {
		_ = writer.Append(rollout.MessageItem(m))
	}
	_ = writer.FlushTurn()
}

func toEventsUsage(u session.Usage) events.Usage {
	return events.Usage{
		InputTokens:         u.InputTokens,
		OutputTokens:        u.OutputTokens,
		CacheReadTokens:     u.CacheReadTokens,
		CacheCreationTokens: u.CacheCreationTokens,
		ReasoningTokens:     u.ReasoningTokens,
	}
}

// checkToolPermission classifies one tool invocation against the
// session's sandbox policy. Only the shell tool is wired in this binary,
// so only shell commands are analyzed for dangerous-command patterns;
// every other (hypothetically externally-registered) tool defaults to
// Allow, matching turn.Runner's own Mode=None fallback.
func checkToolPermission(evaluator *permission.Evaluator, call tool.Call, d tool.Descriptor) permission.Decision {
	if d.ReadOnly || call.Name != "shell" {
		return permission.Decision{Kind: permission.Allow}
	}
	var args shellArgs
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return permission.Decision{Kind: permission.Deny, Reason: "malformed shell arguments"}
	}
	argv := args.argv()
	if len(argv) == 0 && args.Script != "" {
		argv = []string{"sh", "-lc", args.Script}
	}
	return evaluator.EvaluateShell(call.ID, call.Name, argv)
}

func printOutcome(sess *session.Session, outcome turn.TurnOutcome) error {
	result := map[string]any{
		"session_id":        sess.ID,
		"finish_reason":      outcome.FinishReason.String(),
		"raw_finish_reason": outcome.RawFinishReason,
		"turns_used":        outcome.TurnsUsed,
		"text":              lastMessageText(outcome.LastMessage),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func lastMessageText(m *session.TrackedMessage) string {
	if m == nil {
		return ""
	}
	var b strings.Builder
	for _, block := range m.Blocks {
		if block.Kind == session.ContentText {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}
