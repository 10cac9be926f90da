// Package compact implements the Compactor: when a session's running
// token usage crosses its auto-compact threshold, run a dedicated
// summarization turn, extract and redact the model's summary, and
// rewrite history to a single bridging message carrying the summary plus
// every prior user message's literal text. Grounded on
// codex-rs/core/src/codex/compact.rs (run_compact_task,
// build_compacted_history, update_token_usage_info) and
// codex-rs/core/src/compact_v2/summary.rs (cleanup_summary_tags,
// is_valid_summary), adapted to spec.md §4.7's five-step procedure and
// this runtime's session/transport types.
package compact

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"agentcore/pkg/events"
	"agentcore/pkg/session"
	"agentcore/pkg/transport"
)

// MinSummaryLength matches codex_v2's MIN_SUMMARY_LENGTH: a summary
// shorter than this is treated as noise rather than a real continuation.
const MinSummaryLength = 200

// compactTriggerText mirrors codex-rs's COMPACT_TRIGGER_TEXT, the
// synthetic user turn that kicks off the summarization request.
const compactTriggerText = "Start Summarization"

// DefaultSummarizationPrompt is the fixed system prompt spec.md §4.7 step
// 1 requires: it instructs the model to emit a structured analysis and
// summary in the XML-style tags cleanupSummaryTags looks for.
const DefaultSummarizationPrompt = `You are wrapping up a coding session before its context window runs out. Review the full conversation above and produce a structured handoff for the assistant that will continue the work.

Respond with exactly two sections, in this order:

<analysis>
A terse account of what has been tried, what worked, what didn't, and any constraints or decisions the user stated explicitly.
</analysis>

<summary>
A self-contained account of the current task state: what's done, what's in progress, what's next, and any file paths, commands, or identifiers the next assistant will need. Write it so someone with no other context could pick up the task immediately.
</summary>

Do not ask any questions. Do not include anything outside these two tags.`

var (
	analysisTagRe      = regexp.MustCompile(`(?s)<analysis>(.*?)</analysis>`)
	summaryTagRe       = regexp.MustCompile(`(?s)<summary>(.*?)</summary>`)
	collapseNewlinesRe = regexp.MustCompile(`\n{3,}`)
)

// Secret-redaction regexes, recovered from codex-rs/compact_v2/summary.rs's
// neighborhood per SPEC_FULL.md §4.7a.
var (
	apiKeyRe        = regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`)
	bearerTokenRe   = regexp.MustCompile(`Bearer [A-Za-z0-9._-]{20,}`)
	awsAccessKeyRe  = regexp.MustCompile(`AKIA[0-9A-Z]{16}`)
	genericSecretRe = regexp.MustCompile(`(?i)(api[_-]?key|secret|token)\s*[:=]\s*\S+`)
)

// Compactor runs compaction against one session at a time. Safe for
// concurrent use across distinct sessions; callers must not run two
// compactions against the same session concurrently (same single-writer
// rule as the Turn runner).
type Compactor struct {
	Provider transport.Provider
	Bus      *events.Bus
	Retry    transport.RetryConfig

	// SystemPrompt overrides DefaultSummarizationPrompt; tests substitute
	// a short prompt to keep scripted responses small.
	SystemPrompt string
}

// New builds a Compactor with spec.md §4.2's default retry policy.
func New(provider transport.Provider, bus *events.Bus) *Compactor {
	return &Compactor{Provider: provider, Bus: bus, Retry: transport.DefaultRetryConfig()}
}

// Run executes spec.md §4.7's procedure against sess: summarize, clean,
// redact, validate, rebuild history, reset token accounting. On any
// failure — stream error surviving retry, or a summary that fails
// validation — sess is left completely unchanged, matching the
// "compaction failures never corrupt history" guarantee from spec.md §7.
func (c *Compactor) Run(ctx context.Context, sess *session.Session) error {
	history := sess.Snapshot()

	raw, err := c.summarize(ctx, sess, history)
	if err != nil {
		return fmt.Errorf("compact: summarization turn failed: %w", err)
	}

	cleaned := cleanupSummaryTags(raw)
	redacted := redactSecrets(cleaned)

	if !isValidSummary(redacted) {
		return fmt.Errorf("compact: summary failed validation (len=%d)", len(redacted))
	}

	sess.ReplaceHistory(buildCompactedHistory(history, redacted))
	sess.TokenUsage().Reset()
	c.publish(sess.ID, events.CompactedEvent())
	return nil
}

// summarize runs the dedicated, tool-free summarization turn and returns
// the model's raw response text (before tag cleanup or redaction).
func (c *Compactor) summarize(ctx context.Context, sess *session.Session, history []session.TrackedMessage) (string, error) {
	prompt := c.SystemPrompt
	if prompt == "" {
		prompt = DefaultSummarizationPrompt
	}

	messages := make([]session.TrackedMessage, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, session.TrackedMessage{
		ID:     "compact-trigger",
		Source: session.Source{Kind: session.SourceUser},
		Blocks: []session.ContentBlock{session.TextBlock(compactTriggerText)},
	})

	req := transport.GenerateRequest{
		Model:    sess.Provider.Model,
		System:   prompt,
		Messages: messages,
	}

	retry := c.Retry
	if retry.MaxAttempts == 0 {
		retry = transport.DefaultRetryConfig()
	}

	var acc textAccumulator
	genErr := transport.WithRetry(ctx, retry, func(err error) bool {
		se, ok := err.(streamErrWrapper)
		return ok && se.retryable
	}, func(attempt int) error {
		acc = textAccumulator{}
		err := c.Provider.Generate(ctx, req, func(ev events.StreamEvent) error {
			c.publish(sess.ID, ev)
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
		return "", genErr
	}
	return acc.text.String(), nil
}

func (c *Compactor) publish(sessionID string, ev events.StreamEvent) {
	if c.Bus != nil {
		c.Bus.Publish(sessionID, ev)
	}
}

// buildCompactedHistory implements spec.md §4.7 step 4: keep any prior
// system-sourced messages untouched, collect the literal text of every
// user message so intent is never lost, discard everything else
// (assistant/tool), and append one SourceCompactionSummary message
// carrying both. SourceCompactionSummary already renders as a user-role
// turn in every transport adapter, so the next request's history stays
// well-formed without a provider-specific special case.
func buildCompactedHistory(history []session.TrackedMessage, summary string) []session.TrackedMessage {
	var kept []session.TrackedMessage
	var userTexts []string
	for _, m := range history {
		switch m.Source.Kind {
		case session.SourceSystem:
			kept = append(kept, m)
		case session.SourceUser, session.SourceCompactionSummary:
			// A prior compaction's bridge message carries the condensed
			// record of all earlier user intent; on a second compaction it
			// must be re-collected here the same as a literal user message,
			// or that intent is silently lost.
			if t := messageText(m); t != "" {
				userTexts = append(userTexts, t)
			}
		}
	}

	usersBlock := "(none)"
	if len(userTexts) > 0 {
		usersBlock = strings.Join(userTexts, "\n\n")
	}

	bridge := fmt.Sprintf(
		"Here are all the user messages so far:\n%s\n\nAnother assistant started working on this task; here is its current state:\n%s\n\nPlease continue the task.",
		usersBlock, summary,
	)

	kept = append(kept, session.TrackedMessage{
		ID:     "compact-summary",
		Source: session.Source{Kind: session.SourceCompactionSummary},
		Blocks: []session.ContentBlock{session.TextBlock(bridge)},
	})
	return kept
}

func messageText(m session.TrackedMessage) string {
	var parts []string
	for _, b := range m.Blocks {
		if b.Kind == session.ContentText && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// cleanupSummaryTags ports compact_v2/summary.rs's cleanup_summary_tags:
// <analysis>/<summary> become "Analysis:\n"/"Summary:\n" prefixed
// sections, then runs of 3+ newlines collapse to a single blank line.
func cleanupSummaryTags(raw string) string {
	result := raw

	if m := analysisTagRe.FindStringSubmatch(result); m != nil {
		replacement := "Analysis:\n" + strings.TrimSpace(m[1])
		result = analysisTagRe.ReplaceAllLiteralString(result, replacement)
	}
	if m := summaryTagRe.FindStringSubmatch(result); m != nil {
		replacement := "Summary:\n" + strings.TrimSpace(m[1])
		result = summaryTagRe.ReplaceAllLiteralString(result, replacement)
	}

	result = collapseNewlinesRe.ReplaceAllString(result, "\n\n")
	return strings.TrimSpace(result)
}

// redactSecrets applies SPEC_FULL.md §4.7a's regex set, replacing each
// matched secret span with "[REDACTED]" while leaving surrounding prose
// intact.
func redactSecrets(s string) string {
	s = apiKeyRe.ReplaceAllString(s, "[REDACTED]")
	s = bearerTokenRe.ReplaceAllString(s, "Bearer [REDACTED]")
	s = awsAccessKeyRe.ReplaceAllString(s, "[REDACTED]")
	s = genericSecretRe.ReplaceAllStringFunc(s, func(match string) string {
		loc := genericSecretRe.FindStringSubmatchIndex(match)
		if loc == nil {
			return match
		}
		return match[:loc[2]] + match[loc[2]:loc[3]] + ": [REDACTED]"
	})
	return s
}

// isValidSummary ports compact_v2/summary.rs's is_valid_summary: non-
// empty, not an error-prefixed response, and long enough to carry real
// continuation context.
func isValidSummary(s string) bool {
	return s != "" &&
		!strings.HasPrefix(s, "API_ERROR:") &&
		!strings.HasPrefix(s, "Error:") &&
		len(s) > MinSummaryLength
}

// textAccumulator folds a tool-free stream into its final text, the
// Compactor's analogue of pkg/turn's streamAccumulator (kept separate
// rather than exported from pkg/turn: the Compactor never needs tool
// calls or thinking blocks, only a stop/error signal and accumulated
// text).
type textAccumulator struct {
	text strings.Builder

	finishReason string
	err          error
	retryable    bool
}

func (a *textAccumulator) apply(ev events.StreamEvent) error {
	switch ev.Kind {
	case events.TextDelta:
		a.text.WriteString(ev.Text)
	case events.TextDone:
		if ev.Text != "" {
			a.text.Reset()
			a.text.WriteString(ev.Text)
		}
	case events.ResponseDone:
		a.finishReason = ev.FinishReason
	case events.Error:
		a.err = ev.Err
		a.retryable = ev.Retryable
	}
	return nil
}

// streamErrWrapper mirrors pkg/turn's type of the same name: it lets
// shouldRetry distinguish a retryable mid-stream error from a hard one
// without changing transport.Provider's error contract.
type streamErrWrapper struct {
	err       error
	retryable bool
}

func (e streamErrWrapper) Error() string { return e.err.Error() }
func (e streamErrWrapper) Unwrap() error { return e.err }
