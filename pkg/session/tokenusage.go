package session

import "sync"

// Usage is the token accounting for a single turn's ResponseDone event.
type Usage struct {
	InputTokens        int
	OutputTokens       int
	CacheReadTokens    int
	CacheCreationTokens int
	ReasoningTokens    int
}

func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens + u.CacheReadTokens + u.CacheCreationTokens
}

// TokenUsageInfo is the rolling usage record attached to a Session. It is
// updated from every ResponseDone event and read by the Compactor to decide
// whether the auto-compact threshold has been crossed.
//
// Grounded on codex-rs/core/src/codex/compact.rs's update_token_usage_info:
// the running total only ever grows (it is never decremented mid-session);
// only a compaction resets it.
type TokenUsageInfo struct {
	mu sync.Mutex

	LastTurn     Usage
	Total        Usage
	ContextWindow int // 0 = unknown
}

// NewTokenUsageInfo constructs a tracker for a model with the given context
// window (0 if unknown — the caller falls back to a package default).
func NewTokenUsageInfo(contextWindow int) *TokenUsageInfo {
	return &TokenUsageInfo{ContextWindow: contextWindow}
}

// Append folds a turn's usage into the rolling total and returns the new
// total token count.
func (t *TokenUsageInfo) Append(u Usage) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.LastTurn = u
	t.Total.InputTokens += u.InputTokens
	t.Total.OutputTokens += u.OutputTokens
	t.Total.CacheReadTokens += u.CacheReadTokens
	t.Total.CacheCreationTokens += u.CacheCreationTokens
	t.Total.ReasoningTokens += u.ReasoningTokens
	return t.Total.Total()
}

// Reset zeroes the rolling total. Called by the Compactor after a
// successful rewrite of history.
func (t *TokenUsageInfo) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.LastTurn = Usage{}
	t.Total = Usage{}
}

// Snapshot returns a copy of the current totals, safe to hand to readers
// outside the session's single-owner Turn runner.
func (t *TokenUsageInfo) Snapshot() (last, total Usage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.LastTurn, t.Total
}

// DefaultAutoCompactTokenLimit is used when a model's context window isn't
// known to the provider registry. Matches codex-rs's AUTO_COMPACT_TOKEN_LIMIT.
const DefaultAutoCompactTokenLimit = 120_000

// AutoCompactThreshold resolves the Open Question in spec.md §9: per-model
// if contextWindow is known (85% of it), else the documented fixed default.
func AutoCompactThreshold(contextWindow int) int {
	if contextWindow > 0 {
		return contextWindow * 85 / 100
	}
	return DefaultAutoCompactTokenLimit
}

// RateLimitSnapshot records provider-reported rate-limit metadata, attached
// to the session after each response per spec.md §4.2.
type RateLimitSnapshot struct {
	RemainingRequests int
	RemainingTokens   int
	ResetAt           int64 // unix seconds; 0 = unknown
}
