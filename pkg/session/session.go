package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ProviderDescriptor names the provider and model a session is bound to.
type ProviderDescriptor struct {
	Provider string // "anthropic", "openai", "gemini", "volcengine", "zai"
	Model    string
}

// Session is one durable agent conversation: identity, working directory,
// provider binding, and the append-only message history.
type Session struct {
	mu sync.RWMutex

	ID         string
	WorkingDir string
	Provider   ProviderDescriptor

	CreatedAt      time.Time
	LastActivityAt time.Time

	MaxTurns  int // 0 = unbounded
	turnCount int
	Ephemeral bool // not written to rollout storage

	history    History
	tokenUsage *TokenUsageInfo
	rateLimit  RateLimitSnapshot
}

// New constructs a Session with a fresh id and zeroed history.
func New(workingDir string, provider ProviderDescriptor, contextWindow int, maxTurns int, ephemeral bool) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:             uuid.NewString(),
		WorkingDir:     workingDir,
		Provider:       provider,
		CreatedAt:      now,
		LastActivityAt: now,
		MaxTurns:       maxTurns,
		Ephemeral:      ephemeral,
		tokenUsage:     NewTokenUsageInfo(contextWindow),
	}
}

// TokenUsage returns the session's rolling token tracker.
func (s *Session) TokenUsage() *TokenUsageInfo { return s.tokenUsage }

// Append adds a tracked message to history and marks the session active.
// The Turn runner is the sole expected caller.
func (s *Session) Append(m TrackedMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.Append(m)
	s.LastActivityAt = time.Now().UTC()
}

// Snapshot returns a copy of the current history, safe for read-only
// consumers (rollout writer, compactor, approval bridge).
func (s *Session) Snapshot() []TrackedMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Snapshot()
}

// ReplaceHistory atomically swaps the session history. Reserved for the
// Compactor: ordinary turn execution must only ever Append.
func (s *Session) ReplaceHistory(messages []TrackedMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.Replace(messages)
}

// ValidateHistory checks the tool_use/tool_result pairing invariant.
func (s *Session) ValidateHistory() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Validate()
}

// HistoryLen returns the number of tracked messages.
func (s *Session) HistoryLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Len()
}

// BeginTurn increments the turn counter and reports whether MaxTurns has
// been reached (0 means unbounded, never reached).
func (s *Session) BeginTurn() (turnsUsed int, limitReached bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turnCount++
	if s.MaxTurns > 0 && s.turnCount > s.MaxTurns {
		return s.turnCount, true
	}
	return s.turnCount, false
}

// RecordRateLimit stores the most recent provider-reported rate-limit
// snapshot, surfaced to callers inspecting session state.
func (s *Session) RecordRateLimit(r RateLimitSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateLimit = r
}

// RateLimit returns the last recorded rate-limit snapshot.
func (s *Session) RateLimit() RateLimitSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rateLimit
}
