package transport

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEntry records one raw request or response payload exchanged with a
// provider. Distinct from the rollout log: this captures wire bytes for
// post-hoc debugging of provider behavior, not normalized conversation
// state.
type AuditEntry struct {
	Timestamp time.Time       `json:"ts"`
	Provider  string          `json:"provider"`
	SessionID string          `json:"session_id,omitempty"`
	Direction string          `json:"direction"` // "request" or "response"
	Payload   json.RawMessage `json:"payload"`
}

// AuditLog is an optional, off-by-default append-only JSONL log of raw
// provider wire traffic. Grounded on the teacher's pkg/proxy/trace.go
// TraceLogger: same rotate-on-size-threshold JSONL append pattern,
// narrowed to the provider boundary only.
type AuditLog struct {
	mu         sync.Mutex
	path       string
	maxBytes   int64
	maxBackups int
}

// NewAuditLog returns nil (a no-op logger) if path is empty, matching the
// teacher's NewTraceLogger "off by default" convention.
func NewAuditLog(path string, maxBytes int64, maxBackups int) *AuditLog {
	if path == "" {
		return nil
	}
	if maxBytes <= 0 {
		maxBytes = 25 * 1024 * 1024
	}
	if maxBackups <= 0 {
		maxBackups = 5
	}
	return &AuditLog{path: path, maxBytes: maxBytes, maxBackups: maxBackups}
}

// Record appends an entry. A nil *AuditLog is a safe no-op so callers
// never need to check whether auditing is enabled.
func (a *AuditLog) Record(provider, sessionID, direction string, payload any) {
	if a == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	entry := AuditEntry{
		Timestamp: time.Now().UTC(),
		Provider:  provider,
		SessionID: sessionID,
		Direction: direction,
		Payload:   raw,
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	_ = a.rotateIfNeeded()
	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return
	}
	defer f.Close()
	_ = json.NewEncoder(f).Encode(entry)
}

func (a *AuditLog) rotateIfNeeded() error {
	if a.maxBytes <= 0 {
		return nil
	}
	info, err := os.Stat(a.path)
	if err != nil {
		return nil
	}
	if info.Size() < a.maxBytes {
		return nil
	}
	return rotateFile(a.path, a.maxBackups)
}

// rotateFile shifts path.1..path.(n-1) up by one and moves path to
// path.1, adapted from the teacher's pkg/proxy/rotate.go.
func rotateFile(path string, maxBackups int) error {
	if maxBackups <= 0 {
		return nil
	}
	for i := maxBackups - 1; i >= 1; i-- {
		from := fmt.Sprintf("%s.%d", path, i)
		to := fmt.Sprintf("%s.%d", path, i+1)
		if _, err := os.Stat(from); err == nil {
			_ = os.Rename(from, to)
		}
	}
	if _, err := os.Stat(path); err == nil {
		_ = os.Rename(path, fmt.Sprintf("%s.1", path))
	}
	dir := filepath.Dir(path)
	_ = os.MkdirAll(dir, 0o700)
	return nil
}
