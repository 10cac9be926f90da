// Package rollout persists session history to a durable, line-delimited
// JSON log and reconstructs it for replay/resume, per spec.md §4.6 and
// §6's "Persistent rollout format". Grounded on the teacher's
// pkg/harness/logger.go (JSONL-per-record, timestamped, create-or-append
// file handling) and pkg/harness/replay.go (scan-and-reconstruct),
// generalized from per-turn event logs to the session-lifetime item log
// spec.md describes: {SessionMeta, TurnContext, TrackedMessage,
// Compacted} records instead of raw provider events.
package rollout

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"agentcore/pkg/session"
)

// ItemKind tags the payload carried by one rollout log line, mirroring
// spec.md §6's `{item: OneOf[SessionMeta, TurnContext, TrackedMessage,
// Compacted]}` line shape as a Go tagged sum (the same Kind-plus-typed-
// fields idiom as events.StreamEvent and session.ContentBlock).
type ItemKind int

const (
	ItemSessionMeta ItemKind = iota
	ItemTurnContext
	ItemMessage
	ItemCompacted
)

func (k ItemKind) String() string {
	switch k {
	case ItemSessionMeta:
		return "session_meta"
	case ItemTurnContext:
		return "turn_context"
	case ItemMessage:
		return "message"
	case ItemCompacted:
		return "compacted"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes ItemKind as its wire name rather than a raw int, so
// a rollout file stays human-inspectable.
func (k ItemKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON accepts the wire name produced by MarshalJSON.
func (k *ItemKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "session_meta":
		*k = ItemSessionMeta
	case "turn_context":
		*k = ItemTurnContext
	case "message":
		*k = ItemMessage
	case "compacted":
		*k = ItemCompacted
	default:
		return fmt.Errorf("rollout: unknown item kind %q", s)
	}
	return nil
}

// SessionMeta records identity and start-of-session context: the first
// line of every rollout file.
type SessionMeta struct {
	SessionID  string
	WorkingDir string
	Provider   session.ProviderDescriptor
	CreatedAt  time.Time
	Ephemeral  bool
}

// TurnContext marks the start of one turn, so replay can reconstruct
// turn boundaries without inferring them from message content.
type TurnContext struct {
	TurnIndex int
	MaxTurns  int
}

// Item is one line of a rollout log.
type Item struct {
	Kind      ItemKind
	Timestamp time.Time

	SessionMeta *SessionMeta           // ItemSessionMeta
	TurnContext *TurnContext           // ItemTurnContext
	Message     *session.TrackedMessage // ItemMessage
}

func SessionMetaItem(m SessionMeta) Item {
	return Item{Kind: ItemSessionMeta, Timestamp: time.Now().UTC(), SessionMeta: &m}
}

func TurnContextItem(t TurnContext) Item {
	return Item{Kind: ItemTurnContext, Timestamp: time.Now().UTC(), TurnContext: &t}
}

func MessageItem(m session.TrackedMessage) Item {
	return Item{Kind: ItemMessage, Timestamp: time.Now().UTC(), Message: &m}
}

func CompactedItem() Item {
	return Item{Kind: ItemCompacted, Timestamp: time.Now().UTC()}
}

// WriteCloser is the persistence surface a Store hands callers: either a
// real Writer, or noopWriter for an ephemeral session that spec.md §3
// says must never reach rollout storage. Giving ephemeral sessions the
// same interface means callers never special-case "is this persisted".
type WriteCloser interface {
	Append(item Item) error
	FlushTurn() error
	Close() error
	Path() string
}

// Writer appends Items to one session's rollout file. Not safe for
// concurrent use from multiple goroutines without external
// synchronization — matches the single-writer-per-session rule spec.md
// §5 applies to the session itself.
type Writer struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// FileName returns the rollout file name for a session ID.
func FileName(sessionID string) string {
	return "rollout-" + sessionID + ".jsonl"
}

// Create opens (creating parent directories and the file as needed) a
// rollout writer for sessionID under dir, appending to any existing
// content rather than truncating it — so a crashed-and-restarted process
// never loses a prior partial turn.
func Create(dir, sessionID string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("rollout: create dir: %w", err)
	}
	path := filepath.Join(dir, FileName(sessionID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("rollout: open %s: %w", path, err)
	}
	return &Writer{f: f, path: path}, nil
}

var _ WriteCloser = (*Writer)(nil)

// noopWriter discards everything: the WriteCloser handed to callers for
// an ephemeral session, whose history spec.md §3 requires never touch
// rollout storage.
type noopWriter struct{}

func (noopWriter) Append(Item) error { return nil }
func (noopWriter) FlushTurn() error  { return nil }
func (noopWriter) Close() error      { return nil }
func (noopWriter) Path() string      { return "" }

var _ WriteCloser = noopWriter{}

// Path returns the rollout file's location on disk.
func (w *Writer) Path() string { return w.path }

// Append writes one Item as a single JSON line. It does not fsync by
// itself; callers batch writes within a turn and call FlushTurn once the
// turn completes, per spec.md §4.6's "fsync-on-close at least between
// turns" crash-consistency rule.
func (w *Writer) Append(item Item) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("rollout: marshal item: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.f.Write(data); err != nil {
		return fmt.Errorf("rollout: write: %w", err)
	}
	return nil
}

// FlushTurn fsyncs the underlying file, establishing a crash-consistent
// boundary after a turn completes.
func (w *Writer) FlushTurn() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Sync()
}

// Close fsyncs and closes the rollout file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

// Load reads every Item from a rollout file in order, skipping malformed
// lines rather than failing the whole replay (a rollout file may end
// mid-line if the process died mid-write).
func Load(path string) ([]Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rollout: open %s: %w", path, err)
	}
	defer f.Close()

	var items []Item
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		var item Item
		if err := json.Unmarshal(scanner.Bytes(), &item); err != nil {
			continue
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("rollout: scan %s: %w", path, err)
	}
	return items, nil
}

// Rebuild reconstructs a Session from a sequence of rollout Items: the
// first SessionMeta seeds identity/provider/workdir, every Message is
// appended in order, and a Compacted item is a no-op marker (the
// messages following it already reflect the post-compaction history,
// since the Compactor's ReplaceHistory + a MessageItem-per-survivor is
// what produced them). Returns an error if no SessionMeta item is found.
func Rebuild(items []Item) (*session.Session, error) {
	var meta *SessionMeta
	for _, it := range items {
		if it.Kind == ItemSessionMeta && it.SessionMeta != nil {
			meta = it.SessionMeta
			break
		}
	}
	if meta == nil {
		return nil, fmt.Errorf("rollout: no session_meta item found")
	}

	sess := session.New(meta.WorkingDir, meta.Provider, 0, 0, meta.Ephemeral)
	sess.ID = meta.SessionID
	sess.CreatedAt = meta.CreatedAt

	for _, it := range items {
		if it.Kind == ItemMessage && it.Message != nil {
			sess.Append(*it.Message)
		}
	}
	return sess, nil
}
