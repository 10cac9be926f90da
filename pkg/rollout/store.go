package rollout

import (
	"fmt"
	"path/filepath"

	"agentcore/pkg/session"
)

// Store ties a rollout directory together with its resumption index: the
// one entry point callers (the CLI, the approval bridge) need for
// "persist this session" / "what did I last work on here".
type Store struct {
	sessionsDir string
	index       *Index
}

// NewStore builds a Store rooted at baseDir, with rollout files under
// baseDir/sessions and the resumption index under baseDir/index.
func NewStore(baseDir string) (*Store, error) {
	sessionsDir := filepath.Join(baseDir, "sessions")
	idx, err := NewIndex(baseDir)
	if err != nil {
		return nil, err
	}
	return &Store{sessionsDir: sessionsDir, index: idx}, nil
}

// Index exposes the underlying resumption index for direct queries.
func (s *Store) Index() *Index { return s.index }

// CreateWriter opens a rollout writer for sess, writes its SessionMeta as
// the first line, and records the session against its working directory
// in the resumption index. Ephemeral sessions never touch disk: the
// returned WriteCloser silently discards every write, per spec.md §3.
func (s *Store) CreateWriter(sess *session.Session) (WriteCloser, error) {
	if sess.Ephemeral {
		return noopWriter{}, nil
	}

	w, err := Create(s.sessionsDir, sess.ID)
	if err != nil {
		return nil, err
	}
	if err := w.Append(SessionMetaItem(SessionMeta{
		SessionID:  sess.ID,
		WorkingDir: sess.WorkingDir,
		Provider:   sess.Provider,
		CreatedAt:  sess.CreatedAt,
		Ephemeral:  sess.Ephemeral,
	})); err != nil {
		w.Close()
		return nil, fmt.Errorf("rollout: write session meta: %w", err)
	}
	if err := w.FlushTurn(); err != nil {
		w.Close()
		return nil, err
	}
	if err := s.index.RecordUsage(sess.WorkingDir, sess.ID, w.Path()); err != nil {
		return w, fmt.Errorf("rollout: record index usage: %w", err)
	}
	return w, nil
}

// Resume loads sessionID's rollout file (looked up via the resumption
// index for workingDir) and reconstructs its Session.
func (s *Store) Resume(workingDir, sessionID string) (*session.Session, error) {
	entries, err := s.index.SessionsForDir(workingDir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.SessionID == sessionID {
			items, err := Load(e.RolloutPath)
			if err != nil {
				return nil, err
			}
			return Rebuild(items)
		}
	}
	return nil, fmt.Errorf("rollout: no indexed session %q under %q", sessionID, workingDir)
}

// Recent returns workingDir's most recently used sessions, most recent
// first.
func (s *Store) Recent(workingDir string) ([]IndexEntry, error) {
	return s.index.SessionsForDir(workingDir)
}
