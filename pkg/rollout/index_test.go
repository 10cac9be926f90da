package rollout

import (
	"os"
	"path/filepath"
	"testing"
)

func touchFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("touchFile %s: %v", path, err)
	}
}

func TestIndexRecordUsageAndSessionsForDirOrdersMostRecentFirst(t *testing.T) {
	base := t.TempDir()
	idx, err := NewIndex(base)
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}

	rollout1 := filepath.Join(base, "r1.jsonl")
	rollout2 := filepath.Join(base, "r2.jsonl")
	touchFile(t, rollout1)
	touchFile(t, rollout2)

	if err := idx.RecordUsage("/work/proj", "sess-1", rollout1); err != nil {
		t.Fatalf("RecordUsage 1: %v", err)
	}
	if err := idx.RecordUsage("/work/proj", "sess-2", rollout2); err != nil {
		t.Fatalf("RecordUsage 2: %v", err)
	}

	entries, err := idx.SessionsForDir("/work/proj")
	if err != nil {
		t.Fatalf("SessionsForDir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries len = %d, want 2", len(entries))
	}
	if entries[0].SessionID != "sess-2" {
		t.Fatalf("entries[0].SessionID = %q, want sess-2 (most recently used first)", entries[0].SessionID)
	}
}

func TestIndexRecordUsageUpsertsExistingSession(t *testing.T) {
	base := t.TempDir()
	idx, err := NewIndex(base)
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	rollout := filepath.Join(base, "r.jsonl")
	touchFile(t, rollout)

	if err := idx.RecordUsage("/work", "sess-1", rollout); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	if err := idx.RecordUsage("/work", "sess-1", rollout); err != nil {
		t.Fatalf("RecordUsage again: %v", err)
	}

	entries, err := idx.SessionsForDir("/work")
	if err != nil {
		t.Fatalf("SessionsForDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries len = %d, want 1 (upsert, not append)", len(entries))
	}
}

func TestIndexSessionsForDirPrunesMissingRolloutFiles(t *testing.T) {
	base := t.TempDir()
	idx, err := NewIndex(base)
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	missing := filepath.Join(base, "does-not-exist.jsonl")

	if err := idx.RecordUsage("/work", "sess-1", missing); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}

	entries, err := idx.SessionsForDir("/work")
	if err != nil {
		t.Fatalf("SessionsForDir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("entries len = %d, want 0 (dangling rollout path pruned)", len(entries))
	}
}

func TestIndexSessionsForDirEmptyWhenNeverRecorded(t *testing.T) {
	base := t.TempDir()
	idx, err := NewIndex(base)
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}

	entries, err := idx.SessionsForDir("/never/seen")
	if err != nil {
		t.Fatalf("SessionsForDir: %v", err)
	}
	if entries != nil {
		t.Fatalf("entries = %+v, want nil", entries)
	}
}

func TestIndexCapsEntriesPerDirectory(t *testing.T) {
	base := t.TempDir()
	idx, err := NewIndex(base)
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}

	for i := 0; i < MaxIndexedSessionsPerDir+5; i++ {
		p := filepath.Join(base, "r.jsonl")
		touchFile(t, p)
		if err := idx.RecordUsage("/work", sessionIDFor(i), p); err != nil {
			t.Fatalf("RecordUsage %d: %v", i, err)
		}
	}

	entries, err := idx.SessionsForDir("/work")
	if err != nil {
		t.Fatalf("SessionsForDir: %v", err)
	}
	if len(entries) != MaxIndexedSessionsPerDir {
		t.Fatalf("entries len = %d, want %d", len(entries), MaxIndexedSessionsPerDir)
	}
}

func sessionIDFor(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	return "sess-" + string(letters[i%len(letters)]) + string(rune('0'+i/len(letters)))
}
