package rollout

import (
	"testing"

	"agentcore/pkg/session"
)

func TestStoreCreateWriterAndResume(t *testing.T) {
	base := t.TempDir()
	store, err := NewStore(base)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	sess := session.New("/work/proj", session.ProviderDescriptor{Provider: "mock", Model: "m1"}, 0, 0, false)
	w, err := store.CreateWriter(sess)
	if err != nil {
		t.Fatalf("CreateWriter: %v", err)
	}
	msg := session.TrackedMessage{
		ID:     "u1",
		Source: session.Source{Kind: session.SourceUser},
		Blocks: []session.ContentBlock{session.TextBlock("hi there")},
	}
	if err := w.Append(MessageItem(msg)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	recent, err := store.Recent("/work/proj")
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 1 || recent[0].SessionID != sess.ID {
		t.Fatalf("Recent = %+v, want one entry for %q", recent, sess.ID)
	}

	resumed, err := store.Resume("/work/proj", sess.ID)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed.ID != sess.ID {
		t.Fatalf("resumed.ID = %q, want %q", resumed.ID, sess.ID)
	}
	history := resumed.Snapshot()
	if len(history) != 1 || history[0].Blocks[0].Text != "hi there" {
		t.Fatalf("resumed history = %+v", history)
	}
}

func TestStoreCreateWriterSkipsDiskForEphemeralSession(t *testing.T) {
	base := t.TempDir()
	store, err := NewStore(base)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	sess := session.New("/work/proj", session.ProviderDescriptor{Provider: "mock", Model: "m1"}, 0, 0, true)
	w, err := store.CreateWriter(sess)
	if err != nil {
		t.Fatalf("CreateWriter: %v", err)
	}
	if err := w.Append(MessageItem(session.TrackedMessage{ID: "x"})); err != nil {
		t.Fatalf("append on ephemeral writer should still succeed (no-op): %v", err)
	}
	if w.Path() != "" {
		t.Fatalf("ephemeral writer Path() = %q, want empty", w.Path())
	}

	recent, err := store.Recent("/work/proj")
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 0 {
		t.Fatalf("Recent = %+v, want none (ephemeral session must not be indexed)", recent)
	}
}

func TestStoreResumeErrorsForUnknownSession(t *testing.T) {
	base := t.TempDir()
	store, err := NewStore(base)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := store.Resume("/work/proj", "nope"); err == nil {
		t.Fatalf("expected an error for an unindexed session")
	}
}
