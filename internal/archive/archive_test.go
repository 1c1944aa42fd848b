package archive

import (
	"path/filepath"
	"testing"

	"github.com/ajoshi-dev/huddle/internal/chat"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func id(v int64) *int64 { return &v }

func TestSaveAndRecent(t *testing.T) {
	db := testDB(t)

	events := []chat.Event{
		{ID: id(1), Sender: "alice", Content: "first", Kind: chat.KindChat, Timestamp: "2026-08-29T10:00:00Z"},
		{ID: id(2), Sender: "bob", Content: "second", Kind: chat.KindChat, Timestamp: "2026-08-29T10:01:00Z"},
	}
	for _, ev := range events {
		if err := db.Save("standup", ev); err != nil {
			t.Fatal(err)
		}
	}

	got, err := db.Recent("standup", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].Content != "first" || got[1].Content != "second" {
		t.Errorf("order = [%s, %s], want oldest first", got[0].Content, got[1].Content)
	}
}

func TestSaveIdempotent(t *testing.T) {
	db := testDB(t)

	ev := chat.Event{ID: id(5), Sender: "alice", Content: "v1", Kind: chat.KindChat}
	if err := db.Save("standup", ev); err != nil {
		t.Fatal(err)
	}
	ev.Content = "v2"
	if err := db.Save("standup", ev); err != nil {
		t.Fatal(err)
	}

	got, err := db.Recent("standup", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
	if got[0].Content != "v2" {
		t.Errorf("content = %q, want v2 (upsert)", got[0].Content)
	}
}

func TestSaveSkipsEphemeral(t *testing.T) {
	db := testDB(t)

	if err := db.Save("standup", chat.JoinNotice("carol")); err != nil {
		t.Fatal(err)
	}
	if err := db.Save("standup", chat.Event{Sender: "alice", Content: "no id", Kind: chat.KindChat}); err != nil {
		t.Fatal(err)
	}

	got, err := db.Recent("standup", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("got %d events, want 0", len(got))
	}
}

func TestRemove(t *testing.T) {
	db := testDB(t)

	_ = db.Save("standup", chat.Event{ID: id(7), Sender: "alice", Content: "doomed", Kind: chat.KindChat})
	if err := db.Remove("standup", 7); err != nil {
		t.Fatal(err)
	}

	got, err := db.Recent("standup", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("got %d events after remove, want 0", len(got))
	}

	// Removing an absent id is a no-op, not an error.
	if err := db.Remove("standup", 999); err != nil {
		t.Errorf("Remove(absent) error = %v", err)
	}
}

func TestReplySnapshotSurvivesArchive(t *testing.T) {
	db := testDB(t)

	ev := chat.Event{
		ID: id(8), Sender: "bob", Content: "sure", Kind: chat.KindChat,
		ReplyTo: &chat.ReplyRef{Sender: "alice", Content: "lunch?", Timestamp: "2026-08-29T09:58:00Z"},
	}
	if err := db.Save("standup", ev); err != nil {
		t.Fatal(err)
	}

	got, err := db.Recent("standup", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ReplyTo == nil {
		t.Fatalf("got %+v, want one event with reply", got)
	}
	if got[0].ReplyTo.Sender != "alice" || got[0].ReplyTo.Content != "lunch?" {
		t.Errorf("reply = %+v", got[0].ReplyTo)
	}
}

func TestGroupsAreIsolated(t *testing.T) {
	db := testDB(t)

	_ = db.Save("standup", chat.Event{ID: id(1), Sender: "alice", Content: "a", Kind: chat.KindChat})
	_ = db.Save("retro", chat.Event{ID: id(1), Sender: "bob", Content: "b", Kind: chat.KindChat})

	got, err := db.Recent("standup", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Sender != "alice" {
		t.Errorf("got %+v, want only standup's event", got)
	}
}
