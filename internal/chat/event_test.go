package chat

import (
	"strings"
	"testing"
	"time"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
		check   func(t *testing.T, e Event)
	}{
		{
			name:    "chat with id",
			payload: `{"id":7,"sender":"alice","content":"hi","type":"CHAT","timestamp":"2026-08-29T10:00:00Z"}`,
			check: func(t *testing.T, e Event) {
				if e.ID == nil || *e.ID != 7 {
					t.Errorf("ID = %v, want 7", e.ID)
				}
				if e.Kind != KindChat || e.Sender != "alice" {
					t.Errorf("got %+v", e)
				}
			},
		},
		{
			name:    "join notice without id",
			payload: `{"sender":"bob","content":"bob joined the group","type":"JOIN"}`,
			check: func(t *testing.T, e Event) {
				if e.ID != nil {
					t.Errorf("ID = %v, want nil", e.ID)
				}
				if e.Kind != KindJoin {
					t.Errorf("Kind = %q, want JOIN", e.Kind)
				}
			},
		},
		{
			name:    "reply snapshot on the wire",
			payload: `{"sender":"bob","content":"sure","type":"CHAT","replyTo":{"sender":"alice","content":"lunch?","timestamp":"2026-08-29T09:58:00Z"}}`,
			check: func(t *testing.T, e Event) {
				if e.ReplyTo == nil {
					t.Fatal("ReplyTo = nil")
				}
				if e.ReplyTo.Sender != "alice" || e.ReplyTo.Content != "lunch?" {
					t.Errorf("ReplyTo = %+v", e.ReplyTo)
				}
			},
		},
		{
			name:    "delete carries target id",
			payload: `{"id":42,"sender":"alice","content":"Message deleted","type":"DELETE"}`,
			check: func(t *testing.T, e Event) {
				if e.Kind != KindDelete || e.ID == nil || *e.ID != 42 {
					t.Errorf("got %+v", e)
				}
			},
		},
		{name: "not json", payload: `garbage`, wantErr: true},
		{name: "unknown type", payload: `{"sender":"x","type":"NUDGE"}`, wantErr: true},
		{name: "missing type", payload: `{"sender":"x","content":"hi"}`, wantErr: true},
		{name: "array payload", payload: `[1,2,3]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Decode([]byte(tt.payload))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Decode() = %+v, want error", e)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			tt.check(t, e)
		})
	}
}

func TestEncodeOmitsAbsentFields(t *testing.T) {
	data, err := Encode(Event{Sender: "alice", Content: "hi", Kind: KindChat})
	if err != nil {
		t.Fatal(err)
	}
	for _, forbidden := range []string{`"id"`, `"replyTo"`, `"timestamp"`} {
		if strings.Contains(string(data), forbidden) {
			t.Errorf("encoded payload contains %s: %s", forbidden, data)
		}
	}
}

func TestReplySnapshotIsCopy(t *testing.T) {
	orig := Event{Sender: "alice", Content: "hi", Kind: KindChat, Timestamp: "2026-08-29T10:00:00Z"}
	snap := orig.ReplySnapshot()

	orig.Content = "mutated"

	if snap.Content != "hi" || snap.Sender != "alice" || snap.Timestamp != "2026-08-29T10:00:00Z" {
		t.Errorf("snapshot = %+v, want original values", snap)
	}
}

func TestNotices(t *testing.T) {
	join := JoinNotice("carol")
	if join.Kind != KindJoin || join.Content != "carol joined the group" || join.Sender != "carol" {
		t.Errorf("JoinNotice = %+v", join)
	}
	if join.ID != nil {
		t.Error("JoinNotice should not carry an id")
	}

	leave := LeaveNotice("carol")
	if leave.Kind != KindLeave || leave.Content != "carol left the group" {
		t.Errorf("LeaveNotice = %+v", leave)
	}
}

func TestGroupExpiresInMinutes(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		expiresAt string
		want      float64
	}{
		{"thirty minutes out", "2026-08-29T12:30:00Z", 30},
		{"already expired", "2026-08-29T11:00:00Z", 0},
		{"no zone offset", "2026-08-29T13:00:00", 60},
		{"empty", "", 0},
		{"unparseable", "next tuesday", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := Group{ExpiresAt: tt.expiresAt}
			got := g.ExpiresInMinutes(now)
			if diff := got - tt.want; diff > 0.001 || diff < -0.001 {
				t.Errorf("ExpiresInMinutes() = %v, want %v", got, tt.want)
			}
		})
	}
}
