package chat

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind is the closed set of event types carried on a group channel.
type Kind string

const (
	KindChat   Kind = "CHAT"
	KindJoin   Kind = "JOIN"
	KindLeave  Kind = "LEAVE"
	KindDelete Kind = "DELETE"
)

// Valid reports whether k is one of the known event kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindChat, KindJoin, KindLeave, KindDelete:
		return true
	}
	return false
}

// ReplyRef is an immutable quoted excerpt of a prior event, captured at send
// time. It is a snapshot, not a reference: deleting the original event later
// does not invalidate it.
type ReplyRef struct {
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Event is the atomic unit flowing through a group channel.
//
// ID is assigned by the server on persistence and is absent for events that
// are never persisted (JOIN/LEAVE notices). For DELETE events the ID field
// carries the id of the event being deleted.
type Event struct {
	ID        *int64    `json:"id,omitempty"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Kind      Kind      `json:"type"`
	Timestamp string    `json:"timestamp,omitempty"`
	ReplyTo   *ReplyRef `json:"replyTo,omitempty"`
}

// HasID reports whether the event carries a server-assigned id.
func (e Event) HasID() bool {
	return e.ID != nil
}

// ReplySnapshot captures the quotable fields of e as an immutable snapshot.
func (e Event) ReplySnapshot() *ReplyRef {
	return &ReplyRef{
		Sender:    e.Sender,
		Content:   e.Content,
		Timestamp: e.Timestamp,
	}
}

// NewChat builds a CHAT event from the local user, stamped with the current
// UTC instant. reply may be nil.
func NewChat(sender, content string, reply *ReplyRef) Event {
	return Event{
		Sender:    sender,
		Content:   content,
		Kind:      KindChat,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		ReplyTo:   reply,
	}
}

// JoinNotice builds the ephemeral system notice sent once per physical join.
func JoinNotice(user string) Event {
	return Event{
		Sender:    user,
		Content:   fmt.Sprintf("%s joined the group", user),
		Kind:      KindJoin,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// LeaveNotice builds the ephemeral system notice sent before disconnecting.
func LeaveNotice(user string) Event {
	return Event{
		Sender:    user,
		Content:   fmt.Sprintf("%s left the group", user),
		Kind:      KindLeave,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// Decode parses a wire payload into an Event. Payloads with an unknown or
// missing type are rejected so a bad frame never reaches the store.
func Decode(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if !e.Kind.Valid() {
		return Event{}, fmt.Errorf("decode event: unknown type %q", e.Kind)
	}
	return e, nil
}

// Encode serializes the event for the wire.
func Encode(e Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return data, nil
}
