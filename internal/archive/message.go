package archive

import (
	"time"

	"github.com/ajoshi-dev/huddle/internal/chat"
)

// Save upserts a merged event (idempotent on group + id). Events without a
// server-assigned id — ephemeral JOIN/LEAVE notices — are skipped.
func (db *DB) Save(group string, ev chat.Event) error {
	if ev.ID == nil || ev.Kind != chat.KindChat {
		return nil
	}
	var replySender, replyContent, replyTS string
	if ev.ReplyTo != nil {
		replySender = ev.ReplyTo.Sender
		replyContent = ev.ReplyTo.Content
		replyTS = ev.ReplyTo.Timestamp
	}
	_, err := db.Exec(`
		INSERT INTO messages (group_name, msg_id, sender, content, timestamp, reply_sender, reply_content, reply_timestamp, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(group_name, msg_id) DO UPDATE SET
			sender = excluded.sender,
			content = excluded.content,
			timestamp = excluded.timestamp`,
		group, *ev.ID, ev.Sender, ev.Content, ev.Timestamp, replySender, replyContent, replyTS, time.Now().UnixMilli())
	return err
}

// Remove deletes an archived event after a DELETE broadcast or an optimistic
// local removal.
func (db *DB) Remove(group string, id int64) error {
	_, err := db.Exec(`DELETE FROM messages WHERE group_name = ? AND msg_id = ?`, group, id)
	return err
}

// Recent returns up to limit archived events for a group, oldest first.
func (db *DB) Recent(group string, limit int) ([]chat.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT msg_id, sender, content, timestamp, reply_sender, reply_content, reply_timestamp
		FROM (
			SELECT * FROM messages
			WHERE group_name = ?
			ORDER BY archived_at DESC, msg_id DESC
			LIMIT ?
		)
		ORDER BY archived_at ASC, msg_id ASC`, group, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var events []chat.Event
	for rows.Next() {
		var (
			id                                 int64
			ev                                 chat.Event
			replySender, replyContent, replyTS string
		)
		if err := rows.Scan(&id, &ev.Sender, &ev.Content, &ev.Timestamp, &replySender, &replyContent, &replyTS); err != nil {
			return nil, err
		}
		ev.ID = &id
		ev.Kind = chat.KindChat
		if replySender != "" || replyContent != "" {
			ev.ReplyTo = &chat.ReplyRef{Sender: replySender, Content: replyContent, Timestamp: replyTS}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
