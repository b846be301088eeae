package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const messageColumns = `id, msg_id, meta_msg_id, conversation_id, author_name, body, timestamp,
	kind, status, direction, media_url, media_mime_type, media_sha256, caption, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(r rowScanner) (*Message, error) {
	var m Message
	if err := r.Scan(&m.Seq, &m.MsgID, &m.MetaMsgID, &m.ConversationID, &m.AuthorName, &m.Body, &m.Timestamp,
		&m.Kind, &m.Status, &m.Direction, &m.MediaURL, &m.MediaMimeType, &m.MediaSHA256, &m.Caption,
		&m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

// FindMessage returns the message with the given external id, or nil if none exists.
func (db *DB) FindMessage(ctx context.Context, msgID string) (*Message, error) {
	m, err := scanMessage(db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE msg_id = ?`, msgID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// InsertMessage stores a new message. It returns ErrDuplicate when msg_id already exists;
// the stored record is left untouched in that case.
func (db *DB) InsertMessage(ctx context.Context, m *Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	if m.CreatedAt == 0 {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	res, err := db.ExecContext(ctx, `
		INSERT INTO messages (msg_id, meta_msg_id, conversation_id, author_name, body, timestamp,
			kind, status, direction, media_url, media_mime_type, media_sha256, caption, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.MsgID, m.MetaMsgID, m.ConversationID, m.AuthorName, m.Body, m.Timestamp,
		m.Kind, m.Status, m.Direction, m.MediaURL, m.MediaMimeType, m.MediaSHA256, m.Caption, m.CreatedAt, m.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("insert message %q: %w", m.MsgID, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("insert message %q: %w", m.MsgID, err)
	}
	if seq, err := res.LastInsertId(); err == nil {
		m.Seq = seq
	}
	return nil
}

// SetMessageStatus sets the delivery status of the first message whose msg_id or
// meta_msg_id equals target. It returns the updated message, or nil when nothing matched.
func (db *DB) SetMessageStatus(ctx context.Context, target string, status DeliveryStatus) (*Message, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("set status for %q: unsupported status %q", target, status)
	}
	m, err := scanMessage(db.QueryRowContext(ctx, `
		UPDATE messages SET status = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM messages WHERE msg_id = ? OR meta_msg_id = ? ORDER BY id LIMIT 1
		)
		RETURNING `+messageColumns,
		status, time.Now().UnixMilli(), target, target))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("set status for %q: %w", target, err)
	}
	return m, nil
}

// ListMessages returns one page of a conversation, newest first, using skip/limit pagination.
func (db *DB) ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ? OFFSET ?`, conversationID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

// RecentMessages returns the most recent messages across all conversations.
func (db *DB) RecentMessages(ctx context.Context, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

func collectMessages(rows *sql.Rows) ([]Message, error) {
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

// MessageCount returns the number of messages in a conversation, or in the whole
// store when conversationID is empty.
func (db *DB) MessageCount(ctx context.Context, conversationID string) (int64, error) {
	var count int64
	var err error
	if conversationID == "" {
		err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count)
	} else {
		err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, conversationID).Scan(&count)
	}
	return count, err
}
