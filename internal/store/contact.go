package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UpsertContact inserts or updates a contact keyed by conversation id. The avatar is only
// overwritten when the new value is non-empty.
func (db *DB) UpsertContact(ctx context.Context, c *Contact) error {
	if c.ConversationID == "" {
		return fmt.Errorf("upsert contact: empty conversation id")
	}
	now := time.Now().UnixMilli()
	if c.LastSeenAt == 0 {
		c.LastSeenAt = now
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO contacts (conversation_id, display_name, last_seen_at, avatar_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			display_name = excluded.display_name,
			last_seen_at = excluded.last_seen_at,
			avatar_url = CASE WHEN excluded.avatar_url != '' THEN excluded.avatar_url ELSE contacts.avatar_url END,
			updated_at = excluded.updated_at`,
		c.ConversationID, c.DisplayName, c.LastSeenAt, c.AvatarURL, now, now)
	if err != nil {
		return fmt.Errorf("upsert contact %q: %w", c.ConversationID, err)
	}
	return nil
}

// GetContact returns a contact by conversation id, or nil if unknown.
func (db *DB) GetContact(ctx context.Context, conversationID string) (*Contact, error) {
	var c Contact
	err := db.QueryRowContext(ctx,
		`SELECT conversation_id, display_name, last_seen_at, avatar_url FROM contacts WHERE conversation_id = ?`,
		conversationID).
		Scan(&c.ConversationID, &c.DisplayName, &c.LastSeenAt, &c.AvatarURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ContactCount returns the total number of contacts.
func (db *DB) ContactCount(ctx context.Context) (int64, error) {
	var count int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contacts`).Scan(&count)
	return count, err
}
