package store

import "context"

// AggregateConversations groups all messages by conversation. The "last" message of a
// group is the last one inserted (highest row id), not the chronologically newest.
// Unread counts only messages whose status is exactly 'delivered'.
// Rows are ordered by the last message timestamp, newest first.
func (db *DB) AggregateConversations(ctx context.Context) ([]ConversationAggregate, error) {
	rows, err := db.QueryContext(ctx, `
		WITH grouped AS (
			SELECT conversation_id,
				MAX(id) AS last_id,
				COUNT(*) AS message_count,
				SUM(CASE WHEN status = 'delivered' THEN 1 ELSE 0 END) AS unread_count
			FROM messages
			GROUP BY conversation_id
		)
		SELECT g.conversation_id, m.body, m.timestamp, m.author_name, g.unread_count, g.message_count
		FROM grouped g
		JOIN messages m ON m.id = g.last_id
		ORDER BY m.timestamp DESC, g.last_id DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []ConversationAggregate
	for rows.Next() {
		var a ConversationAggregate
		if err := rows.Scan(&a.ConversationID, &a.LastMessageBody, &a.LastMessageTimestamp,
			&a.AuthorName, &a.UnreadCount, &a.MessageCount); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ConversationCounts returns per-conversation message counts with the last inserted body.
func (db *DB) ConversationCounts(ctx context.Context) ([]ConversationCount, error) {
	aggs, err := db.AggregateConversations(ctx)
	if err != nil {
		return nil, err
	}
	counts := make([]ConversationCount, 0, len(aggs))
	for _, a := range aggs {
		counts = append(counts, ConversationCount{
			ConversationID: a.ConversationID,
			Count:          int64(a.MessageCount),
			LastMessage:    a.LastMessageBody,
			AuthorName:     a.AuthorName,
		})
	}
	return counts, nil
}
