// Package conversation derives the per-contact conversation list from stored messages.
package conversation

import (
	"context"
	"fmt"

	"github.com/matheus3301/inbox/internal/store"
)

// Summary is one row of the conversation list. It is computed on every request and never
// persisted.
type Summary struct {
	ConversationID       string `json:"_id"`
	LastMessageBody      string `json:"lastMessage"`
	LastMessageTimestamp int64  `json:"lastMessageTime"`
	DisplayName          string `json:"profile_name"`
	UnreadCount          int    `json:"unreadCount"`
	MessageCount         int    `json:"messageCount"`
}

// Source provides the grouped message aggregation.
type Source interface {
	AggregateConversations(ctx context.Context) ([]store.ConversationAggregate, error)
}

// Materializer recomputes the conversation list from the store.
type Materializer struct {
	src Source
}

// NewMaterializer creates a materializer over src.
func NewMaterializer(src Source) *Materializer {
	return &Materializer{src: src}
}

// List returns one summary per conversation, newest last message first. The "last"
// message is the most recently stored one, and only delivered messages count as unread.
func (m *Materializer) List(ctx context.Context) ([]Summary, error) {
	aggs, err := m.src.AggregateConversations(ctx)
	if err != nil {
		return nil, fmt.Errorf("aggregate conversations: %w", err)
	}
	out := make([]Summary, 0, len(aggs))
	for _, a := range aggs {
		out = append(out, Summary{
			ConversationID:       a.ConversationID,
			LastMessageBody:      a.LastMessageBody,
			LastMessageTimestamp: a.LastMessageTimestamp,
			DisplayName:          a.AuthorName,
			UnreadCount:          a.UnreadCount,
			MessageCount:         a.MessageCount,
		})
	}
	return out, nil
}
