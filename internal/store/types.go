package store

import (
	"errors"
	"fmt"
)

// Kind is the content kind of a message.
type Kind string

const (
	KindText     Kind = "text"
	KindImage    Kind = "image"
	KindDocument Kind = "document"
	KindAudio    Kind = "audio"
	KindVideo    Kind = "video"
)

// Valid reports whether k is one of the known message kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindImage, KindDocument, KindAudio, KindVideo:
		return true
	}
	return false
}

// DeliveryStatus is the delivery state of a message.
type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
	StatusFailed    DeliveryStatus = "failed"
)

// Valid reports whether s is one of the known delivery states.
func (s DeliveryStatus) Valid() bool {
	switch s {
	case StatusSent, StatusDelivered, StatusRead, StatusFailed:
		return true
	}
	return false
}

// Direction tells whether a message was sent by the customer or by the business line.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionIncoming || d == DirectionOutgoing
}

// ParseKind converts a raw kind string. Empty input maps to KindText.
func ParseKind(s string) (Kind, error) {
	if s == "" {
		return KindText, nil
	}
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unsupported message kind %q", s)
	}
	return k, nil
}

// ParseStatus converts a raw delivery status string.
func ParseStatus(s string) (DeliveryStatus, error) {
	st := DeliveryStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("unsupported delivery status %q", s)
	}
	return st, nil
}

// Message is a single chat message, incoming or outgoing.
type Message struct {
	Seq            int64          `json:"seq"`
	MsgID          string         `json:"id"`
	MetaMsgID      string         `json:"meta_msg_id"`
	ConversationID string         `json:"wa_id"`
	AuthorName     string         `json:"profile_name"`
	Body           string         `json:"body"`
	Timestamp      int64          `json:"timestamp"` // unix ms
	Kind           Kind           `json:"type"`
	Status         DeliveryStatus `json:"status"`
	Direction      Direction      `json:"direction"`
	MediaURL       string         `json:"media_url,omitempty"`
	MediaMimeType  string         `json:"media_mime_type,omitempty"`
	MediaSHA256    string         `json:"media_sha256,omitempty"`
	Caption        string         `json:"caption,omitempty"`
	CreatedAt      int64          `json:"createdAt"`
	UpdatedAt      int64          `json:"updatedAt"`
}

// ErrInvalidMessage is wrapped by Validate failures.
var ErrInvalidMessage = errors.New("invalid message")

// Validate checks required fields and enumerated variants.
func (m *Message) Validate() error {
	switch {
	case m.MsgID == "":
		return fmt.Errorf("%w: empty id", ErrInvalidMessage)
	case m.ConversationID == "":
		return fmt.Errorf("%w: empty conversation id for %q", ErrInvalidMessage, m.MsgID)
	case !m.Kind.Valid():
		return fmt.Errorf("%w: kind %q for %q", ErrInvalidMessage, m.Kind, m.MsgID)
	case !m.Status.Valid():
		return fmt.Errorf("%w: status %q for %q", ErrInvalidMessage, m.Status, m.MsgID)
	case !m.Direction.Valid():
		return fmt.Errorf("%w: direction %q for %q", ErrInvalidMessage, m.Direction, m.MsgID)
	}
	return nil
}

// Contact is a known conversation participant.
type Contact struct {
	ConversationID string `json:"wa_id"`
	DisplayName    string `json:"profile_name"`
	LastSeenAt     int64  `json:"last_seen"` // unix ms
	AvatarURL      string `json:"profile_picture,omitempty"`
}

// ConversationAggregate is one row of the per-conversation message aggregation.
type ConversationAggregate struct {
	ConversationID       string
	LastMessageBody      string
	LastMessageTimestamp int64
	AuthorName           string
	UnreadCount          int
	MessageCount         int
}

// ConversationCount pairs a conversation with its number of stored messages.
type ConversationCount struct {
	ConversationID string `json:"_id"`
	Count          int64  `json:"count"`
	LastMessage    string `json:"lastMessage"`
	AuthorName     string `json:"profile_name"`
}
