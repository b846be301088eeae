// Package webhook normalizes inbound WhatsApp Business webhook payloads into typed
// ingestion events.
package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Metadata identifies the business line that received (or sent) the messages.
type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// Contact is an entry of the payload's contact directory.
type Contact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// Media holds the fields shared by the kind-specific media objects.
type Media struct {
	ID       string `json:"id"`
	Link     string `json:"link"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256"`
	Caption  string `json:"caption"`
	Filename string `json:"filename"`
}

// Text is the body of a text message.
type Text struct {
	Body string `json:"body"`
}

// Record is one raw entry of value.messages.
type Record struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	Timestamp Timestamp `json:"timestamp"`
	Type      string    `json:"type"`
	Text      *Text     `json:"text"`
	Image     *Media    `json:"image"`
	Document  *Media    `json:"document"`
	Audio     *Media    `json:"audio"`
	Video     *Media    `json:"video"`
}

// StatusRecord is one raw entry of value.statuses.
type StatusRecord struct {
	ID          string    `json:"id"`
	MetaMsgID   string    `json:"meta_msg_id"`
	Status      string    `json:"status"`
	Timestamp   Timestamp `json:"timestamp"`
	RecipientID string    `json:"recipient_id"`
}

// Timestamp is a unix-seconds value that may be encoded as a JSON string or number.
type Timestamp string

// UnmarshalJSON accepts "1700000000", 1700000000 and null.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Timestamp(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	*t = Timestamp(n.String())
	return nil
}

// UnixMilli converts the seconds value to unix milliseconds.
func (t Timestamp) UnixMilli() (int64, error) {
	if t == "" {
		return 0, fmt.Errorf("missing timestamp")
	}
	secs, err := strconv.ParseInt(string(t), 10, 64)
	if err != nil || secs > math.MaxInt64/1000 || secs < math.MinInt64/1000 {
		return 0, fmt.Errorf("invalid timestamp %q", string(t))
	}
	return secs * 1000, nil
}

type webhookBody struct {
	Entry []struct {
		Changes []struct {
			Value *changeValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type changeValue struct {
	Metadata *Metadata         `json:"metadata"`
	Contacts []Contact         `json:"contacts"`
	Messages []json.RawMessage `json:"messages"`
	Statuses []json.RawMessage `json:"statuses"`
}
