package webhook

import (
	"encoding/json"
	"fmt"

	"github.com/matheus3301/inbox/internal/store"
)

// Envelope is the outer shape an ingested payload arrived in.
type Envelope int

const (
	// EnvelopeUnknown means the expected entry/changes/value structure was absent.
	EnvelopeUnknown Envelope = iota
	// EnvelopeDirect is a bare webhook body with entry[0].changes[0].value.
	EnvelopeDirect
	// EnvelopeWrapped is a webhook body nested under a metaData key.
	EnvelopeWrapped
)

func (e Envelope) String() string {
	switch e {
	case EnvelopeDirect:
		return "direct"
	case EnvelopeWrapped:
		return "wrapped"
	default:
		return "unknown"
	}
}

const (
	wrapperKey          = "metaData"
	unknownConversation = "unknown"
	unknownAuthor       = "Unknown User"
	mediaPlaceholder    = "Media message"
)

// Event is a normalized sub-event of a payload.
type Event interface {
	event()
}

// MessageReceived carries one raw message with its matching contact (nil when the
// contact directory has no entry for the sender).
type MessageReceived struct {
	Index          int
	Record         Record
	Contact        *Contact
	BusinessLine   string
	FirstContactID string
}

// StatusChanged requests a delivery status transition for a message id.
type StatusChanged struct {
	Index    int
	TargetID string
	Status   string
}

// MalformedRecord stands in for a message or status entry that could not be decoded.
type MalformedRecord struct {
	Index   int
	Section string
	Err     error
}

func (MessageReceived) event() {}
func (StatusChanged) event()   {}
func (MalformedRecord) event() {}

// Batch is the normalized form of one payload.
type Batch struct {
	Envelope      Envelope
	BusinessLine  string
	PhoneNumberID string
	Contacts      []Contact
	Events        []Event
}

// Empty reports whether the batch has nothing to apply.
func (b *Batch) Empty() bool {
	return len(b.Events) == 0
}

// Parse normalizes a raw payload. It fails only when raw is not a JSON document; a
// payload without the expected nested structure yields an empty batch.
func Parse(raw []byte) (*Batch, error) {
	var top any
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	obj, ok := top.(map[string]any)
	if !ok {
		return &Batch{Envelope: EnvelopeUnknown}, nil
	}

	env, body := unwrap(obj, raw)
	if env == EnvelopeUnknown {
		return &Batch{Envelope: EnvelopeUnknown}, nil
	}

	var wb webhookBody
	if err := json.Unmarshal(body, &wb); err != nil {
		return &Batch{Envelope: EnvelopeUnknown}, nil
	}
	if len(wb.Entry) == 0 || len(wb.Entry[0].Changes) == 0 || wb.Entry[0].Changes[0].Value == nil {
		return &Batch{Envelope: EnvelopeUnknown}, nil
	}
	return normalize(env, wb.Entry[0].Changes[0].Value), nil
}

// unwrap picks the envelope convention and returns the bytes holding the webhook body.
func unwrap(obj map[string]any, raw []byte) (Envelope, []byte) {
	if inner, ok := obj[wrapperKey].(map[string]any); ok {
		if _, hasEntry := inner["entry"]; !hasEntry {
			return EnvelopeUnknown, nil
		}
		b, err := json.Marshal(inner)
		if err != nil {
			return EnvelopeUnknown, nil
		}
		return EnvelopeWrapped, b
	}
	if _, hasEntry := obj["entry"]; hasEntry {
		return EnvelopeDirect, raw
	}
	return EnvelopeUnknown, nil
}

func normalize(env Envelope, v *changeValue) *Batch {
	b := &Batch{Envelope: env, Contacts: v.Contacts}
	if v.Metadata != nil {
		b.BusinessLine = v.Metadata.DisplayPhoneNumber
		b.PhoneNumberID = v.Metadata.PhoneNumberID
	}
	var firstContact string
	if len(v.Contacts) > 0 {
		firstContact = v.Contacts[0].WaID
	}

	for i, rawMsg := range v.Messages {
		var rec Record
		if err := json.Unmarshal(rawMsg, &rec); err != nil {
			b.Events = append(b.Events, MalformedRecord{Index: i, Section: "messages", Err: err})
			continue
		}
		b.Events = append(b.Events, MessageReceived{
			Index:          i,
			Record:         rec,
			Contact:        findContact(v.Contacts, rec.From),
			BusinessLine:   b.BusinessLine,
			FirstContactID: firstContact,
		})
	}

	for i, rawStatus := range v.Statuses {
		var st StatusRecord
		if err := json.Unmarshal(rawStatus, &st); err != nil {
			b.Events = append(b.Events, MalformedRecord{Index: i, Section: "statuses", Err: err})
			continue
		}
		b.Events = append(b.Events, StatusChanged{Index: i, TargetID: st.ID, Status: st.Status})
	}
	return b
}

func findContact(contacts []Contact, waID string) *Contact {
	for i := range contacts {
		if contacts[i].WaID == waID {
			return &contacts[i]
		}
	}
	return nil
}

// Outgoing reports whether the message was sent from the business line itself.
func (e MessageReceived) Outgoing() bool {
	return e.BusinessLine != "" && e.Record.From == e.BusinessLine
}

// ConversationID is the customer-facing thread id: the first contact of the payload for
// outgoing messages, the sender otherwise.
func (e MessageReceived) ConversationID() string {
	if e.Outgoing() {
		if e.FirstContactID != "" {
			return e.FirstContactID
		}
		return unknownConversation
	}
	return e.Record.From
}

// ToMessage builds a validated store message from the raw record.
func (e MessageReceived) ToMessage() (*store.Message, error) {
	r := e.Record
	ts, err := r.Timestamp.UnixMilli()
	if err != nil {
		return nil, fmt.Errorf("message %q: %w", r.ID, err)
	}
	kind, err := store.ParseKind(r.Type)
	if err != nil {
		return nil, fmt.Errorf("message %q: %w", r.ID, err)
	}

	author := unknownAuthor
	if e.Contact != nil && e.Contact.Profile.Name != "" {
		author = e.Contact.Profile.Name
	}
	direction := store.DirectionIncoming
	if e.Outgoing() {
		direction = store.DirectionOutgoing
	}

	m := &store.Message{
		MsgID:          r.ID,
		MetaMsgID:      r.ID,
		ConversationID: e.ConversationID(),
		AuthorName:     author,
		Body:           r.body(),
		Timestamp:      ts,
		Kind:           kind,
		Status:         store.StatusSent,
		Direction:      direction,
		MediaURL:       r.mediaField(func(m *Media) string { return m.Link }),
		MediaMimeType:  r.mediaField(func(m *Media) string { return m.MimeType }),
		MediaSHA256:    r.mediaField(func(m *Media) string { return m.SHA256 }),
		Caption:        r.caption(),
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// body applies the fallback order text -> image caption -> document filename -> placeholder.
func (r Record) body() string {
	switch {
	case r.Text != nil && r.Text.Body != "":
		return r.Text.Body
	case r.Image != nil && r.Image.Caption != "":
		return r.Image.Caption
	case r.Document != nil && r.Document.Filename != "":
		return r.Document.Filename
	}
	return mediaPlaceholder
}

func (r Record) caption() string {
	if r.Image != nil && r.Image.Caption != "" {
		return r.Image.Caption
	}
	if r.Video != nil {
		return r.Video.Caption
	}
	return ""
}

func (r Record) mediaField(get func(*Media) string) string {
	for _, m := range []*Media{r.Image, r.Document, r.Audio, r.Video} {
		if m == nil {
			continue
		}
		if v := get(m); v != "" {
			return v
		}
	}
	return ""
}
