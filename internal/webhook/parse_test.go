package webhook

import (
	"strings"
	"testing"

	"github.com/matheus3301/inbox/internal/store"
)

const directPayload = `{
  "payload_type": "whatsapp_webhook",
  "entry": [{
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "metadata": {"display_phone_number": "918329446654", "phone_number_id": "629305560276479"},
        "contacts": [{"profile": {"name": "Ravi Kumar"}, "wa_id": "919937320320"}],
        "messages": [{
          "from": "919937320320",
          "id": "wamid.in1",
          "timestamp": "1754400000",
          "text": {"body": "Hi, I'd like to know more."},
          "type": "text"
        }]
      }
    }]
  }]
}`

func messageEvents(t *testing.T, b *Batch) []MessageReceived {
	t.Helper()
	var out []MessageReceived
	for _, ev := range b.Events {
		if m, ok := ev.(MessageReceived); ok {
			out = append(out, m)
		}
	}
	return out
}

func TestParseDirectEnvelope(t *testing.T) {
	b, err := Parse([]byte(directPayload))
	if err != nil {
		t.Fatal(err)
	}
	if b.Envelope != EnvelopeDirect {
		t.Errorf("envelope = %s, want direct", b.Envelope)
	}
	if b.BusinessLine != "918329446654" || b.PhoneNumberID != "629305560276479" {
		t.Errorf("metadata = %q/%q", b.BusinessLine, b.PhoneNumberID)
	}
	msgs := messageEvents(t, b)
	if len(msgs) != 1 {
		t.Fatalf("got %d message events, want 1", len(msgs))
	}
	if msgs[0].Contact == nil || msgs[0].Contact.Profile.Name != "Ravi Kumar" {
		t.Errorf("contact = %+v, want Ravi Kumar", msgs[0].Contact)
	}

	m, err := msgs[0].ToMessage()
	if err != nil {
		t.Fatal(err)
	}
	if m.ConversationID != "919937320320" || m.Direction != store.DirectionIncoming {
		t.Errorf("conversation=%q direction=%q, want sender/incoming", m.ConversationID, m.Direction)
	}
	if m.Timestamp != 1754400000000 {
		t.Errorf("timestamp = %d, want ms", m.Timestamp)
	}
	if m.AuthorName != "Ravi Kumar" || m.Status != store.StatusSent || m.MetaMsgID != "wamid.in1" {
		t.Errorf("got %+v", m)
	}
}

func TestParseWrappedEnvelope(t *testing.T) {
	raw := `{"_id": "x", "metaData": ` + directPayload + `}`
	b, err := Parse([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	if b.Envelope != EnvelopeWrapped {
		t.Errorf("envelope = %s, want wrapped", b.Envelope)
	}
	if len(messageEvents(t, b)) != 1 {
		t.Errorf("wrapped payload should yield one message, got %d events", len(b.Events))
	}
}

func TestParseUnknownShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty object", `{}`},
		{"array", `[1, 2]`},
		{"no changes", `{"entry": [{}]}`},
		{"empty entry", `{"entry": []}`},
		{"entry wrong type", `{"entry": "nope"}`},
		{"wrapper without entry", `{"metaData": {"foo": 1}}`},
		{"no value", `{"entry": [{"changes": [{"field": "messages"}]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Parse([]byte(tt.raw))
			if err != nil {
				t.Fatalf("Parse() error = %v, want nil", err)
			}
			if b.Envelope != EnvelopeUnknown || !b.Empty() {
				t.Errorf("got envelope=%s events=%d, want unknown/empty", b.Envelope, len(b.Events))
			}
		})
	}
}

func TestParseRejectsNonJSON(t *testing.T) {
	if _, err := Parse([]byte(`{not json`)); err == nil {
		t.Error("expected error for malformed payload")
	}
}

func TestOutgoingUsesFirstContact(t *testing.T) {
	raw := `{"entry":[{"changes":[{"value":{
		"metadata": {"display_phone_number": "B"},
		"contacts": [{"wa_id": "C1", "profile": {"name": "Customer"}}],
		"messages": [{"from": "B", "id": "out1", "timestamp": 1700000000, "type": "text", "text": {"body": "hello"}}]
	}}]}]}`
	b, err := Parse([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	msgs := messageEvents(t, b)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	m, err := msgs[0].ToMessage()
	if err != nil {
		t.Fatal(err)
	}
	if m.ConversationID != "C1" || m.Direction != store.DirectionOutgoing {
		t.Errorf("conversation=%q direction=%q, want C1/outgoing", m.ConversationID, m.Direction)
	}
	// The sender (the business line) is not in the contact directory.
	if m.AuthorName != "Unknown User" {
		t.Errorf("author = %q, want Unknown User", m.AuthorName)
	}
}

func TestOutgoingWithoutContacts(t *testing.T) {
	e := MessageReceived{
		Record:       Record{ID: "x", From: "B", Timestamp: "1", Type: "text"},
		BusinessLine: "B",
	}
	if got := e.ConversationID(); got != "unknown" {
		t.Errorf("ConversationID() = %q, want unknown", got)
	}
}

func TestEmptyBusinessLineNeverOutgoing(t *testing.T) {
	e := MessageReceived{Record: Record{ID: "x", From: "", Timestamp: "1"}}
	if e.Outgoing() {
		t.Error("empty sender and empty business line must not be outgoing")
	}
}

func TestBodyFallback(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		want string
	}{
		{"text", Record{Text: &Text{Body: "hi"}}, "hi"},
		{"image caption", Record{Image: &Media{Caption: "look"}}, "look"},
		{"document filename", Record{Document: &Media{Filename: "invoice.pdf"}}, "invoice.pdf"},
		{"empty text falls through", Record{Text: &Text{}, Image: &Media{Caption: "cap"}}, "cap"},
		{"audio only", Record{Audio: &Media{ID: "a1"}}, "Media message"},
		{"nothing", Record{}, "Media message"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.body(); got != tt.want {
				t.Errorf("body() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMediaFields(t *testing.T) {
	e := MessageReceived{Record: Record{
		ID: "v1", From: "C", Timestamp: "10", Type: "video",
		Video: &Media{Link: "https://cdn/v.mp4", MimeType: "video/mp4", SHA256: "abc", Caption: "clip"},
	}}
	m, err := e.ToMessage()
	if err != nil {
		t.Fatal(err)
	}
	if m.Kind != store.KindVideo || m.MediaURL != "https://cdn/v.mp4" || m.MediaMimeType != "video/mp4" || m.MediaSHA256 != "abc" {
		t.Errorf("media = %+v", m)
	}
	if m.Caption != "clip" || m.Body != "Media message" {
		t.Errorf("caption=%q body=%q", m.Caption, m.Body)
	}
}

func TestToMessageRejectsBadRecords(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
	}{
		{"missing timestamp", Record{ID: "a", From: "C", Type: "text"}},
		{"garbage timestamp", Record{ID: "a", From: "C", Timestamp: "soon", Type: "text"}},
		{"unsupported kind", Record{ID: "a", From: "C", Timestamp: "1", Type: "sticker"}},
		{"missing id", Record{From: "C", Timestamp: "1", Type: "text"}},
		{"missing sender", Record{ID: "a", Timestamp: "1", Type: "text"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := (MessageReceived{Record: tt.rec}).ToMessage(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestEventOrderAndMalformedRecords(t *testing.T) {
	raw := `{"entry":[{"changes":[{"value":{
		"messages": [
			{"from": "C", "id": "m1", "timestamp": "1", "type": "text", "text": {"body": "a"}},
			{"from": "C", "id": "m2", "timestamp": {"bad": true}},
			{"from": "C", "id": "m3", "timestamp": "3", "type": "text", "text": {"body": "c"}}
		],
		"statuses": [
			{"id": "m1", "status": "delivered", "timestamp": "5"},
			"oops"
		]
	}}]}]}`
	b, err := Parse([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}

	var kinds []string
	for _, ev := range b.Events {
		switch e := ev.(type) {
		case MessageReceived:
			kinds = append(kinds, "msg:"+e.Record.ID)
		case StatusChanged:
			kinds = append(kinds, "status:"+e.TargetID+"="+e.Status)
		case MalformedRecord:
			kinds = append(kinds, "bad:"+e.Section)
		}
	}
	want := "msg:m1 bad:messages msg:m3 status:m1=delivered bad:statuses"
	if got := strings.Join(kinds, " "); got != want {
		t.Errorf("events = %q, want %q", got, want)
	}
}

func TestTimestampAcceptsNumberAndString(t *testing.T) {
	tests := []struct {
		raw  string
		want int64
	}{
		{`{"from":"C","id":"a","timestamp":"1700000000"}`, 1700000000000},
		{`{"from":"C","id":"a","timestamp":1700000000}`, 1700000000000},
	}
	for _, tt := range tests {
		b, err := Parse([]byte(`{"entry":[{"changes":[{"value":{"messages":[` + tt.raw + `]}}]}]}`))
		if err != nil {
			t.Fatal(err)
		}
		msgs := messageEvents(t, b)
		if len(msgs) != 1 {
			t.Fatalf("got %d messages", len(msgs))
		}
		got, err := msgs[0].Record.Timestamp.UnixMilli()
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("UnixMilli() = %d, want %d", got, tt.want)
		}
	}
}

func TestTimestampRejectsOverflow(t *testing.T) {
	for _, ts := range []Timestamp{"9223372036854776", "-9223372036854776", "99999999999999999999", "abc", ""} {
		if got, err := ts.UnixMilli(); err == nil {
			t.Errorf("Timestamp(%q).UnixMilli() = %d, want error", ts, got)
		}
	}
	if got, err := Timestamp("9223372036854775").UnixMilli(); err != nil || got != 9223372036854775000 {
		t.Errorf("largest in-range timestamp = %d, %v", got, err)
	}
}
