package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/inbox/internal/bus"
	"github.com/matheus3301/inbox/internal/store"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func textPayload(from, name, id, body string, ts int64) string {
	return fmt.Sprintf(`{"entry":[{"changes":[{"value":{
		"metadata": {"display_phone_number": "918329446654"},
		"contacts": [{"wa_id": %q, "profile": {"name": %q}}],
		"messages": [{"from": %q, "id": %q, "timestamp": "%d", "type": "text", "text": {"body": %q}}]
	}}]}]}`, from, name, from, id, ts, body)
}

func statusPayload(id, status string) string {
	return fmt.Sprintf(`{"metaData":{"entry":[{"changes":[{"value":{
		"statuses": [{"id": %q, "status": %q, "timestamp": "1"}]
	}}]}]}}`, id, status)
}

func TestIngestPayloadIsIdempotent(t *testing.T) {
	db := testDB(t)
	e := NewEngine(db, nil, nil)
	ctx := context.Background()
	raw := []byte(textPayload("+1555", "John", "wamid.1", "Hi", 1700000000))

	first, err := e.IngestPayload(ctx, raw)
	if err != nil {
		t.Fatal(err)
	}
	if first.Created != 1 {
		t.Errorf("first run created = %d, want 1", first.Created)
	}

	second, err := e.IngestPayload(ctx, raw)
	if err != nil {
		t.Fatal(err)
	}
	if second.Created != 0 || second.Skipped != 1 {
		t.Errorf("second run = %+v, want created 0 skipped 1", second)
	}

	n, err := db.MessageCount(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("message count = %d, want 1", n)
	}
}

func TestIngestUpsertsContactFromSender(t *testing.T) {
	db := testDB(t)
	e := NewEngine(db, nil, nil)
	ctx := context.Background()

	if _, err := e.IngestPayload(ctx, []byte(textPayload("+1555", "John", "m1", "Hi", 1))); err != nil {
		t.Fatal(err)
	}
	c, err := db.GetContact(ctx, "+1555")
	if err != nil {
		t.Fatal(err)
	}
	if c == nil || c.DisplayName != "John" || c.LastSeenAt == 0 {
		t.Errorf("contact = %+v, want John with last seen", c)
	}
}

func TestIngestOutgoingKeepsRawSenderContactKey(t *testing.T) {
	db := testDB(t)
	e := NewEngine(db, nil, nil)
	ctx := context.Background()

	raw := `{"entry":[{"changes":[{"value":{
		"metadata": {"display_phone_number": "B"},
		"contacts": [{"wa_id": "C1", "profile": {"name": "Customer"}}, {"wa_id": "B", "profile": {"name": "Shop"}}],
		"messages": [{"from": "B", "id": "out1", "timestamp": "10", "type": "text", "text": {"body": "Thanks"}}]
	}}]}]}`
	if _, err := e.IngestPayload(ctx, []byte(raw)); err != nil {
		t.Fatal(err)
	}

	m, err := db.FindMessage(ctx, "out1")
	if err != nil {
		t.Fatal(err)
	}
	if m == nil || m.ConversationID != "C1" || m.Direction != store.DirectionOutgoing || m.AuthorName != "Shop" {
		t.Fatalf("message = %+v, want outgoing in C1 authored by Shop", m)
	}
	shop, _ := db.GetContact(ctx, "B")
	if shop == nil || shop.DisplayName != "Shop" {
		t.Errorf("contact B = %+v, want Shop", shop)
	}
	customer, _ := db.GetContact(ctx, "C1")
	if customer != nil {
		t.Errorf("contact C1 = %+v, want none", customer)
	}
}

func TestIngestStatusUpdates(t *testing.T) {
	db := testDB(t)
	e := NewEngine(db, nil, nil)
	ctx := context.Background()

	if _, err := e.IngestPayload(ctx, []byte(textPayload("+1555", "John", "m1", "Hi", 1))); err != nil {
		t.Fatal(err)
	}
	res, err := e.IngestPayload(ctx, []byte(statusPayload("m1", "delivered")))
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusUpdates != 1 {
		t.Errorf("status updates = %d, want 1", res.StatusUpdates)
	}
	m, _ := db.FindMessage(ctx, "m1")
	if m.Status != store.StatusDelivered {
		t.Errorf("status = %q, want delivered", m.Status)
	}

	// Unknown target is a no-op, not a failure.
	res, err = e.IngestPayload(ctx, []byte(statusPayload("ghost", "read")))
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusUpdates != 0 || res.Failed != 0 {
		t.Errorf("ghost status result = %+v, want no-op", res)
	}

	// Unsupported status string is a per-record failure.
	res, err = e.IngestPayload(ctx, []byte(statusPayload("m1", "seen")))
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed != 1 {
		t.Errorf("failed = %d, want 1", res.Failed)
	}
}

func TestIngestContinuesPastBadRecord(t *testing.T) {
	db := testDB(t)
	e := NewEngine(db, nil, nil)
	ctx := context.Background()

	raw := `{"entry":[{"changes":[{"value":{
		"messages": [
			{"from": "C", "id": "a", "timestamp": "1", "type": "text", "text": {"body": "one"}},
			{"from": "C", "id": "b", "timestamp": "2", "type": "sticker"},
			{"from": "C", "id": "c", "timestamp": "3", "type": "text", "text": {"body": "three"}}
		]
	}}]}]}`
	res, err := e.IngestPayload(ctx, []byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	if res.Created != 2 || res.Failed != 1 {
		t.Errorf("result = %+v, want 2 created 1 failed", res)
	}
}

func TestIngestMalformedPayload(t *testing.T) {
	e := NewEngine(testDB(t), nil, nil)
	ctx := context.Background()

	if _, err := e.IngestPayload(ctx, []byte("{oops")); !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("err = %v, want ErrMalformedPayload", err)
	}
	res, err := e.IngestPayload(ctx, []byte(`{"hello": "world"}`))
	if err != nil {
		t.Fatal(err)
	}
	if res != (Result{}) {
		t.Errorf("result = %+v, want zero for payload without structure", res)
	}
}

func TestIngestAbortsWhenStoreUnavailable(t *testing.T) {
	db := testDB(t)
	e := NewEngine(db, nil, nil)
	_ = db.Close()

	_, err := e.IngestPayload(context.Background(), []byte(textPayload("+1555", "John", "m1", "Hi", 1)))
	if err == nil {
		t.Fatal("expected error for closed store")
	}
	if !store.IsFatal(err) {
		t.Errorf("IsFatal(%v) = false", err)
	}
}

func TestIngestPublishesNotifications(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	e := NewEngine(db, b, nil)
	ctx := context.Background()

	member := b.Subscribe(10)
	defer member.Close()
	member.Join("+1555")
	outsider := b.Subscribe(10)
	defer outsider.Close()

	if _, err := e.IngestPayload(ctx, []byte(textPayload("+1555", "John", "m1", "Hi", 1))); err != nil {
		t.Fatal(err)
	}
	if _, err := e.IngestPayload(ctx, []byte(statusPayload("m1", "read"))); err != nil {
		t.Fatal(err)
	}

	want := []string{bus.KindNewMessage, bus.KindConversationUpdated, bus.KindMessageStatus}
	for _, kind := range want {
		select {
		case evt := <-member.Events():
			if evt.Kind != kind {
				t.Errorf("member got %q, want %q", evt.Kind, kind)
			}
			if kind == bus.KindMessageStatus {
				su, ok := evt.Payload.(bus.StatusUpdate)
				if !ok || su.ID != "m1" || su.Status != "read" {
					t.Errorf("status payload = %+v", evt.Payload)
				}
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %s", kind)
		}
	}

	// The outsider only sees the global conversation_updated.
	select {
	case evt := <-outsider.Events():
		if evt.Kind != bus.KindConversationUpdated || evt.Payload != "+1555" {
			t.Errorf("outsider got %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for conversation_updated")
	}
	select {
	case evt := <-outsider.Events():
		t.Errorf("outsider got unexpected %q", evt.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestIngestDirectory(t *testing.T) {
	db := testDB(t)
	e := NewEngine(db, nil, nil)
	dir := t.TempDir()

	files := map[string]string{
		"01_msg.json":    textPayload("+1555", "John", "m1", "Hi", 1),
		"02_broken.json": `{"entry": [`,
		"03_msg.json":    textPayload("+1666", "Jane", "m2", "Hello", 2),
		"04_status.json": statusPayload("m1", "delivered"),
		"notes.txt":      "ignored",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested.json"), 0o755); err != nil {
		t.Fatal(err)
	}

	res, err := e.IngestDirectory(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if res.ProcessedFiles != 4 {
		t.Errorf("processed files = %d, want 4 (malformed file counted)", res.ProcessedFiles)
	}
	if res.Created != 2 || res.StatusUpdates != 1 || res.FailedFiles != 1 {
		t.Errorf("result = %+v, want 2 created 1 status 1 failed file", res)
	}
}

func TestIngestDirectoryMissing(t *testing.T) {
	e := NewEngine(testDB(t), nil, nil)
	_, err := e.IngestDirectory(context.Background(), filepath.Join(t.TempDir(), "nope"))
	if !errors.Is(err, ErrNoDirectory) {
		t.Errorf("err = %v, want ErrNoDirectory", err)
	}
}

func TestConfiguredBusinessLineFallback(t *testing.T) {
	db := testDB(t)
	e := NewEngine(db, nil, nil, WithBusinessLine("B"))
	ctx := context.Background()

	// No metadata in the payload: the configured line decides direction.
	raw := `{"entry":[{"changes":[{"value":{
		"contacts": [{"wa_id": "C1", "profile": {"name": "Customer"}}],
		"messages": [{"from": "B", "id": "out1", "timestamp": "10", "type": "text", "text": {"body": "Thanks"}}]
	}}]}]}`
	if _, err := e.IngestPayload(ctx, []byte(raw)); err != nil {
		t.Fatal(err)
	}
	m, _ := db.FindMessage(ctx, "out1")
	if m == nil || m.ConversationID != "C1" || m.Direction != store.DirectionOutgoing {
		t.Fatalf("message = %+v, want outgoing in C1", m)
	}

	// Payload metadata takes precedence over the configured line.
	raw = `{"entry":[{"changes":[{"value":{
		"metadata": {"display_phone_number": "OTHER"},
		"messages": [{"from": "B", "id": "in1", "timestamp": "11", "type": "text", "text": {"body": "hey"}}]
	}}]}]}`
	if _, err := e.IngestPayload(ctx, []byte(raw)); err != nil {
		t.Fatal(err)
	}
	m, _ = db.FindMessage(ctx, "in1")
	if m == nil || m.ConversationID != "B" || m.Direction != store.DirectionIncoming {
		t.Fatalf("message = %+v, want incoming in B", m)
	}
}

// lateStore hides existing rows from FindMessage, as when a concurrent writer inserts
// the same id between the lookup and the insert.
type lateStore struct {
	*store.DB
}

func (lateStore) FindMessage(context.Context, string) (*store.Message, error) {
	return nil, nil
}

func TestIngestDuplicateInsertCountsAsSkipped(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	raw := []byte(textPayload("+1555", "John", "wamid.race", "Hi", 1700000000))

	if _, err := NewEngine(db, nil, nil).IngestPayload(ctx, raw); err != nil {
		t.Fatal(err)
	}

	res, err := NewEngine(lateStore{db}, nil, nil).IngestPayload(ctx, raw)
	if err != nil {
		t.Fatalf("duplicate insert surfaced an error: %v", err)
	}
	if res.Created != 0 || res.Skipped != 1 || res.Failed != 0 {
		t.Errorf("result = %+v, want skipped 1", res)
	}
}

func TestConcurrentIngestStoresEachIDOnce(t *testing.T) {
	db := testDB(t)
	e := NewEngine(db, nil, nil)
	ctx := context.Background()

	const workers, ids = 8, 10
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total Result
	)
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < ids; i++ {
				raw := []byte(textPayload("+1555", "John", fmt.Sprintf("m%d", i), "Hi", int64(i+1)))
				res, err := e.IngestPayload(ctx, raw)
				if err != nil {
					errs <- err
					return
				}
				mu.Lock()
				total.Add(res)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	if total.Created != ids || total.Failed != 0 || total.Skipped != ids*(workers-1) {
		t.Errorf("total = %+v, want created %d skipped %d", total, ids, ids*(workers-1))
	}
	n, err := db.MessageCount(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if n != ids {
		t.Errorf("message count = %d, want %d", n, ids)
	}
}
