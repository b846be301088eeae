package conversation

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

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

func insert(t *testing.T, db *store.DB, id, conv, author, body string, ts int64, status store.DeliveryStatus) {
	t.Helper()
	m := &store.Message{
		MsgID: id, MetaMsgID: id, ConversationID: conv, AuthorName: author, Body: body,
		Timestamp: ts, Kind: store.KindText, Status: status, Direction: store.DirectionIncoming,
	}
	if err := db.InsertMessage(context.Background(), m); err != nil {
		t.Fatal(err)
	}
}

func TestListEmpty(t *testing.T) {
	got, err := NewMaterializer(testDB(t)).List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("got %d summaries, want 0", len(got))
	}
}

func TestListSingleIncomingMessage(t *testing.T) {
	db := testDB(t)
	insert(t, db, "m1", "+1555", "John", "Hi", 1000, store.StatusSent)

	got, err := NewMaterializer(db).List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d summaries, want 1", len(got))
	}
	s := got[0]
	if s.ConversationID != "+1555" || s.LastMessageBody != "Hi" || s.UnreadCount != 0 || s.DisplayName != "John" {
		t.Errorf("summary = %+v", s)
	}
}

func TestUnreadCountsDeliveredOnly(t *testing.T) {
	db := testDB(t)
	statuses := []store.DeliveryStatus{
		store.StatusSent, store.StatusDelivered, store.StatusRead, store.StatusDelivered, store.StatusFailed,
	}
	for i, st := range statuses {
		insert(t, db, string(rune('a'+i)), "C", "x", "b", int64(i), st)
	}

	got, err := NewMaterializer(db).List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got[0].UnreadCount != 2 || got[0].MessageCount != 5 {
		t.Errorf("unread=%d count=%d, want 2/5", got[0].UnreadCount, got[0].MessageCount)
	}
}

func TestListOrderAndLastByInsertion(t *testing.T) {
	db := testDB(t)
	insert(t, db, "a1", "A", "Ann", "new", 9000, store.StatusSent)
	insert(t, db, "a2", "A", "Ann B.", "old but last stored", 2000, store.StatusSent)
	insert(t, db, "b1", "B", "Bob", "middle", 5000, store.StatusSent)

	got, err := NewMaterializer(db).List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d summaries, want 2", len(got))
	}
	if got[0].ConversationID != "B" || got[1].ConversationID != "A" {
		t.Errorf("order = [%s %s], want [B A]", got[0].ConversationID, got[1].ConversationID)
	}
	if got[1].LastMessageBody != "old but last stored" || got[1].DisplayName != "Ann B." {
		t.Errorf("A summary = %+v", got[1])
	}
}

type failingSource struct{}

func (failingSource) AggregateConversations(context.Context) ([]store.ConversationAggregate, error) {
	return nil, errors.New("boom")
}

func TestListPropagatesStoreError(t *testing.T) {
	if _, err := NewMaterializer(failingSource{}).List(context.Background()); err == nil {
		t.Error("expected error")
	}
}
