package api

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/inbox/internal/bus"
)

// brokenWriteConn accepts reads until closed and fails every write.
type brokenWriteConn struct {
	closeOnce sync.Once
	closed    chan struct{}
}

func newBrokenWriteConn() *brokenWriteConn {
	return &brokenWriteConn{closed: make(chan struct{})}
}

func (c *brokenWriteConn) SetReadLimit(int64)                {}
func (c *brokenWriteConn) SetReadDeadline(time.Time) error   { return nil }
func (c *brokenWriteConn) SetPongHandler(func(string) error) {}
func (c *brokenWriteConn) SetWriteDeadline(time.Time) error  { return nil }
func (c *brokenWriteConn) WriteMessage(int, []byte) error    { return errors.New("broken pipe") }
func (c *brokenWriteConn) WriteJSON(interface{}) error       { return errors.New("broken pipe") }

func (c *brokenWriteConn) ReadMessage() (int, []byte, error) {
	<-c.closed
	return 0, nil, errors.New("use of closed network connection")
}

func (c *brokenWriteConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func TestWebSocketWriteFailureReleasesListener(t *testing.T) {
	env := newTestEnv(t, "")
	conn := newBrokenWriteConn()

	served := make(chan struct{})
	go func() {
		defer close(served)
		env.srv.serveConn(conn)
	}()

	deadline := time.After(2 * time.Second)
	for env.bus.ListenerCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("listener never subscribed")
		case <-time.After(5 * time.Millisecond):
		}
	}

	env.bus.Publish(bus.Event{Kind: bus.KindConversationUpdated, Conversation: "+1555", Payload: "+1555"})

	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("connection still served after a failed write")
	}
	if n := env.bus.ListenerCount(); n != 0 {
		t.Errorf("listeners = %d, want 0", n)
	}
}
