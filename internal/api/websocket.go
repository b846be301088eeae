package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/matheus3301/inbox/internal/bus"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 4096
	listenerBuffer = 64
)

// Client frame types.
const (
	frameJoinChat  = "join_chat"
	frameLeaveChat = "leave_chat"
)

type clientFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
}

type serverFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// applyClientFrame updates l's group memberships from one client frame.
func applyClientFrame(l *bus.Listener, data []byte) error {
	var f clientFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	if f.ConversationID == "" {
		return fmt.Errorf("%s frame without conversationId", f.Type)
	}
	switch f.Type {
	case frameJoinChat:
		l.Join(f.ConversationID)
	case frameLeaveChat:
		l.Leave(f.ConversationID)
	default:
		return fmt.Errorf("unknown frame type %q", f.Type)
	}
	return nil
}

// wsConn is the part of a websocket connection the pumps use.
type wsConn interface {
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	ReadMessage() (messageType int, p []byte, err error)
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteJSON(v interface{}) error
	Close() error
}

func (s *Server) handleWebSocket(conn *websocket.Conn) {
	s.serveConn(conn)
}

// serveConn runs one subscriber until either pump stops. A failed write closes the
// connection so the blocked read returns and the listener is released.
func (s *Server) serveConn(conn wsConn) {
	l := s.bus.Subscribe(listenerBuffer)
	log := s.logger.With(zap.String("listener", l.ID))
	log.Debug("websocket connected")

	done := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writePump(conn, l, done, log)
		_ = conn.Close()
	}()

	s.readPump(conn, l, log)

	close(done)
	l.Close()
	<-writerDone
	log.Debug("websocket disconnected")
}

// readPump handles membership frames until the connection fails or closes.
func (s *Server) readPump(conn wsConn, l *bus.Listener, log *zap.Logger) {
	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		if err := applyClientFrame(l, data); err != nil {
			log.Debug("ignore client frame", zap.Error(err))
		}
	}
}

// writePump is the only goroutine writing to conn.
func (s *Server) writePump(conn wsConn, l *bus.Listener, done <-chan struct{}, log *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case evt, ok := <-l.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(serverFrame{Event: evt.Kind, Data: evt.Payload}); err != nil {
				log.Debug("websocket write error", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug("websocket ping error", zap.Error(err))
				return
			}
		case <-done:
			return
		}
	}
}
