// Package client talks to a running inboxd over its HTTP and WebSocket API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/matheus3301/inbox/internal/bus"
	"github.com/matheus3301/inbox/internal/conversation"
	"github.com/matheus3301/inbox/internal/store"
)

const requestTimeout = 10 * time.Second

// Health is the daemon's /api/health answer.
type Health struct {
	Status string `json:"status"`
	State  string `json:"state"`
}

// APIError is a non-2xx answer from the daemon.
type APIError struct {
	Code    int
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned %d", e.Code)
	}
	return fmt.Sprintf("daemon returned %d: %s", e.Code, e.Message)
}

// Client is bound to one daemon base URL such as http://127.0.0.1:5000.
type Client struct {
	base string
}

// New validates baseURL and returns a client for it.
func New(baseURL string) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse daemon url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("daemon url %q: scheme must be http or https", baseURL)
	}
	return &Client{base: strings.TrimRight(baseURL, "/")}, nil
}

// BaseURL returns the daemon address the client was created with.
func (c *Client) BaseURL() string {
	return c.base
}

// Health probes the daemon. A daemon that answers but is not serving returns its
// health with an *APIError.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	err := c.do(ctx, fiber.Get(c.base+"/api/health"), &h)
	var apiErr *APIError
	if errors.As(err, &apiErr) && h.State != "" {
		return &h, err
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// Conversations lists conversation summaries, most recently active first.
func (c *Client) Conversations(ctx context.Context) ([]conversation.Summary, error) {
	var out []conversation.Summary
	if err := c.do(ctx, fiber.Get(c.base+"/api/conversations"), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Messages returns one page of a conversation, oldest first.
func (c *Client) Messages(ctx context.Context, conversationID string, page, limit int) ([]store.Message, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	a := fiber.Get(c.base + "/api/messages/" + url.PathEscape(conversationID)).QueryString(q.Encode())
	var out []store.Message
	if err := c.do(ctx, a, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Send posts a locally authored text message.
func (c *Client) Send(ctx context.Context, conversationID, displayName, body string) (*store.Message, error) {
	req := map[string]string{
		"wa_id":        conversationID,
		"body":         body,
		"profile_name": displayName,
	}
	var msg store.Message
	if err := c.do(ctx, fiber.Post(c.base+"/api/messages").JSON(req), &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Search finds messages containing query across all conversations.
func (c *Client) Search(ctx context.Context, query string) ([]store.SearchResult, error) {
	q := url.Values{}
	q.Set("q", query)
	var out []store.SearchResult
	if err := c.do(ctx, fiber.Get(c.base+"/api/search").QueryString(q.Encode()), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// do runs the request and decodes a 2xx body into out. The agent is released by fiber
// once the response has been read.
func (c *Client) do(ctx context.Context, a *fiber.Agent, out any) error {
	timeout := requestTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	code, body, errs := a.Timeout(timeout).Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("request daemon: %w", errors.Join(errs...))
	}
	if code < 200 || code >= 300 {
		apiErr := &APIError{Code: code}
		_ = json.Unmarshal(body, apiErr)
		// Health answers 503 with a regular body worth decoding.
		if out != nil {
			_ = json.Unmarshal(body, out)
		}
		return apiErr
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Event is one push notification from the daemon. Exactly one payload field is set,
// according to Kind.
type Event struct {
	Kind           string
	Message        *store.Message
	ConversationID string
	StatusID       string
	Status         string
}

type wireFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Stream is a live WebSocket subscription.
type Stream struct {
	conn   *websocket.Conn
	events chan Event
	done   chan struct{}
	wmu    sync.Mutex
	err    error

	closing atomic.Bool
}

// Subscribe opens the push channel. Events arrive on Stream.Events until the connection
// drops or Close is called.
func (c *Client) Subscribe(ctx context.Context) (*Stream, error) {
	wsURL := "ws" + strings.TrimPrefix(c.base, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	s := &Stream{
		conn:   conn,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// Events delivers decoded notifications. It is closed when the stream ends.
func (s *Stream) Events() <-chan Event {
	return s.events
}

// Err returns why the stream ended, once Events is closed.
func (s *Stream) Err() error {
	<-s.done
	return s.err
}

// Join asks for message-level notifications of one conversation.
func (s *Stream) Join(conversationID string) error {
	return s.send("join_chat", conversationID)
}

// Leave stops message-level notifications of one conversation.
func (s *Stream) Leave(conversationID string) error {
	return s.send("leave_chat", conversationID)
}

func (s *Stream) send(kind, conversationID string) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.conn.WriteJSON(map[string]string{"type": kind, "conversationId": conversationID})
}

// Close ends the subscription.
func (s *Stream) Close() error {
	s.closing.Store(true)
	s.wmu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	s.wmu.Unlock()
	return s.conn.Close()
}

func (s *Stream) readLoop() {
	defer close(s.done)
	defer close(s.events)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closing.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.err = err
			}
			return
		}
		ev, err := decodeFrame(data)
		if err != nil {
			continue
		}
		s.events <- ev
	}
}

func decodeFrame(data []byte) (Event, error) {
	var f wireFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return Event{}, err
	}
	ev := Event{Kind: f.Event}
	switch f.Event {
	case bus.KindNewMessage:
		var m store.Message
		if err := json.Unmarshal(f.Data, &m); err != nil {
			return Event{}, err
		}
		ev.Message = &m
		ev.ConversationID = m.ConversationID
	case bus.KindConversationUpdated:
		if err := json.Unmarshal(f.Data, &ev.ConversationID); err != nil {
			return Event{}, err
		}
	case bus.KindMessageStatus:
		var st bus.StatusUpdate
		if err := json.Unmarshal(f.Data, &st); err != nil {
			return Event{}, err
		}
		ev.StatusID, ev.Status = st.ID, st.Status
	default:
		return Event{}, fmt.Errorf("unknown event %q", f.Event)
	}
	return ev, nil
}
