// Package ingest applies normalized webhook events to the store and announces the
// resulting changes on the notification bus.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/inbox/internal/bus"
	"github.com/matheus3301/inbox/internal/store"
	"github.com/matheus3301/inbox/internal/webhook"
	"go.uber.org/zap"
)

// Store is the subset of persistence operations the engine needs.
type Store interface {
	FindMessage(ctx context.Context, msgID string) (*store.Message, error)
	InsertMessage(ctx context.Context, m *store.Message) error
	SetMessageStatus(ctx context.Context, target string, status store.DeliveryStatus) (*store.Message, error)
	UpsertContact(ctx context.Context, c *store.Contact) error
}

// ErrMalformedPayload is returned for input that is not a JSON document.
var ErrMalformedPayload = errors.New("malformed payload")

// Result accumulates what one batch did.
type Result struct {
	Created       int `json:"created"`
	StatusUpdates int `json:"statusUpdates"`
	Skipped       int `json:"skipped"`
	Failed        int `json:"failed"`
}

// Add folds o into r.
func (r *Result) Add(o Result) {
	r.Created += o.Created
	r.StatusUpdates += o.StatusUpdates
	r.Skipped += o.Skipped
	r.Failed += o.Failed
}

// Engine handles idempotent ingestion of webhook batches into the store.
type Engine struct {
	store        Store
	pub          bus.Publisher
	logger       *zap.Logger
	now          func() time.Time
	businessLine string
}

// Option configures an Engine.
type Option func(*Engine)

// WithBusinessLine sets the business number used for payloads whose metadata does not
// declare one.
func WithBusinessLine(line string) Option {
	return func(e *Engine) { e.businessLine = line }
}

// NewEngine creates a new ingestion engine. pub may be nil when nobody listens.
func NewEngine(s Store, pub bus.Publisher, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		store:  s,
		pub:    pub,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IngestPayload parses raw and applies it. Only non-JSON input and store connectivity
// failures are returned as errors.
func (e *Engine) IngestPayload(ctx context.Context, raw []byte) (Result, error) {
	batch, err := webhook.Parse(raw)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if batch.Envelope == webhook.EnvelopeUnknown {
		e.logger.Debug("payload has no webhook structure, nothing to process")
	}
	return e.Apply(ctx, batch)
}

// Apply processes the events of b strictly in order. A failing record is logged, counted
// and skipped. The batch stops early only when the store itself is unusable; records
// applied before that stay committed.
func (e *Engine) Apply(ctx context.Context, b *webhook.Batch) (Result, error) {
	var res Result
	for _, ev := range b.Events {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		var err error
		switch ev := ev.(type) {
		case webhook.MessageReceived:
			if ev.BusinessLine == "" {
				ev.BusinessLine = e.businessLine
			}
			err = e.applyMessage(ctx, ev, &res)
		case webhook.StatusChanged:
			err = e.applyStatus(ctx, ev, &res)
		case webhook.MalformedRecord:
			e.logger.Warn("skip malformed record",
				zap.String("section", ev.Section), zap.Int("index", ev.Index), zap.Error(ev.Err))
			res.Failed++
		}
		if err == nil {
			continue
		}
		if store.IsFatal(err) {
			return res, fmt.Errorf("store unavailable: %w", err)
		}
		e.logger.Error("failed to apply record", zap.Error(err))
		res.Failed++
	}
	return res, nil
}

func (e *Engine) applyMessage(ctx context.Context, ev webhook.MessageReceived, res *Result) error {
	existing, err := e.store.FindMessage(ctx, ev.Record.ID)
	if err != nil {
		return fmt.Errorf("find message %q: %w", ev.Record.ID, err)
	}
	if existing != nil {
		res.Skipped++
		return nil
	}

	msg, err := ev.ToMessage()
	if err != nil {
		return err
	}
	if err := e.store.InsertMessage(ctx, msg); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// Lost a race against a concurrent writer of the same id.
			res.Skipped++
			return nil
		}
		return fmt.Errorf("insert message: %w", err)
	}
	res.Created++

	// Keyed by the raw sender, which for outgoing messages is the business line.
	if ev.Contact != nil {
		if err := e.store.UpsertContact(ctx, &store.Contact{
			ConversationID: ev.Record.From,
			DisplayName:    ev.Contact.Profile.Name,
			LastSeenAt:     e.now().UnixMilli(),
		}); err != nil {
			e.logger.Warn("contact upsert failed", zap.Error(err), zap.String("wa_id", ev.Record.From))
			if store.IsFatal(err) {
				return err
			}
		}
	}

	e.publishMessage(msg)
	e.logger.Debug("message ingested",
		zap.String("msg_id", msg.MsgID),
		zap.String("conversation", msg.ConversationID),
		zap.String("direction", string(msg.Direction)))
	return nil
}

func (e *Engine) applyStatus(ctx context.Context, ev webhook.StatusChanged, res *Result) error {
	if ev.TargetID == "" {
		return fmt.Errorf("status entry %d without target id", ev.Index)
	}
	status, err := store.ParseStatus(ev.Status)
	if err != nil {
		return fmt.Errorf("status for %q: %w", ev.TargetID, err)
	}
	msg, err := e.store.SetMessageStatus(ctx, ev.TargetID, status)
	if err != nil {
		return fmt.Errorf("set status %q: %w", ev.TargetID, err)
	}
	if msg == nil {
		e.logger.Debug("status target not found", zap.String("id", ev.TargetID))
		return nil
	}
	res.StatusUpdates++
	e.PublishStatus(msg.ConversationID, ev.TargetID, status)
	return nil
}

func (e *Engine) publishMessage(msg *store.Message) {
	if e.pub == nil {
		return
	}
	now := e.now()
	e.pub.Publish(bus.Event{
		Kind:         bus.KindNewMessage,
		Conversation: msg.ConversationID,
		Timestamp:    now,
		Payload:      msg,
	})
	e.pub.Publish(bus.Event{
		Kind:         bus.KindConversationUpdated,
		Conversation: msg.ConversationID,
		Timestamp:    now,
		Payload:      msg.ConversationID,
	})
}

// PublishMessage announces a message created outside a webhook batch.
func (e *Engine) PublishMessage(msg *store.Message) {
	e.publishMessage(msg)
}

// PublishStatus announces a delivery status change to the owning conversation.
func (e *Engine) PublishStatus(conversationID, id string, status store.DeliveryStatus) {
	if e.pub == nil {
		return
	}
	e.pub.Publish(bus.Event{
		Kind:         bus.KindMessageStatus,
		Conversation: conversationID,
		Timestamp:    e.now(),
		Payload:      bus.StatusUpdate{ID: id, Status: string(status)},
	})
}
