package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "inbox.events"

// NATSRelay shares events between processes. Publish sends events to NATS; everything
// received on the relay subjects (including this process's own publications) is
// re-published into the local Bus, which does the per-listener fan-out.
type NATSRelay struct {
	nc     *nats.Conn
	sub    *nats.Subscription
	local  *Bus
	prefix string
	logger *zap.Logger
}

type wireEvent struct {
	Kind         string          `json:"kind"`
	Conversation string          `json:"conversation,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// RelayOption configures a NATSRelay.
type RelayOption func(*relayOptions)

type relayOptions struct {
	onConnChange func(connected bool)
}

// WithConnectionHandler registers fn to be called when the NATS connection drops
// (false) or is re-established (true).
func WithConnectionHandler(fn func(connected bool)) RelayOption {
	return func(o *relayOptions) { o.onConnChange = fn }
}

// NewNATSRelay connects to NATS and subscribes to <prefix>.* for delivery into local.
func NewNATSRelay(url, prefix string, local *Bus, logger *zap.Logger, opts ...RelayOption) (*NATSRelay, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	var o relayOptions
	for _, opt := range opts {
		opt(&o)
	}
	notify := func(connected bool) {
		if o.onConnChange != nil {
			o.onConnChange(connected)
		}
	}

	nc, err := nats.Connect(url,
		nats.Name("inboxd"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
			notify(false)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
			notify(true)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	r := &NATSRelay{nc: nc, local: local, prefix: prefix, logger: logger}
	sub, err := nc.Subscribe(prefix+".*", r.handle)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribe %s.*: %w", prefix, err)
	}
	r.sub = sub
	logger.Info("nats relay started", zap.String("url", url), zap.String("subjects", prefix+".*"))
	return r, nil
}

// Publish sends evt to NATS. If that fails the event is delivered locally only.
func (r *NATSRelay) Publish(evt Event) {
	data, err := encodeEvent(evt)
	if err != nil {
		r.logger.Error("encode event", zap.Error(err), zap.String("kind", evt.Kind))
		r.local.Publish(evt)
		return
	}
	if err := r.nc.Publish(r.subject(evt.Kind), data); err != nil {
		r.logger.Warn("nats publish failed, delivering locally", zap.Error(err), zap.String("kind", evt.Kind))
		r.local.Publish(evt)
	}
}

func (r *NATSRelay) handle(msg *nats.Msg) {
	evt, err := decodeEvent(msg.Data)
	if err != nil {
		r.logger.Warn("drop malformed relay event", zap.Error(err), zap.String("subject", msg.Subject))
		return
	}
	r.local.Publish(evt)
}

func (r *NATSRelay) subject(kind string) string {
	return r.prefix + "." + kind
}

// Close drains the subscription and closes the connection.
func (r *NATSRelay) Close() error {
	if r.sub != nil {
		_ = r.sub.Unsubscribe()
	}
	return r.nc.Drain()
}

func encodeEvent(evt Event) ([]byte, error) {
	w := wireEvent{Kind: evt.Kind, Conversation: evt.Conversation, Timestamp: evt.Timestamp}
	if evt.Payload != nil {
		p, err := json.Marshal(evt.Payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		w.Payload = p
	}
	return json.Marshal(w)
}

func decodeEvent(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return Event{}, err
	}
	if w.Kind == "" {
		return Event{}, fmt.Errorf("relay event without kind")
	}
	evt := Event{Kind: w.Kind, Conversation: w.Conversation, Timestamp: w.Timestamp}
	if len(w.Payload) > 0 {
		evt.Payload = w.Payload
	}
	return evt, nil
}
