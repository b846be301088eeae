package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisPingInterval = 5 * time.Second

// RedisRelay shares events between processes over Redis pub/sub. Like NATSRelay, every
// event received on <prefix>.* is re-published into the local Bus, own publications
// included.
type RedisRelay struct {
	client *redis.Client
	pubsub *redis.PubSub
	local  *Bus
	prefix string
	logger *zap.Logger
	notify func(connected bool)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRedisRelay connects to the Redis server at url (redis://host:port/db) and
// pattern-subscribes to <prefix>.* for delivery into local.
func NewRedisRelay(ctx context.Context, url, prefix string, local *Bus, logger *zap.Logger, opts ...RelayOption) (*RedisRelay, error) {
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

	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	pubsub := client.PSubscribe(ctx, prefix+".*")
	// Receive waits for the subscription confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		_ = client.Close()
		return nil, fmt.Errorf("subscribe %s.*: %w", prefix, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r := &RedisRelay{
		client: client,
		pubsub: pubsub,
		local:  local,
		prefix: prefix,
		logger: logger,
		notify: o.onConnChange,
		cancel: cancel,
	}
	r.wg.Add(2)
	go r.receiveLoop()
	go r.pingLoop(runCtx)
	logger.Info("redis relay started", zap.String("addr", redisOpts.Addr), zap.String("pattern", prefix+".*"))
	return r, nil
}

// Publish sends evt to Redis. If that fails the event is delivered locally only.
func (r *RedisRelay) Publish(evt Event) {
	data, err := encodeEvent(evt)
	if err != nil {
		r.logger.Error("encode event", zap.Error(err), zap.String("kind", evt.Kind))
		r.local.Publish(evt)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.client.Publish(ctx, r.prefix+"."+evt.Kind, data).Err(); err != nil {
		r.logger.Warn("redis publish failed, delivering locally", zap.Error(err), zap.String("kind", evt.Kind))
		r.local.Publish(evt)
	}
}

func (r *RedisRelay) receiveLoop() {
	defer r.wg.Done()
	for msg := range r.pubsub.Channel() {
		evt, err := decodeEvent([]byte(msg.Payload))
		if err != nil {
			r.logger.Warn("drop malformed relay event", zap.Error(err), zap.String("channel", msg.Channel))
			continue
		}
		r.local.Publish(evt)
	}
}

// pingLoop reports connection changes. The pub/sub connection reconnects on its own.
func (r *RedisRelay) pingLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(redisPingInterval)
	defer ticker.Stop()
	connected := true
	for {
		select {
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, redisPingInterval)
			err := r.client.Ping(pingCtx).Err()
			cancel()
			if ctx.Err() != nil {
				return
			}
			if up := err == nil; up != connected {
				connected = up
				if up {
					r.logger.Info("redis reconnected")
				} else {
					r.logger.Warn("redis unreachable", zap.Error(err))
				}
				if r.notify != nil {
					r.notify(up)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close stops the subscription and closes the client.
func (r *RedisRelay) Close() error {
	r.cancel()
	err := r.pubsub.Close()
	r.wg.Wait()
	if cerr := r.client.Close(); err == nil {
		err = cerr
	}
	return err
}
