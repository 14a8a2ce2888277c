package transport

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/duochat/duochat/pkg/model"
)

// channelPrefix namespaces relay pub/sub channels by room id.
const channelPrefix = "room:"

// RelayChannel delivers messages through a managed pub/sub relay backed by
// Redis. The client reconnects the subscription transparently, but message
// gaps during a reconnect window are possible; callers close gaps with
// backfill, not by trusting the relay.
type RelayChannel struct {
	rdb    *redis.Client
	roomID string
	log    zerolog.Logger

	mu      sync.Mutex
	pubsub  *redis.PubSub
	handler Handler
	onClose CloseHandler
	done    chan struct{}
}

func NewRelayChannel(rdb *redis.Client, roomID string, log zerolog.Logger) *RelayChannel {
	return &RelayChannel{
		rdb:    rdb,
		roomID: roomID,
		log:    log.With().Str("transport", "relay").Str("room", roomID).Logger(),
	}
}

func (c *RelayChannel) OnMessage(h Handler)    { c.mu.Lock(); c.handler = h; c.mu.Unlock() }
func (c *RelayChannel) OnClose(h CloseHandler) { c.mu.Lock(); c.onClose = h; c.mu.Unlock() }

func (c *RelayChannel) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pubsub != nil {
		return nil
	}

	ps := c.rdb.Subscribe(ctx, channelPrefix+c.roomID)
	// Force the SUBSCRIBE round-trip so failures surface here instead of
	// on the first receive.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return &ConnectError{Transport: "relay", Room: c.roomID, Err: err}
	}

	c.pubsub = ps
	c.done = make(chan struct{})
	go c.readLoop(ps, c.done)
	c.log.Debug().Msg("subscribed")
	return nil
}

func (c *RelayChannel) readLoop(ps *redis.PubSub, done chan struct{}) {
	ch := ps.Channel()
	for msg := range ch {
		c.mu.Lock()
		h := c.handler
		c.mu.Unlock()
		if h == nil {
			continue
		}
		if err := h([]byte(msg.Payload)); err != nil {
			c.log.Warn().Err(err).Msg("handler rejected relay message")
		}
	}
	select {
	case <-done:
		// Disconnect closed the subscription.
	default:
		c.mu.Lock()
		h := c.onClose
		c.pubsub = nil
		c.mu.Unlock()
		if h != nil {
			h(redis.ErrClosed)
		}
	}
}

func (c *RelayChannel) Publish(ctx context.Context, payload model.WirePayload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return &PublishError{Transport: "relay", Room: c.roomID, Err: err}
	}
	if err := c.rdb.Publish(ctx, channelPrefix+c.roomID, raw).Err(); err != nil {
		return &PublishError{Transport: "relay", Room: c.roomID, Err: err}
	}
	return nil
}

func (c *RelayChannel) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pubsub == nil {
		return nil
	}
	close(c.done)
	err := c.pubsub.Close()
	c.pubsub = nil
	return err
}
