package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/duochat/duochat/pkg/model"
)

// BrokerConfig holds the connection parameters for the durable queue
// consumer. GroupID should be stable per user so the consumer resumes from
// its committed offset after a restart.
type BrokerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// BrokerChannel consumes a room's messages from a durable Kafka topic.
// All rooms share one topic with the room id in the frame envelope; frames
// for other rooms are committed immediately, frames for this room are
// committed only after the handler merges them. Failure to acknowledge
// causes redelivery, which the caller's idempotent append absorbs.
type BrokerChannel struct {
	cfg    BrokerConfig
	roomID string
	log    zerolog.Logger

	mu      sync.Mutex
	reader  *kafka.Reader
	writer  *kafka.Writer
	cancel  context.CancelFunc
	handler Handler
	onClose CloseHandler
}

func NewBrokerChannel(cfg BrokerConfig, roomID string, log zerolog.Logger) *BrokerChannel {
	return &BrokerChannel{
		cfg:    cfg,
		roomID: roomID,
		log:    log.With().Str("transport", "broker").Str("room", roomID).Logger(),
	}
}

func (c *BrokerChannel) OnMessage(h Handler)    { c.mu.Lock(); c.handler = h; c.mu.Unlock() }
func (c *BrokerChannel) OnClose(h CloseHandler) { c.mu.Lock(); c.onClose = h; c.mu.Unlock() }

func (c *BrokerChannel) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reader != nil {
		return nil
	}
	if len(c.cfg.Brokers) == 0 {
		return &ConnectError{Transport: "broker", Room: c.roomID, Err: errors.New("no brokers configured")}
	}

	c.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:  c.cfg.Brokers,
		Topic:    c.cfg.Topic,
		GroupID:  c.cfg.GroupID + "-" + c.roomID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	c.writer = &kafka.Writer{
		Addr:     kafka.TCP(c.cfg.Brokers...),
		Topic:    c.cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.consumeLoop(loopCtx, c.reader)
	return nil
}

func (c *BrokerChannel) consumeLoop(ctx context.Context, r *kafka.Reader) {
	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.log.Error().Err(err).Msg("broker fetch failed")
			c.dropConsumer(r, err)
			return
		}

		var frame model.Frame
		if err := json.Unmarshal(m.Value, &frame); err != nil {
			c.log.Warn().Err(err).Msg("skipping malformed frame")
			_ = r.CommitMessages(ctx, m)
			continue
		}
		if frame.Room != c.roomID {
			_ = r.CommitMessages(ctx, m)
			continue
		}

		c.mu.Lock()
		h := c.handler
		c.mu.Unlock()
		if h == nil {
			// No handler yet, leave the message uncommitted for redelivery.
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if err := h(frame.Data); err != nil {
			c.log.Warn().Err(err).Msg("merge failed, leaving message for redelivery")
			continue
		}
		if err := r.CommitMessages(ctx, m); err != nil {
			c.log.Warn().Err(err).Msg("commit failed, expect redelivery")
		}
	}
}

// dropConsumer tears the failed consumer down so the next Connect builds a
// fresh reader instead of reporting success on a dead one. A stale loop
// whose reader was already replaced is ignored.
func (c *BrokerChannel) dropConsumer(r *kafka.Reader, cause error) {
	c.mu.Lock()
	if c.reader != r {
		c.mu.Unlock()
		return
	}
	h := c.onClose
	c.cancel()
	_ = c.reader.Close()
	_ = c.writer.Close()
	c.reader = nil
	c.writer = nil
	c.mu.Unlock()
	if h != nil {
		h(cause)
	}
}

func (c *BrokerChannel) Publish(ctx context.Context, payload model.WirePayload) error {
	c.mu.Lock()
	w := c.writer
	c.mu.Unlock()
	if w == nil {
		return &PublishError{Transport: "broker", Room: c.roomID, Err: errors.New("not connected")}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return &PublishError{Transport: "broker", Room: c.roomID, Err: err}
	}
	frame, err := json.Marshal(model.Frame{Room: c.roomID, Type: model.FrameMessage, Data: data})
	if err != nil {
		return &PublishError{Transport: "broker", Room: c.roomID, Err: err}
	}

	err = w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(c.roomID),
		Value: frame,
		Time:  time.Now(),
	})
	if err != nil {
		return &PublishError{Transport: "broker", Room: c.roomID, Err: err}
	}
	return nil
}

func (c *BrokerChannel) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reader == nil {
		return nil
	}
	c.cancel()
	err := c.reader.Close()
	if werr := c.writer.Close(); err == nil {
		err = werr
	}
	c.reader = nil
	c.writer = nil
	return err
}
