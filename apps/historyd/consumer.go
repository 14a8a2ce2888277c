package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/duochat/duochat/pkg/history"
	"github.com/duochat/duochat/pkg/model"
)

// Consumer drains the chat topic into the persisted history store.
// Messages are committed only after the row is written, so a crash between
// fetch and write redelivers; the deterministic message id makes the
// repeated insert an upsert.
type Consumer struct {
	reader *kafka.Reader
	store  *history.Store
	log    zerolog.Logger
}

func NewConsumer(brokers []string, topic, groupID string, store *history.Store, log zerolog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: r, store: store, log: log}
}

func (c *Consumer) Consume(ctx context.Context) {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error().Err(err).Msg("fetch failed, retrying in 1s")
			time.Sleep(1 * time.Second)
			continue
		}

		var frame model.Frame
		if err := json.Unmarshal(m.Value, &frame); err != nil || frame.Room == "" {
			c.log.Warn().Err(err).Msg("skipping malformed frame")
			_ = c.reader.CommitMessages(ctx, m)
			continue
		}

		msg := model.FromWire(frame.Data, frame.Room, m.Time)
		if msg.Text == "" {
			_ = c.reader.CommitMessages(ctx, m)
			continue
		}

		if err := c.store.Save(ctx, msg); err != nil {
			c.log.Error().Err(err).Str("room", frame.Room).Msg("save failed, leaving for redelivery")
			continue
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil {
			c.log.Warn().Err(err).Msg("commit failed, expect redelivery")
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
