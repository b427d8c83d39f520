// Package kafka carries source-trade events in and recommendations out.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ericc59/polybot-sub002/internal/config"
	"github.com/ericc59/polybot-sub002/internal/model"
)

// EventHandler processes one decoded source-trade event.
type EventHandler func(ctx context.Context, ev model.TradeEvent) error

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventConsumer consumes source-trade events from Kafka. Offsets are
// committed only after the handler succeeds, so delivery is at-least-once.
type EventConsumer struct {
	reader     messageReader
	maxBackoff time.Duration
}

// NewEventConsumer creates a consumer-group reader on the trades topic.
func NewEventConsumer(cfg config.Config) *EventConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.KafkaBrokers,
		GroupID: cfg.KafkaGroupID,
		Topic:   cfg.KafkaTopicTrades,
	})
	return &EventConsumer{reader: reader, maxBackoff: 30 * time.Second}
}

// Consume reads messages until ctx is cancelled.
//
// Payloads that cannot be decoded or fail validation are logged and
// committed; they would fail the same way on every redelivery. Handler
// errors are retried with backoff, without committing, until they succeed
// or ctx ends.
func (c *EventConsumer) Consume(ctx context.Context, handler EventHandler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ctx.Err()
			}
			return fmt.Errorf("kafka fetch: %w", err)
		}

		var ev model.TradeEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			slog.Warn("dropping undecodable trade event",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"err", err,
			)
		} else if err := c.handle(ctx, handler, ev); err != nil {
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("kafka commit: %w", err)
		}
	}
}

func (c *EventConsumer) handle(ctx context.Context, handler EventHandler, ev model.TradeEvent) error {
	backoff := 100 * time.Millisecond
	for {
		err := handler(ctx, ev)
		if err == nil {
			return nil
		}
		if errors.Is(err, model.ErrInvalidEvent) {
			slog.Warn("dropping invalid trade event",
				"source_trade", ev.SourceTradeHash,
				"err", err,
			)
			return nil
		}

		slog.Error("trade event handling failed, retrying",
			"source_trade", ev.SourceTradeHash,
			"backoff", backoff,
			"err", err,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, c.maxBackoff)
	}
}

// Close closes the underlying Kafka reader.
func (c *EventConsumer) Close() error {
	return c.reader.Close()
}
